package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avdeyev/matchlink-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event: %+v", ev)
			}
		case <-timeout:
			return
		}
	}
}

// fakeMessageStore is an in-memory store.MessageStore with a failure toggle.
type fakeMessageStore struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*store.Message
	failSave bool
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[int64]*store.Message)}
}

func (f *fakeMessageStore) SaveMessage(_ context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSave {
		return errors.New("store unavailable")
	}
	f.nextID++
	msg.ID = f.nextID
	msg.CreatedAt = time.Now().UTC()
	saved := *msg
	f.messages[msg.ID] = &saved
	return nil
}

func (f *fakeMessageStore) MarkMessageRead(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.messages[id]
	if !ok || m.ReadAt != nil {
		return false, nil
	}
	t := time.Now().UTC()
	m.ReadAt = &t
	return true, nil
}

func (f *fakeMessageStore) MarkConversationRead(_ context.Context, key string, readerID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, m := range f.messages {
		if m.ConversationKey == key && m.RecipientID == readerID && m.ReadAt == nil {
			t := time.Now().UTC()
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) ListConversation(_ context.Context, key string, limit int, _ *int64) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.Message
	for id := int64(1); id <= f.nextID && len(out) < limit; id++ {
		if m, ok := f.messages[id]; ok && m.ConversationKey == key {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) get(id int64) *store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[id]; ok {
		copied := *m
		return &copied
	}
	return nil
}

var _ store.MessageStore = (*fakeMessageStore)(nil)
