package core

import (
	"context"
	"errors"
	"testing"
)

func TestHubPresenceTransitions(t *testing.T) {
	hub := NewHub(newFakeMessageStore(), nil)

	// First user connects: roster is empty, nobody to notify.
	u1 := NewClient("u1-c1", 1, "alice")
	hub.Connect(u1)

	roster := mustEvent(t, u1.Events, EventOnlineRoster)
	if len(roster.Roster) != 0 {
		t.Fatalf("first user should see an empty roster, got %v", roster.Roster)
	}

	// Second user connects: first user sees user-online, second sees roster.
	u2 := NewClient("u2-c1", 2, "bob")
	hub.Connect(u2)

	online := mustEvent(t, u1.Events, EventUserOnline)
	if online.UserID != 2 || online.Username != "bob" {
		t.Fatalf("unexpected user-online event: %+v", online)
	}

	roster = mustEvent(t, u2.Events, EventOnlineRoster)
	if len(roster.Roster) != 1 || roster.Roster[0].UserID != 1 {
		t.Fatalf("second user should see [alice] in roster, got %v", roster.Roster)
	}

	hub.Disconnect("u2-c1")
	offline := mustEvent(t, u1.Events, EventUserOffline)
	if offline.UserID != 2 {
		t.Fatalf("unexpected user-offline event: %+v", offline)
	}
}

func TestHubMultiTabStaysOnline(t *testing.T) {
	hub := NewHub(newFakeMessageStore(), nil)

	watcher := NewClient("w-c1", 9, "watcher")
	hub.Connect(watcher)

	tab1 := NewClient("u1-c1", 1, "alice")
	tab2 := NewClient("u1-c2", 1, "alice")
	hub.Connect(tab1)
	hub.Connect(tab2)

	// Only the first tab causes a transition.
	mustEvent(t, watcher.Events, EventUserOnline)
	mustNoEvent(t, watcher.Events, EventUserOnline)

	// Closing one of two tabs is not a transition.
	hub.Disconnect("u1-c1")
	mustNoEvent(t, watcher.Events, EventUserOffline)

	if !hub.registry.IsOnline(1) {
		t.Fatal("user should still be online via second tab")
	}

	hub.Disconnect("u1-c2")
	mustEvent(t, watcher.Events, EventUserOffline)
}

func TestHubDisconnectUnknownConn(t *testing.T) {
	hub := NewHub(newFakeMessageStore(), nil)

	// Disconnect without a prior connect must not panic or emit anything.
	hub.Disconnect("never-connected")
	hub.Disconnect("never-connected")
}

func TestHubDisconnectLeavesConversationGroup(t *testing.T) {
	hub := NewHub(newFakeMessageStore(), nil)
	ctx := context.Background()

	alice := NewClient("a1", 1, "alice")
	bob := NewClient("b1", 2, "bob")
	hub.Connect(alice)
	hub.Connect(bob)
	if err := hub.OpenConversation(ctx, "a1", 2); err != nil {
		t.Fatalf("alice open: %v", err)
	}
	if err := hub.OpenConversation(ctx, "b1", 1); err != nil {
		t.Fatalf("bob open: %v", err)
	}

	key := DirectKey(1, 2)

	// A disconnect leaves the group even without an explicit close.
	hub.Disconnect("a1")
	if k, ok := hub.convs.KeyFor("a1"); ok {
		t.Fatalf("disconnected connection still mapped to %q", k)
	}
	if members := hub.convs.Members(key); len(members) != 1 || members[0] != "b1" {
		t.Fatalf("expected only bob in the group, got %v", members)
	}

	// The last member leaving drops the group entry entirely.
	hub.Disconnect("b1")
	if members := hub.convs.Members(key); len(members) != 0 {
		t.Fatalf("expected empty group, got %v", members)
	}
	hub.convs.mu.RLock()
	_, exists := hub.convs.members[key]
	hub.convs.mu.RUnlock()
	if exists {
		t.Fatal("empty group should be deleted")
	}
}

func TestHubSendRecipientPresentMarksRead(t *testing.T) {
	st := newFakeMessageStore()
	hub := NewHub(st, nil)
	ctx := context.Background()

	alice := NewClient("a1", 1, "alice")
	bob := NewClient("b1", 2, "bob")
	hub.Connect(alice)
	hub.Connect(bob)

	if err := hub.OpenConversation(ctx, "a1", 2); err != nil {
		t.Fatalf("alice open: %v", err)
	}
	if err := hub.OpenConversation(ctx, "b1", 1); err != nil {
		t.Fatalf("bob open: %v", err)
	}

	if err := hub.SendMessage(ctx, "a1", 2, "hi bob"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Both group members receive the message, already marked read.
	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventMessageReceived)
		if !ev.ReadImmediately {
			t.Fatalf("expected readImmediately=true for %s, got %+v", c.Username, ev)
		}
		if ev.Message.Body != "hi bob" || ev.Message.SenderID != 1 {
			t.Fatalf("unexpected message event: %+v", ev.Message)
		}
	}

	if m := st.get(1); m == nil || m.ReadAt == nil {
		t.Fatal("stored message should be marked read")
	}

	// No notification when the recipient was present in the group.
	mustNoEvent(t, bob.Events, EventNewMessageNotification)
}

func TestHubSendRecipientOnlineNotInGroup(t *testing.T) {
	st := newFakeMessageStore()
	hub := NewHub(st, nil)
	ctx := context.Background()

	alice := NewClient("a1", 1, "alice")
	bobTab1 := NewClient("b1", 2, "bob")
	bobTab2 := NewClient("b2", 2, "bob")
	hub.Connect(alice)
	hub.Connect(bobTab1)
	hub.Connect(bobTab2)

	if err := hub.OpenConversation(ctx, "a1", 2); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := hub.SendMessage(ctx, "a1", 2, "you there?"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Sender's own connection is in the group and sees the message, unread.
	ev := mustEvent(t, alice.Events, EventMessageReceived)
	if ev.ReadImmediately {
		t.Fatalf("message should not be read-on-delivery: %+v", ev)
	}

	// Every one of bob's connections gets a notification instead.
	for _, c := range []*Client{bobTab1, bobTab2} {
		note := mustEvent(t, c.Events, EventNewMessageNotification)
		if note.UserID != 1 || note.Username != "alice" {
			t.Fatalf("unexpected notification: %+v", note)
		}
	}

	if m := st.get(1); m == nil || m.ReadAt != nil {
		t.Fatal("stored message should remain unread")
	}
}

func TestHubSendRecipientOffline(t *testing.T) {
	st := newFakeMessageStore()
	hub := NewHub(st, nil)
	ctx := context.Background()

	alice := NewClient("a1", 1, "alice")
	hub.Connect(alice)

	if err := hub.OpenConversation(ctx, "a1", 2); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := hub.SendMessage(ctx, "a1", 2, "see you later"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Message persisted and unread; the sender's tab still sees it.
	ev := mustEvent(t, alice.Events, EventMessageReceived)
	if ev.ReadImmediately {
		t.Fatalf("offline recipient must not produce read-on-delivery: %+v", ev)
	}
	if m := st.get(1); m == nil || m.ReadAt != nil {
		t.Fatal("stored message should remain unread")
	}
}

func TestHubSendPersistFailure(t *testing.T) {
	st := newFakeMessageStore()
	st.failSave = true
	hub := NewHub(st, nil)
	ctx := context.Background()

	alice := NewClient("a1", 1, "alice")
	bob := NewClient("b1", 2, "bob")
	hub.Connect(alice)
	hub.Connect(bob)
	_ = hub.OpenConversation(ctx, "a1", 2)
	_ = hub.OpenConversation(ctx, "b1", 1)

	err := hub.SendMessage(ctx, "a1", 2, "will not arrive")
	if err == nil {
		t.Fatal("expected an error when persistence fails")
	}
	var ce *CoreError
	if !errors.As(err, &ce) || ce.Code != ErrCodePersistFailed {
		t.Fatalf("expected persist_failed, got %v", err)
	}

	// No partial broadcast on failure.
	mustNoEvent(t, bob.Events, EventMessageReceived)
	mustNoEvent(t, alice.Events, EventMessageReceived)
}

func TestHubOpenConversationMarksHistoryRead(t *testing.T) {
	st := newFakeMessageStore()
	hub := NewHub(st, nil)
	ctx := context.Background()

	alice := NewClient("a1", 1, "alice")
	hub.Connect(alice)
	_ = hub.OpenConversation(ctx, "a1", 2)
	if err := hub.SendMessage(ctx, "a1", 2, "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	hub.Disconnect("a1")

	// Bob opens the conversation later: alice's message is marked read and
	// comes back in the history payload.
	bob := NewClient("b1", 2, "bob")
	hub.Connect(bob)
	if err := hub.OpenConversation(ctx, "b1", 1); err != nil {
		t.Fatalf("open: %v", err)
	}

	opened := mustEvent(t, bob.Events, EventConversationOpened)
	if opened.ConversationKey != DirectKey(1, 2) {
		t.Fatalf("unexpected conversation key: %q", opened.ConversationKey)
	}
	if len(opened.Messages) != 1 || opened.Messages[0].Body != "first" {
		t.Fatalf("unexpected history: %+v", opened.Messages)
	}
	if opened.Messages[0].ReadAt == nil {
		t.Fatal("history should reflect read-on-open")
	}
	if m := st.get(1); m == nil || m.ReadAt == nil {
		t.Fatal("stored message should be marked read after open")
	}
}

func TestHubSendValidation(t *testing.T) {
	hub := NewHub(newFakeMessageStore(), nil)
	ctx := context.Background()

	alice := NewClient("a1", 1, "alice")
	hub.Connect(alice)

	cases := []struct {
		name      string
		conn      string
		recipient int64
		body      string
		code      string
	}{
		{"unknown connection", "ghost", 2, "hi", ErrCodeNotConnected},
		{"empty body", "a1", 2, "   ", ErrCodeBadRequest},
		{"self recipient", "a1", 1, "hi", ErrCodeBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := hub.SendMessage(ctx, tc.conn, tc.recipient, tc.body)
			var ce *CoreError
			if !errors.As(err, &ce) || ce.Code != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}
