package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avdeyev/matchlink-server/internal/store"
)

// historyLimit caps the number of messages delivered when a conversation
// view is opened. Older messages are paged over the REST API.
const historyLimit = 50

// Hub coordinates presence and message delivery. It owns the connection
// registry and the conversation table for the lifetime of the process and
// is safe for use from many connection-handling goroutines.
//
// Locks guard only the in-memory membership maps. Store calls and pushes
// happen after snapshots are taken and locks released; pushes are
// non-blocking sends into per-client buffers, so a slow consumer is
// skipped rather than stalling delivery to everyone else.
type Hub struct {
	registry *ConnRegistry
	convs    *conversationTable
	messages store.MessageStore
	log      *zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub constructs a hub backed by the given message store.
func NewHub(messages store.MessageStore, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		registry: NewConnRegistry(),
		convs:    newConversationTable(),
		messages: messages,
		log:      logger,
		clients:  make(map[string]*Client),
	}
}

// Connect registers an authenticated connection. If this is the user's
// first connection, a user-online event is broadcast to everyone else.
// The new connection always receives the current online roster (excluding
// itself) so its view converges immediately.
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	h.clients[c.ConnID] = c
	h.mu.Unlock()

	first := h.registry.Add(c.UserID, c.ConnID)
	if first {
		h.broadcastExcluding(c.UserID, &Event{
			Kind:     EventUserOnline,
			UserID:   c.UserID,
			Username: c.Username,
		})
		h.log.Info().Int64("user_id", c.UserID).Str("conn_id", c.ConnID).Msg("user online")
	}

	h.push(c, &Event{Kind: EventOnlineRoster, Roster: h.rosterExcluding(c.UserID)})
}

// Disconnect tears down a connection: it always leaves its conversation
// group and is removed from the registry. If this was the user's last
// connection, a user-offline event is broadcast to everyone remaining.
// Unknown connection ids are a no-op, so a duplicate disconnect is safe.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	delete(h.clients, connID)
	h.mu.Unlock()
	if !ok {
		return
	}

	h.convs.Leave(connID)

	last := h.registry.Remove(c.UserID, connID)
	if last {
		h.broadcastExcluding(c.UserID, &Event{
			Kind:     EventUserOffline,
			UserID:   c.UserID,
			Username: c.Username,
		})
		h.log.Info().Int64("user_id", c.UserID).Str("conn_id", c.ConnID).Msg("user offline")
	}
}

// OpenConversation joins the connection to the conversation group shared
// with peerID, leaving any previously open conversation. Unread messages
// addressed to the opener are marked read, and recent history is pushed
// back to the opening connection.
func (h *Hub) OpenConversation(ctx context.Context, connID string, peerID int64) error {
	c := h.client(connID)
	if c == nil {
		return coreError(ErrCodeNotConnected, "connection not registered")
	}
	if peerID <= 0 || peerID == c.UserID {
		return coreError(ErrCodeBadRequest, "invalid peer")
	}

	key := DirectKey(c.UserID, peerID)
	h.convs.Join(connID, key)

	if _, err := h.messages.MarkConversationRead(ctx, key, c.UserID); err != nil {
		// Read state self-heals on the next open; history is still served.
		h.log.Warn().Err(err).Str("conversation", key).Msg("mark conversation read")
	}

	stored, err := h.messages.ListConversation(ctx, key, historyLimit, nil)
	if err != nil {
		return coreError(ErrCodePersistFailed, "could not load conversation history")
	}

	history := make([]Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, fromStored(m, ""))
	}

	h.push(c, &Event{
		Kind:            EventConversationOpened,
		ConversationKey: key,
		Messages:        history,
	})
	return nil
}

// CloseConversation removes the connection from its conversation group.
func (h *Hub) CloseConversation(connID string) {
	h.convs.Leave(connID)
}

// SendMessage persists a message and delivers it to the live connections
// that should see it. Persistence failure aborts the send; push failures
// to individual connections are skipped.
func (h *Hub) SendMessage(ctx context.Context, connID string, recipientID int64, body string) error {
	c := h.client(connID)
	if c == nil {
		return coreError(ErrCodeNotConnected, "connection not registered")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return coreError(ErrCodeBadRequest, "message body is empty")
	}
	if recipientID <= 0 || recipientID == c.UserID {
		return coreError(ErrCodeBadRequest, "invalid recipient")
	}

	key := DirectKey(c.UserID, recipientID)
	msg := &store.Message{
		ConversationKey: key,
		SenderID:        c.UserID,
		RecipientID:     recipientID,
		Body:            body,
	}
	if err := h.messages.SaveMessage(ctx, msg); err != nil {
		h.log.Error().Err(err).Str("conversation", key).Msg("save message")
		return coreError(ErrCodePersistFailed, "could not save message")
	}

	members, recipientPresent := h.groupClients(key, recipientID)

	readNow := false
	if recipientPresent {
		ok, err := h.messages.MarkMessageRead(ctx, msg.ID)
		if err != nil {
			h.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("mark message read")
		} else if ok {
			readNow = true
			t := time.Now().UTC()
			msg.ReadAt = &t
		}
	}

	ev := &Event{
		Kind:            EventMessageReceived,
		ConversationKey: key,
		Message:         fromStored(msg, c.Username),
		ReadImmediately: readNow,
	}
	for _, m := range members {
		h.push(m, ev)
	}

	// The recipient is online somewhere but not viewing this conversation:
	// surface a lightweight notification on all of their connections.
	if !recipientPresent && h.registry.IsOnline(recipientID) {
		note := &Event{
			Kind:     EventNewMessageNotification,
			UserID:   c.UserID,
			Username: c.Username,
		}
		for _, rc := range h.clientsOf(recipientID) {
			h.push(rc, note)
		}
	}

	return nil
}

// Roster returns the current presence roster.
func (h *Hub) Roster() []RosterEntry {
	return h.rosterExcluding(0)
}

func (h *Hub) client(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connID]
}

// clientsOf resolves the user's registered connection ids to live clients.
func (h *Hub) clientsOf(userID int64) []*Client {
	connIDs := h.registry.Connections(userID)

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// groupClients resolves the conversation group's connection ids to live
// clients and reports whether any of them belongs to the recipient.
func (h *Hub) groupClients(key string, recipientID int64) ([]*Client, bool) {
	connIDs := h.convs.Members(key)

	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]*Client, 0, len(connIDs))
	present := false
	for _, id := range connIDs {
		c, ok := h.clients[id]
		if !ok {
			// Disconnected between snapshot and resolution; skip.
			continue
		}
		members = append(members, c)
		if c.UserID == recipientID {
			present = true
		}
	}
	return members, present
}

// rosterExcluding builds the online roster without the given user.
func (h *Hub) rosterExcluding(userID int64) []RosterEntry {
	online := h.registry.OnlineUsers()

	h.mu.RLock()
	names := make(map[int64]string, len(h.clients))
	for _, c := range h.clients {
		names[c.UserID] = c.Username
	}
	h.mu.RUnlock()

	roster := make([]RosterEntry, 0, len(online))
	for _, id := range online {
		if id == userID {
			continue
		}
		roster = append(roster, RosterEntry{UserID: id, Username: names[id]})
	}
	return roster
}

// broadcastExcluding pushes an event to every connection not owned by userID.
func (h *Hub) broadcastExcluding(userID int64, ev *Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.UserID != userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.push(c, ev)
	}
}

func (h *Hub) push(c *Client, ev *Event) {
	if !c.trySend(ev) {
		h.log.Warn().Str("conn_id", c.ConnID).Int("kind", int(ev.Kind)).Msg("dropping event for slow consumer")
	}
}

func fromStored(m *store.Message, senderName string) Message {
	return Message{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		SenderName:      senderName,
		RecipientID:     m.RecipientID,
		Body:            m.Body,
		CreatedAt:       m.CreatedAt,
		ReadAt:          m.ReadAt,
	}
}
