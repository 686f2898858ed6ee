package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeHello = "hello"
	InboundTypeOpen  = "open"
	InboundTypeClose = "close"
	InboundTypeMsg   = "msg"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Event names pushed to clients.
const (
	EventUserOnline             = "user-online"
	EventUserOffline            = "user-offline"
	EventOnlineRoster           = "online-roster"
	EventConversationOpened     = "conversation-opened"
	EventMessageReceived        = "message-received"
	EventNewMessageNotification = "new-message-notification"
)

// HelloData authenticates the connection with a JWT.
type HelloData struct {
	Token string `json:"token"`
}

// OpenData requests to open the conversation with a peer.
type OpenData struct {
	PeerID int64 `json:"peer_id"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	To   int64  `json:"to"`
	Text string `json:"text"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// PresenceData announces a user's online/offline transition.
type PresenceData struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// RosterUser is one entry of the online roster.
type RosterUser struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// RosterData carries the full online roster.
type RosterData struct {
	Users []RosterUser `json:"users"`
}

// MessageData is a delivered chat message.
type MessageData struct {
	ID       int64  `json:"id"`
	Key      string `json:"key"`
	From     int64  `json:"from"`
	FromName string `json:"from_name,omitempty"`
	To       int64  `json:"to"`
	Text     string `json:"text"`
	TS       int64  `json:"ts"`
	ReadAt   *int64 `json:"read_at,omitempty"`
}

// MessageReceivedData wraps a delivered message with its read state.
type MessageReceivedData struct {
	Key             string      `json:"key"`
	Message         MessageData `json:"message"`
	ReadImmediately bool        `json:"read_immediately"`
}

// ConversationData delivers history when a conversation view is opened.
type ConversationData struct {
	Key      string        `json:"key"`
	Messages []MessageData `json:"messages"`
}

// NotificationData tells a client that a message is waiting in an
// unopened conversation.
type NotificationData struct {
	FromUserID   int64  `json:"from_user_id"`
	FromUsername string `json:"from_username,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
