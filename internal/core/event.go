package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUserOnline notifies clients that a user came online
	// (first connection).
	EventUserOnline EventKind = iota
	// EventUserOffline notifies clients that a user went offline
	// (last connection closed).
	EventUserOffline
	// EventOnlineRoster delivers the current online roster to a client
	// right after it connects.
	EventOnlineRoster
	// EventConversationOpened delivers conversation history to the client
	// that opened the conversation view.
	EventConversationOpened
	// EventMessageReceived notifies conversation members about a new message.
	EventMessageReceived
	// EventNewMessageNotification tells a recipient who is online but not
	// viewing the conversation that a message is waiting.
	EventNewMessageNotification
)

// RosterEntry identifies one online user in the roster.
type RosterEntry struct {
	UserID   int64
	Username string
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind

	// UserID/Username identify the subject user for presence events and
	// the sender for new-message notifications.
	UserID   int64
	Username string

	Roster []RosterEntry // for EventOnlineRoster

	ConversationKey string
	Message         Message   // for EventMessageReceived
	Messages        []Message // for EventConversationOpened
	ReadImmediately bool      // for EventMessageReceived
}
