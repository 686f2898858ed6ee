package core

// Client is a single authenticated connection as seen by the core layer.
// One user may own several clients at once (multiple tabs or devices).
type Client struct {
	ConnID   string
	UserID   int64
	Username string
	Events   chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(connID string, userID int64, username string) *Client {
	return &Client{
		ConnID:   connID,
		UserID:   userID,
		Username: username,
		Events:   make(chan *Event, 32),
	}
}

// trySend delivers an event without blocking. Returns false if the
// client's buffer is full (slow consumer).
func (c *Client) trySend(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
