package entity

import "time"

// Event types carried on the room and user channels.
const (
	EventMessageAppended = "message_appended"
	EventReadReceipt     = "read_receipt"
	EventUnreadDelta     = "unread_delta"
)

// MessageAppended is broadcast on the room channel after a message has been
// durably appended. Seq lets reconnecting subscribers detect missed messages.
type MessageAppended struct {
	Type    string   `json:"type"`
	RoomID  uint64   `json:"room_id"`
	Seq     int64    `json:"seq"`
	Message *Message `json:"message"`
}

// ReadReceipt is broadcast on the room channel so the other side can render
// read state.
type ReadReceipt struct {
	Type   string    `json:"type"`
	RoomID uint64    `json:"room_id"`
	UserID uint64    `json:"user_id"`
	UpTo   time.Time `json:"up_to"`
}

// UnreadDelta is pushed to a single user's private channel whenever their
// unread count for a room changes.
type UnreadDelta struct {
	Type        string `json:"type"`
	RoomID      uint64 `json:"room_id"`
	UserID      uint64 `json:"user_id"`
	UnreadCount int    `json:"unread_count"`
}
