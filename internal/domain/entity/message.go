package entity

import "time"

// Sender is the denormalized sender info embedded in each message document,
// so message history renders without a user lookup.
type Sender struct {
	UserID   uint64 `json:"user_id" firestore:"userId"`
	Username string `json:"username,omitempty" firestore:"username,omitempty"`
}

// Message is an append-only chat message document. SentAt is stored in UTC;
// inputs are normalized at the boundary. Read is the only field that ever
// mutates, flipped false->true in bulk by read processing. Seq is the
// per-room sequence number stamped at send time so subscribers can detect
// gaps without relying on wall clocks.
type Message struct {
	ID     string    `json:"id" firestore:"id"`
	RoomID uint64    `json:"room_id" firestore:"roomId"`
	Sender Sender    `json:"sender" firestore:"sender"`
	Body   string    `json:"body" firestore:"body"`
	Seq    int64     `json:"seq" firestore:"seq"`
	SentAt time.Time `json:"sent_at" firestore:"sentAt"`
	Read   bool      `json:"read" firestore:"read"`
}
