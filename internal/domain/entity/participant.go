package entity

import "time"

// Participant is a user's membership and read state within a room. One row
// per (room, user). This table is the authoritative source of unread counts;
// the Redis counters only mirror it.
type Participant struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID      uint64    `gorm:"not null;uniqueIndex:uniq_room_user,priority:1" json:"room_id"`
	UserID      uint64    `gorm:"not null;uniqueIndex:uniq_room_user,priority:2;index" json:"user_id"`
	UnreadCount int       `gorm:"not null;default:0" json:"unread_count"`
	LastReadAt  time.Time `json:"last_read_at"`
	CreatedAt   time.Time `json:"-"`
}

func (Participant) TableName() string { return "chat_participants" }
