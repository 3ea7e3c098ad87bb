package models

import (
	"time"
)

// Message is one entry of the shared discussion log. ID alone defines order.
type Message struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Author    string    `json:"author" gorm:"size:64;not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is the participation state derived from the full log
type Snapshot struct {
	HumanCount    int      `json:"human_count"`
	LastAuthor    string   `json:"last_author,omitempty"`
	HasLast       bool     `json:"has_last"`
	ActiveMembers []string `json:"active_members"`
}

// ChangeEvent is pushed to change-feed subscribers after the log changes
type ChangeEvent struct {
	LastID  uint64 `json:"last_id"`
	Cleared bool   `json:"cleared"`
}
