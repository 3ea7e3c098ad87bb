package models

import (
	"time"
)

// CrossingStatus is the persisted state of a threshold crossing
type CrossingStatus string

const (
	CrossingClaimed  CrossingStatus = "claimed"
	CrossingResolved CrossingStatus = "resolved"
	CrossingSkipped  CrossingStatus = "skipped"
	CrossingReleased CrossingStatus = "released"
)

// Crossing records who is responsible for the facilitator turn at a given
// multiple of the threshold. Absence of a row means unclaimed.
type Crossing struct {
	HumanCount     int            `json:"human_count" gorm:"primaryKey;autoIncrement:false"`
	Status         CrossingStatus `json:"status" gorm:"size:16;not null;index"`
	Owner          string         `json:"owner" gorm:"size:64;not null"`
	Attempts       int            `json:"attempts" gorm:"not null"`
	LeaseExpiresMs int64          `json:"lease_expires_ms" gorm:"not null"`
	MessageID      *uint64        `json:"message_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Terminal reports whether no further facilitator turn may happen for this crossing
func (c *Crossing) Terminal() bool {
	return c.Status == CrossingResolved || c.Status == CrossingSkipped
}

// Claimable reports whether a new claimant may take the crossing at nowMs
func (c *Crossing) Claimable(nowMs int64) bool {
	switch c.Status {
	case CrossingReleased:
		return true
	case CrossingClaimed:
		return c.LeaseExpiresMs < nowMs
	default:
		return false
	}
}

// Claim is a request to reserve the facilitator turn for one crossing
type Claim struct {
	HumanCount int
	Owner      string
	Threshold  int
	Lease      time.Duration
	Now        time.Time
}
