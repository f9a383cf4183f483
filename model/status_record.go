package model

import "time"

// StatusRecord is the single authoritative health state of one target.
// Mutated only by the status engine, one writer per target at a time.
type StatusRecord struct {
	ID         uint64 `gorm:"primary_key" json:"id"`
	SourceKind string `gorm:"uniqueIndex:idx_status_source" json:"source_kind"`
	SourceID   uint64 `gorm:"uniqueIndex:idx_status_source" json:"source_id"`

	Status          uint8      `json:"status"`
	PreviousStatus  uint8      `json:"previous_status"`
	StatusChangedAt *time.Time `json:"status_changed_at"`

	// Hysteresis counters: a pending direction change accumulates here
	// until it reaches the target's confirmation threshold.
	ConsecutiveFailures  int `json:"consecutive_failures"`
	ConsecutiveSuccesses int `json:"consecutive_successes"`
}
