package model

import "time"

const (
	NotificationPending = iota
	NotificationQueued // deferred by rate limit or delay
	NotificationSent
	NotificationDelivered
	NotificationFailed // terminal, dead-lettered
)

// NotificationLog is one immutable dispatch attempt record. Retries append
// state onto the same row (retry count, next retry time) until the attempt
// either succeeds or is dead-lettered.
type NotificationLog struct {
	Common
	RuleID    uint64 `gorm:"index" json:"rule_id"`
	ChannelID uint64 `gorm:"index" json:"channel_id"`

	EventType  string `json:"event_type"`
	SourceKind string `json:"source_kind"`
	SourceID   uint64 `json:"source_id"`
	SourceName string `json:"source_name"`

	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `gorm:"type:longtext" json:"body"`

	Status      uint8      `gorm:"index" json:"status"`
	SentAt      *time.Time `json:"sent_at"`
	FailedAt    *time.Time `json:"failed_at"`
	Error       string     `json:"error"`
	RetryCount  int        `json:"retry_count"`
	NextRetryAt *time.Time `gorm:"index" json:"next_retry_at"`

	ExternalID string `json:"external_id"`
}
