package model

import "time"

// ProbeOutcome is what an executor hands back for a single probe. Transport
// failures are never returned as errors; they are mapped into a failing
// outcome with a readable message.
type ProbeOutcome struct {
	Status     uint8
	LatencyMs  int64
	StatusCode int
	Error      string

	// Protocol metadata.
	SSLExpiresAt     *time.Time
	SSLDaysRemaining int
	BodyPreview      string
}

// Successful covers every alive state. Degraded still means the target is
// reachable; only Down counts toward the failure threshold.
func (o *ProbeOutcome) Successful() bool {
	return o.Status == StatusUp || o.Status == StatusWarning || o.Status == StatusDegraded
}

// CheckResult is the immutable, append-only persisted trace of one probe.
type CheckResult struct {
	ID         uint64 `gorm:"primary_key" json:"id"`
	SourceKind string `gorm:"index:idx_result_source" json:"source_kind"`
	SourceID   uint64 `gorm:"index:idx_result_source" json:"source_id"`

	Status     uint8  `json:"status"`
	LatencyMs  int64  `json:"latency_ms"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`

	SSLExpiresAt *time.Time `json:"ssl_expires_at"`
	BodyPreview  string     `gorm:"type:longtext" json:"body_preview"`

	CheckedAt time.Time `gorm:"index" json:"checked_at"`
}

// NewCheckResult freezes an outcome into its persisted form.
func NewCheckResult(kind string, id uint64, o *ProbeOutcome, at time.Time) *CheckResult {
	return &CheckResult{
		SourceKind:   kind,
		SourceID:     id,
		Status:       o.Status,
		LatencyMs:    o.LatencyMs,
		StatusCode:   o.StatusCode,
		Error:        o.Error,
		SSLExpiresAt: o.SSLExpiresAt,
		BodyPreview:  o.BodyPreview,
		CheckedAt:    at,
	}
}
