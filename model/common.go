package model

import "time"

// Common is embedded by every persisted entity.
type Common struct {
	ID        uint64 `gorm:"primary_key" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Response is the envelope for every API reply.
type Response struct {
	Code    uint64      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Health status shared by hosts, checks and host-local services.
// Severity of the value is not ordinal; transitions are governed by the
// status engine's confirmation counters.
const (
	StatusUnknown = iota
	StatusUp
	StatusWarning
	StatusDegraded
	StatusDown
)

func StatusToString(status uint8) string {
	switch status {
	case StatusUp:
		return "Up"
	case StatusWarning:
		return "Warning"
	case StatusDegraded:
		return "Degraded"
	case StatusDown:
		return "Down"
	default:
		return "Unknown"
	}
}

// Incident severity. Order matters: lower values are MORE severe, so a
// rule's minimum-severity filter passes when severity <= minimum.
const (
	SeverityCritical = iota
	SeverityHigh
	SeverityMedium
	SeverityLow
	SeverityInfo
)

func SeverityToString(severity uint8) string {
	switch severity {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	case SeverityLow:
		return "Low"
	default:
		return "Info"
	}
}
