package model

import "time"

const (
	IncidentStatusNew = iota
	IncidentStatusAcknowledged
	IncidentStatusResolved
	IncidentStatusClosed
)

const (
	IncidentPriorityUrgent = iota
	IncidentPriorityHigh
	IncidentPriorityMedium
	IncidentPriorityLow
)

// Incident correlates one target's sustained bad status. The store enforces
// that at most one open incident exists per (SourceKind, SourceID).
type Incident struct {
	Common
	Title      string `json:"title"`
	Message    string `json:"message"`
	CustomerID uint64 `json:"customer_id"`

	SourceKind string `gorm:"index:idx_incident_source" json:"source_kind"`
	SourceID   uint64 `gorm:"index:idx_incident_source" json:"source_id"`
	SourceName string `json:"source_name"`

	Status   uint8 `gorm:"index" json:"status"`
	Severity uint8 `json:"severity"`
	Priority uint8 `json:"priority"`

	AcknowledgedBy uint64     `json:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	ClosedAt       *time.Time `json:"closed_at"`

	ResponseSLAMinutes   int   `json:"response_sla_minutes"`
	ResolutionSLAMinutes int   `json:"resolution_sla_minutes"`
	ResponseSLAMet       *bool `json:"response_sla_met"`
	ResolutionSLAMet     *bool `json:"resolution_sla_met"`

	// PinnedOpen blocks auto-resolution on recovery; an operator decided
	// the incident needs manual closure.
	PinnedOpen bool `json:"pinned_open"`

	RootCauseCategory    string `json:"root_cause_category"`
	RootCauseDescription string `json:"root_cause_description"`
	ResolutionSteps      string `json:"resolution_steps"`
}

func (i *Incident) IsOpen() bool {
	return i.Status != IncidentStatusResolved && i.Status != IncidentStatusClosed
}

// MapSeverityToPriority keeps ticket priority consistent with severity.
func MapSeverityToPriority(severity uint8) uint8 {
	switch severity {
	case SeverityCritical:
		return IncidentPriorityUrgent
	case SeverityHigh:
		return IncidentPriorityHigh
	case SeverityMedium:
		return IncidentPriorityMedium
	default:
		return IncidentPriorityLow
	}
}

// IncidentTimeline is the append-only audit trail of an incident.
type IncidentTimeline struct {
	ID         uint64    `gorm:"primary_key" json:"id"`
	IncidentID uint64    `gorm:"index" json:"incident_id"`
	Kind       string    `json:"kind"` // created, acknowledged, escalated, resolved, status_update
	Message    string    `json:"message"`
	UserID     uint64    `json:"user_id"` // zero for automatic entries
	CreatedAt  time.Time `json:"created_at"`
}
