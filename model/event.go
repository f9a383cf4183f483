package model

import (
	"strconv"
	"time"
)

// Event types flowing from the status engine and incident correlator into
// the notification rule engine. Rules match on exact type.
const (
	EventHostDown       = "host_down"
	EventHostUp         = "host_up"
	EventHostWarning    = "host_warning"
	EventServiceDown    = "service_down"
	EventServiceUp      = "service_up"
	EventCheckFailed    = "check_failed"
	EventCheckRecovered = "check_recovered"
	EventSSLExpiring    = "ssl_expiring"

	EventIncidentCreated  = "incident_created"
	EventIncidentResolved = "incident_resolved"
	EventEscalation       = "escalation"
)

// Source kinds referenced by status records, incidents and events.
const (
	SourceHost    = "host"
	SourceCheck   = "check"
	SourceService = "service"
)

// Event is the in-memory record handed between pipeline stages. It is never
// persisted itself; incidents and notification logs are its durable traces.
type Event struct {
	Type       string
	Severity   uint8
	SourceKind string
	SourceID   uint64
	SourceName string

	CustomerID uint64
	HostID     uint64
	CheckID    uint64
	Tags       []string

	Title      string
	Message    string
	OccurredAt time.Time

	// IncidentID is set on incident lifecycle and escalation events.
	IncidentID uint64
}

// SourceKey identifies the (kind, id) pair for cooldown and debounce
// bookkeeping.
func (e *Event) SourceKey() string {
	return e.SourceKind + "-" + strconv.FormatUint(e.SourceID, 10)
}

// IsRecovery reports whether the event announces a source going healthy,
// which cancels pending delayed notifications for the same source.
func (e *Event) IsRecovery() bool {
	switch e.Type {
	case EventHostUp, EventServiceUp, EventCheckRecovered, EventIncidentResolved:
		return true
	}
	return false
}
