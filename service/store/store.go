package store

import (
	"time"

	"github.com/vigilohq/vigilo/model"
)

// Store is the persistence port shared by the pipeline services. Only the
// operations the engine needs are exposed; dashboard-style queries go
// straight through gorm in the API layer.
type Store interface {
	// Append-only history.
	SaveCheckResult(r *model.CheckResult) error
	SaveHostMetric(m *model.HostMetric) error

	// Authoritative status, one row per (kind, id).
	LoadStatusRecords() ([]*model.StatusRecord, error)
	UpsertStatusRecord(rec *model.StatusRecord) error

	// Incident lifecycle. OpenIncident is conditional: when an open
	// incident already exists for the same source it is returned
	// unchanged and created is false.
	OpenIncident(inc *model.Incident) (created bool, current *model.Incident, err error)
	GetIncident(id uint64) (*model.Incident, error)
	GetOpenIncident(sourceKind string, sourceID uint64) (*model.Incident, error)
	UpdateIncident(inc *model.Incident) error
	AppendTimeline(entry *model.IncidentTimeline) error

	// Notification dispatch records.
	SaveNotificationLog(l *model.NotificationLog) error
	UpdateNotificationLog(l *model.NotificationLog) error
	DueNotificationRetries(now time.Time, limit int) ([]*model.NotificationLog, error)

	// Configured entities, loaded at boot and on reload.
	ListHosts() ([]*model.Host, error)
	ListChecks() ([]*model.Check, error)
	ListRules() ([]*model.NotificationRule, error)
	ListChannels() ([]*model.NotificationChannel, error)

	SaveHost(h *model.Host) error
	SaveChannel(c *model.NotificationChannel) error
}
