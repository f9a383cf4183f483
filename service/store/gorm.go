package store

import (
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vigilohq/vigilo/model"
)

// GormStore persists through gorm/sqlite.
type GormStore struct {
	db *gorm.DB
}

// Open connects to the sqlite database and migrates the schema.
func Open(path string, debug bool) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		CreateBatchSize: 200,
	})
	if err != nil {
		return nil, err
	}
	if debug {
		db = db.Debug()
	} else {
		db.Logger = db.Logger.LogMode(logger.Silent)
	}
	err = db.AutoMigrate(
		&model.Host{},
		&model.HostMetric{},
		&model.Check{},
		&model.CheckResult{},
		&model.StatusRecord{},
		&model.Incident{},
		&model.IncidentTimeline{},
		&model.NotificationChannel{},
		&model.NotificationRule{},
		&model.NotificationLog{},
	)
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewGormStore wraps an already opened connection, used by tests.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the raw handle for dashboard queries outside the port.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) SaveCheckResult(r *model.CheckResult) error {
	return s.db.Create(r).Error
}

func (s *GormStore) SaveHostMetric(m *model.HostMetric) error {
	return s.db.Create(m).Error
}

func (s *GormStore) LoadStatusRecords() ([]*model.StatusRecord, error) {
	var recs []*model.StatusRecord
	if err := s.db.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *GormStore) UpsertStatusRecord(rec *model.StatusRecord) error {
	if rec.ID > 0 {
		return s.db.Save(rec).Error
	}
	var existing model.StatusRecord
	err := s.db.Where("source_kind = ? AND source_id = ?", rec.SourceKind, rec.SourceID).
		First(&existing).Error
	if err == nil {
		rec.ID = existing.ID
		return s.db.Save(rec).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.Create(rec).Error
}

// OpenIncident creates inc unless an open incident already exists for the
// same source. The check and the insert run in one transaction so that
// concurrent triggers for one source cannot both create.
func (s *GormStore) OpenIncident(inc *model.Incident) (bool, *model.Incident, error) {
	var created bool
	var current *model.Incident
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing model.Incident
		err := tx.Where(
			"source_kind = ? AND source_id = ? AND status NOT IN (?)",
			inc.SourceKind, inc.SourceID,
			[]int{model.IncidentStatusResolved, model.IncidentStatusClosed},
		).First(&existing).Error
		if err == nil {
			current = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := tx.Create(inc).Error; err != nil {
			return err
		}
		created = true
		current = inc
		return nil
	})
	return created, current, err
}

func (s *GormStore) GetIncident(id uint64) (*model.Incident, error) {
	var inc model.Incident
	if err := s.db.First(&inc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inc, nil
}

func (s *GormStore) GetOpenIncident(sourceKind string, sourceID uint64) (*model.Incident, error) {
	var inc model.Incident
	err := s.db.Where(
		"source_kind = ? AND source_id = ? AND status NOT IN (?)",
		sourceKind, sourceID,
		[]int{model.IncidentStatusResolved, model.IncidentStatusClosed},
	).First(&inc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inc, nil
}

func (s *GormStore) UpdateIncident(inc *model.Incident) error {
	return s.db.Save(inc).Error
}

func (s *GormStore) AppendTimeline(entry *model.IncidentTimeline) error {
	return s.db.Create(entry).Error
}

func (s *GormStore) SaveNotificationLog(l *model.NotificationLog) error {
	return s.db.Create(l).Error
}

func (s *GormStore) UpdateNotificationLog(l *model.NotificationLog) error {
	return s.db.Save(l).Error
}

func (s *GormStore) DueNotificationRetries(now time.Time, limit int) ([]*model.NotificationLog, error) {
	var logs []*model.NotificationLog
	err := s.db.Where("status IN (?, ?) AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
		model.NotificationPending, model.NotificationQueued, now).
		Order("next_retry_at").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *GormStore) ListHosts() ([]*model.Host, error) {
	var hosts []*model.Host
	if err := s.db.Find(&hosts).Error; err != nil {
		return nil, err
	}
	return hosts, nil
}

func (s *GormStore) ListChecks() ([]*model.Check, error) {
	var checks []*model.Check
	if err := s.db.Find(&checks).Error; err != nil {
		return nil, err
	}
	return checks, nil
}

func (s *GormStore) ListRules() ([]*model.NotificationRule, error) {
	var rules []*model.NotificationRule
	if err := s.db.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *GormStore) ListChannels() ([]*model.NotificationChannel, error) {
	var channels []*model.NotificationChannel
	if err := s.db.Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

func (s *GormStore) SaveHost(h *model.Host) error {
	return s.db.Save(h).Error
}

func (s *GormStore) SaveChannel(c *model.NotificationChannel) error {
	return s.db.Save(c).Error
}
