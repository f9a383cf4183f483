package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/vigilohq/vigilo/model"
)

// MemoryStore keeps everything in maps behind one mutex. It backs the
// service tests so they stay independent of sqlite.
type MemoryStore struct {
	mu sync.Mutex

	nextID uint64

	CheckResults []*model.CheckResult
	HostMetrics  []*model.HostMetric
	Status       map[string]*model.StatusRecord
	Incidents    map[uint64]*model.Incident
	Timeline     []*model.IncidentTimeline
	Logs         map[uint64]*model.NotificationLog

	Hosts    []*model.Host
	Checks   []*model.Check
	Rules    []*model.NotificationRule
	Channels []*model.NotificationChannel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Status:    make(map[string]*model.StatusRecord),
		Incidents: make(map[uint64]*model.Incident),
		Logs:      make(map[uint64]*model.NotificationLog),
	}
}

func (s *MemoryStore) nextKey() uint64 {
	s.nextID++
	return s.nextID
}

func statusKey(kind string, id uint64) string {
	return kind + "/" + strconv.FormatUint(id, 10)
}

func (s *MemoryStore) SaveCheckResult(r *model.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextKey()
	s.CheckResults = append(s.CheckResults, r)
	return nil
}

func (s *MemoryStore) SaveHostMetric(m *model.HostMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextKey()
	s.HostMetrics = append(s.HostMetrics, m)
	return nil
}

func (s *MemoryStore) LoadStatusRecords() ([]*model.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.StatusRecord, 0, len(s.Status))
	for _, rec := range s.Status {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) UpsertStatusRecord(rec *model.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = s.nextKey()
	}
	s.Status[statusKey(rec.SourceKind, rec.SourceID)] = rec
	return nil
}

func (s *MemoryStore) OpenIncident(inc *model.Incident) (bool, *model.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Incidents {
		if existing.SourceKind == inc.SourceKind && existing.SourceID == inc.SourceID && existing.IsOpen() {
			return false, existing, nil
		}
	}
	inc.ID = s.nextKey()
	s.Incidents[inc.ID] = inc
	return true, inc, nil
}

func (s *MemoryStore) GetIncident(id uint64) (*model.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Incidents[id], nil
}

func (s *MemoryStore) GetOpenIncident(sourceKind string, sourceID uint64) (*model.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inc := range s.Incidents {
		if inc.SourceKind == sourceKind && inc.SourceID == sourceID && inc.IsOpen() {
			return inc, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateIncident(inc *model.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Incidents[inc.ID] = inc
	return nil
}

func (s *MemoryStore) AppendTimeline(entry *model.IncidentTimeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextKey()
	s.Timeline = append(s.Timeline, entry)
	return nil
}

func (s *MemoryStore) SaveNotificationLog(l *model.NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.nextKey()
	}
	s.Logs[l.ID] = l
	return nil
}

func (s *MemoryStore) UpdateNotificationLog(l *model.NotificationLog) error {
	return s.SaveNotificationLog(l)
}

func (s *MemoryStore) DueNotificationRetries(now time.Time, limit int) ([]*model.NotificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*model.NotificationLog
	for _, l := range s.Logs {
		deliverable := l.Status == model.NotificationPending || l.Status == model.NotificationQueued
		if deliverable && l.NextRetryAt != nil && !l.NextRetryAt.After(now) {
			due = append(due, l)
			if len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (s *MemoryStore) ListHosts() ([]*model.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Host(nil), s.Hosts...), nil
}

func (s *MemoryStore) ListChecks() ([]*model.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Check(nil), s.Checks...), nil
}

func (s *MemoryStore) ListRules() ([]*model.NotificationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.NotificationRule(nil), s.Rules...), nil
}

func (s *MemoryStore) ListChannels() ([]*model.NotificationChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.NotificationChannel(nil), s.Channels...), nil
}

func (s *MemoryStore) SaveHost(h *model.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.Hosts {
		if existing.ID == h.ID {
			s.Hosts[i] = h
			return nil
		}
	}
	if h.ID == 0 {
		h.ID = s.nextKey()
	}
	s.Hosts = append(s.Hosts, h)
	return nil
}

func (s *MemoryStore) SaveChannel(c *model.NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.Channels {
		if existing.ID == c.ID {
			s.Channels[i] = c
			return nil
		}
	}
	if c.ID == 0 {
		c.ID = s.nextKey()
	}
	s.Channels = append(s.Channels, c)
	return nil
}
