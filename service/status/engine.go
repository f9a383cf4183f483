package status

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/store"
)

// Subject describes the target a probe outcome belongs to, snapshotted at
// dispatch time. Alert carries the target's ShouldAlert decision; when it
// is false the record still updates but no event leaves the engine.
type Subject struct {
	Kind string
	ID   uint64
	Name string

	CustomerID uint64
	HostID     uint64
	CheckID    uint64
	Tags       []string

	// Hysteresis thresholds: consecutive failures to confirm Down,
	// consecutive successes to confirm recovery.
	FailThreshold    int
	RecoverThreshold int

	Severity uint8
	Alert    bool
}

func (s *Subject) key() string {
	return s.Kind + "-" + strconv.FormatUint(s.ID, 10)
}

// Engine owns every StatusRecord. Applications for one target are
// serialized on a per-target mutex so concurrent probe results cannot
// interleave their read-modify-write.
type Engine struct {
	store store.Store
	sink  func(*model.Event)

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	records map[string]*model.StatusRecord
}

func NewEngine(st store.Store, sink func(*model.Event)) *Engine {
	return &Engine{
		store:   st,
		sink:    sink,
		locks:   make(map[string]*sync.Mutex),
		records: make(map[string]*model.StatusRecord),
	}
}

// Load primes the record cache from the store, so a restart resumes counting
// from persisted state instead of re-alerting on the first failure.
func (e *Engine) Load() error {
	recs, err := e.store.LoadStatusRecords()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range recs {
		e.records[rec.SourceKind+"-"+strconv.FormatUint(rec.SourceID, 10)] = rec
	}
	return nil
}

// Record returns the current record for a target, nil when never probed.
func (e *Engine) Record(kind string, id uint64) *model.StatusRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.records[kind+"-"+strconv.FormatUint(id, 10)]
}

// Apply folds one probe outcome into the target's status record and reports
// whether a confirmed transition happened. Down needs FailThreshold
// consecutive failures; recovery needs RecoverThreshold consecutive
// successes; the non-Down states (Up, Warning, Degraded) track the latest
// outcome directly.
func (e *Engine) Apply(sub *Subject, outcome *model.ProbeOutcome, now time.Time) (*model.StatusRecord, bool) {
	lock, rec := e.acquire(sub)
	lock.Lock()
	defer lock.Unlock()

	transitioned := false
	if outcome.Successful() {
		rec.ConsecutiveFailures = 0
		rec.ConsecutiveSuccesses++
		if rec.Status == model.StatusDown {
			if rec.ConsecutiveSuccesses >= sub.recoverThreshold() {
				e.transition(rec, outcome.Status, now)
				transitioned = true
			}
		} else if rec.Status != outcome.Status {
			e.transition(rec, outcome.Status, now)
			transitioned = true
		}
	} else {
		rec.ConsecutiveSuccesses = 0
		rec.ConsecutiveFailures++
		if rec.Status != model.StatusDown && rec.ConsecutiveFailures >= sub.failThreshold() {
			e.transition(rec, model.StatusDown, now)
			transitioned = true
		}
	}

	if err := e.store.UpsertStatusRecord(rec); err != nil {
		log.Println("VIGILO>> status: persist record for", sub.key(), "failed:", err)
	}

	if transitioned && sub.Alert {
		e.emit(sub, rec, outcome, now)
	}
	return rec, transitioned
}

func (e *Engine) acquire(sub *Subject) (*sync.Mutex, *model.StatusRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sub.key()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	rec, ok := e.records[key]
	if !ok {
		rec = &model.StatusRecord{SourceKind: sub.Kind, SourceID: sub.ID, Status: model.StatusUnknown}
		e.records[key] = rec
	}
	return lock, rec
}

func (e *Engine) transition(rec *model.StatusRecord, to uint8, now time.Time) {
	rec.PreviousStatus = rec.Status
	rec.Status = to
	at := now
	rec.StatusChangedAt = &at
}

func (e *Engine) emit(sub *Subject, rec *model.StatusRecord, outcome *model.ProbeOutcome, now time.Time) {
	ev := &model.Event{
		Severity:   sub.Severity,
		SourceKind: sub.Kind,
		SourceID:   sub.ID,
		SourceName: sub.Name,
		CustomerID: sub.CustomerID,
		HostID:     sub.HostID,
		CheckID:    sub.CheckID,
		Tags:       sub.Tags,
		OccurredAt: now,
	}

	switch {
	case rec.Status == model.StatusDown:
		ev.Type = downEventType(sub.Kind)
		ev.Title = sub.Name + " is down"
		ev.Message = outcome.Error
	case rec.PreviousStatus == model.StatusDown:
		ev.Type = upEventType(sub.Kind)
		ev.Severity = model.SeverityInfo
		ev.Title = sub.Name + " recovered"
		ev.Message = "back to " + model.StatusToString(rec.Status)
	case rec.Status == model.StatusWarning && outcome.SSLExpiresAt != nil:
		ev.Type = model.EventSSLExpiring
		ev.Severity = model.SeverityMedium
		ev.Title = "certificate expiring for " + sub.Name
		ev.Message = outcome.Error
	case sub.Kind == model.SourceHost &&
		(rec.Status == model.StatusWarning || rec.Status == model.StatusDegraded):
		ev.Type = model.EventHostWarning
		ev.Severity = model.SeverityMedium
		ev.Title = sub.Name + " degraded"
		ev.Message = outcome.Error
	default:
		// Up <-> Warning moves on checks without SSL data carry no event.
		return
	}

	if e.sink != nil {
		e.sink(ev)
	}
}

func downEventType(kind string) string {
	switch kind {
	case model.SourceHost:
		return model.EventHostDown
	case model.SourceService:
		return model.EventServiceDown
	default:
		return model.EventCheckFailed
	}
}

func upEventType(kind string) string {
	switch kind {
	case model.SourceHost:
		return model.EventHostUp
	case model.SourceService:
		return model.EventServiceUp
	default:
		return model.EventCheckRecovered
	}
}

func (s *Subject) failThreshold() int {
	if s.FailThreshold <= 0 {
		return 1
	}
	return s.FailThreshold
}

func (s *Subject) recoverThreshold() int {
	if s.RecoverThreshold <= 0 {
		return 1
	}
	return s.RecoverThreshold
}
