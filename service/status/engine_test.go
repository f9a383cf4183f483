package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/store"
)

func newTestEngine() (*Engine, *[]*model.Event, *store.MemoryStore) {
	st := store.NewMemoryStore()
	events := &[]*model.Event{}
	e := NewEngine(st, func(ev *model.Event) { *events = append(*events, ev) })
	return e, events, st
}

func checkSubject(alert bool) *Subject {
	return &Subject{
		Kind:             model.SourceCheck,
		ID:               7,
		Name:             "api healthcheck",
		CheckID:          7,
		FailThreshold:    3,
		RecoverThreshold: 1,
		Severity:         model.SeverityHigh,
		Alert:            alert,
	}
}

func down() *model.ProbeOutcome { return &model.ProbeOutcome{Status: model.StatusDown, Error: "refused"} }
func up() *model.ProbeOutcome   { return &model.ProbeOutcome{Status: model.StatusUp} }

func TestDownConfirmedAfterThreshold(t *testing.T) {
	e, events, _ := newTestEngine()
	sub := checkSubject(true)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	_, tr := e.Apply(sub, down(), now)
	assert.False(t, tr)
	_, tr = e.Apply(sub, down(), now.Add(time.Minute))
	assert.False(t, tr)
	assert.Empty(t, *events, "no event before the threshold")

	rec, tr := e.Apply(sub, down(), now.Add(2*time.Minute))
	assert.True(t, tr)
	assert.Equal(t, uint8(model.StatusDown), rec.Status)
	assert.Len(t, *events, 1)
	assert.Equal(t, model.EventCheckFailed, (*events)[0].Type)
	assert.Equal(t, uint8(model.SeverityHigh), (*events)[0].Severity)

	// staying down emits nothing further
	_, tr = e.Apply(sub, down(), now.Add(3*time.Minute))
	assert.False(t, tr)
	assert.Len(t, *events, 1)
}

func TestRecoveryAfterSingleSuccess(t *testing.T) {
	e, events, _ := newTestEngine()
	sub := checkSubject(true)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		e.Apply(sub, down(), now.Add(time.Duration(i)*time.Minute))
	}
	rec, tr := e.Apply(sub, up(), now.Add(5*time.Minute))
	assert.True(t, tr)
	assert.Equal(t, uint8(model.StatusUp), rec.Status)
	assert.Equal(t, uint8(model.StatusDown), rec.PreviousStatus)

	assert.Len(t, *events, 2)
	assert.Equal(t, model.EventCheckRecovered, (*events)[1].Type)
	assert.True(t, (*events)[1].IsRecovery())
}

func TestFailureRunInterruptedResetsCounter(t *testing.T) {
	e, events, _ := newTestEngine()
	sub := checkSubject(true)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	e.Apply(sub, down(), now)
	e.Apply(sub, down(), now.Add(time.Minute))
	e.Apply(sub, up(), now.Add(2*time.Minute))
	rec, tr := e.Apply(sub, down(), now.Add(3*time.Minute))
	assert.False(t, tr)
	assert.Equal(t, 1, rec.ConsecutiveFailures)
	assert.Empty(t, *events)
}

func TestMaintenanceSuppressesEventsNotHistory(t *testing.T) {
	e, events, st := newTestEngine()
	sub := checkSubject(false) // muted target
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		e.Apply(sub, down(), now.Add(time.Duration(i)*time.Minute))
	}

	assert.Empty(t, *events, "muted target emits nothing")
	rec := e.Record(model.SourceCheck, 7)
	assert.NotNil(t, rec)
	assert.Equal(t, uint8(model.StatusDown), rec.Status, "status still tracked")
	recs, _ := st.LoadStatusRecords()
	assert.Len(t, recs, 1, "record persisted despite mute")
}

func TestSSLWarningEmitsExpiringEvent(t *testing.T) {
	e, events, _ := newTestEngine()
	sub := checkSubject(true)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(10 * 24 * time.Hour)

	outcome := &model.ProbeOutcome{
		Status:           model.StatusWarning,
		SSLExpiresAt:     &expiry,
		SSLDaysRemaining: 10,
		Error:            "certificate expires in 10 days",
	}
	_, tr := e.Apply(sub, outcome, now)
	assert.True(t, tr)
	assert.Len(t, *events, 1)
	assert.Equal(t, model.EventSSLExpiring, (*events)[0].Type)
	assert.Equal(t, uint8(model.SeverityMedium), (*events)[0].Severity)
}

func TestHostDegradedEmitsWarning(t *testing.T) {
	e, events, _ := newTestEngine()
	sub := &Subject{
		Kind: model.SourceHost, ID: 3, Name: "db-01", HostID: 3,
		FailThreshold: 1, RecoverThreshold: 1,
		Severity: model.SeverityHigh, Alert: true,
	}
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	_, tr := e.Apply(sub, &model.ProbeOutcome{Status: model.StatusDegraded, Error: "cpu 97%"}, now)
	assert.True(t, tr)
	assert.Len(t, *events, 1)
	assert.Equal(t, model.EventHostWarning, (*events)[0].Type)

	// back to Up is a silent move, Down was never confirmed
	_, tr = e.Apply(sub, up(), now.Add(time.Minute))
	assert.True(t, tr)
	assert.Len(t, *events, 1)
}
