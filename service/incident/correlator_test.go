package incident

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/store"
)

func downEvent(at time.Time) *model.Event {
	return &model.Event{
		Type:       model.EventCheckFailed,
		Severity:   model.SeverityHigh,
		SourceKind: model.SourceCheck,
		SourceID:   7,
		SourceName: "api healthcheck",
		CustomerID: 2,
		Title:      "api healthcheck is down",
		Message:    "connection refused",
		OccurredAt: at,
	}
}

func upEvent(at time.Time) *model.Event {
	return &model.Event{
		Type:       model.EventCheckRecovered,
		SourceKind: model.SourceCheck,
		SourceID:   7,
		SourceName: "api healthcheck",
		OccurredAt: at,
	}
}

func newTestCorrelator() (*Correlator, *store.MemoryStore, *[]*model.Event) {
	st := store.NewMemoryStore()
	events := &[]*model.Event{}
	var mu sync.Mutex
	c := NewCorrelator(st, func(ev *model.Event) {
		mu.Lock()
		*events = append(*events, ev)
		mu.Unlock()
	}, 15, 240)
	return c, st, events
}

func TestOpenAndAutoResolve(t *testing.T) {
	c, st, events := newTestCorrelator()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	c.OnEvent(downEvent(now))

	inc, _ := st.GetOpenIncident(model.SourceCheck, 7)
	assert.NotNil(t, inc)
	assert.Equal(t, uint8(model.IncidentStatusNew), inc.Status)
	assert.Equal(t, uint8(model.IncidentPriorityHigh), inc.Priority)
	assert.Len(t, *events, 1)
	assert.Equal(t, model.EventIncidentCreated, (*events)[0].Type)
	assert.Equal(t, inc.ID, (*events)[0].IncidentID)

	c.OnEvent(upEvent(now.Add(30 * time.Minute)))

	open, _ := st.GetOpenIncident(model.SourceCheck, 7)
	assert.Nil(t, open)
	resolved, _ := st.GetIncident(inc.ID)
	assert.Equal(t, uint8(model.IncidentStatusResolved), resolved.Status)
	assert.NotNil(t, resolved.ResolutionSLAMet)
	assert.True(t, *resolved.ResolutionSLAMet, "resolved within 240 minutes")
	assert.Len(t, *events, 2)
	assert.Equal(t, model.EventIncidentResolved, (*events)[1].Type)
}

func TestAtMostOneOpenIncidentPerSource(t *testing.T) {
	c, st, events := newTestCorrelator()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.OnEvent(downEvent(now.Add(time.Duration(i) * time.Second)))
		}(i)
	}
	wg.Wait()

	count := 0
	for _, inc := range st.Incidents {
		if inc.SourceKind == model.SourceCheck && inc.SourceID == 7 && inc.IsOpen() {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, *events, 1, "one created event despite repeated triggers")
}

func TestAcknowledgeScoresResponseSLA(t *testing.T) {
	c, st, _ := newTestCorrelator()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	c.OnEvent(downEvent(now))
	inc, _ := st.GetOpenIncident(model.SourceCheck, 7)

	acked, err := c.Acknowledge(inc.ID, 42, now.Add(10*time.Minute))
	assert.NoError(t, err)
	assert.Equal(t, uint8(model.IncidentStatusAcknowledged), acked.Status)
	assert.Equal(t, uint64(42), acked.AcknowledgedBy)
	assert.True(t, *acked.ResponseSLAMet)

	// idempotent
	again, err := c.Acknowledge(inc.ID, 99, now.Add(time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, uint64(42), again.AcknowledgedBy)
}

func TestLateAcknowledgeMissesSLA(t *testing.T) {
	c, st, _ := newTestCorrelator()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	c.OnEvent(downEvent(now))
	inc, _ := st.GetOpenIncident(model.SourceCheck, 7)

	acked, err := c.Acknowledge(inc.ID, 42, now.Add(20*time.Minute))
	assert.NoError(t, err)
	assert.False(t, *acked.ResponseSLAMet)
}

func TestPinnedIncidentSurvivesRecovery(t *testing.T) {
	c, st, events := newTestCorrelator()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	c.OnEvent(downEvent(now))
	inc, _ := st.GetOpenIncident(model.SourceCheck, 7)
	inc.PinnedOpen = true
	st.UpdateIncident(inc)

	c.OnEvent(upEvent(now.Add(time.Hour)))

	still, _ := st.GetOpenIncident(model.SourceCheck, 7)
	assert.NotNil(t, still, "pinned incident stays open")
	assert.Len(t, *events, 1, "no resolved event")

	closed, err := c.Close(inc.ID, 42, "hardware", "disk controller failed", "controller swapped", now.Add(2*time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, uint8(model.IncidentStatusClosed), closed.Status)
	assert.Equal(t, "hardware", closed.RootCauseCategory)
}

func TestUnknownIncident(t *testing.T) {
	c, _, _ := newTestCorrelator()
	_, err := c.Acknowledge(12345, 1, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
