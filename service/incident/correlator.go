package incident

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/store"
)

var ErrNotFound = errors.New("incident not found")

// Correlator turns sustained-down events into incidents and recovery events
// into resolutions. One open incident per source is the invariant; the store
// insert is conditional and OnEvent is serialized on top of it so concurrent
// triggers for one source cannot double-open.
type Correlator struct {
	store store.Store
	sink  func(*model.Event)

	responseSLAMinutes   int
	resolutionSLAMinutes int

	mu sync.Mutex
}

func NewCorrelator(st store.Store, sink func(*model.Event), responseSLAMinutes, resolutionSLAMinutes int) *Correlator {
	return &Correlator{
		store:                st,
		sink:                 sink,
		responseSLAMinutes:   responseSLAMinutes,
		resolutionSLAMinutes: resolutionSLAMinutes,
	}
}

// OnEvent consumes status-engine output. Non-lifecycle events (warnings,
// certificate expiry) pass through untouched; they notify but never ticket.
func (c *Correlator) OnEvent(ev *model.Event) {
	switch ev.Type {
	case model.EventHostDown, model.EventServiceDown, model.EventCheckFailed:
		c.open(ev)
	case model.EventHostUp, model.EventServiceUp, model.EventCheckRecovered:
		c.resolve(ev)
	}
}

func (c *Correlator) open(ev *model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inc := &model.Incident{
		Title:                ev.Title,
		Message:              ev.Message,
		CustomerID:           ev.CustomerID,
		SourceKind:           ev.SourceKind,
		SourceID:             ev.SourceID,
		SourceName:           ev.SourceName,
		Status:               model.IncidentStatusNew,
		Severity:             ev.Severity,
		Priority:             model.MapSeverityToPriority(ev.Severity),
		ResponseSLAMinutes:   c.responseSLAMinutes,
		ResolutionSLAMinutes: c.resolutionSLAMinutes,
	}
	inc.CreatedAt = ev.OccurredAt

	created, current, err := c.store.OpenIncident(inc)
	if err != nil {
		log.Println("VIGILO>> incident: open for", ev.SourceKey(), "failed:", err)
		return
	}
	if !created {
		// existing open incident absorbs the trigger
		return
	}

	c.timeline(current.ID, "created", "incident opened: "+ev.Title, 0, ev.OccurredAt)

	if c.sink != nil {
		c.sink(&model.Event{
			Type:       model.EventIncidentCreated,
			Severity:   current.Severity,
			SourceKind: ev.SourceKind,
			SourceID:   ev.SourceID,
			SourceName: ev.SourceName,
			CustomerID: ev.CustomerID,
			HostID:     ev.HostID,
			CheckID:    ev.CheckID,
			Tags:       ev.Tags,
			Title:      "Incident: " + current.Title,
			Message:    current.Message,
			OccurredAt: ev.OccurredAt,
			IncidentID: current.ID,
		})
	}
}

func (c *Correlator) resolve(ev *model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inc, err := c.store.GetOpenIncident(ev.SourceKind, ev.SourceID)
	if err != nil {
		log.Println("VIGILO>> incident: lookup for", ev.SourceKey(), "failed:", err)
		return
	}
	if inc == nil {
		return
	}
	if inc.PinnedOpen {
		c.timeline(inc.ID, "status_update", "source recovered; incident pinned open", 0, ev.OccurredAt)
		return
	}

	at := ev.OccurredAt
	inc.Status = model.IncidentStatusResolved
	inc.ResolvedAt = &at
	met := at.Sub(inc.CreatedAt) <= time.Duration(inc.ResolutionSLAMinutes)*time.Minute
	inc.ResolutionSLAMet = &met
	if err := c.store.UpdateIncident(inc); err != nil {
		log.Println("VIGILO>> incident: resolve", inc.ID, "failed:", err)
		return
	}
	c.timeline(inc.ID, "resolved", "source recovered, incident auto-resolved", 0, at)

	if c.sink != nil {
		c.sink(&model.Event{
			Type:       model.EventIncidentResolved,
			Severity:   model.SeverityInfo,
			SourceKind: ev.SourceKind,
			SourceID:   ev.SourceID,
			SourceName: ev.SourceName,
			CustomerID: ev.CustomerID,
			HostID:     ev.HostID,
			CheckID:    ev.CheckID,
			Tags:       ev.Tags,
			Title:      "Resolved: " + inc.Title,
			Message:    "incident auto-resolved on recovery",
			OccurredAt: at,
			IncidentID: inc.ID,
		})
	}
}

// Acknowledge moves a new incident to acknowledged and scores the response
// SLA. Acknowledging twice is a no-op returning the current state.
func (c *Correlator) Acknowledge(id, userID uint64, now time.Time) (*model.Incident, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inc, err := c.store.GetIncident(id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, ErrNotFound
	}
	if inc.Status != model.IncidentStatusNew {
		return inc, nil
	}

	at := now
	inc.Status = model.IncidentStatusAcknowledged
	inc.AcknowledgedBy = userID
	inc.AcknowledgedAt = &at
	met := at.Sub(inc.CreatedAt) <= time.Duration(inc.ResponseSLAMinutes)*time.Minute
	inc.ResponseSLAMet = &met
	if err := c.store.UpdateIncident(inc); err != nil {
		return nil, err
	}
	c.timeline(inc.ID, "acknowledged", "acknowledged", userID, at)
	return inc, nil
}

// Close finishes a resolved or pinned incident with root-cause bookkeeping.
func (c *Correlator) Close(id, userID uint64, category, description, steps string, now time.Time) (*model.Incident, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inc, err := c.store.GetIncident(id)
	if err != nil {
		return nil, err
	}
	if inc == nil {
		return nil, ErrNotFound
	}
	if inc.Status == model.IncidentStatusClosed {
		return inc, nil
	}

	at := now
	inc.Status = model.IncidentStatusClosed
	inc.ClosedAt = &at
	inc.PinnedOpen = false
	inc.RootCauseCategory = category
	inc.RootCauseDescription = description
	inc.ResolutionSteps = steps
	if inc.ResolvedAt == nil {
		inc.ResolvedAt = &at
		met := at.Sub(inc.CreatedAt) <= time.Duration(inc.ResolutionSLAMinutes)*time.Minute
		inc.ResolutionSLAMet = &met
	}
	if err := c.store.UpdateIncident(inc); err != nil {
		return nil, err
	}
	c.timeline(inc.ID, "closed", "closed: "+category, userID, at)
	return inc, nil
}

func (c *Correlator) timeline(incidentID uint64, kind, message string, userID uint64, at time.Time) {
	err := c.store.AppendTimeline(&model.IncidentTimeline{
		IncidentID: incidentID,
		Kind:       kind,
		Message:    message,
		UserID:     userID,
		CreatedAt:  at,
	})
	if err != nil {
		log.Println("VIGILO>> incident: timeline append for", incidentID, "failed:", err)
	}
}
