package notifier

import (
	"context"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/store"
)

type delayedSend struct {
	rule      *model.NotificationRule
	ev        *model.Event
	subject   string
	body      string
	dueAt     time.Time
	sourceKey string
}

type pendingEscalation struct {
	incidentID uint64
	ruleID     uint64
	ev         *model.Event
	dueAt      time.Time
}

// Engine matches events against the rule set and hands matches to the
// dispatcher. It also owns the per-rule cooldown labels, delayed sends and
// pending escalations; Scan drives the latter two off the cron.
type Engine struct {
	store      store.Store
	dispatcher *Dispatcher

	mu     sync.RWMutex
	rules  map[uint64]*model.NotificationRule
	sorted []*model.NotificationRule

	cooldown *cache.Cache

	pendingMu   sync.Mutex
	delayed     []*delayedSend
	escalations map[uint64]*pendingEscalation

	loc *time.Location
	now func() time.Time
}

func NewEngine(st store.Store, dispatcher *Dispatcher, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		store:       st,
		dispatcher:  dispatcher,
		rules:       make(map[uint64]*model.NotificationRule),
		cooldown:    cache.New(time.Hour, 10*time.Minute),
		escalations: make(map[uint64]*pendingEscalation),
		loc:         loc,
		now:         time.Now,
	}
}

// LoadRules primes the rule set from the store.
func (e *Engine) LoadRules() error {
	rules, err := e.store.ListRules()
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = make(map[uint64]*model.NotificationRule, len(rules))
	for _, r := range rules {
		e.rules[r.ID] = r
	}
	e.resort()
	return nil
}

// OnRuleUpdate swaps a rule without a restart.
func (e *Engine) OnRuleUpdate(r *model.NotificationRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[r.ID] = r
	e.resort()
}

func (e *Engine) OnRuleDelete(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, id)
	e.resort()
}

// resort keeps the evaluation order stable: priority, then id. Caller holds
// the write lock.
func (e *Engine) resort() {
	e.sorted = make([]*model.NotificationRule, 0, len(e.rules))
	for _, r := range e.rules {
		e.sorted = append(e.sorted, r)
	}
	sort.Slice(e.sorted, func(i, j int) bool {
		if e.sorted[i].Priority != e.sorted[j].Priority {
			return e.sorted[i].Priority < e.sorted[j].Priority
		}
		return e.sorted[i].ID < e.sorted[j].ID
	})
}

func (e *Engine) rule(id uint64) *model.NotificationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules[id]
}

// HandleEvent runs every rule against the event. A recovery event first
// cancels anything pending for its source: delayed sends that have not
// fired yet and the escalation of a resolved incident.
func (e *Engine) HandleEvent(ctx context.Context, ev *model.Event) {
	now := e.now()
	if ev.IsRecovery() {
		e.cancelPending(ev)
	}

	e.mu.RLock()
	rules := e.sorted
	e.mu.RUnlock()

	for _, r := range rules {
		if !e.matches(r, ev, now) {
			continue
		}
		subject, body := renderMessage(ev, e.loc)

		if r.DelaySeconds > 0 && !ev.IsRecovery() {
			e.pendingMu.Lock()
			e.delayed = append(e.delayed, &delayedSend{
				rule:      r,
				ev:        ev,
				subject:   subject,
				body:      body,
				dueAt:     now.Add(time.Duration(r.DelaySeconds) * time.Second),
				sourceKey: ev.SourceKey(),
			})
			e.pendingMu.Unlock()
		} else {
			e.fire(ctx, r, ev, subject, body)
		}

		if ev.Type == model.EventIncidentCreated && r.EscalateAfterMinutes > 0 && r.EscalateToRuleID > 0 {
			e.pendingMu.Lock()
			if _, dup := e.escalations[ev.IncidentID]; !dup {
				e.escalations[ev.IncidentID] = &pendingEscalation{
					incidentID: ev.IncidentID,
					ruleID:     r.EscalateToRuleID,
					ev:         ev,
					dueAt:      now.Add(time.Duration(r.EscalateAfterMinutes) * time.Minute),
				}
			}
			e.pendingMu.Unlock()
		}
	}
}

// matches runs the filter pipeline; order matters only for cost, cheap
// checks first.
func (e *Engine) matches(r *model.NotificationRule, ev *model.Event, now time.Time) bool {
	if !r.Enabled {
		return false
	}
	if r.EventType != "" && r.EventType != ev.Type {
		return false
	}
	if !r.MatchesSeverity(ev.Severity) {
		return false
	}
	if !r.MatchesScope(ev) {
		return false
	}
	if !r.IsWithinWorkingHours(now, ev.Severity) {
		return false
	}
	if r.CooldownMinutes > 0 {
		if _, muted := e.cooldown.Get(cooldownKey(r.ID, ev.SourceKey())); muted {
			return false
		}
	}
	return true
}

func (e *Engine) fire(ctx context.Context, r *model.NotificationRule, ev *model.Event, subject, body string) {
	e.dispatcher.Dispatch(ctx, r, ev, subject, body)
	if r.CooldownMinutes > 0 {
		e.cooldown.Set(cooldownKey(r.ID, ev.SourceKey()), true,
			time.Duration(r.CooldownMinutes)*time.Minute)
	}
}

// Scan fires due delayed sends and due escalations. Run from the cron.
func (e *Engine) Scan(ctx context.Context, now time.Time) {
	e.pendingMu.Lock()
	var due []*delayedSend
	keep := e.delayed[:0]
	for _, d := range e.delayed {
		if d.dueAt.After(now) {
			keep = append(keep, d)
		} else {
			due = append(due, d)
		}
	}
	e.delayed = keep

	var escDue []*pendingEscalation
	for id, esc := range e.escalations {
		if !esc.dueAt.After(now) {
			escDue = append(escDue, esc)
			delete(e.escalations, id)
		}
	}
	e.pendingMu.Unlock()

	// Re-run the filters against the live rule set: the rule may have been
	// disabled or hot-swapped since enqueue, and another event for the same
	// source may have started a cooldown inside the delay window.
	for _, d := range due {
		r := e.rule(d.rule.ID)
		if r == nil || !e.matches(r, d.ev, now) {
			continue
		}
		e.fire(ctx, r, d.ev, d.subject, d.body)
	}
	for _, esc := range escDue {
		e.escalate(ctx, esc, now)
	}
}

// escalate re-checks the incident before paging the next tier; an incident
// acknowledged or resolved in the meantime escalates nowhere.
func (e *Engine) escalate(ctx context.Context, esc *pendingEscalation, now time.Time) {
	inc, err := e.store.GetIncident(esc.incidentID)
	if err != nil {
		log.Println("VIGILO>> notifier: escalation lookup for incident", esc.incidentID, "failed:", err)
		return
	}
	if inc == nil || !inc.IsOpen() || inc.Status == model.IncidentStatusAcknowledged {
		return
	}
	target := e.rule(esc.ruleID)
	if target == nil {
		log.Println("VIGILO>> notifier: escalation rule", esc.ruleID, "missing for incident", esc.incidentID)
		return
	}

	ev := *esc.ev
	ev.Type = model.EventEscalation
	ev.Title = "Escalation: " + inc.Title
	ev.Message = "incident " + strconv.FormatUint(inc.ID, 10) + " unacknowledged for " +
		strconv.Itoa(int(now.Sub(inc.CreatedAt)/time.Minute)) + " minutes"
	ev.OccurredAt = now

	// The escalation goes through the same filters as any other event, so a
	// tier restricted by severity, scope or working hours stays restricted.
	if !e.matches(target, &ev, now) {
		return
	}

	subject, body := renderMessage(&ev, e.loc)
	e.fire(ctx, target, &ev, subject, body)

	err = e.store.AppendTimeline(&model.IncidentTimeline{
		IncidentID: inc.ID,
		Kind:       "escalated",
		Message:    "escalated to rule " + target.Name,
		CreatedAt:  now,
	})
	if err != nil {
		log.Println("VIGILO>> notifier: escalation timeline append failed:", err)
	}
}

func (e *Engine) cancelPending(ev *model.Event) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	key := ev.SourceKey()
	keep := e.delayed[:0]
	for _, d := range e.delayed {
		if d.sourceKey == key {
			log.Println("VIGILO>> notifier: cancelled delayed notification for", key)
			continue
		}
		keep = append(keep, d)
	}
	e.delayed = keep

	if ev.Type == model.EventIncidentResolved && ev.IncidentID > 0 {
		delete(e.escalations, ev.IncidentID)
	}
}

func cooldownKey(ruleID uint64, sourceKey string) string {
	return "cd::" + strconv.FormatUint(ruleID, 10) + "-" + sourceKey
}

func renderMessage(ev *model.Event, loc *time.Location) (string, string) {
	subject := ev.Title
	if subject == "" {
		subject = ev.Type + ": " + ev.SourceName
	}
	body := ev.Message
	if body != "" {
		body += "\n"
	}
	body += "source: " + ev.SourceKind + " " + ev.SourceName +
		"\nseverity: " + model.SeverityToString(ev.Severity) +
		"\ntime: " + ev.OccurredAt.In(loc).Format("2006-01-02 15:04:05")
	return subject, body
}
