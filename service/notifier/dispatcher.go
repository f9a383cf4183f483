package notifier

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/store"
)

// Dispatcher owns the channel registry and the delivery lifecycle: rate
// limiting, the retry queue and dead-lettering. Every attempt is recorded
// as a NotificationLog row.
type Dispatcher struct {
	store    store.Store
	adapters map[uint8]Adapter

	mu       sync.RWMutex
	channels map[uint64]*model.NotificationChannel

	drainMu sync.Mutex

	maxRetries int
	retryBase  time.Duration
	retryMax   time.Duration

	now func() time.Time
}

func NewDispatcher(st store.Store, adapters map[uint8]Adapter, maxRetries int, retryBase, retryMax time.Duration) *Dispatcher {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if retryBase <= 0 {
		retryBase = time.Minute
	}
	if retryMax <= 0 {
		retryMax = 30 * time.Minute
	}
	return &Dispatcher{
		store:      st,
		adapters:   adapters,
		channels:   make(map[uint64]*model.NotificationChannel),
		maxRetries: maxRetries,
		retryBase:  retryBase,
		retryMax:   retryMax,
		now:        time.Now,
	}
}

// LoadChannels primes the registry from the store.
func (d *Dispatcher) LoadChannels() error {
	channels, err := d.store.ListChannels()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = make(map[uint64]*model.NotificationChannel, len(channels))
	for _, ch := range channels {
		d.channels[ch.ID] = ch
	}
	return nil
}

// OnChannelUpdate swaps a channel in place, used by the reload endpoint.
func (d *Dispatcher) OnChannelUpdate(ch *model.NotificationChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.ID] = ch
}

func (d *Dispatcher) OnChannelDelete(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, id)
}

func (d *Dispatcher) channel(id uint64) *model.NotificationChannel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.channels[id]
}

// Dispatch fans a rendered notification out to the rule's recipients. The
// rows are only enqueued here; delivery happens in DrainRetries so a slow
// channel endpoint never stalls the probe worker that raised the event.
func (d *Dispatcher) Dispatch(_ context.Context, rule *model.NotificationRule, ev *model.Event, subject, body string) {
	ch := d.channel(rule.ChannelID)
	if ch == nil || !ch.Enabled {
		return
	}

	recipients := rule.Recipients
	if len(recipients) == 0 {
		// webhook-style channels carry the destination in their config
		recipients = []string{""}
	}

	now := d.now()
	for _, recipient := range recipients {
		at := now
		l := &model.NotificationLog{
			RuleID:      rule.ID,
			ChannelID:   ch.ID,
			EventType:   ev.Type,
			SourceKind:  ev.SourceKind,
			SourceID:    ev.SourceID,
			SourceName:  ev.SourceName,
			Recipient:   recipient,
			Subject:     subject,
			Body:        body,
			Status:      model.NotificationPending,
			NextRetryAt: &at,
		}
		l.CreatedAt = now
		if err := d.store.SaveNotificationLog(l); err != nil {
			log.Println("VIGILO>> notifier: save log failed:", err)
		}
	}
}

// admit applies the rolling hourly limit and counts the send on success.
func (d *Dispatcher) admit(ch *model.NotificationChannel, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch.RateLimitResetAt == nil || !now.Before(*ch.RateLimitResetAt) {
		reset := now.Add(time.Hour)
		ch.RateLimitResetAt = &reset
		ch.HourCount = 0
	}
	if ch.RateLimitPerHour > 0 && ch.HourCount >= ch.RateLimitPerHour {
		return false
	}
	ch.HourCount++
	if err := d.store.SaveChannel(ch); err != nil {
		log.Println("VIGILO>> notifier: persist channel counter failed:", err)
	}
	return true
}

func (d *Dispatcher) attempt(ctx context.Context, ch *model.NotificationChannel, l *model.NotificationLog, now time.Time) {
	adapter := d.adapters[ch.Type]
	if adapter == nil {
		d.deadLetter(l, "no adapter for channel type "+model.ChannelTypeToString(ch.Type), now)
		return
	}

	externalID, err := adapter.Send(ctx, ch, l.Recipient, l.Subject, l.Body)
	if err != nil {
		d.markChannelFailed(ch, err, now)
		if l.RetryCount >= d.maxRetries {
			d.deadLetter(l, err.Error(), now)
			return
		}
		next := now.Add(d.backoff(l.RetryCount))
		l.Status = model.NotificationQueued
		l.Error = err.Error()
		l.NextRetryAt = &next
		if uerr := d.store.UpdateNotificationLog(l); uerr != nil {
			log.Println("VIGILO>> notifier: update log failed:", uerr)
		}
		return
	}

	at := now
	l.Status = model.NotificationSent
	l.SentAt = &at
	l.NextRetryAt = nil
	l.Error = ""
	l.ExternalID = externalID
	if err := d.store.UpdateNotificationLog(l); err != nil {
		log.Println("VIGILO>> notifier: update log failed:", err)
	}

	d.mu.Lock()
	ch.LastUsedAt = &at
	if err := d.store.SaveChannel(ch); err != nil {
		log.Println("VIGILO>> notifier: persist channel failed:", err)
	}
	d.mu.Unlock()
}

// DrainRetries attempts every pending or queued notification whose time has
// come. First attempts (still Pending) keep their retry counter at zero;
// re-attempts bump it first so backoff grows per attempt. A channel over its
// hourly limit pushes the row to the limit reset instead of dropping it.
func (d *Dispatcher) DrainRetries(ctx context.Context, now time.Time) {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	due, err := d.store.DueNotificationRetries(now, 100)
	if err != nil {
		log.Println("VIGILO>> notifier: load due retries failed:", err)
		return
	}
	for _, l := range due {
		ch := d.channel(l.ChannelID)
		if ch == nil || !ch.Enabled {
			d.deadLetter(l, "channel removed or disabled", now)
			continue
		}
		if !d.admit(ch, now) {
			l.NextRetryAt = ch.RateLimitResetAt
			if err := d.store.UpdateNotificationLog(l); err != nil {
				log.Println("VIGILO>> notifier: update log failed:", err)
			}
			log.Println("VIGILO>> notifier: channel", ch.Name, "over hourly limit, deferred")
			continue
		}
		if l.Status == model.NotificationQueued {
			l.RetryCount++
		}
		d.attempt(ctx, ch, l, now)
	}
}

func (d *Dispatcher) deadLetter(l *model.NotificationLog, reason string, now time.Time) {
	at := now
	l.Status = model.NotificationFailed
	l.FailedAt = &at
	l.NextRetryAt = nil
	l.Error = reason
	if err := d.store.UpdateNotificationLog(l); err != nil {
		log.Println("VIGILO>> notifier: dead-letter update failed:", err)
	}
	log.Println("VIGILO>> notifier: dead-lettered notification", l.ID, "after", l.RetryCount, "retries:", reason)
}

func (d *Dispatcher) markChannelFailed(ch *model.NotificationChannel, err error, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	at := now
	ch.LastFailedAt = &at
	ch.LastError = err.Error()
	if serr := d.store.SaveChannel(ch); serr != nil {
		log.Println("VIGILO>> notifier: persist channel failed:", serr)
	}
}

// backoff doubles per retry from the base, capped at the maximum.
func (d *Dispatcher) backoff(retries int) time.Duration {
	delay := d.retryBase
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay >= d.retryMax {
			return d.retryMax
		}
	}
	if delay > d.retryMax {
		return d.retryMax
	}
	return delay
}
