package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ory/graceful"
	"github.com/robfig/cron/v3"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/heartbeat"
	"github.com/vigilohq/vigilo/service/incident"
	"github.com/vigilohq/vigilo/service/notifier"
	"github.com/vigilohq/vigilo/service/probe"
	"github.com/vigilohq/vigilo/service/scheduler"
	"github.com/vigilohq/vigilo/service/status"
	"github.com/vigilohq/vigilo/service/store"
)

type app struct {
	conf *model.Config
	loc  *time.Location

	store      store.Store
	executors  map[uint8]probe.Executor
	scheduler  *scheduler.Scheduler
	status     *status.Engine
	correlator *incident.Correlator
	rules      *notifier.Engine
	dispatcher *notifier.Dispatcher
	heartbeat  *heartbeat.Service
	cron       *cron.Cron

	reloadMu   sync.Mutex
	registered map[string]bool // keys scheduled by the last reload, guarded by reloadMu
}

func main() {
	configPath := flag.String("config", "data/config.yaml", "configuration file")
	flag.Parse()

	a, err := newApp(*configPath)
	if err != nil {
		log.Fatalln("VIGILO>> boot failed:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go a.scheduler.Run(ctx)
	a.cron.Start()

	srv := &http.Server{Addr: a.conf.HTTP.Listen, Handler: a.routes()}
	log.Println("VIGILO>> listening on", a.conf.HTTP.Listen)
	if err := graceful.Graceful(srv.ListenAndServe, func(c context.Context) error {
		cancel()
		a.cron.Stop()
		return srv.Shutdown(c)
	}); err != nil {
		log.Fatalln("VIGILO>> server stopped:", err)
	}
}

func newApp(configPath string) (*app, error) {
	conf := &model.Config{}
	if err := conf.Read(configPath); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(conf.Location)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(conf.Database.Path, conf.Debug)
	if err != nil {
		return nil, err
	}

	a := &app{conf: conf, loc: loc, store: st}
	a.executors = probe.NewRegistry()

	a.dispatcher = notifier.NewDispatcher(st, notifier.NewAdapters(loc),
		conf.Notification.MaxRetries,
		time.Duration(conf.Notification.RetryBaseSeconds)*time.Second,
		time.Duration(conf.Notification.RetryMaxSeconds)*time.Second)
	a.rules = notifier.NewEngine(st, a.dispatcher, loc)
	a.correlator = incident.NewCorrelator(st, a.notify,
		conf.Incident.ResponseSLAMinutes, conf.Incident.ResolutionSLAMinutes)
	a.status = status.NewEngine(st, a.onStatusEvent)
	a.heartbeat = heartbeat.NewService(st, a.status, conf.Heartbeat.NextCheckInSeconds)

	a.scheduler = scheduler.New(conf.Scheduler.MaxWorkers,
		time.Duration(conf.Scheduler.TickSeconds)*time.Second,
		int64(conf.Scheduler.JitterPercent))

	if err := a.status.Load(); err != nil {
		return nil, err
	}
	if err := a.heartbeat.LoadHosts(); err != nil {
		return nil, err
	}
	if err := a.rules.LoadRules(); err != nil {
		return nil, err
	}
	if err := a.dispatcher.LoadChannels(); err != nil {
		return nil, err
	}
	if err := a.reloadChecks(); err != nil {
		return nil, err
	}

	a.cron = cron.New(cron.WithSeconds(), cron.WithLocation(loc))
	a.cron.AddFunc("*/30 * * * * *", func() { a.heartbeat.LivenessSweep(time.Now()) })
	a.cron.AddFunc("0 * * * * *", func() { a.heartbeat.MaintenanceSweep(time.Now()) })
	a.cron.AddFunc("*/30 * * * * *", func() { a.rules.Scan(context.Background(), time.Now()) })
	// Delivery is decoupled from the probe workers; the drain loop runs often
	// enough that first attempts go out within seconds.
	a.cron.AddFunc("*/10 * * * * *", func() { a.dispatcher.DrainRetries(context.Background(), time.Now()) })

	return a, nil
}

// onStatusEvent fans status transitions out to the incident correlator and
// the notification rules. The correlator runs first so lifecycle events it
// emits (through notify) reach the rules in causal order.
func (a *app) onStatusEvent(ev *model.Event) {
	a.correlator.OnEvent(ev)
	a.notify(ev)
}

func (a *app) notify(ev *model.Event) {
	a.rules.HandleEvent(context.Background(), ev)
}

// reloadChecks rebuilds the probe schedule from the store. Removed checks
// drop off the heap, new and changed ones re-register. Reloads are
// serialized so concurrent calls cannot corrupt the registered set.
func (a *app) reloadChecks() error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	checks, err := a.store.ListChecks()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(checks))
	for _, c := range checks {
		if !c.MonitoringEnabled {
			continue
		}
		key := checkKey(c.ID)
		seen[key] = true
		a.scheduler.Register(a.checkTarget(c))
	}
	for key := range a.registered {
		if !seen[key] {
			a.scheduler.Deregister(key)
		}
	}
	a.registered = seen
	return nil
}

func checkKey(id uint64) string {
	return "check-" + strconv.FormatUint(id, 10)
}

// checkTarget closes over everything one probe cycle needs: execute, append
// history, fold into the status engine.
func (a *app) checkTarget(c *model.Check) scheduler.Target {
	return scheduler.Target{
		Key:      checkKey(c.ID),
		Interval: c.Interval(),
		Timeout:  c.Timeout(),
		Run: func(ctx context.Context) {
			executor := a.executors[c.Type]
			if executor == nil {
				log.Println("VIGILO>> no executor for check type", c.Type)
				return
			}
			now := time.Now()
			outcome := executor.Execute(ctx, c)
			if err := a.store.SaveCheckResult(model.NewCheckResult(model.SourceCheck, c.ID, outcome, now)); err != nil {
				log.Println("VIGILO>> persist result for check", c.ID, "failed:", err)
			}
			a.status.Apply(&status.Subject{
				Kind:             model.SourceCheck,
				ID:               c.ID,
				Name:             c.Name,
				CustomerID:       c.CustomerID,
				HostID:           c.HostID,
				CheckID:          c.ID,
				Tags:             c.Tags,
				FailThreshold:    c.Retries,
				RecoverThreshold: c.RecoverRetries,
				Severity:         c.DownSeverity,
				Alert:            c.ShouldAlert(now),
			}, outcome, now)
		},
	}
}
