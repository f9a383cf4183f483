package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vigilohq/vigilo/model"
	"github.com/vigilohq/vigilo/service/probe"
	"github.com/vigilohq/vigilo/service/scheduler"
	"github.com/vigilohq/vigilo/service/store"
)

func TestConcurrentCheckReloads(t *testing.T) {
	st := store.NewMemoryStore()
	for i := uint64(1); i <= 20; i++ {
		c := &model.Check{
			Name:              "check",
			Type:              model.CheckTypeHTTP,
			MonitoringEnabled: i%2 == 0,
			IntervalSeconds:   60,
		}
		c.ID = i
		st.Checks = append(st.Checks, c)
	}

	a := &app{
		store:     st,
		executors: probe.NewRegistry(),
		scheduler: scheduler.New(4, time.Second, 0),
	}

	// two reload endpoints hit at once must not corrupt the schedule
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.reloadChecks())
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, a.scheduler.Len(), "only monitoring-enabled checks stay scheduled")
	assert.Len(t, a.registered, 10)
}

func TestReloadDropsRemovedChecks(t *testing.T) {
	st := store.NewMemoryStore()
	c := &model.Check{Name: "web", Type: model.CheckTypeHTTP, MonitoringEnabled: true, IntervalSeconds: 60}
	c.ID = 1
	st.Checks = append(st.Checks, c)

	a := &app{
		store:     st,
		executors: probe.NewRegistry(),
		scheduler: scheduler.New(4, time.Second, 0),
	}
	assert.NoError(t, a.reloadChecks())
	assert.Equal(t, 1, a.scheduler.Len())

	st.Checks = nil
	assert.NoError(t, a.reloadChecks())
	assert.Equal(t, 0, a.scheduler.Len())
}
