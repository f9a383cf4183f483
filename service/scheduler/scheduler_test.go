package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestTickDispatchesDueTargets(t *testing.T) {
	s := New(4, time.Second, 0)
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	var runs int64
	s.Register(Target{
		Key:      "check-1",
		Interval: 10 * time.Second,
		Run:      func(ctx context.Context) { atomic.AddInt64(&runs, 1) },
	})

	ctx := context.Background()
	s.Tick(ctx, base)
	waitFor(t, func() bool { return atomic.LoadInt64(&runs) == 1 })

	// not due yet
	s.Tick(ctx, base.Add(5*time.Second))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))

	s.Tick(ctx, base.Add(10*time.Second))
	waitFor(t, func() bool { return atomic.LoadInt64(&runs) == 2 })
}

func TestInFlightTargetIsSkipped(t *testing.T) {
	s := New(4, time.Second, 0)
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	started := make(chan struct{})
	release := make(chan struct{})
	var runs int64
	s.Register(Target{
		Key:      "slow",
		Interval: 10 * time.Second,
		Run: func(ctx context.Context) {
			atomic.AddInt64(&runs, 1)
			close(started)
			<-release
		},
	})

	ctx := context.Background()
	s.Tick(ctx, base)
	<-started

	// still running; the next two cycles must skip, not stack up
	s.Tick(ctx, base.Add(10*time.Second))
	s.Tick(ctx, base.Add(20*time.Second))
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))
	assert.Equal(t, 2, s.Missed("slow"))

	close(release)
	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.entries["slow"].inFlight
	})
	s.Tick(ctx, base.Add(40*time.Second))
	waitFor(t, func() bool { return atomic.LoadInt64(&runs) == 2 })
}

func TestDeregisterStopsScheduling(t *testing.T) {
	s := New(4, time.Second, 0)
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	var runs int64
	s.Register(Target{Key: "gone", Interval: time.Second, Run: func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	}})
	assert.Equal(t, 1, s.Len())

	s.Deregister("gone")
	assert.Equal(t, 0, s.Len())
	s.Tick(context.Background(), base.Add(time.Hour))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(0), atomic.LoadInt64(&runs))
}

func TestDeregisterCancelsInFlightRun(t *testing.T) {
	s := New(4, time.Second, 0)
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	started := make(chan struct{})
	cancelled := make(chan struct{})
	s.Register(Target{Key: "victim", Interval: time.Minute, Run: func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}})

	s.Tick(context.Background(), base)
	<-started
	s.Deregister("victim")

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight run was not cancelled")
	}
}

func TestPanickingTargetDoesNotKillScheduler(t *testing.T) {
	s := New(4, time.Second, 0)
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	var ok int64
	s.Register(Target{Key: "boom", Interval: time.Minute, Run: func(ctx context.Context) {
		panic("probe exploded")
	}})
	s.Register(Target{Key: "fine", Interval: time.Minute, Run: func(ctx context.Context) {
		atomic.AddInt64(&ok, 1)
	}})

	s.Tick(context.Background(), base)
	waitFor(t, func() bool { return atomic.LoadInt64(&ok) == 1 })

	// the panicked target reschedules like any other
	s.Tick(context.Background(), base.Add(time.Minute))
	waitFor(t, func() bool { return atomic.LoadInt64(&ok) == 2 })
}

func TestWorkerPoolBound(t *testing.T) {
	s := New(2, time.Second, 0)
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	var running, peak int64
	release := make(chan struct{})
	for _, key := range []string{"a", "b", "c", "d"} {
		s.Register(Target{Key: key, Interval: time.Minute, Run: func(ctx context.Context) {
			cur := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
					break
				}
			}
			<-release
			atomic.AddInt64(&running, -1)
		}})
	}

	s.Tick(context.Background(), base)
	waitFor(t, func() bool { return atomic.LoadInt64(&running) == 2 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(2), atomic.LoadInt64(&peak), "pool admits at most two workers")
	close(release)
	waitFor(t, func() bool { return atomic.LoadInt64(&running) == 0 })
}

func TestRegisterShortensExistingInterval(t *testing.T) {
	s := New(4, time.Second, 0)
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	var runs int64
	run := func(ctx context.Context) { atomic.AddInt64(&runs, 1) }
	s.Register(Target{Key: "check-1", Interval: time.Hour, Run: run})

	ctx := context.Background()
	s.Tick(ctx, base)
	waitFor(t, func() bool { return atomic.LoadInt64(&runs) == 1 })
	waitFor(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.entries["check-1"].inFlight
	})

	// tightening the interval must not wait out the old hour-long schedule
	s.Register(Target{Key: "check-1", Interval: 30 * time.Second, Run: run})
	s.Tick(ctx, base.Add(31*time.Second))
	waitFor(t, func() bool { return atomic.LoadInt64(&runs) == 2 })
}
