package scheduler

import (
	"container/heap"
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Target is one schedulable unit of work. Run carries everything it needs
// in its closure; the scheduler knows nothing about checks or hosts.
type Target struct {
	Key      string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context)
}

type entry struct {
	target  Target
	nextRun time.Time
	index   int // heap position, -1 when popped

	inFlight bool
	cancel   context.CancelFunc // set while a run is in flight
	missed   int
}

// Scheduler orders targets in a min-heap by next-run time and dispatches
// due ones onto a bounded worker pool. A target whose previous run is still
// in flight is skipped for the cycle and its missed counter incremented.
type Scheduler struct {
	mu      sync.Mutex
	heap    entryHeap
	entries map[string]*entry

	sem           *semaphore.Weighted
	tick          time.Duration
	jitterPercent int64

	now func() time.Time
	wg  sync.WaitGroup
}

func New(maxWorkers int64, tick time.Duration, jitterPercent int64) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = 50
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		entries:       make(map[string]*entry),
		sem:           semaphore.NewWeighted(maxWorkers),
		tick:          tick,
		jitterPercent: jitterPercent,
		now:           time.Now,
	}
}

// Register adds or replaces a target. The first run is spread by jitter so
// a config reload does not fire every probe in the same second.
func (s *Scheduler) Register(t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[t.Key]; ok {
		old.target = t
		// A shortened interval takes effect on the next tick, not after the
		// old interval has drained.
		next := s.now().Add(t.Interval + s.jitter(t.Interval))
		if next.Before(old.nextRun) {
			old.nextRun = next
			if old.index >= 0 {
				heap.Fix(&s.heap, old.index)
			}
		}
		return
	}
	e := &entry{
		target:  t,
		nextRun: s.now().Add(s.jitter(t.Interval)),
	}
	s.entries[t.Key] = e
	heap.Push(&s.heap, e)
}

// Deregister drops a target and cancels its in-flight run if one exists.
func (s *Scheduler) Deregister(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	if e.index >= 0 {
		heap.Remove(&s.heap, e.index)
	}
	if e.cancel != nil {
		e.cancel()
	}
}

// Missed reports how many cycles the target skipped because its previous
// run was still in flight.
func (s *Scheduler) Missed(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e.missed
	}
	return 0
}

// Len reports how many targets are registered.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run ticks until ctx is cancelled, then waits for in-flight probes.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick dispatches every due target once. Exported so tests can drive the
// scheduler with a logical clock.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.heap.Len() > 0 && !s.heap[0].nextRun.After(now) {
		e := s.heap[0]
		if e.inFlight {
			e.missed++
			e.nextRun = now.Add(e.target.Interval)
			heap.Fix(&s.heap, 0)
			continue
		}
		e.inFlight = true
		e.nextRun = now.Add(e.target.Interval + s.jitter(e.target.Interval))
		heap.Fix(&s.heap, 0)
		s.dispatch(ctx, e)
	}
}

// dispatch runs with s.mu held.
func (s *Scheduler) dispatch(ctx context.Context, e *entry) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.clearInFlight(e)
		if err := s.sem.Acquire(runCtx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)

		if e.target.Timeout > 0 {
			var tcancel context.CancelFunc
			runCtx, tcancel = context.WithTimeout(runCtx, e.target.Timeout)
			defer tcancel()
		}
		defer func() {
			if r := recover(); r != nil {
				log.Println("VIGILO>> scheduler: target", e.target.Key, "panicked:", r)
			}
		}()
		e.target.Run(runCtx)
	}()
}

func (s *Scheduler) clearInFlight(e *entry) {
	s.mu.Lock()
	e.inFlight = false
	e.cancel = nil
	s.mu.Unlock()
}

func (s *Scheduler) jitter(interval time.Duration) time.Duration {
	if s.jitterPercent <= 0 || interval <= 0 {
		return 0
	}
	max := int64(interval) * s.jitterPercent / 100
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(max))
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].nextRun.Before(h[j].nextRun) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
