// Package engine schedules virtual users. Each VU is a goroutine with a
// stable id that runs iterations back to back while it is active.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const defaultTick = 200 * time.Millisecond

// VU identifies the virtual user running an iteration.
type VU struct {
	ID int
	// Iteration counts this VU's iterations, starting at 0.
	Iteration int
}

// IterationFunc runs one iteration. It must return promptly once ctx is done.
type IterationFunc func(ctx context.Context, vu VU)

// Stats summarizes a finished run.
type Stats struct {
	Started    time.Time
	Finished   time.Time
	Iterations int64
	Failed     int64
	PeakVUs    int
}

// Engine runs an IterationFunc under a Profile.
type Engine struct {
	Profile Profile
	Iterate IterationFunc
	Metrics metrics.Sink
	// Tick is how often a staged profile re-evaluates its target.
	Tick time.Duration

	active     atomic.Int64
	iterations atomic.Int64
	failed     atomic.Int64
}

type slot struct {
	id      int
	active  atomic.Bool
	started bool
	wake    chan struct{}
}

// Active returns the number of VUs currently scheduled.
func (e *Engine) Active() int {
	return int(e.active.Load())
}

// Iterations returns the number of finished iterations so far.
func (e *Engine) Iterations() int64 {
	return e.iterations.Load()
}

// Run blocks until the profile has elapsed and every VU has stopped. When
// the schedule ends, running iterations get the profile's graceful stop
// before their context is cancelled. Cancelling ctx stops everything
// immediately.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	if err := e.Profile.Validate(); err != nil {
		return Stats{}, err
	}
	if e.Iterate == nil {
		return Stats{}, fmt.Errorf("engine has no iteration function")
	}
	sink := e.Metrics
	if sink == nil {
		sink = metrics.Discard
	}

	iterCtx, cancelIter := context.WithCancel(ctx)
	defer cancelIter()
	runCtx, cancelRun := context.WithCancel(iterCtx)
	defer cancelRun()

	stats := Stats{Started: time.Now()}
	slots := make([]*slot, e.Profile.MaxVUs())
	for i := range slots {
		slots[i] = &slot{id: i + 1, wake: make(chan struct{}, 1)}
	}

	var g errgroup.Group
	var mu sync.Mutex
	scale := func(target int) {
		mu.Lock()
		defer mu.Unlock()
		current := int(e.active.Load())
		if target == current {
			return
		}
		for _, s := range slots {
			want := s.id <= target
			if s.active.Load() == want {
				continue
			}
			s.active.Store(want)
			if !want {
				continue
			}
			if !s.started {
				s.started = true
				s := s
				g.Go(func() error {
					e.loop(runCtx, iterCtx, s, sink)
					return nil
				})
				continue
			}
			select {
			case s.wake <- struct{}{}:
			default:
			}
		}
		e.active.Store(int64(target))
		if target > stats.PeakVUs {
			stats.PeakVUs = target
		}
		sink.Add(metrics.VUs, float64(target))
	}

	internal.LogInfo("Starting %s", e.Profile)
	e.schedule(runCtx, scale)
	cancelRun()
	scale(0)

	grace := time.AfterFunc(e.Profile.gracefulStop(), cancelIter)
	_ = g.Wait()
	if !grace.Stop() {
		internal.LogWarn("Graceful stop of %s elapsed; in-flight iterations were interrupted", e.Profile.gracefulStop())
	}

	stats.Finished = time.Now()
	stats.Iterations = e.iterations.Load()
	stats.Failed = e.failed.Load()
	return stats, ctx.Err()
}

// schedule drives scale until the profile ends or ctx is cancelled.
func (e *Engine) schedule(ctx context.Context, scale func(int)) {
	total := e.Profile.TotalDuration()
	start := time.Now()
	deadline := time.NewTimer(total)
	defer deadline.Stop()

	if len(e.Profile.Stages) == 0 {
		scale(e.Profile.VUs)
		select {
		case <-ctx.Done():
		case <-deadline.C:
		}
		return
	}

	tick := e.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	scale(e.Profile.TargetAt(0))
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			scale(e.Profile.TargetAt(time.Since(start)))
		}
	}
}

// loop runs iterations for one VU until the run ends. An inactive VU parks
// until it is woken or the run ends.
func (e *Engine) loop(runCtx, iterCtx context.Context, s *slot, sink metrics.Sink) {
	vu := VU{ID: s.id}
	for {
		if runCtx.Err() != nil {
			return
		}
		if !s.active.Load() {
			select {
			case <-s.wake:
			case <-runCtx.Done():
				return
			}
			continue
		}
		e.iterate(iterCtx, vu, sink)
		vu.Iteration++
	}
}

func (e *Engine) iterate(ctx context.Context, vu VU, sink metrics.Sink) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			sink.Add(metrics.FailedIterations, 1)
			internal.LogError("VU %d iteration %d panicked: %v\n%s", vu.ID, vu.Iteration, r, debug.Stack())
		}
		e.iterations.Add(1)
		sink.Add(metrics.Iterations, 1)
		sink.Add(metrics.IterationDuration, metrics.Millis(time.Since(start)))
	}()
	e.Iterate(ctx, vu)
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter
// case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Jitter returns a random duration in [base*(1-variance), base*(1+variance)].
func Jitter(base time.Duration, variance float64) time.Duration {
	if variance <= 0 || base <= 0 {
		return base
	}
	if variance > 1 {
		variance = 1
	}
	factor := 1 - variance + rand.Float64()*2*variance
	return time.Duration(float64(base) * factor)
}
