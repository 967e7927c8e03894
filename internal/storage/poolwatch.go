package storage

import (
	"context"
	"database/sql"
	"time"
)

// PoolPressure summarizes a window in which callers kept waiting for a
// pooled connection.
type PoolPressure struct {
	SlowTicks   int
	CrowdTicks  int
	MaxOpen     int
	WindowTicks int
}

// poolWatcher samples sql.DBStats once per tick and reports pressure when a
// third of the window either waited a full tick or had more than two
// callers queued. Reports are throttled to one per quiet period.
type poolWatcher struct {
	stats  func() sql.DBStats
	report func(PoolPressure)
	tick   time.Duration
	quiet  time.Duration

	last       sql.DBStats
	lastReport time.Time
	ticks      int
	waited     []time.Duration
	queued     []int64
}

func newPoolWatcher(stats func() sql.DBStats, report func(PoolPressure), tick, window time.Duration) *poolWatcher {
	n := int(window / tick)
	if n < 1 {
		n = 1
	}
	return &poolWatcher{
		stats:  stats,
		report: report,
		tick:   tick,
		quiet:  time.Hour,
		last:   stats(),
		waited: make([]time.Duration, n),
		queued: make([]int64, n),
	}
}

func (w *poolWatcher) run(ctx context.Context) {
	t := time.NewTicker(w.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.sample(time.Now())
		}
	}
}

func (w *poolWatcher) sample(now time.Time) {
	cur := w.stats()
	slot := w.ticks % len(w.waited)
	w.waited[slot] = cur.WaitDuration - w.last.WaitDuration
	w.queued[slot] = cur.WaitCount - w.last.WaitCount
	w.last = cur
	w.ticks++

	if w.ticks < len(w.waited) {
		return
	}

	p := PoolPressure{MaxOpen: cur.MaxOpenConnections, WindowTicks: len(w.waited)}
	for i := range w.waited {
		if w.waited[i] >= w.tick {
			p.SlowTicks++
		}
		if w.queued[i] > 2 {
			p.CrowdTicks++
		}
	}

	threshold := len(w.waited) / 3
	if p.SlowTicks < threshold && p.CrowdTicks < threshold {
		return
	}
	if !w.lastReport.IsZero() && now.Sub(w.lastReport) < w.quiet {
		return
	}
	w.lastReport = now
	w.report(p)
}
