package game

import (
	"context"
	"database/sql"
	"log/slog"
	mrand "math/rand"
	"sync/atomic"
	"time"

	"github.com/onnwee/pokecatch/db"
)

// Scheduler drives the spawn loop: sleep a uniformly random delay, create a
// spawn if none is active, broadcast the announcement, repeat until the
// context is cancelled. Errors are logged and the loop continues; a flaky
// database must not kill spawning for the rest of the stream.
type Scheduler struct {
	engine    *Engine
	dbx       *sql.DB
	broadcast func(string)

	minInterval time.Duration
	maxInterval time.Duration
	rng         *mrand.Rand

	running atomic.Bool
}

// NewScheduler wires a scheduler. broadcast receives the spawn announcement
// line (typically the outbound queue's Enqueue). A nil rng falls back to the
// engine's picker source via time seeding.
func NewScheduler(engine *Engine, dbx *sql.DB, broadcast func(string), min, max time.Duration, rng *mrand.Rand) *Scheduler {
	if min <= 0 {
		min = 3 * time.Minute
	}
	if max < min {
		max = min
	}
	if rng == nil {
		rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
	}
	return &Scheduler{
		engine:      engine,
		dbx:         dbx,
		broadcast:   broadcast,
		minInterval: min,
		maxInterval: max,
		rng:         rng,
	}
}

// nextDelay draws uniformly from [minInterval, maxInterval].
func (s *Scheduler) nextDelay() time.Duration {
	span := s.maxInterval - s.minInterval
	if span <= 0 {
		return s.minInterval
	}
	return s.minInterval + time.Duration(s.rng.Int63n(int64(span)+1))
}

// Start runs the spawn loop until ctx is done. Calling Start on an already
// running scheduler is a no-op, so a double-wired main can't spawn twice as
// fast.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("spawn scheduler already running, ignoring second start")
		return
	}
	go func() {
		defer s.running.Store(false)
		slog.Info("spawn scheduler started",
			slog.Duration("min_interval", s.minInterval),
			slog.Duration("max_interval", s.maxInterval))
		for {
			delay := s.nextDelay()
			select {
			case <-ctx.Done():
				slog.Info("spawn scheduler stopped")
				return
			case <-time.After(delay):
			}
			s.tick(ctx)
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db.Heartbeat(tickCtx, s.dbx, "spawn_scheduler")

	spawn, err := s.engine.SpawnOnce(tickCtx, nil)
	if err != nil {
		slog.Error("spawn tick failed", slog.String("err", err.Error()))
		return
	}
	if spawn == nil {
		// Previous spawn still up; the next tick will try again.
		slog.Debug("spawn tick skipped, spawn still active")
		return
	}
	if s.broadcast != nil {
		s.broadcast(AnnounceSpawn(spawn))
	}
}
