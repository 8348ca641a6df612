package game

import (
	"context"
	mrand "math/rand"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSchedulerDelayBounds(t *testing.T) {
	s := NewScheduler(nil, nil, nil, 3*time.Minute, 10*time.Minute, mrand.New(mrand.NewSource(5)))
	for i := 0; i < 10000; i++ {
		d := s.nextDelay()
		if d < 3*time.Minute || d > 10*time.Minute {
			t.Fatalf("delay %v outside [3m, 10m]", d)
		}
	}
}

func TestSchedulerDelayFixedWhenEqualBounds(t *testing.T) {
	s := NewScheduler(nil, nil, nil, 5*time.Minute, 5*time.Minute, mrand.New(mrand.NewSource(5)))
	if d := s.nextDelay(); d != 5*time.Minute {
		t.Errorf("delay = %v, want exactly 5m", d)
	}
}

func TestSchedulerMaxClampedToMin(t *testing.T) {
	s := NewScheduler(nil, nil, nil, 4*time.Minute, time.Minute, mrand.New(mrand.NewSource(5)))
	if s.maxInterval != 4*time.Minute {
		t.Errorf("max = %v, want clamped to min 4m", s.maxInterval)
	}
}

func TestSchedulerSpawnsAndBroadcasts(t *testing.T) {
	eng, dbx := newTestEngine(t, Options{})

	var mu sync.Mutex
	var lines []string
	broadcast := func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}

	s := NewScheduler(eng, dbx, broadcast, 10*time.Millisecond, 20*time.Millisecond, mrand.New(mrand.NewSource(1)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Start(ctx) // second start must be a no-op

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(lines)
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never broadcast a spawn")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(lines[0], "appeared!") {
		t.Errorf("broadcast = %q, want a spawn announcement", lines[0])
	}

	active, err := eng.ActiveSpawn(context.Background())
	if err != nil {
		t.Fatalf("ActiveSpawn: %v", err)
	}
	if active == nil {
		t.Fatal("a spawn should be active after the scheduler ticked")
	}
}
