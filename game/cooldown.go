package game

import (
	"sync"
	"time"
)

// Clock lets tests control time.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// CooldownTable rate-limits catch attempts per participant. State is in-memory
// only and resets on restart; it limits attempt frequency, not correctness.
type CooldownTable struct {
	mu   sync.Mutex
	last map[string]time.Time
	ttl  time.Duration
	clk  Clock
}

// NewCooldownTable builds a table with the given per-user cooldown.
func NewCooldownTable(ttl time.Duration, clk Clock) *CooldownTable {
	if clk == nil {
		clk = RealClock{}
	}
	return &CooldownTable{
		last: make(map[string]time.Time),
		ttl:  ttl,
		clk:  clk,
	}
}

// Try records an attempt for the user and reports whether it is allowed.
// The attempt timestamp is refreshed even when the attempt is rejected:
// hammering the command keeps pushing the cooldown out.
func (c *CooldownTable) Try(username string) (bool, time.Duration) {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, seen := c.last[username]
	c.last[username] = now
	if seen {
		if elapsed := now.Sub(prev); elapsed < c.ttl {
			return false, c.ttl - elapsed
		}
	}
	return true, 0
}

// Reset clears the user's cooldown (admin/testing convenience).
func (c *CooldownTable) Reset(username string) {
	c.mu.Lock()
	delete(c.last, username)
	c.mu.Unlock()
}
