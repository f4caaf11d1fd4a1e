package evaluator

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Cooldown suppresses repeat alerts of the same kind for the same area. It is
// held in memory only, so a restart may let one duplicate through.
type Cooldown struct {
	period time.Duration
	clock  clockwork.Clock

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown returns a Cooldown with the given period. A zero period never
// suppresses anything.
func NewCooldown(period time.Duration, clock clockwork.Clock) *Cooldown {
	return &Cooldown{period: period, clock: clock, last: make(map[string]time.Time)}
}

// Sendable reports whether period has elapsed since key was last marked
// sent, or key has never been sent.
func (c *Cooldown) Sendable(key string) bool {
	if c.period <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.last[key]
	return !ok || c.clock.Since(t) >= c.period
}

// Sent records that an alert for key was enqueued now.
func (c *Cooldown) Sent(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[key] = c.clock.Now()
}
