// Package admission implements the per-client request quota: a sliding
// time-window counter that hard-rejects once the quota is exceeded. It
// exists to bound the number of external processes a single client can
// cause the gateway to spawn.
package admission

import (
	"sync"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// RetryAfter hints when the oldest counted request leaves the window.
	// Only set on rejection.
	RetryAfter time.Duration
}

// Gate counts requests per client identity over a sliding window.
// Rejection is immediate; nothing is queued or delayed.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	stamps map[string][]time.Time
	now    func() time.Time
}

// NewGate builds a gate admitting at most max requests per identity within
// any window of the given length.
func NewGate(window time.Duration, max int) *Gate {
	return &Gate{
		window: window,
		max:    max,
		stamps: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records and admits the request unless the identity's quota within
// the current window is already spent.
func (g *Gate) Allow(identity string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cutoff := now.Add(-g.window)

	kept := g.stamps[identity][:0]
	for _, s := range g.stamps[identity] {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}

	if len(kept) >= g.max {
		g.stamps[identity] = kept
		return Decision{
			Allowed:    false,
			RetryAfter: kept[0].Add(g.window).Sub(now),
		}
	}

	g.stamps[identity] = append(kept, now)
	return Decision{Allowed: true}
}

// Sweep drops identities whose every stamp has left the window. Called
// periodically so idle clients do not accumulate state.
func (g *Gate) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-g.window)
	for id, stamps := range g.stamps {
		live := false
		for _, s := range stamps {
			if s.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(g.stamps, id)
		}
	}
}
