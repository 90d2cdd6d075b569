package admission

import (
	"testing"
	"time"
)

func TestGateAdmitsExactlyMaxPerWindow(t *testing.T) {
	g := NewGate(15*time.Minute, 100)
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }

	for i := 0; i < 100; i++ {
		if d := g.Allow("1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d rejected, want admitted", i+1)
		}
		clock = clock.Add(time.Second)
	}

	d := g.Allow("1.2.3.4")
	if d.Allowed {
		t.Fatalf("request max+1 admitted, want rejected")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("rejection carries no retry-after hint: %v", d.RetryAfter)
	}
}

func TestGateWindowSlides(t *testing.T) {
	g := NewGate(time.Minute, 2)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }

	if !g.Allow("c").Allowed || !g.Allow("c").Allowed {
		t.Fatalf("first two requests should pass")
	}
	if g.Allow("c").Allowed {
		t.Fatalf("third request within window should be rejected")
	}

	// Once the first stamp leaves the window, one slot frees up.
	clock = clock.Add(61 * time.Second)
	if !g.Allow("c").Allowed {
		t.Fatalf("request after window slide should be admitted")
	}
}

func TestGateIdentitiesAreIndependent(t *testing.T) {
	g := NewGate(time.Minute, 1)
	clock := time.Now()
	g.now = func() time.Time { return clock }

	if !g.Allow("a").Allowed {
		t.Fatalf("first request for a rejected")
	}
	if !g.Allow("b").Allowed {
		t.Fatalf("quota leaked across identities")
	}
	if g.Allow("a").Allowed {
		t.Fatalf("second request for a admitted")
	}
}

func TestGateRetryAfterMatchesOldestStamp(t *testing.T) {
	g := NewGate(time.Minute, 1)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }

	g.Allow("c")
	clock = clock.Add(20 * time.Second)

	d := g.Allow("c")
	if d.Allowed {
		t.Fatalf("expected rejection")
	}
	if d.RetryAfter != 40*time.Second {
		t.Fatalf("RetryAfter = %v, want 40s", d.RetryAfter)
	}
}

func TestGateSweepDropsIdleIdentities(t *testing.T) {
	g := NewGate(time.Minute, 5)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return clock }

	g.Allow("idle")
	g.Allow("busy")

	clock = clock.Add(2 * time.Minute)
	g.Allow("busy")
	g.Sweep()

	g.mu.Lock()
	_, idleKept := g.stamps["idle"]
	_, busyKept := g.stamps["busy"]
	g.mu.Unlock()

	if idleKept {
		t.Fatalf("idle identity not swept")
	}
	if !busyKept {
		t.Fatalf("active identity swept")
	}
}
