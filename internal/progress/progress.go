// Package progress publishes advisory transfer events per relay session.
// Delivery is best effort: a slow subscriber loses intermediate events, but
// every session ends with exactly one terminal event and reported percent
// never decreases.
package progress

import (
	"sync"
	"time"
)

// Stage labels a point in a session's life.
type Stage string

const (
	StageQueued    Stage = "queued"
	StageSourcing  Stage = "sourcing"
	StageRelaying  Stage = "relaying"
	StageCompleted Stage = "completed"
	StageCancelled Stage = "cancelled"
	StageFailed    Stage = "failed"
)

// Terminal reports whether the stage ends a session.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled || s == StageFailed
}

// Event is one advisory progress notification.
type Event struct {
	SessionID string    `json:"session_id"`
	Stage     Stage     `json:"stage"`
	Percent   float64   `json:"percent"`
	Bytes     int64     `json:"bytes"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 16

// Hub fans events out to subscribers keyed by session id.
type Hub struct {
	mu   sync.Mutex
	subs map[string][]chan Event
	now  func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string][]chan Event),
		now:  time.Now,
	}
}

// Subscribe returns a channel of events for the session and a cancel
// function. The channel closes after a terminal event or on cancel.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[sessionID] = append(h.subs[sessionID], ch)
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.drop(sessionID, ch) })
	}
	return ch, cancel
}

func (h *Hub) drop(sessionID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A terminal event may already have removed and closed the channel;
	// only close what is still registered.
	found := false
	kept := h.subs[sessionID][:0]
	for _, c := range h.subs[sessionID] {
		if c == ch {
			found = true
		} else {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(h.subs, sessionID)
	} else {
		h.subs[sessionID] = kept
	}
	if found {
		close(ch)
	}
}

// publish delivers ev without blocking. Intermediate events are dropped
// when a subscriber's buffer is full; a terminal event evicts the oldest
// buffered event instead, so it is always delivered, then the channel
// closes.
func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[ev.SessionID] {
		h.deliver(ch, ev)
	}
	if ev.Stage.Terminal() {
		for _, ch := range h.subs[ev.SessionID] {
			close(ch)
		}
		delete(h.subs, ev.SessionID)
	}
}

func (h *Hub) deliver(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		if !ev.Stage.Terminal() {
			return
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Tracker reports progress for one session. Methods after the terminal
// event are no-ops, so the terminal event is emitted exactly once.
type Tracker struct {
	hub *Hub
	id  string

	mu       sync.Mutex
	bytes    int64
	total    int64
	percent  float64
	terminal bool
}

// Track creates a tracker for a session and emits the queued event.
func (h *Hub) Track(sessionID string) *Tracker {
	t := &Tracker{hub: h, id: sessionID}
	t.emit(StageQueued, "")
	return t
}

// SetTotal records the expected byte count when known; 0 means unknown and
// percent stays at its last value until completion.
func (t *Tracker) SetTotal(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.terminal && n > 0 {
		t.total = n
	}
}

// Stage reports a non-terminal stage change.
func (t *Tracker) Stage(s Stage) {
	if s.Terminal() {
		return
	}
	t.emit(s, "")
}

// Add accumulates transferred bytes and republishes the relaying stage.
func (t *Tracker) Add(n int64) {
	t.mu.Lock()
	if t.terminal {
		t.mu.Unlock()
		return
	}
	t.bytes += n
	if t.total > 0 {
		p := float64(t.bytes) / float64(t.total) * 100
		if p > 100 {
			p = 100
		}
		if p > t.percent {
			t.percent = p
		}
	}
	ev := t.snapshotLocked(StageRelaying, "")
	t.mu.Unlock()
	t.hub.publish(ev)
}

// Finish emits the terminal event: completed for a nil error, cancelled or
// failed otherwise. errMsg must already be client-safe.
func (t *Tracker) Finish(s Stage, errMsg string) {
	if !s.Terminal() {
		s = StageFailed
	}
	t.mu.Lock()
	if t.terminal {
		t.mu.Unlock()
		return
	}
	t.terminal = true
	if s == StageCompleted {
		t.percent = 100
	}
	ev := t.snapshotLocked(s, errMsg)
	t.mu.Unlock()
	t.hub.publish(ev)
}

func (t *Tracker) emit(s Stage, errMsg string) {
	t.mu.Lock()
	if t.terminal {
		t.mu.Unlock()
		return
	}
	ev := t.snapshotLocked(s, errMsg)
	t.mu.Unlock()
	t.hub.publish(ev)
}

func (t *Tracker) snapshotLocked(s Stage, errMsg string) Event {
	return Event{
		SessionID: t.id,
		Stage:     s,
		Percent:   t.percent,
		Bytes:     t.bytes,
		Error:     errMsg,
		Timestamp: t.hub.now(),
	}
}
