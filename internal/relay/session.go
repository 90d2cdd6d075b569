package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mediagate/mediagate/internal/progress"
	"github.com/mediagate/mediagate/internal/types"
)

// State is a session's position in its lifecycle. Transitions only move
// forward; the three terminal states are absorbing.
type State int

const (
	StateIdle State = iota
	StateSourcing
	StateRelaying
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSourcing:
		return "sourcing"
	case StateRelaying:
		return "relaying"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

const copyBuffer = 64 << 10

// Session relays one source to one client writer. Create with NewSession,
// drive with Run; a session is single use.
type Session struct {
	ID string

	source  Source
	tracker *progress.Tracker
	log     *logrus.Logger

	mu    sync.Mutex
	state State
	bytes int64

	teardown    sync.Once
	teardownErr error
}

// NewSession builds a session around source. hub may be nil to disable
// progress reporting; log may be nil for the standard logger.
func NewSession(source Source, hub *progress.Hub, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Session{
		ID:     uuid.NewString(),
		source: source,
		state:  StateIdle,
		log:    log,
	}
	if hub != nil {
		s.tracker = hub.Track(s.ID)
	}
	return s
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BytesRelayed reports how many bytes reached the client writer.
func (s *Session) BytesRelayed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Run relays the source into w until the source is drained, the client
// disconnects, or the source fails. The source is torn down before Run
// returns, on every path.
func (s *Session) Run(ctx context.Context, w io.Writer) error {
	// Teardown first (defers run in reverse): diagnostics read stderr,
	// which is only complete once the source is reaped.
	defer s.logSourceFailure()
	defer s.closeSource()

	s.transition(StateSourcing, progress.StageSourcing)
	rc, err := s.source.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.finish(StateCancelled, types.ErrStreamCancelled)
		}
		return s.finish(StateFailed, err)
	}

	if s.tracker != nil {
		if sized, ok := s.source.(interface{ ContentLength() int64 }); ok {
			s.tracker.SetTotal(sized.ContentLength())
		}
	}

	s.transition(StateRelaying, progress.StageRelaying)
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, copyBuffer)

	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				// The client went away; the deferred teardown kills the source.
				return s.finish(StateCancelled, fmt.Errorf("%w: %v", types.ErrStreamCancelled, werr))
			}
			s.addBytes(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			return s.finish(StateCompleted, nil)
		case ctx.Err() != nil:
			return s.finish(StateCancelled, types.ErrStreamCancelled)
		default:
			return s.finish(StateFailed, rerr)
		}
	}
}

func (s *Session) addBytes(n int) {
	s.mu.Lock()
	s.bytes += int64(n)
	s.mu.Unlock()
	if s.tracker != nil {
		s.tracker.Add(int64(n))
	}
}

func (s *Session) transition(st State, stage progress.Stage) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.tracker != nil {
		s.tracker.Stage(stage)
	}
}

// finish records the terminal state, emits the terminal progress event and
// returns err unchanged.
func (s *Session) finish(st State, err error) error {
	s.mu.Lock()
	s.state = st
	bytes := s.bytes
	s.mu.Unlock()

	stage, msg := terminalStage(st, err)
	if s.tracker != nil {
		s.tracker.Finish(stage, msg)
	}
	entry := s.log.WithFields(logrus.Fields{
		"session": s.ID,
		"state":   st.String(),
		"bytes":   bytes,
	})
	if err != nil {
		entry = entry.WithField("error", err.Error())
	}
	entry.Info("relay session ended")
	return err
}

func terminalStage(st State, err error) (progress.Stage, string) {
	switch st {
	case StateCompleted:
		return progress.StageCompleted, ""
	case StateCancelled:
		return progress.StageCancelled, ""
	default:
		msg := "source failed"
		if errors.Is(err, types.ErrUpstreamFetch) {
			msg = "upstream fetch failed"
		}
		return progress.StageFailed, msg
	}
}

// closeSource tears the source down exactly once.
func (s *Session) closeSource() error {
	s.teardown.Do(func() {
		s.teardownErr = s.source.Close()
	})
	return s.teardownErr
}

// logSourceFailure records the source's stderr after a failed session.
// Only meaningful once the source has been torn down.
func (s *Session) logSourceFailure() {
	if s.State() != StateFailed {
		return
	}
	d, ok := s.source.(interface{ StderrTail() string })
	if !ok {
		return
	}
	if tail := d.StderrTail(); tail != "" {
		s.log.WithFields(logrus.Fields{
			"session": s.ID,
			"stderr":  tail,
		}).Warn("relay source stderr")
	}
}
