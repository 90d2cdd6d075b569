package orchestrator

import (
	"errors"
	"fmt"

	"github.com/mediagate/mediagate/internal/backend"
	"github.com/mediagate/mediagate/internal/types"
)

// AttemptError captures one failed backend attempt.
type AttemptError struct {
	Backend string
	Err     error
}

// Reason is the client-safe classification of the failure. Raw stderr
// never appears here; it lives in logs only.
func (a AttemptError) Reason() string {
	var exit *backend.ExitError
	switch {
	case errors.Is(a.Err, types.ErrBackendTimeout):
		return "timeout"
	case errors.Is(a.Err, types.ErrBufferOverflow):
		return "output too large"
	case errors.Is(a.Err, types.ErrParseFailure):
		return "unparseable output"
	case errors.As(a.Err, &exit):
		return exit.Summary()
	default:
		return "invocation failed"
	}
}

// AllBackendsFailedError is returned when every strategy in the fallback
// chain failed. It carries each attempt for logging and summarized
// reporting.
type AllBackendsFailedError struct {
	Attempts []AttemptError
}

func (e *AllBackendsFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all backends failed"
	}
	return fmt.Sprintf("all backends failed: %d attempt(s)", len(e.Attempts))
}

// Summary lists one client-safe reason per attempt, in chain order.
func (e *AllBackendsFailedError) Summary() []string {
	out := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		out = append(out, a.Backend+": "+a.Reason())
	}
	return out
}

// HasParseFailure reports whether any attempt produced unparseable output
// while otherwise succeeding, which callers surface as a processing error
// rather than an extraction error.
func (e *AllBackendsFailedError) HasParseFailure() bool {
	for _, a := range e.Attempts {
		if errors.Is(a.Err, types.ErrParseFailure) {
			return true
		}
	}
	return false
}
