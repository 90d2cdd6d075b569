package backend

import (
	"fmt"
	"time"

	"github.com/mediagate/mediagate/internal/types"
)

// ExitError reports a backend process that ran to completion with a
// non-zero status. Stderr is retained for logs only; callers summarizing
// failures for clients must use Summary.
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.ExitCode, e.Stderr)
}

// Summary is the client-safe cause, with no process stderr.
func (e *ExitError) Summary() string {
	return fmt.Sprintf("exit status %d", e.ExitCode)
}

// TimeoutError reports an invocation killed at its wall-clock deadline.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s killed after %s", e.Name, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return types.ErrBackendTimeout }

// OverflowError reports stdout growth past the adapter's buffer cap. The
// process is killed rather than silently truncated.
type OverflowError struct {
	Name  string
	Limit int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s produced more than %d bytes of output", e.Name, e.Limit)
}

func (e *OverflowError) Unwrap() error { return types.ErrBufferOverflow }
