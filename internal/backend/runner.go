package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxStdout caps captured process output. Exceeding it is an
	// OverflowError, never a silent truncation.
	DefaultMaxStdout = 8 << 20
	maxStderr        = 64 << 10
	defaultGrace     = 5 * time.Second
)

// Runner is the extraction backend adapter contract. Fakes replace it in
// tests; ExecRunner is the real implementation.
type Runner interface {
	// Invoke runs one process to completion under the given timeout and
	// returns its full stdout.
	Invoke(ctx context.Context, cmd Command, timeout time.Duration) ([]byte, error)

	// Start launches a process whose stdout is consumed incrementally.
	// The process dies when ctx is cancelled or Stop is called.
	Start(ctx context.Context, cmd Command) (*Process, error)

	// StartPipeline launches source piped into sink and exposes the
	// sink's stdout. Used for the Convert terminal step.
	StartPipeline(ctx context.Context, source, sink Command) (*Process, error)
}

// ExecRunner spawns real processes. A shared rate limiter throttles spawn
// frequency across all callers, on top of the per-client admission gate.
type ExecRunner struct {
	limiter   *rate.Limiter
	maxStdout int
	grace     time.Duration
	log       *logrus.Logger
}

// NewExecRunner builds a runner. spawnLimit may be nil to disable the
// global throttle; log may be nil to use the standard logger.
func NewExecRunner(spawnLimit *rate.Limiter, log *logrus.Logger) *ExecRunner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ExecRunner{
		limiter:   spawnLimit,
		maxStdout: DefaultMaxStdout,
		grace:     defaultGrace,
		log:       log,
	}
}

func (r *ExecRunner) Invoke(ctx context.Context, cmd Command, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%s: invocation without timeout", cmd.Name)
	}
	if err := r.waitSpawn(ctx); err != nil {
		return nil, err
	}

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ictx, cmd.Binary, cmd.Args...)
	c.WaitDelay = r.grace

	stdout := &cappedBuffer{max: r.maxStdout, onOverflow: cancel}
	stderr := &cappedBuffer{max: maxStderr}
	c.Stdout = stdout
	c.Stderr = stderr

	r.log.WithFields(logrus.Fields{
		"backend": cmd.Name,
		"binary":  cmd.Binary,
		"timeout": timeout.String(),
	}).Debug("invoking extraction backend")

	err := c.Run()
	switch {
	case stdout.overflowed:
		return nil, &OverflowError{Name: cmd.Name, Limit: r.maxStdout}
	case errors.Is(ictx.Err(), context.DeadlineExceeded):
		return nil, &TimeoutError{Name: cmd.Name, Timeout: timeout}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			return nil, &ExitError{Name: cmd.Name, ExitCode: exit.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return stdout.Bytes(), nil
}

func (r *ExecRunner) Start(ctx context.Context, cmd Command) (*Process, error) {
	if err := r.waitSpawn(ctx); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	c := exec.CommandContext(pctx, cmd.Binary, cmd.Args...)
	c.WaitDelay = r.grace

	stderr := &cappedBuffer{max: maxStderr}
	c.Stderr = stderr

	stdout, err := c.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}
	if err := c.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	r.log.WithFields(logrus.Fields{
		"backend": cmd.Name,
		"binary":  cmd.Binary,
	}).Debug("started streaming backend")

	return &Process{
		Name:    cmd.Name,
		Stdout:  stdout,
		cmds:    []*exec.Cmd{c},
		cancel:  cancel,
		stderrs: []*cappedBuffer{stderr},
	}, nil
}

func (r *ExecRunner) StartPipeline(ctx context.Context, source, sink Command) (*Process, error) {
	if err := r.waitSpawn(ctx); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	src := exec.CommandContext(pctx, source.Binary, source.Args...)
	snk := exec.CommandContext(pctx, sink.Binary, sink.Args...)
	src.WaitDelay = r.grace
	snk.WaitDelay = r.grace

	// Separate buffers: the two processes write stderr concurrently.
	srcErr := &cappedBuffer{max: maxStderr}
	snkErr := &cappedBuffer{max: maxStderr}
	src.Stderr = srcErr
	snk.Stderr = snkErr

	pipe, err := src.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", source.Name, err)
	}
	snk.Stdin = pipe

	stdout, err := snk.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", sink.Name, err)
	}

	if err := src.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", source.Name, err)
	}
	if err := snk.Start(); err != nil {
		cancel()
		_ = src.Wait()
		return nil, fmt.Errorf("%s: %w", sink.Name, err)
	}

	name := source.Name + "|" + sink.Name
	r.log.WithField("pipeline", name).Debug("started conversion pipeline")

	return &Process{
		Name:    name,
		Stdout:  stdout,
		cmds:    []*exec.Cmd{src, snk},
		cancel:  cancel,
		stderrs: []*cappedBuffer{srcErr, snkErr},
	}, nil
}

func (r *ExecRunner) waitSpawn(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Process is a running streaming invocation. Destroying it always releases
// the underlying process(es): Stop cancels, kills past the grace period,
// and reaps.
type Process struct {
	Name   string
	Stdout io.ReadCloser

	cmds     []*exec.Cmd
	cancel   context.CancelFunc
	stderrs  []*cappedBuffer
	waitOnce sync.Once
	waitErr  error
}

// Wait reaps the process(es) after stdout is drained.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		for _, c := range p.cmds {
			if err := c.Wait(); err != nil && p.waitErr == nil {
				p.waitErr = err
			}
		}
		p.cancel()
	})
	return p.waitErr
}

// Stop terminates the process(es) and reaps them. Safe to call multiple
// times and after Wait.
func (p *Process) Stop() error {
	p.cancel()
	return p.Wait()
}

// StderrTail returns captured stderr for diagnostics. Only call after the
// process has been reaped.
func (p *Process) StderrTail() string {
	var parts []string
	for _, b := range p.stderrs {
		if s := b.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// cappedBuffer is a bytes.Buffer that refuses growth past max. onOverflow,
// when set, is invoked once so the producing process gets killed instead
// of blocking or truncating.
type cappedBuffer struct {
	buf        bytes.Buffer
	max        int
	overflowed bool
	onOverflow func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len()+len(p) > b.max {
		if !b.overflowed {
			b.overflowed = true
			if b.onOverflow != nil {
				b.onOverflow()
			}
		}
		return 0, errors.New("output buffer limit reached")
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) String() string { return b.buf.String() }
