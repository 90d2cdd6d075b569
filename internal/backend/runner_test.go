package backend

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mediagate/mediagate/internal/types"
)

func shell(name, script string) Command {
	return Command{Name: name, Binary: "sh", Args: []string{"-c", script}}
}

func TestInvokeCapturesStdout(t *testing.T) {
	r := NewExecRunner(nil, nil)
	out, err := r.Invoke(context.Background(), shell("echo", `printf '{"title":"ok"}'`), 5*time.Second)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if string(out) != `{"title":"ok"}` {
		t.Fatalf("stdout = %q", out)
	}
}

func TestInvokeNonZeroExit(t *testing.T) {
	r := NewExecRunner(nil, nil)
	_, err := r.Invoke(context.Background(), shell("fail", `echo "boom" >&2; exit 3`), 5*time.Second)

	var exit *ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("Invoke() error = %v, want ExitError", err)
	}
	if exit.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", exit.ExitCode)
	}
	if !strings.Contains(exit.Stderr, "boom") {
		t.Errorf("stderr not captured: %q", exit.Stderr)
	}
	if strings.Contains(exit.Summary(), "boom") {
		t.Errorf("Summary() leaks stderr: %q", exit.Summary())
	}
}

func TestInvokeTimeoutKillsProcess(t *testing.T) {
	r := NewExecRunner(nil, nil)
	start := time.Now()
	_, err := r.Invoke(context.Background(), shell("slow", "sleep 30"), 200*time.Millisecond)
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("invocation not killed at deadline, took %s", elapsed)
	}
	if !errors.Is(err, types.ErrBackendTimeout) {
		t.Fatalf("Invoke() error = %v, want ErrBackendTimeout", err)
	}
}

func TestInvokeRejectsMissingTimeout(t *testing.T) {
	r := NewExecRunner(nil, nil)
	if _, err := r.Invoke(context.Background(), shell("echo", "true"), 0); err == nil {
		t.Fatalf("expected error for invocation without timeout")
	}
}

func TestInvokeStdoutOverflow(t *testing.T) {
	r := NewExecRunner(nil, nil)
	r.maxStdout = 1024
	_, err := r.Invoke(context.Background(),
		shell("big", "head -c 1048576 /dev/zero"), 10*time.Second)
	if !errors.Is(err, types.ErrBufferOverflow) {
		t.Fatalf("Invoke() error = %v, want ErrBufferOverflow", err)
	}
}

func TestInvokeCallerCancellation(t *testing.T) {
	r := NewExecRunner(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := r.Invoke(ctx, shell("slow", "sleep 30"), time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Invoke() error = %v, want context.Canceled", err)
	}
}

func TestStartStopReleasesProcess(t *testing.T) {
	r := NewExecRunner(nil, nil)
	p, err := r.Start(context.Background(), shell("stream", "printf begin; sleep 30"))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	buf := make([]byte, 5)
	if _, err := io.ReadFull(p.Stdout, buf); err != nil {
		t.Fatalf("reading stream head: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Stop() did not reap the process within the grace period")
	}
}

func TestStartPipelineConnectsProcesses(t *testing.T) {
	r := NewExecRunner(nil, nil)
	p, err := r.StartPipeline(context.Background(),
		shell("produce", "printf hello"),
		shell("transform", "tr a-z A-Z"))
	if err != nil {
		t.Fatalf("StartPipeline() error = %v", err)
	}
	out, err := io.ReadAll(p.Stdout)
	if err != nil {
		t.Fatalf("reading pipeline output: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if string(out) != "HELLO" {
		t.Fatalf("pipeline output = %q, want HELLO", out)
	}
}
