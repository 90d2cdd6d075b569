// Package orchestrator walks the ordered backend chain until one strategy
// yields a usable result. Attempts are strictly sequential; a success stops
// the chain immediately and failures of earlier strategies are invisible to
// the caller except in logs and the aggregate failure report.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mediagate/mediagate/internal/backend"
	"github.com/mediagate/mediagate/internal/cache"
	"github.com/mediagate/mediagate/internal/formats"
	"github.com/mediagate/mediagate/internal/types"
)

const (
	defaultAttemptTimeout = 30 * time.Second
	versionProbeTimeout   = 10 * time.Second
)

// CredentialSource supplies the cookie blob path for a platform, or "" for
// anonymous access. Satisfied by credentials.Store.
type CredentialSource interface {
	CookiePath(ctx context.Context, platform string) string
}

// Orchestrator coordinates the fallback chain, the result cache and the
// credential store for one class of extraction operations.
type Orchestrator struct {
	runner  backend.Runner
	chain   []backend.CommandTemplate
	creds   CredentialSource
	store   cache.Store
	timeout time.Duration
	log     *logrus.Logger
}

// New builds an orchestrator. chain may be nil to use the default fallback
// order; creds and store may be nil to disable credentials and caching.
func New(runner backend.Runner, chain []backend.CommandTemplate, creds CredentialSource, store cache.Store, attemptTimeout time.Duration, log *logrus.Logger) *Orchestrator {
	if len(chain) == 0 {
		chain = backend.DefaultChain()
	}
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{
		runner:  runner,
		chain:   chain,
		creds:   creds,
		store:   store,
		timeout: attemptTimeout,
		log:     log,
	}
}

// Metadata extracts the full metadata document for req, consulting the
// cache first. A backend whose output cannot be normalized counts as a
// failed attempt and the chain continues.
func (o *Orchestrator) Metadata(ctx context.Context, req types.ExtractionRequest) (*types.VideoMetadata, error) {
	key := cache.Fingerprint(req)
	if o.store != nil {
		if blob, ok := o.store.Get(ctx, key); ok {
			var meta types.VideoMetadata
			if err := json.Unmarshal(blob, &meta); err == nil {
				o.log.WithField("key", key).Debug("metadata served from cache")
				return &meta, nil
			}
		}
	}

	var meta *types.VideoMetadata
	err := o.run(ctx, req, func(stdout []byte) error {
		m, err := formats.Normalize(stdout, req.URL.Platform)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	if o.store != nil {
		if blob, err := json.Marshal(meta); err == nil {
			o.store.Put(ctx, key, blob)
		}
	}
	return meta, nil
}

// Resolve extracts a single direct media URL for req. The resolved URL is
// time-limited upstream, so cache hits inherit whatever lifetime the cache
// grants them.
func (o *Orchestrator) Resolve(ctx context.Context, req types.ExtractionRequest) (string, error) {
	key := cache.Fingerprint(req)
	if o.store != nil {
		if blob, ok := o.store.Get(ctx, key); ok {
			o.log.WithField("key", key).Debug("resolved URL served from cache")
			return string(blob), nil
		}
	}

	var resolved string
	err := o.run(ctx, req, func(stdout []byte) error {
		u, err := parseResolvedURL(stdout)
		if err != nil {
			return err
		}
		resolved = u
		return nil
	})
	if err != nil {
		return "", err
	}

	if o.store != nil {
		o.store.Put(ctx, key, []byte(resolved))
	}
	return resolved, nil
}

// StartStream launches the first backend in the chain that starts
// successfully, emitting media bytes on the returned process's stdout. The
// caller owns the process and must reap it.
func (o *Orchestrator) StartStream(ctx context.Context, req types.ExtractionRequest) (*backend.Process, error) {
	cookiePath := o.cookiePath(ctx, req)
	attempts := make([]AttemptError, 0, len(o.chain))

	for _, t := range o.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmd, err := t.Build(req, cookiePath)
		if err != nil {
			return nil, err
		}
		p, err := o.runner.Start(ctx, cmd)
		if err == nil {
			return p, nil
		}
		o.logAttempt(cmd.Name, req, err)
		attempts = append(attempts, AttemptError{Backend: cmd.Name, Err: err})
	}
	return nil, &AllBackendsFailedError{Attempts: attempts}
}

// StartConversion launches a backend piped into the encoder for target.
// The returned process's stdout carries the converted container.
func (o *Orchestrator) StartConversion(ctx context.Context, req types.ExtractionRequest, target string) (*backend.Process, error) {
	sink, err := backend.EncoderCommand(target)
	if err != nil {
		return nil, err
	}

	cookiePath := o.cookiePath(ctx, req)
	attempts := make([]AttemptError, 0, len(o.chain))

	for _, t := range o.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := t.Build(req, cookiePath)
		if err != nil {
			return nil, err
		}
		p, err := o.runner.StartPipeline(ctx, src, sink)
		if err == nil {
			return p, nil
		}
		o.logAttempt(src.Name, req, err)
		attempts = append(attempts, AttemptError{Backend: src.Name, Err: err})
	}
	return nil, &AllBackendsFailedError{Attempts: attempts}
}

// Version reports the primary backend's version string, for health checks.
func (o *Orchestrator) Version(ctx context.Context) (string, error) {
	out, err := o.runner.Invoke(ctx, backend.VersionCommand(o.chain[0]), versionProbeTimeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// run walks the chain, invoking each strategy in order and handing its
// stdout to accept. accept errors count as attempt failures.
func (o *Orchestrator) run(ctx context.Context, req types.ExtractionRequest, accept func(stdout []byte) error) error {
	cookiePath := o.cookiePath(ctx, req)
	attempts := make([]AttemptError, 0, len(o.chain))

	for _, t := range o.chain {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := t.Build(req, cookiePath)
		if err != nil {
			// A rejected format selector fails the request, not the attempt.
			return err
		}

		stdout, err := o.runner.Invoke(ctx, cmd, o.timeout)
		if err == nil {
			if err = accept(stdout); err == nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logAttempt(cmd.Name, req, err)
		attempts = append(attempts, AttemptError{Backend: cmd.Name, Err: err})
	}
	return &AllBackendsFailedError{Attempts: attempts}
}

func (o *Orchestrator) cookiePath(ctx context.Context, req types.ExtractionRequest) string {
	if o.creds == nil {
		return ""
	}
	return o.creds.CookiePath(ctx, req.URL.Platform)
}

func (o *Orchestrator) logAttempt(name string, req types.ExtractionRequest, err error) {
	o.log.WithFields(logrus.Fields{
		"backend":   name,
		"operation": req.Operation.String(),
		"url":       req.URL.Normalized,
		"error":     err.Error(),
	}).Warn("backend attempt failed")
}

// parseResolvedURL extracts the direct media URL from resolver output: the
// last non-empty line, which must be an absolute http(s) URL.
func parseResolvedURL(stdout []byte) (string, error) {
	lines := strings.Split(string(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("%w: backend emitted no direct URL", types.ErrParseFailure)
		}
		return line, nil
	}
	return "", fmt.Errorf("%w: backend emitted no output", types.ErrParseFailure)
}

// CredentialProber adapts the runner into the credential store's probe
// hook: a metadata-only extraction of the reference URL with the blob
// attached.
type CredentialProber struct {
	Runner   backend.Runner
	Template backend.CommandTemplate
	Timeout  time.Duration
}

func (p *CredentialProber) Probe(ctx context.Context, refURL, cookiePath string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	_, err := p.Runner.Invoke(ctx, backend.ProbeCommand(p.Template, refURL, cookiePath), timeout)
	return err
}
