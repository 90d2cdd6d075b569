// Package credentials holds per-platform auth material (cookie blobs) and
// answers whether a blob still works. Validity is established by a probe
// extraction against a reference URL and cached for a bounded interval.
// Having no credentials is a valid state, not an error.
package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/mediagate/mediagate/internal/types"
)

// Prober runs the lightweight probe extraction. Implemented by the backend
// adapter; faked in tests.
type Prober interface {
	Probe(ctx context.Context, refURL, cookiePath string) error
}

// Validity is the probe outcome for one platform.
type Validity struct {
	Validated bool
	CheckedAt time.Time
}

// referenceURLs are known-good probe targets per platform.
var referenceURLs = map[string]string{
	"youtube": "https://www.youtube.com/watch?v=jNQXAC9IVRw",
}

// Store maps platforms to cookie blob paths and caches probe results.
type Store struct {
	fs       afero.Fs
	paths    map[string]string
	prober   Prober
	cacheTTL time.Duration
	log      *logrus.Logger

	mu     sync.Mutex
	cached map[string]Validity
	now    func() time.Time
}

// NewStore builds a credential store. paths maps platform tags to cookie
// file locations; platforms without an entry have no credentials.
func NewStore(fs afero.Fs, paths map[string]string, prober Prober, cacheTTL time.Duration, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if paths == nil {
		paths = map[string]string{}
	}
	return &Store{
		fs:       fs,
		paths:    paths,
		prober:   prober,
		cacheTTL: cacheTTL,
		log:      log,
		cached:   make(map[string]Validity),
		now:      time.Now,
	}
}

// CookiePath returns the blob path to attach to a backend invocation, or
// "" when the platform has no usable credentials. Never fails the request:
// unreadable credentials degrade to anonymous access.
func (s *Store) CookiePath(ctx context.Context, platform string) string {
	v, err := s.IsValid(ctx, platform)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"platform": platform,
			"error":    err.Error(),
		}).Warn("credential check failed, proceeding without credentials")
		return ""
	}
	if !v.Validated {
		return ""
	}
	return s.paths[platform]
}

// IsValid reports whether the platform's stored credential works. Probe
// results are cached for the configured interval. A missing blob is a
// valid "no credentials" state; an unreadable blob is
// ErrCredentialUnavailable.
func (s *Store) IsValid(ctx context.Context, platform string) (Validity, error) {
	path, ok := s.paths[platform]
	if !ok || path == "" {
		return Validity{Validated: false, CheckedAt: s.now()}, nil
	}

	s.mu.Lock()
	if v, ok := s.cached[platform]; ok && s.now().Sub(v.CheckedAt) < s.cacheTTL {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := s.check(ctx, platform, path)
	if err != nil {
		return Validity{Validated: false, CheckedAt: s.now()}, err
	}

	s.mu.Lock()
	s.cached[platform] = v
	s.mu.Unlock()
	return v, nil
}

func (s *Store) check(ctx context.Context, platform, path string) (Validity, error) {
	now := s.now()

	blob, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		// Absent blob: anonymous access, cacheable as a negative result.
		return Validity{Validated: false, CheckedAt: now}, nil
	}
	if err != nil {
		return Validity{}, fmt.Errorf("%w: %s: %v", types.ErrCredentialUnavailable, path, err)
	}

	cookies, err := parseNetscape(bytes.NewReader(blob))
	if err != nil {
		return Validity{}, fmt.Errorf("%w: %s: %v", types.ErrCredentialUnavailable, path, err)
	}
	if liveCookieCount(cookies, now) == 0 {
		// Every cookie already expired; skip the probe.
		s.log.WithField("platform", platform).Info("credential blob fully expired")
		return Validity{Validated: false, CheckedAt: now}, nil
	}

	refURL, ok := referenceURLs[platform]
	if !ok || s.prober == nil {
		// No probe target for this platform: trust the live cookies.
		return Validity{Validated: true, CheckedAt: now}, nil
	}

	if err := s.prober.Probe(ctx, refURL, path); err != nil {
		s.log.WithFields(logrus.Fields{
			"platform": platform,
			"error":    err.Error(),
		}).Warn("credential probe failed")
		return Validity{Validated: false, CheckedAt: now}, nil
	}
	return Validity{Validated: true, CheckedAt: now}, nil
}
