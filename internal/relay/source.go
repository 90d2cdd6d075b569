// Package relay moves media bytes from a source to a client connection.
// A session owns exactly one source; whatever path ends the session, the
// source is torn down exactly once and never outlives the client.
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/mediagate/mediagate/internal/backend"
	"github.com/mediagate/mediagate/internal/types"
)

// Source produces the byte stream a session relays. Open is called once;
// Close must be idempotent and must release any underlying process or
// connection.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Close() error
}

// ProcessSource streams from an extraction process's stdout. The process
// is launched lazily on Open so a rejected session never spawns anything.
type ProcessSource struct {
	Start func(ctx context.Context) (*backend.Process, error)

	proc *backend.Process
}

func (s *ProcessSource) Open(ctx context.Context) (io.ReadCloser, error) {
	p, err := s.Start(ctx)
	if err != nil {
		return nil, err
	}
	s.proc = p
	return p.Stdout, nil
}

func (s *ProcessSource) Close() error {
	if s.proc == nil {
		return nil
	}
	return s.proc.Stop()
}

// StderrTail exposes the process's captured stderr for failure
// diagnostics. Only valid after Close.
func (s *ProcessSource) StderrTail() string {
	if s.proc == nil {
		return ""
	}
	return s.proc.StderrTail()
}

// UpstreamSource streams a previously resolved direct media URL over HTTP.
type UpstreamSource struct {
	URL    string
	Client *http.Client

	resp *http.Response
}

func (s *UpstreamSource) Open(ctx context.Context) (io.ReadCloser, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUpstreamFetch, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUpstreamFetch, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: upstream returned %s", types.ErrUpstreamFetch, resp.Status)
	}

	s.resp = resp
	return resp.Body, nil
}

func (s *UpstreamSource) Close() error {
	if s.resp == nil {
		return nil
	}
	return s.resp.Body.Close()
}

// ContentType reports the upstream media type, "" before Open or when the
// upstream did not send one.
func (s *UpstreamSource) ContentType() string {
	if s.resp == nil {
		return ""
	}
	return s.resp.Header.Get("Content-Type")
}

// ContentLength reports the upstream size, 0 when unknown.
func (s *UpstreamSource) ContentLength() int64 {
	if s.resp == nil || s.resp.ContentLength < 0 {
		return 0
	}
	return s.resp.ContentLength
}
