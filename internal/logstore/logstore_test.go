package logstore

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

func entry(level, message string) Entry {
	return Entry{Timestamp: time.Now(), Level: level, Message: message}
}

func newMemStore(t *testing.T, capacity int) *Store {
	t.Helper()
	s, err := NewStore(afero.NewMemMapFs(), "", capacity)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return s
}

func TestRingEvictsOldest(t *testing.T) {
	s := newMemStore(t, 3)
	for i := 0; i < 5; i++ {
		s.Append(entry("info", fmt.Sprintf("m%d", i)))
	}

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	got := s.Query(0, "", "")
	if len(got) != 3 || got[0].Message != "m4" || got[2].Message != "m2" {
		t.Fatalf("Query() = %+v, want m4..m2 newest first", got)
	}
}

func TestQueryFilters(t *testing.T) {
	s := newMemStore(t, 10)
	s.Append(entry("info", "request served"))
	s.Append(entry("error", "Extraction Failed"))
	s.Append(entry("warning", "backend attempt failed"))

	if got := s.Query(0, "error", ""); len(got) != 1 || got[0].Message != "Extraction Failed" {
		t.Errorf("level filter: %+v", got)
	}
	if got := s.Query(0, "ERROR", ""); len(got) != 1 {
		t.Errorf("level filter must be case-insensitive: %+v", got)
	}
	if got := s.Query(0, "", "FAILED"); len(got) != 2 {
		t.Errorf("search must be case-insensitive: %+v", got)
	}
	if got := s.Query(1, "", "failed"); len(got) != 1 || got[0].Message != "backend attempt failed" {
		t.Errorf("limit must keep newest: %+v", got)
	}
}

func TestLastError(t *testing.T) {
	s := newMemStore(t, 10)
	if _, ok := s.LastError(); ok {
		t.Fatalf("LastError() on empty store")
	}
	s.Append(entry("error", "first"))
	s.Append(entry("info", "noise"))
	s.Append(entry("error", "second"))

	e, ok := s.LastError()
	if !ok || e.Message != "second" {
		t.Fatalf("LastError() = %+v, %v", e, ok)
	}
}

func TestSummarize(t *testing.T) {
	s := newMemStore(t, 10)
	s.Append(entry("info", "request served"))
	s.Append(entry("info", "request served"))
	s.Append(entry("info", "cache hit"))
	s.Append(entry("error", "extraction failed"))

	stats := s.Summarize()
	if stats.Total != 4 {
		t.Errorf("Total = %d", stats.Total)
	}
	if stats.ByLevel["info"] != 3 || stats.ByLevel["error"] != 1 {
		t.Errorf("ByLevel = %v", stats.ByLevel)
	}
	if stats.TopMessages["info"] != "request served" {
		t.Errorf("TopMessages = %v", stats.TopMessages)
	}
}

func TestFileSinkAppends(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewStore(fs, "/var/log/gateway.jsonl", 10)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	s.Append(entry("info", "one"))
	s.Append(entry("error", "two"))

	raw, err := s.FileContents()
	if err != nil {
		t.Fatalf("FileContents() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("file sink lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"one"`) || !strings.Contains(lines[1], `"two"`) {
		t.Fatalf("file contents = %q", raw)
	}
}

func TestHookCapturesLoggerEntries(t *testing.T) {
	s := newMemStore(t, 10)
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.AddHook(&Hook{Store: s})

	log.WithField("backend", "yt-dlp").Warn("backend attempt failed")

	got := s.Query(0, "warning", "")
	if len(got) != 1 {
		t.Fatalf("hook did not capture the entry: %+v", got)
	}
	if got[0].Fields["backend"] != "yt-dlp" {
		t.Errorf("fields = %v", got[0].Fields)
	}
}
