// Package logstore keeps a bounded in-memory ring of recent log entries
// for the introspection endpoints, with an optional append-only file sink.
// It plugs into the logger as a hook, so every log line lands here without
// call sites knowing about it.
package logstore

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// DefaultCapacity bounds the in-memory ring.
const DefaultCapacity = 500

// Entry is one retained log record.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Store is the bounded entry ring. Appending past capacity drops the
// oldest entry.
type Store struct {
	fs       afero.Fs
	filePath string

	mu      sync.Mutex
	entries []Entry
	start   int
	count   int
	file    afero.File
}

// NewStore opens a store. filePath may be "" to disable the file sink;
// capacity <= 0 uses DefaultCapacity.
func NewStore(fs afero.Fs, filePath string, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		fs:       fs,
		filePath: filePath,
		entries:  make([]Entry, capacity),
	}
	if filePath != "" {
		f, err := fs.OpenFile(filePath, appendFlags, 0o644)
		if err != nil {
			return nil, err
		}
		s.file = f
	}
	return s, nil
}

// Append retains e, evicting the oldest entry at capacity, and mirrors it
// to the file sink when one is configured. File write failures are
// swallowed; introspection must never break logging.
func (s *Store) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == len(s.entries) {
		s.entries[s.start] = e
		s.start = (s.start + 1) % len(s.entries)
	} else {
		s.entries[(s.start+s.count)%len(s.entries)] = e
		s.count++
	}

	if s.file != nil {
		if line, err := json.Marshal(e); err == nil {
			s.file.Write(append(line, '\n'))
		}
	}
}

// Len reports how many entries are retained.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Query returns up to limit entries, newest first, optionally filtered by
// level (case-insensitive) and by a case-insensitive message substring.
// limit <= 0 means all.
func (s *Store) Query(limit int, level, search string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	search = strings.ToLower(search)
	out := make([]Entry, 0, s.count)
	for i := s.count - 1; i >= 0; i-- {
		e := s.entries[(s.start+i)%len(s.entries)]
		if level != "" && !strings.EqualFold(e.Level, level) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// LastError returns the most recent error-level entry.
func (s *Store) LastError() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := s.count - 1; i >= 0; i-- {
		e := s.entries[(s.start+i)%len(s.entries)]
		if e.Level == "error" {
			return e, true
		}
	}
	return Entry{}, false
}

// Stats summarizes the retained entries.
type Stats struct {
	Total       int               `json:"total"`
	ByLevel     map[string]int    `json:"by_level"`
	TopMessages map[string]string `json:"top_messages"`
}

// Summarize computes per-level counts and the most frequent message at
// each level.
func (s *Store) Summarize() Stats {
	entries := s.Query(0, "", "")

	byLevel := lo.GroupBy(entries, func(e Entry) string { return e.Level })
	stats := Stats{
		Total:       len(entries),
		ByLevel:     make(map[string]int, len(byLevel)),
		TopMessages: make(map[string]string, len(byLevel)),
	}
	for level, group := range byLevel {
		stats.ByLevel[level] = len(group)
		counts := lo.CountValuesBy(group, func(e Entry) string { return e.Message })
		top, best := "", 0
		for msg, n := range counts {
			if n > best || (n == best && msg < top) {
				top, best = msg, n
			}
		}
		stats.TopMessages[level] = top
	}
	return stats
}

// FileContents reads the whole file sink.
func (s *Store) FileContents() ([]byte, error) {
	if s.filePath == "" {
		return nil, nil
	}
	return afero.ReadFile(s.fs, s.filePath)
}

// Close releases the file sink.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
