package cache

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mediagate/mediagate/internal/platform"
	"github.com/mediagate/mediagate/internal/types"
)

func TestMemoryGetAfterPutWithinTTL(t *testing.T) {
	m := NewMemory(time.Hour, 10)
	ctx := context.Background()

	value := []byte(`{"title":"clip","formats":[{"id":"22"}]}`)
	m.Put(ctx, "k", value)

	got, ok := m.Get(ctx, "k")
	if !ok {
		t.Fatalf("expected hit immediately after put")
	}
	if !bytes.Equal(got, value) {
		t.Fatalf("value mismatch: got %q, want %q", got, value)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory(time.Hour, 10)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	m.Put(ctx, "k", []byte("v"))

	clock = clock.Add(59 * time.Minute)
	if _, ok := m.Get(ctx, "k"); !ok {
		t.Fatalf("entry expired before TTL")
	}

	clock = clock.Add(2 * time.Minute)
	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatalf("entry survived past TTL")
	}
}

func TestMemoryReplaceDoesNotMutateStored(t *testing.T) {
	m := NewMemory(time.Hour, 10)
	ctx := context.Background()

	value := []byte("original")
	m.Put(ctx, "k", value)
	value[0] = 'X' // caller mutating its slice must not affect the entry

	got, _ := m.Get(ctx, "k")
	if string(got) != "original" {
		t.Fatalf("stored entry mutated through caller slice: %q", got)
	}
}

func TestMemoryCapacityEvictsOldestFirst(t *testing.T) {
	m := NewMemory(time.Hour, 3)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Put(ctx, fmt.Sprintf("k%d", i), []byte("v"))
		clock = clock.Add(time.Second)
	}
	m.Put(ctx, "k3", []byte("v"))

	if _, ok := m.Get(ctx, "k0"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, ok := m.Get(ctx, k); !ok {
			t.Fatalf("entry %s should have survived eviction", k)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory(time.Hour, 100)
	ctx := context.Background()
	done := make(chan struct{})

	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%20)
				m.Put(ctx, key, []byte("value"))
				if v, ok := m.Get(ctx, key); ok && string(v) != "value" {
					t.Errorf("partial entry observed: %q", v)
					return
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}

func TestFingerprintDistinguishesOperationAndFormat(t *testing.T) {
	u, err := platform.Classify("https://www.youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	meta := Fingerprint(types.ExtractionRequest{URL: u, Operation: types.OpMetadata})
	resolve := Fingerprint(types.ExtractionRequest{URL: u, Operation: types.OpResolve, Format: "22"})
	resolveOther := Fingerprint(types.ExtractionRequest{URL: u, Operation: types.OpResolve, Format: "18"})

	if meta == resolve || resolve == resolveOther {
		t.Fatalf("fingerprints must differ per operation and format: %q %q %q", meta, resolve, resolveOther)
	}

	again := Fingerprint(types.ExtractionRequest{URL: u, Operation: types.OpMetadata})
	if meta != again {
		t.Fatalf("fingerprint not stable: %q vs %q", meta, again)
	}
}
