// Package cache is the short-lived result cache keyed by request
// fingerprint. Entries are whole values inserted atomically; a reader never
// observes a partial write. Two backends exist: a bounded in-memory store
// and an optional Redis store with native TTL.
package cache

import (
	"context"
	"strings"

	"github.com/mediagate/mediagate/internal/types"
)

// Store is the result cache contract. Values are opaque serialized results;
// Put replaces any previous entry for the key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte)
}

// Fingerprint derives the cache key for a request: normalized URL plus every
// operation-distinguishing parameter.
func Fingerprint(req types.ExtractionRequest) string {
	return strings.Join([]string{
		req.URL.Normalized,
		req.Operation.String(),
		req.Format,
	}, "|")
}
