package ports

import (
	"context"
	"net/http"
)

// CachedResponse is one stored response body plus enough metadata to replay
// it to a caller.
type CachedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// CacheStore persists responses keyed by request within one named cache
// generation. Exactly one generation is "current" at any time; Activate on
// the policy purges all others.
type CacheStore interface {
	// Put stores a response under the given generation and request key.
	Put(ctx context.Context, generation, key string, res *CachedResponse) error
	// Match returns the stored response for the key, or ok=false on a miss.
	Match(ctx context.Context, generation, key string) (res *CachedResponse, ok bool, err error)
	// Generations enumerates every generation with at least one entry.
	Generations(ctx context.Context) ([]string, error)
	// DeleteGeneration removes a whole generation and all its entries.
	DeleteGeneration(ctx context.Context, generation string) error
}
