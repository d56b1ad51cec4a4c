package faulty

import (
	"context"
	"time"
)

// CacheEntry is a cached value plus its hard expiry (spec §3).
type CacheEntry struct {
	Value     interface{}
	ExpiresAt time.Time
	Found     bool
}

// Cache is the optional read/write cache contract spec §4.3 defines. Same
// shape as Storage: Read/Write must be safe for concurrent use, and
// FaultTolerant reports whether the backend promises not to raise.
type Cache interface {
	Read(ctx context.Context, key string) (CacheEntry, error)
	Write(ctx context.Context, key string, value interface{}, expiresIn time.Duration) error
	FaultTolerant() bool
}

// refreshMarkerKey returns the sibling key that stores the wall-clock
// timestamp a cached value is next due for revalidation (spec §3, §6).
func refreshMarkerKey(key string) string {
	return key + ".faulty_refresh"
}
