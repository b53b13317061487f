package cache

import "time"

// Cache is a key-value cache with a TTL per entry.
type Cache[K comparable, V any] interface {
	// Get returns the value and whether it was present and not expired.
	Get(key K) (V, bool)

	// Set stores the value. If ttl <= 0, the entry does not expire.
	Set(key K, value V, ttl time.Duration)

	Delete(key K)

	// Len returns the number of non-expired entries.
	Len() int

	// PurgeExpired removes expired entries.
	PurgeExpired() int
}
