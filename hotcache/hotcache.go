// Package hotcache provides the optional in-memory payload cache that
// fronts a server's durable store.
//
// The hot cache is an accelerator, never an authority: entries are
// immutable once published, so a miss only costs a store read and a stale
// or evicted slot can always be repopulated. Implementations may drop or
// reject writes under pressure.
package hotcache

// Cache is a bounded byte cache. Implementations must be safe for
// concurrent use.
type Cache interface {
	// Get returns (payload, true) on hit, (nil, false) on miss.
	Get(key string) ([]byte, bool)

	// Set stores the payload. Best effort; the write may be dropped.
	Set(key string, payload []byte)

	// Close releases resources.
	Close()
}
