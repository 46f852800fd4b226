// Package store provides durable entry storage for the gencache server.
//
// A store is an exclusive, append-style payload log: entries are written
// once, read many times, and deleted only to heal corruption. Exactly one
// server may own a store at a time; Acquire takes the server-exclusive lock
// and fails with ErrRootLocked when another live server already holds it.
//
// Two implementations ship with gencache: FS keeps records under a local
// directory, Redis keeps them in a redis keyspace guarded by a redsync
// mutex. Both frame payloads with a checksummed record so that partial or
// foreign writes surface as ErrCorrupt instead of bad data.
package store

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/gencache/internal/wire"
)

var (
	// ErrNotFound reports that no record exists for the digest.
	ErrNotFound = errors.New("gencache: entry not found")

	// ErrRootLocked reports that another server owns the store.
	ErrRootLocked = errors.New("gencache: store already locked by another server")

	// ErrCorrupt is re-exported so callers can self-heal without
	// importing the wire package.
	ErrCorrupt = wire.ErrCorrupt
)

// EntryStore is the durable backend behind a cache server.
// Implementations must be safe for concurrent use after Acquire.
type EntryStore interface {
	// Acquire takes the exclusive server lock for this store root.
	Acquire(ctx context.Context) error

	// Put durably persists the payload for (namespace, digest).
	// Entries are write-once at the server layer; Put may assume the
	// slot is either empty or holds an identical record.
	Put(ctx context.Context, namespace string, digest [32]byte, payload []byte) error

	// Get returns the payload for (namespace, digest). It returns
	// ErrNotFound on an empty slot and ErrCorrupt when the stored
	// record fails validation.
	Get(ctx context.Context, namespace string, digest [32]byte) ([]byte, error)

	// Delete removes the record. Used by self-healing after ErrCorrupt.
	Delete(ctx context.Context, namespace string, digest [32]byte) error

	// Scan calls fn for every stored entry. Payloads are not loaded.
	// Used by the server's recovery scan at startup.
	Scan(ctx context.Context, fn func(namespace string, digest [32]byte) error) error

	// Close releases the server lock and any underlying resources.
	Close() error
}
