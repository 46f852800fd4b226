package gencache

import "time"

// Events lightweight callbacks for high-signal generation lifecycle events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
//
// Digests are passed raw; implementations decide how much of one to expose
// (see slogevents for a sampling adapter that logs short digests only).
type Events interface {
	// A handle was served from the in-process memo table.
	MemoHit(namespace string, digest [32]byte)

	// The server already held a value; no generation ran.
	Hit(namespace string, digest [32]byte)

	// This process claimed the entry and will run the generator.
	Assigned(namespace string, digest [32]byte, assignmentID int64)

	// A generated value was accepted by the server.
	Published(namespace string, digest [32]byte, bytes int, took time.Duration)

	// Our assignment went stale: the lease lapsed or another worker
	// published first. The protocol is re-entered.
	AssignmentLost(namespace string, digest [32]byte, assignmentID int64)

	// The generator panicked. Nothing was published.
	PanicCaught(namespace string, digest [32]byte)

	// A second outcome arrived for an already settled handle.
	SettleConflict(namespace string, digest [32]byte)
}

// NopEvents is the default no-op
type NopEvents struct{}

func (NopEvents) MemoHit(string, [32]byte)                       {}
func (NopEvents) Hit(string, [32]byte)                           {}
func (NopEvents) Assigned(string, [32]byte, int64)               {}
func (NopEvents) Published(string, [32]byte, int, time.Duration) {}
func (NopEvents) AssignmentLost(string, [32]byte, int64)         {}
func (NopEvents) PanicCaught(string, [32]byte)                   {}
func (NopEvents) SettleConflict(string, [32]byte)                {}
