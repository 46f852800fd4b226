// Package provider defines the connection abstraction between a gencache
// client and a cache server.
//
// A Provider speaks the three-call generation protocol: Get resolves the
// state of an entry (optionally claiming an assignment), Heartbeat keeps a
// claimed assignment's lease alive, and Set publishes the generated payload.
// Implementations MUST be byte-for-byte transparent: the []byte passed to Set
// must come back verbatim from a later Get (no re-encoding, no mutation).
//
// Implementations must be safe for concurrent use. They do not retry their
// own Get/Heartbeat/Set semantics: a stale assignment is reported as
// ErrStaleAssignment and it is the caller's job to re-enter the protocol.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrStaleAssignment is returned by Heartbeat and Set when the referenced
// assignment no longer holds the entry: its lease expired, the entry was
// re-assigned, or another worker already published a value.
var ErrStaleAssignment = errors.New("gencache: stale assignment")

// State is the observable lifecycle state of one entry.
type State uint8

const (
	// StateUnassigned: no value yet and nobody is generating one.
	StateUnassigned State = iota + 1
	// StateAssigned: the caller just claimed the entry and must generate.
	StateAssigned
	// StateLoading: another worker holds a live assignment; poll again later.
	StateLoading
	// StateReady: the value exists and is returned with the status.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnassigned:
		return "unassigned"
	case StateAssigned:
		return "assigned"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ParseState is the inverse of State.String for wire decoding.
func ParseState(s string) (State, error) {
	switch s {
	case "unassigned":
		return StateUnassigned, nil
	case "assigned":
		return StateAssigned, nil
	case "loading":
		return StateLoading, nil
	case "ready":
		return StateReady, nil
	default:
		return 0, fmt.Errorf("gencache: unknown state %q", s)
	}
}

// Status is the result of a Get call.
type Status struct {
	State State

	// AssignmentID identifies the live assignment. Set when State is
	// Assigned (the caller's own claim) or Loading (some other worker's).
	AssignmentID int64

	// Value is the published payload. Set only when State is Ready.
	Value []byte
}

// Provider is a connection to one cache server.
type Provider interface {
	// Get resolves the entry identified by (namespace, digest).
	//
	// With assign=false the call is a pure read: it reports Ready with the
	// value, Loading while some worker generates, or Unassigned. With
	// assign=true an Unassigned (or lease-lapsed) entry is atomically
	// claimed and the call reports Assigned with a fresh assignment id;
	// at most one concurrent caller receives Assigned per claim.
	Get(ctx context.Context, namespace string, digest [32]byte, assign bool) (Status, error)

	// Heartbeat extends the lease of a live assignment.
	Heartbeat(ctx context.Context, assignmentID int64) error

	// Set publishes the payload for a live assignment and transitions the
	// entry to Ready. The first successful Set wins; the entry's value
	// never changes afterwards.
	Set(ctx context.Context, assignmentID int64, value []byte) error

	// Close releases the connection. It does not shut down the server.
	Close() error
}
