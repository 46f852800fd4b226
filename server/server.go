// Package server implements the gencache authority: the single process
// that owns a store root, serializes assignment per entry and persists
// published payloads.
//
// The server holds every entry's lifecycle in memory (unassigned ->
// assigned -> ready) while payload bytes live in the store and, when
// configured, an in-memory hot cache. Ready is terminal: a published
// value never changes. Abandoned generations are reclaimed through lease
// expiry alone; expiry is checked lazily on every access and a background
// sweeper reclaims entries nobody asks about.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sony/sonyflake/v2"

	"github.com/unkn0wn-root/gencache"
	"github.com/unkn0wn-root/gencache/hotcache"
	"github.com/unkn0wn-root/gencache/internal/util"
	"github.com/unkn0wn-root/gencache/provider"
	"github.com/unkn0wn-root/gencache/store"
)

const (
	defaultLease         = 10 * time.Second
	defaultSweep         = time.Minute
	defaultIdleRetention = 15 * time.Minute
	defaultMaxPayload    = 32 << 20
)

// ErrPayloadTooLarge rejects a Set whose payload exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("gencache: payload too large")

// errHealed signals internally that a ready entry lost its payload and
// was reset to unassigned; the access loop re-evaluates.
var errHealed = errors.New("gencache: entry self-healed")

// Options tune a Server. Only Store is required.
type Options struct {
	// Store is the durable backend. The server acquires its exclusive
	// lock during New and owns it until Close.
	Store store.EntryStore

	// Hot is an optional in-memory payload cache fronting the store.
	Hot hotcache.Cache

	// Lease is how long an assignment lives between heartbeats. 0 => 10s.
	Lease time.Duration

	// SweepInterval is how often the background sweeper reclaims
	// expired assignments and idle speculative entries. 0 => 1m.
	SweepInterval time.Duration

	// IdleRetention is how long an unassigned entry with no value is
	// remembered after its last access. 0 => 15m.
	IdleRetention time.Duration

	// MaxPayload bounds a single published payload in bytes. 0 => 32MiB.
	MaxPayload int

	Logger gencache.Logger
}

type state uint8

const (
	stateUnassigned state = iota
	stateAssigned
	stateReady
)

type entryKey struct {
	ns     string
	digest [32]byte
}

// entry is one fingerprint's lifecycle. All fields are guarded by mu;
// holding mu never requires another lock. Set persists under mu so entry
// transitions stay serial.
type entry struct {
	mu  sync.Mutex
	key entryKey

	state         state
	assignmentID  int64
	leaseDeadline time.Time
	lastTouch     time.Time

	// dead marks an entry removed from the table by the sweeper.
	// Holders of a stale pointer re-fetch instead of mutating it.
	dead bool
}

// Server is the cache authority for one store root.
type Server struct {
	st  store.EntryStore
	hot hotcache.Cache
	log gencache.Logger

	lease         time.Duration
	idleRetention time.Duration
	maxPayload    int

	ids *sonyflake.Sonyflake

	entries     *xsync.MapOf[entryKey, *entry]
	assignments *xsync.MapOf[int64, *entry]

	started   time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New acquires the store's exclusive lock, replays its contents into the
// entry table and starts the sweeper. It fails with store.ErrRootLocked
// when another live server already owns the root.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("gencache: store is required")
	}

	ids, err := sonyflake.New(sonyflake.Settings{})
	if err != nil {
		return nil, fmt.Errorf("assignment id source: %w", err)
	}

	s := &Server{
		st:            opts.Store,
		hot:           opts.Hot,
		log:           opts.Logger,
		lease:         opts.Lease,
		idleRetention: opts.IdleRetention,
		maxPayload:    opts.MaxPayload,
		ids:           ids,
		entries:       xsync.NewMapOf[entryKey, *entry](),
		assignments:   xsync.NewMapOf[int64, *entry](),
		started:       time.Now(),
		stopCh:        make(chan struct{}),
	}
	if s.log == nil {
		s.log = gencache.NopLogger{}
	}
	if s.lease <= 0 {
		s.lease = defaultLease
	}
	if s.idleRetention <= 0 {
		s.idleRetention = defaultIdleRetention
	}
	if s.maxPayload <= 0 {
		s.maxPayload = defaultMaxPayload
	}

	if err := s.st.Acquire(ctx); err != nil {
		return nil, err
	}

	recovered := 0
	err = s.st.Scan(ctx, func(ns string, digest [32]byte) error {
		k := entryKey{ns: ns, digest: digest}
		s.entries.Store(k, &entry{key: k, state: stateReady})
		recovered++
		return nil
	})
	if err != nil {
		s.st.Close()
		return nil, fmt.Errorf("recovery scan: %w", err)
	}
	s.log.Info("gencache.recovered", gencache.Fields{"entries": recovered})

	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweep
	}
	s.wg.Add(1)
	go s.sweeper(sweep)

	return s, nil
}

func (s *Server) entry(k entryKey) *entry {
	e, _ := s.entries.LoadOrCompute(k, func() *entry { return &entry{key: k} })
	return e
}

// Get resolves (and with assign=true, claims) the entry. The assignment
// decision runs under the entry lock, so exactly one of any number of
// concurrent assign calls receives StateAssigned per claim window.
func (s *Server) Get(ctx context.Context, ns string, digest [32]byte, assign bool) (provider.Status, error) {
	if ns == "" {
		return provider.Status{}, fmt.Errorf("gencache: namespace is required")
	}

	for {
		e := s.entry(entryKey{ns: ns, digest: digest})
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		now := time.Now()

		switch {
		case e.state == stateReady:
			e.mu.Unlock()
			payload, err := s.payload(ctx, e)
			if err == nil {
				return provider.Status{State: provider.StateReady, Value: payload}, nil
			}
			if errors.Is(err, errHealed) {
				continue
			}
			return provider.Status{}, err

		case e.state == stateAssigned && now.Before(e.leaseDeadline):
			id := e.assignmentID
			e.mu.Unlock()
			return provider.Status{State: provider.StateLoading, AssignmentID: id}, nil

		default:
			// unassigned, or assigned with a lapsed lease
			if !assign {
				e.lastTouch = now
				e.mu.Unlock()
				return provider.Status{State: provider.StateUnassigned}, nil
			}
			id, err := s.ids.NextID()
			if err != nil {
				e.mu.Unlock()
				return provider.Status{}, fmt.Errorf("assignment id: %w", err)
			}
			if e.state == stateAssigned {
				s.assignments.Delete(e.assignmentID)
				s.log.Info("gencache.lease_expired", gencache.Fields{
					"namespace":     ns,
					"digest":        util.ShortDigest(digest),
					"assignment_id": e.assignmentID,
				})
			}
			e.state = stateAssigned
			e.assignmentID = id
			e.leaseDeadline = now.Add(s.lease)
			e.lastTouch = now
			s.assignments.Store(id, e)
			e.mu.Unlock()
			return provider.Status{State: provider.StateAssigned, AssignmentID: id}, nil
		}
	}
}

// Heartbeat extends a live assignment's lease.
func (s *Server) Heartbeat(_ context.Context, id int64) error {
	e, ok := s.assignments.Load(id)
	if !ok {
		return provider.ErrStaleAssignment
	}
	e.mu.Lock()
	if e.state != stateAssigned || e.assignmentID != id || !time.Now().Before(e.leaseDeadline) {
		e.mu.Unlock()
		s.assignments.Delete(id)
		return provider.ErrStaleAssignment
	}
	e.leaseDeadline = time.Now().Add(s.lease)
	e.mu.Unlock()
	return nil
}

// Set publishes a payload under a live assignment. The store write runs
// under the entry lock: once validation passes nothing can reassign the
// entry before it is durably Ready.
func (s *Server) Set(ctx context.Context, id int64, payload []byte) error {
	if len(payload) > s.maxPayload {
		return fmt.Errorf("%w: %d bytes > %d", ErrPayloadTooLarge, len(payload), s.maxPayload)
	}

	e, ok := s.assignments.Load(id)
	if !ok {
		return provider.ErrStaleAssignment
	}
	e.mu.Lock()
	if e.state != stateAssigned || e.assignmentID != id || !time.Now().Before(e.leaseDeadline) {
		e.mu.Unlock()
		s.assignments.Delete(id)
		return provider.ErrStaleAssignment
	}

	if err := s.st.Put(ctx, e.key.ns, e.key.digest, payload); err != nil {
		// lease continues; the worker may retry before it lapses
		e.mu.Unlock()
		return fmt.Errorf("persist entry: %w", err)
	}
	e.state = stateReady
	e.assignmentID = 0
	e.leaseDeadline = time.Time{}
	e.mu.Unlock()
	s.assignments.Delete(id)

	if s.hot != nil {
		s.hot.Set(util.HotKey(e.key.ns, e.key.digest), payload)
	}
	s.log.Debug("gencache.published", gencache.Fields{
		"namespace": e.key.ns,
		"digest":    util.ShortDigest(e.key.digest),
		"bytes":     len(payload),
	})
	return nil
}

// payload loads a ready entry's bytes through the hot cache. A missing or
// corrupt record resets the entry to unassigned and reports errHealed.
func (s *Server) payload(ctx context.Context, e *entry) ([]byte, error) {
	key := util.HotKey(e.key.ns, e.key.digest)
	if s.hot != nil {
		if b, ok := s.hot.Get(key); ok {
			return b, nil
		}
	}

	b, err := s.st.Get(ctx, e.key.ns, e.key.digest)
	if err == nil {
		if s.hot != nil {
			s.hot.Set(key, b)
		}
		return b, nil
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrCorrupt) {
		s.heal(ctx, e, err)
		return nil, errHealed
	}
	return nil, fmt.Errorf("load entry: %w", err)
}

// heal drops a ready entry whose payload is gone or fails validation, so
// the next assign regenerates it.
func (s *Server) heal(ctx context.Context, e *entry, cause error) {
	e.mu.Lock()
	if e.state == stateReady {
		e.state = stateUnassigned
		e.lastTouch = time.Now()
	}
	e.mu.Unlock()
	_ = s.st.Delete(ctx, e.key.ns, e.key.digest)
	s.log.Warn("gencache.self_heal", gencache.Fields{
		"namespace": e.key.ns,
		"digest":    util.ShortDigest(e.key.digest),
		"reason":    cause.Error(),
	})
}

func (s *Server) sweeper(interval time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.sweep(time.Now())
		}
	}
}

// sweep reclaims expired assignments and forgets idle speculative
// entries. Ready entries are never swept; they index durable records.
func (s *Server) sweep(now time.Time) {
	expired := 0
	s.assignments.Range(func(id int64, e *entry) bool {
		e.mu.Lock()
		if e.state != stateAssigned || e.assignmentID != id {
			e.mu.Unlock()
			s.assignments.Delete(id)
			return true
		}
		if !now.Before(e.leaseDeadline) {
			e.state = stateUnassigned
			e.assignmentID = 0
			e.leaseDeadline = time.Time{}
			e.lastTouch = now
			expired++
			e.mu.Unlock()
			s.assignments.Delete(id)
			return true
		}
		e.mu.Unlock()
		return true
	})

	idle := 0
	s.entries.Range(func(k entryKey, e *entry) bool {
		e.mu.Lock()
		if e.state == stateUnassigned && !e.dead && now.Sub(e.lastTouch) > s.idleRetention {
			e.dead = true
			idle++
			e.mu.Unlock()
			s.entries.Delete(k)
			return true
		}
		e.mu.Unlock()
		return true
	})

	if expired > 0 || idle > 0 {
		s.log.Debug("gencache.sweep", gencache.Fields{
			"expired_leases": expired,
			"idle_entries":   idle,
		})
	}
}

// Stats is a point-in-time snapshot for health reporting.
type Stats struct {
	Namespaces int
	Entries    int
	Ready      int
	Assigned   int
	Uptime     time.Duration
}

func (s *Server) Stats() Stats {
	st := Stats{Uptime: time.Since(s.started)}
	namespaces := map[string]struct{}{}
	s.entries.Range(func(k entryKey, e *entry) bool {
		namespaces[k.ns] = struct{}{}
		e.mu.Lock()
		st.Entries++
		switch e.state {
		case stateReady:
			st.Ready++
		case stateAssigned:
			st.Assigned++
		}
		e.mu.Unlock()
		return true
	})
	st.Namespaces = len(namespaces)
	return st
}

// Close stops the sweeper and releases the store lock. Outstanding
// assignments are abandoned; their entries regenerate under whichever
// server owns the root next.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.closeErr = s.st.Close()
		if s.hot != nil {
			s.hot.Close()
		}
	})
	return s.closeErr
}
