package gencache

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"

	"github.com/unkn0wn-root/gencache/internal/util"
	"github.com/unkn0wn-root/gencache/provider"
)

// runner produces the payload bytes for one entry. It is invoked at most
// once per assignment this process wins; a panic inside it is contained
// by the engine.
type runner func(ctx context.Context) ([]byte, error)

type taskKey struct {
	ns     string
	digest [32]byte
}

// task tracks one in-flight or settled generation at the byte level.
// It settles exactly once; the typed view on top is Handle.
type task struct {
	key  taskKey
	done chan struct{}

	mu      sync.Mutex
	settled bool
	payload []byte
	err     error
}

func newTask(k taskKey) *task {
	return &task{key: k, done: make(chan struct{})}
}

// settle records the outcome. The first call wins and closes done;
// a second call changes nothing and reports ErrAlreadySettled.
func (t *task) settle(payload []byte, err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.settled {
		return ErrAlreadySettled
	}
	t.settled = true
	t.payload = payload
	t.err = err
	close(t.done)
	return nil
}

// outcome reads the settled result. Only valid after done is closed.
func (t *task) outcome() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.payload, t.err
}

// engine drives the generation protocol against one provider. It owns the
// in-process task registry, so concurrent requests for the same entry
// share a single protocol loop no matter how many handles observe it.
type engine struct {
	conn   provider.Provider
	log    Logger
	events Events

	poll    time.Duration
	hbEvery time.Duration
	sem     *semaphore.Weighted

	tasks *xsync.MapOf[taskKey, *task]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// test knob: suppress heartbeats so leases lapse on schedule
	noHeartbeat bool
}

func newEngine(conn provider.Provider, log Logger, events Events, poll, hbEvery time.Duration, maxWorkers int) *engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &engine{
		conn:    conn,
		log:     log,
		events:  events,
		poll:    poll,
		hbEvery: hbEvery,
		tasks:   xsync.NewMapOf[taskKey, *task](),
		ctx:     ctx,
		cancel:  cancel,
	}
	if maxWorkers > 0 {
		e.sem = semaphore.NewWeighted(int64(maxWorkers))
	}
	return e
}

// generate returns the task for (ns, digest), starting a protocol loop if
// none is in flight. Settled successful tasks stay registered: they are
// the byte-level memo behind handle deduplication.
func (e *engine) generate(ns string, digest [32]byte, run runner) *task {
	k := taskKey{ns: ns, digest: digest}
	if t, ok := e.tasks.Load(k); ok {
		return t
	}
	t := newTask(k)
	if actual, loaded := e.tasks.LoadOrStore(k, t); loaded {
		return actual
	}
	e.wg.Add(1)
	go e.drive(t, run)
	return t
}

// drive walks the entry through the protocol until it settles.
func (e *engine) drive(t *task, run runner) {
	defer e.wg.Done()
	for {
		st, err := e.conn.Get(e.ctx, t.key.ns, t.key.digest, true)
		if err != nil {
			e.fail(t, &CacheError{Op: "get", Err: err})
			return
		}
		switch st.State {
		case provider.StateReady:
			e.events.Hit(t.key.ns, t.key.digest)
			e.settle(t, st.Value)
			return
		case provider.StateLoading:
			if !e.sleep(e.poll) {
				e.fail(t, &CacheError{Op: "poll", Err: e.ctx.Err()})
				return
			}
		case provider.StateAssigned:
			if !e.produce(t, st.AssignmentID, run) {
				return
			}
			// assignment went stale under us; re-enter the protocol
		default:
			// assign=true must never leave the entry unassigned
			e.fail(t, &CacheError{Op: "get", Err: fmt.Errorf("protocol violation: state %v with assign", st.State)})
			return
		}
	}
}

// produce runs the generator under our assignment and publishes the
// payload. It returns true when the assignment was lost to the lease and
// the caller should restart the loop; in every other case the task is
// settled here.
func (e *engine) produce(t *task, id int64, run runner) (restart bool) {
	e.events.Assigned(t.key.ns, t.key.digest, id)
	start := time.Now()

	hbStop := make(chan struct{})
	hbDone := make(chan struct{})
	if e.noHeartbeat {
		close(hbDone)
	} else {
		go e.heartbeatLoop(t, id, hbStop, hbDone)
	}
	defer func() {
		close(hbStop)
		<-hbDone
	}()

	if e.sem != nil {
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			e.fail(t, &CacheError{Op: "worker", Err: err})
			return false
		}
	}
	payload, runErr, pan := e.invoke(run)
	if e.sem != nil {
		e.sem.Release(1)
	}

	if pan != nil {
		e.log.Error("gencache.generator_panic", Fields{
			"namespace": t.key.ns,
			"digest":    util.ShortDigest(t.key.digest),
			"panic":     fmt.Sprint(pan.Value),
		})
		e.events.PanicCaught(t.key.ns, t.key.digest)
		e.fail(t, pan)
		return false
	}
	if runErr != nil {
		e.fail(t, &CacheError{Op: "generate", Err: runErr})
		return false
	}

	if err := e.conn.Set(e.ctx, id, payload); err != nil {
		if errors.Is(err, provider.ErrStaleAssignment) {
			e.log.Warn("gencache.assignment_lost", Fields{
				"namespace":     t.key.ns,
				"digest":        util.ShortDigest(t.key.digest),
				"assignment_id": id,
			})
			e.events.AssignmentLost(t.key.ns, t.key.digest, id)
			return true
		}
		e.fail(t, &CacheError{Op: "set", Err: err})
		return false
	}

	e.events.Published(t.key.ns, t.key.digest, len(payload), time.Since(start))
	e.settle(t, payload)
	return false
}

// invoke runs the generator with panic containment.
func (e *engine) invoke(run runner) (payload []byte, err error, pan *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			pan = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	payload, err = run(e.ctx)
	return
}

// heartbeatLoop extends our lease while the generator runs. A rejected
// heartbeat means the lease already lapsed; generation continues anyway
// and the late Set is where the loss is acted on.
func (e *engine) heartbeatLoop(t *task, id int64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tick := time.NewTicker(e.hbEvery)
	defer tick.Stop()
	for {
		select {
		case <-stop:
			return
		case <-e.ctx.Done():
			return
		case <-tick.C:
			err := e.conn.Heartbeat(e.ctx, id)
			if err == nil {
				continue
			}
			if errors.Is(err, provider.ErrStaleAssignment) {
				e.events.AssignmentLost(t.key.ns, t.key.digest, id)
				return
			}
			e.log.Warn("gencache.heartbeat_error", Fields{
				"assignment_id": id,
				"err":           err.Error(),
			})
		}
	}
}

// settle publishes a successful payload to the task.
func (e *engine) settle(t *task, payload []byte) {
	if err := t.settle(payload, nil); errors.Is(err, ErrAlreadySettled) {
		e.conflict(t)
	}
}

// fail settles the task with an error and drops it from the registry so a
// later call for the same entry re-enters the protocol.
func (e *engine) fail(t *task, err error) {
	e.tasks.Delete(t.key)
	if serr := t.settle(nil, err); errors.Is(serr, ErrAlreadySettled) {
		e.conflict(t)
	}
}

func (e *engine) conflict(t *task) {
	e.log.Error("gencache.settle_conflict", Fields{
		"namespace": t.key.ns,
		"digest":    util.ShortDigest(t.key.digest),
	})
	e.events.SettleConflict(t.key.ns, t.key.digest)
}

// sleep waits d, returning false when the engine shut down first.
func (e *engine) sleep(d time.Duration) bool {
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// close shuts the engine down and waits for in-flight loops to settle
// their tasks, up to ctx.
func (e *engine) close(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return e.conn.Close()
}
