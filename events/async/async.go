// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/gencache"
//	"github.com/unkn0wn-root/gencache/events/async"
//	"github.com/unkn0wn-root/gencache/provider/remote"
//	"github.com/unkn0wn-root/gencache/slogevents"
//
// )
//
//	raw := slogevents.New(slog.Default(), slogevents.Options{
//	    HitEvery: 100, // sample logs: ~every 100th hit
//	})
//
// events := asyncevents.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer events.Close()
//
//	conn, _ := remote.New(remote.Options{Addr: "localhost:7420"})
//	cache, _ := gencache.New(gencache.Options{
//	    Providers: []provider.Provider{conn},
//	    Events:    events, // or `raw` if you don't want async
//	})
package asyncevents

import (
	"sync"
	"time"

	"github.com/unkn0wn-root/gencache"
)

// Events fans callbacks out to a worker pool so a slow sink never stalls
// the generation hot path. When the queue is full, events are dropped.
type Events struct {
	inner gencache.Events
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ gencache.Events = (*Events)(nil)

func New(inner gencache.Events, workers, qlen int) *Events {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	e := &Events{inner: inner, q: make(chan func(), qlen)}
	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer e.wg.Done()
			for f := range e.q {
				f()
			}
		}()
	}
	return e
}

// Close drains the queue and stops the workers. Events emitted after
// Close are dropped.
func (e *Events) Close() {
	e.once.Do(func() {
		close(e.q)
		e.wg.Wait()
	})
}

func (e *Events) try(f func()) {
	select {
	case e.q <- f:
	default: // drop
	}
}

func (e *Events) MemoHit(ns string, d [32]byte) { e.try(func() { e.inner.MemoHit(ns, d) }) }
func (e *Events) Hit(ns string, d [32]byte)     { e.try(func() { e.inner.Hit(ns, d) }) }
func (e *Events) Assigned(ns string, d [32]byte, id int64) {
	e.try(func() { e.inner.Assigned(ns, d, id) })
}
func (e *Events) Published(ns string, d [32]byte, bytes int, took time.Duration) {
	e.try(func() { e.inner.Published(ns, d, bytes, took) })
}
func (e *Events) AssignmentLost(ns string, d [32]byte, id int64) {
	e.try(func() { e.inner.AssignmentLost(ns, d, id) })
}
func (e *Events) PanicCaught(ns string, d [32]byte)    { e.try(func() { e.inner.PanicCaught(ns, d) }) }
func (e *Events) SettleConflict(ns string, d [32]byte) { e.try(func() { e.inner.SettleConflict(ns, d) }) }
