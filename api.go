package gencache

import (
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/unkn0wn-root/gencache/provider"
)

// Options tune the behavior of a Cache.
// Only Providers is required; others have sensible defaults.
type Options struct {
	// Required. Connections to cache servers, one engine per connection.
	// All traffic goes to the first provider; the rest are spare
	// capacity for router-style topologies.
	Providers []provider.Provider

	// SkipMemory disables the in-process handle memo. Every call then
	// re-enters the generation protocol, which still deduplicates
	// concurrent work per entry; only the handle reuse is lost.
	SkipMemory bool

	// PollInterval is how often a non-assigned caller re-checks an
	// entry under generation elsewhere. 0 => 100ms.
	PollInterval time.Duration

	// HeartbeatInterval is how often a worker extends its lease while
	// generating. Must be comfortably below the server lease (a third
	// or less). 0 => 2s.
	HeartbeatInterval time.Duration

	// MaxWorkers bounds concurrent generator executions in this
	// process. 0 => unbounded.
	MaxWorkers int

	Logger Logger // if nil, NopLogger is used
	Events Events // if nil, NopEvents is used
}

// New builds a Cache over the given provider connections.
// The cache owns the providers: Close closes them.
func New(opts Options) (*Cache, error) {
	if len(opts.Providers) == 0 {
		return nil, fmt.Errorf("gencache: at least one provider is required")
	}
	for i, p := range opts.Providers {
		if p == nil {
			return nil, fmt.Errorf("gencache: provider %d is nil", i)
		}
	}

	log := coalesce[Logger](opts.Logger, NopLogger{})
	events := coalesce[Events](opts.Events, NopEvents{})
	poll := coalesce[time.Duration](opts.PollInterval, defaultPollInterval)
	hb := coalesce[time.Duration](opts.HeartbeatInterval, defaultHeartbeatInterval)

	c := &Cache{
		memo:   xsync.NewMapOf[memoKey, any](),
		skip:   opts.SkipMemory,
		log:    log,
		events: events,
	}
	for _, p := range opts.Providers {
		c.engines = append(c.engines, newEngine(p, log, events, poll, hb, opts.MaxWorkers))
	}
	return c, nil
}
