package hotcache

import (
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"
)

// RistrettoConfig sizes the admission-controlled hot cache.
type RistrettoConfig struct {
	// NumCounters is the number of 4-bit access counters. A good value
	// is 10x the expected number of live entries. Defaults to 1e6.
	NumCounters int64

	// MaxBytes bounds the total payload bytes held. Required.
	MaxBytes int64

	// BufferItems is the Set buffer size. Defaults to 64.
	BufferItems int64

	// TTL bounds how long a payload stays hot. Zero keeps entries until
	// they are evicted by cost pressure.
	TTL time.Duration

	Metrics bool
}

// Ristretto fronts the store with a cost-bounded ristretto cache.
// Payload length is the admission cost.
type Ristretto struct {
	c   *rc.Cache
	ttl time.Duration
}

func NewRistretto(cfg RistrettoConfig) (*Ristretto, error) {
	if cfg.MaxBytes <= 0 {
		return nil, errors.New("gencache: hotcache MaxBytes is required")
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1_000_000
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{c: c, ttl: cfg.TTL}, nil
}

func (h *Ristretto) Get(key string) ([]byte, bool) {
	v, ok := h.c.Get(key)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		h.c.Del(key)
		return nil, false
	}
	return b, true
}

func (h *Ristretto) Set(key string, payload []byte) {
	h.c.SetWithTTL(key, payload, int64(len(payload)), h.ttl)
}

func (h *Ristretto) Close() {
	h.c.Wait()
	h.c.Close()
}

// Metrics exposes ristretto's counters when enabled in the config.
func (h *Ristretto) Metrics() *rc.Metrics { return h.c.Metrics }

var _ Cache = (*Ristretto)(nil)
