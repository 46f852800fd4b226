package hotcache

import (
	"time"

	bc "github.com/allegro/bigcache/v3"
)

// BigcacheConfig sizes the shard-based hot cache.
type BigcacheConfig struct {
	// LifeWindow is how long a payload stays hot. Defaults to 10m.
	LifeWindow time.Duration

	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int

	// HardMaxCacheSizeMB caps total memory. 0 = unlimited.
	HardMaxCacheSizeMB int
}

// Bigcache fronts the store with an allegro/bigcache instance. Unlike
// ristretto it has no per-entry cost accounting; memory is bounded by
// the hard cache size.
type Bigcache struct {
	c *bc.BigCache
}

func NewBigcache(cfg BigcacheConfig) (*Bigcache, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 10 * time.Minute
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Bigcache{c: c}, nil
}

func (h *Bigcache) Get(key string) ([]byte, bool) {
	b, err := h.c.Get(key)
	if err != nil {
		return nil, false
	}
	return b, true
}

func (h *Bigcache) Set(key string, payload []byte) {
	// best effort: an oversized or rejected payload just stays cold
	_ = h.c.Set(key, payload)
}

func (h *Bigcache) Close() {
	_ = h.c.Close()
}

var _ Cache = (*Bigcache)(nil)
