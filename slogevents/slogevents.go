// Package slogevents adapts slog into a sampled gencache.Events sink.
package slogevents

import (
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/gencache"
)

type Options struct {
	// Sampling to avoid floods on the hot read paths; 0/1 = log all.
	// Lifecycle events (assigned, published, lost, panic) are never
	// sampled away.
	HitEvery     uint64
	MemoHitEvery uint64

	// Optional digest redactor. Defaults to the first 8 bytes as hex.
	Redact func([32]byte) string
}

type Events struct {
	l    *slog.Logger
	opts Options

	hitCtr     atomic.Uint64
	memoHitCtr atomic.Uint64
}

var _ gencache.Events = (*Events)(nil)

func New(l *slog.Logger, opts Options) *Events {
	return &Events{l: l, opts: opts}
}

func (e *Events) redact(d [32]byte) string {
	if e.opts.Redact != nil {
		return e.opts.Redact(d)
	}
	return hex.EncodeToString(d[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (e *Events) MemoHit(ns string, d [32]byte) {
	if e.l == nil || !sample(e.opts.MemoHitEvery, &e.memoHitCtr) {
		return
	}
	e.l.Debug("gencache.memo_hit",
		"ns", ns,
		"digest", e.redact(d))
}

func (e *Events) Hit(ns string, d [32]byte) {
	if e.l == nil || !sample(e.opts.HitEvery, &e.hitCtr) {
		return
	}
	e.l.Debug("gencache.hit",
		"ns", ns,
		"digest", e.redact(d))
}

func (e *Events) Assigned(ns string, d [32]byte, id int64) {
	if e.l == nil {
		return
	}
	e.l.Info("gencache.assigned",
		"ns", ns,
		"digest", e.redact(d),
		"assignment_id", id)
}

func (e *Events) Published(ns string, d [32]byte, bytes int, took time.Duration) {
	if e.l == nil {
		return
	}
	e.l.Info("gencache.published",
		"ns", ns,
		"digest", e.redact(d),
		"bytes", bytes,
		"took", took)
}

func (e *Events) AssignmentLost(ns string, d [32]byte, id int64) {
	if e.l == nil {
		return
	}
	e.l.Warn("gencache.assignment_lost",
		"ns", ns,
		"digest", e.redact(d),
		"assignment_id", id)
}

func (e *Events) PanicCaught(ns string, d [32]byte) {
	if e.l == nil {
		return
	}
	e.l.Error("gencache.panic_caught",
		"ns", ns,
		"digest", e.redact(d))
}

func (e *Events) SettleConflict(ns string, d [32]byte) {
	if e.l == nil {
		return
	}
	e.l.Error("gencache.settle_conflict",
		"ns", ns,
		"digest", e.redact(d))
}
