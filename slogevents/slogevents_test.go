package slogevents

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newCapture(t *testing.T) (*bytes.Buffer, *slog.Logger) {
	t.Helper()
	buf := &bytes.Buffer{}
	h := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return buf, slog.New(h)
}

func TestHitSampling(t *testing.T) {
	buf, l := newCapture(t)
	e := New(l, Options{HitEvery: 4})
	d := sha256.Sum256([]byte("k"))

	for i := 0; i < 16; i++ {
		e.Hit("ns", d)
	}
	if got := strings.Count(buf.String(), "gencache.hit"); got != 4 {
		t.Fatalf("logged %d hits out of 16 with HitEvery=4, want 4", got)
	}
}

func TestUnsampledWhenEveryIsZeroOrOne(t *testing.T) {
	for _, every := range []uint64{0, 1} {
		buf, l := newCapture(t)
		e := New(l, Options{MemoHitEvery: every})
		d := sha256.Sum256([]byte("k"))
		for i := 0; i < 5; i++ {
			e.MemoHit("ns", d)
		}
		if got := strings.Count(buf.String(), "gencache.memo_hit"); got != 5 {
			t.Fatalf("MemoHitEvery=%d logged %d of 5, want all", every, got)
		}
	}
}

func TestLifecycleEventsNeverSampled(t *testing.T) {
	buf, l := newCapture(t)
	e := New(l, Options{HitEvery: 100, MemoHitEvery: 100})
	d := sha256.Sum256([]byte("k"))

	e.Assigned("ns", d, 7)
	e.Published("ns", d, 42, 3*time.Millisecond)
	e.AssignmentLost("ns", d, 7)
	e.PanicCaught("ns", d)
	e.SettleConflict("ns", d)

	out := buf.String()
	for _, msg := range []string{
		"gencache.assigned",
		"gencache.published",
		"gencache.assignment_lost",
		"gencache.panic_caught",
		"gencache.settle_conflict",
	} {
		if !strings.Contains(out, msg) {
			t.Errorf("missing %s in output", msg)
		}
	}
}

func TestDigestRedaction(t *testing.T) {
	d := sha256.Sum256([]byte("k"))

	buf, l := newCapture(t)
	e := New(l, Options{})
	e.Assigned("ns", d, 1)
	out := buf.String()
	full := hex.EncodeToString(d[:])
	// default redaction: first 8 bytes as hex, never the full digest
	if strings.Contains(out, "digest="+full) {
		t.Fatal("full digest leaked into log output")
	}
	if !strings.Contains(out, "digest="+full[:16]) {
		t.Fatalf("short digest missing from output: %s", out)
	}

	buf2, l2 := newCapture(t)
	e2 := New(l2, Options{Redact: func([32]byte) string { return "xxx" }})
	e2.Assigned("ns", d, 1)
	if !strings.Contains(buf2.String(), "digest=xxx") {
		t.Fatalf("custom redactor not applied: %s", buf2.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	e := New(nil, Options{})
	d := sha256.Sum256([]byte("k"))
	e.MemoHit("ns", d)
	e.Hit("ns", d)
	e.Assigned("ns", d, 1)
	e.Published("ns", d, 1, time.Millisecond)
	e.AssignmentLost("ns", d, 1)
	e.PanicCaught("ns", d)
	e.SettleConflict("ns", d)
}
