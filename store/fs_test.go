package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(FSOptions{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFSPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)
	d := sha256.Sum256([]byte("k1"))

	if _, err := s.Get(ctx, "ns", d); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Put: err = %v, want ErrNotFound", err)
	}

	if err := s.Put(ctx, "ns", d, []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "ns", d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("Get = %q, want %q", got, "payload")
	}

	if err := s.Delete(ctx, "ns", d); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "ns", d); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: err = %v, want ErrNotFound", err)
	}
	// deleting a missing entry is not an error
	if err := s.Delete(ctx, "ns", d); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFSNamespaceEscaping(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)
	d := sha256.Sum256([]byte("k"))

	const ns = "users/v2 beta"
	if err := s.Put(ctx, ns, d, []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, ns, d)
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	seen := 0
	err = s.Scan(ctx, func(gotNS string, gotD [32]byte) error {
		seen++
		if gotNS != ns || gotD != d {
			t.Fatalf("Scan yielded (%q, %x), want (%q, %x)", gotNS, gotD[:4], ns, d[:4])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if seen != 1 {
		t.Fatalf("Scan yielded %d entries, want 1", seen)
	}
}

func TestFSScanSkipsForeignFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)
	d := sha256.Sum256([]byte("k"))
	if err := s.Put(ctx, "ns", d, []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// drop a leftover temp file and a foreign name next to the entry
	nsDir := filepath.Dir(s.entryPath("ns", d))
	if err := os.WriteFile(filepath.Join(nsDir, ".tmp-123"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nsDir, "notadigest"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	var got [][32]byte
	if err := s.Scan(ctx, func(_ string, gd [32]byte) error {
		got = append(got, gd)
		return nil
	}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 1 || got[0] != d {
		t.Fatalf("Scan yielded %d entries, want exactly the real one", len(got))
	}
}

func TestFSCorruptRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)
	d := sha256.Sum256([]byte("k"))
	if err := s.Put(ctx, "ns", d, []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	p := s.entryPath("ns", d)
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	b[len(b)/2] ^= 0xFF
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Get(ctx, "ns", d); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Get on corrupt record: err = %v, want ErrCorrupt", err)
	}
}

func TestFSPlacementMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestFS(t)
	d1 := sha256.Sum256([]byte("k1"))
	d2 := sha256.Sum256([]byte("k2"))
	if err := s.Put(ctx, "ns", d1, []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// copy a valid record into another digest's slot
	b, err := os.ReadFile(s.entryPath("ns", d1))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.entryPath("ns", d2), b, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "ns", d2); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Get on misplaced record: err = %v, want ErrCorrupt", err)
	}
}

func TestFSLockExclusive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewFS(FSOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := s1.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	// re-acquiring from the same store is a no-op
	if err := s1.Acquire(ctx); err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}

	s2, err := NewFS(FSOptions{Dir: dir})
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if err := s2.Acquire(ctx); !errors.Is(err, ErrRootLocked) {
		t.Fatalf("second Acquire: err = %v, want ErrRootLocked", err)
	}

	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s2.Acquire(ctx); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	s2.Close()
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadManifest(dir); err == nil {
		t.Fatal("ReadManifest on empty root: expected error")
	}

	in := Manifest{Addr: "127.0.0.1:7420", PID: 1234}
	if err := WriteManifest(dir, in); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := ReadManifest(dir)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.Addr != in.Addr || got.PID != in.PID {
		t.Fatalf("ReadManifest = %+v, want addr/pid from %+v", got, in)
	}
	if got.Version != ManifestVersion {
		t.Fatalf("version = %d, want %d", got.Version, ManifestVersion)
	}

	// malformed manifest refuses to parse
	if err := os.WriteFile(filepath.Join(dir, ManifestName), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadManifest(dir); err == nil {
		t.Fatal("ReadManifest on malformed file: expected error")
	}

	// addr is mandatory
	if err := WriteManifest(dir, Manifest{}); err == nil {
		t.Fatal("WriteManifest without addr: expected error")
	}
}
