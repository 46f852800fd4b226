package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/unkn0wn-root/gencache/internal/util"
	"github.com/unkn0wn-root/gencache/internal/wire"
)

const (
	lockName   = ".lock"
	entriesDir = "entries"
)

// FSOptions configures a filesystem store.
type FSOptions struct {
	// Dir is the store root. Created if missing.
	Dir string
}

// FS stores entries as checksummed record files under
// <dir>/entries/<escaped namespace>/<digest hex>.
type FS struct {
	dir string

	mu   sync.Mutex
	lock *os.File
}

// NewFS opens (creating if needed) a filesystem store rooted at opts.Dir.
// The server lock is not taken until Acquire.
func NewFS(opts FSOptions) (*FS, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("gencache: store dir is required")
	}
	if err := os.MkdirAll(filepath.Join(opts.Dir, entriesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FS{dir: opts.Dir}, nil
}

// Dir returns the store root directory.
func (s *FS) Dir() string { return s.dir }

func (s *FS) Acquire(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock != nil {
		return nil
	}
	f, err := acquireLock(filepath.Join(s.dir, lockName))
	if err != nil {
		return err
	}
	s.lock = f
	return nil
}

func (s *FS) entryPath(ns string, digest [32]byte) string {
	return filepath.Join(s.dir, entriesDir, util.EscapeNamespace(ns), util.DigestHex(digest))
}

func (s *FS) Put(_ context.Context, ns string, digest [32]byte, payload []byte) error {
	rec, err := wire.EncodeRecord(wire.Record{Namespace: ns, Digest: digest, Payload: payload})
	if err != nil {
		return err
	}

	dst := s.entryPath(ns, digest)
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create namespace dir: %w", err)
	}

	// write-then-rename so readers and the recovery scan never observe
	// a half-written record
	tmp, err := os.CreateTemp(dir, "."+util.ShortDigest(digest)+"-*")
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(rec); err != nil {
		tmp.Close()
		return fmt.Errorf("write entry: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *FS) Get(_ context.Context, ns string, digest [32]byte) ([]byte, error) {
	b, err := os.ReadFile(s.entryPath(ns, digest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read entry: %w", err)
	}
	rec, err := wire.DecodeRecord(b)
	if err != nil {
		return nil, err
	}
	if rec.Namespace != ns || rec.Digest != digest {
		// record landed in the wrong slot
		return nil, wire.ErrCorrupt
	}
	return rec.Payload, nil
}

func (s *FS) Delete(_ context.Context, ns string, digest [32]byte) error {
	err := os.Remove(s.entryPath(ns, digest))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func (s *FS) Scan(ctx context.Context, fn func(namespace string, digest [32]byte) error) error {
	nsDirs, err := os.ReadDir(filepath.Join(s.dir, entriesDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("scan store: %w", err)
	}

	for _, nd := range nsDirs {
		if !nd.IsDir() {
			continue
		}
		ns, err := util.UnescapeNamespace(nd.Name())
		if err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, entriesDir, nd.Name()))
		if err != nil {
			return fmt.Errorf("scan store: %w", err)
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			// leftover temp files and foreign names are not entries
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			digest, ok := util.ParseDigestHex(f.Name())
			if !ok {
				continue
			}
			if err := fn(ns, digest); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *FS) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return nil
	}
	err := releaseLock(s.lock)
	s.lock = nil
	return err
}

var _ EntryStore = (*FS)(nil)
