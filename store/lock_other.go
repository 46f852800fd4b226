//go:build !unix

package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// acquireLock falls back to O_EXCL creation where flock is unavailable.
// The file is removed on release; a crashed server leaves it behind and
// the operator clears it by hand.
func acquireLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrRootLocked
		}
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	return f, nil
}

func releaseLock(f *os.File) error {
	name := f.Name()
	err := f.Close()
	if rerr := os.Remove(name); err == nil {
		err = rerr
	}
	return err
}
