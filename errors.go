package gencache

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for operations on a closed cache.
	ErrClosed = errors.New("gencache: cache closed")

	// ErrAlreadySettled reports a second outcome arriving for a handle
	// that already holds one. The first outcome always wins.
	ErrAlreadySettled = errors.New("gencache: handle already settled")
)

// CacheError reports an infrastructure fault: the generation machinery
// itself failed (transport, storage, protocol, codec) and no value could
// be produced or retrieved. CacheErrors are never cached.
type CacheError struct {
	Op  string // "get", "poll", "set", "heartbeat", "encode", "decode", "worker"
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("gencache: %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// GeneratorError reports that a fallible generator declared failure.
// Unlike a CacheError this is a first-class result: it was produced on
// purpose and is cached exactly like a success.
type GeneratorError struct {
	Err error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("gencache: generator failed: %v", e.Err)
}

func (e *GeneratorError) Unwrap() error { return e.Err }

// PanicError reports that a generator panicked. The panic is contained
// to the handles observing that generation; nothing is cached and a
// later call for the same key runs the generator again.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("gencache: generator panicked: %v", e.Value)
}

// IsCacheError reports whether err is (or wraps) a CacheError.
func IsCacheError(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce)
}

// IsGeneratorError reports whether err is (or wraps) a GeneratorError.
func IsGeneratorError(err error) bool {
	var ge *GeneratorError
	return errors.As(err, &ge)
}

// IsPanicError reports whether err is (or wraps) a PanicError.
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
