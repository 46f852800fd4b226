// Package util holds small key and digest helpers shared by the
// storage and server layers.
package util

import (
	"encoding/hex"
	"net/url"
	"strings"
)

// ShortDigest renders the first 8 bytes of a digest as hex. Used for
// logging and event redaction so full digests never land in logs.
func ShortDigest(d [32]byte) string {
	return hex.EncodeToString(d[:8])
}

// DigestHex renders a full digest as 64 hex characters.
func DigestHex(d [32]byte) string {
	return hex.EncodeToString(d[:])
}

// ParseDigestHex parses a 64 character hex string into a digest.
func ParseDigestHex(s string) ([32]byte, bool) {
	var d [32]byte
	if len(s) != 64 {
		return d, false
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// EscapeNamespace maps a namespace to a single filesystem- and
// redis-safe path segment. Escaping is reversible via UnescapeNamespace.
func EscapeNamespace(ns string) string {
	e := url.PathEscape(ns)
	// "." and ".." survive PathEscape but are not safe directory names
	if e == "." || e == ".." {
		return strings.ReplaceAll(e, ".", "%2E")
	}
	return e
}

func UnescapeNamespace(s string) (string, error) {
	return url.PathUnescape(s)
}

// HotKey builds the composite key used by the in-memory payload cache.
func HotKey(ns string, d [32]byte) string {
	return ns + "\x00" + string(d[:])
}
