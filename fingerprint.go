package gencache

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/unkn0wn-root/gencache/internal/util"
)

// canonical is the deterministic encoding used for key fingerprinting
// (RFC 8949 Core Deterministic). Two structurally equal keys must hash
// identically regardless of construction order, so map ordering and
// float forms are pinned down here and must never change.
var canonical = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Fingerprint is the identity of one cache entry: a namespace plus the
// SHA-256 digest of the canonically serialized key. Equal fingerprints
// mean equal keys; distinct keys collide with negligible probability.
type Fingerprint struct {
	Namespace string
	Digest    [32]byte
}

// Compute fingerprints key within namespace. The key must be serializable
// by the canonical encoder (structs, maps, slices, scalars); channels,
// functions and the like return an error.
func Compute(namespace string, key any) (Fingerprint, error) {
	b, err := canonical.Marshal(key)
	if err != nil {
		return Fingerprint{}, &CacheError{Op: "fingerprint", Err: fmt.Errorf("key not serializable: %w", err)}
	}
	return Fingerprint{Namespace: namespace, Digest: sha256.Sum256(b)}, nil
}

// Hex returns the full digest as 64 hex characters.
func (f Fingerprint) Hex() string { return util.DigestHex(f.Digest) }

// String renders the fingerprint for logs: namespace plus a short digest.
func (f Fingerprint) String() string {
	return f.Namespace + ":" + util.ShortDigest(f.Digest)
}
