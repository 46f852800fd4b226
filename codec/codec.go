// Package codec defines how generated values are serialized into cache
// payloads and back.
package codec

// Codec encodes/decodes values V to []byte for storage.
// Decode must accept exactly the bytes a prior Encode produced; payloads
// are content-addressed and never rewritten, so codecs should stay
// backward compatible across releases.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
