package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	version   byte = 1
	kindEntry byte = 1

	// DigestLen is the length of an entry digest (SHA-256).
	DigestLen = 32
)

var (
	ErrCorrupt = errors.New("gencache: corrupt record")
	magic4     = [...]byte{'G', 'E', 'N', 'C'}
)

// Record is one durable entry as stored on disk or in redis. Namespace and
// Digest are embedded so a record can be verified against its storage slot
// (a moved or cross-written file decodes but fails the placement check).
type Record struct {
	Namespace string
	Digest    [DigestLen]byte
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry layout:
//
//	magic(4) | ver(1) | kind(1=entry) | nsLen(u16 be) | ns(nsLen) |
//	digest(32) | vlen(u32 be) | payload(vlen) | sum(u64 be, xxhash of all prior bytes)
func EncodeRecord(r Record) ([]byte, error) {
	if l := len(r.Namespace); l == 0 || l > 0xFFFF {
		return nil, fmt.Errorf("gencache: invalid namespace length %d in record", l)
	}

	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + len(r.Namespace) + DigestLen + 4 + len(r.Payload) + 8)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(r.Namespace)))
	buf.Write(u2[:])
	buf.WriteString(r.Namespace)

	buf.Write(r.Digest[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(r.Payload)))
	buf.Write(u4[:])
	buf.Write(r.Payload)

	binary.BigEndian.PutUint64(u8[:], xxhash.Sum64(buf.Bytes()))
	buf.Write(u8[:])
	return buf.Bytes(), nil
}

func DecodeRecord(b []byte) (Record, error) {
	const hdr = 4 + 1 + 1 + 2
	if len(b) < hdr+DigestLen+4+8 || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Record{}, ErrCorrupt
	}

	// checksum covers everything before the trailing u64
	sumOff := len(b) - 8
	if xxhash.Sum64(b[:sumOff]) != binary.BigEndian.Uint64(b[sumOff:]) {
		return Record{}, ErrCorrupt
	}

	off := 6

	nsLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if nsLen == 0 || nsLen > sumOff-off-DigestLen-4 {
		return Record{}, ErrCorrupt
	}
	ns := string(b[off : off+nsLen])
	off += nsLen

	var digest [DigestLen]byte
	copy(digest[:], b[off:off+DigestLen])
	off += DigestLen

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != sumOff-off { // strict: no trailing bytes before the checksum
		return Record{}, ErrCorrupt
	}

	return Record{
		Namespace: ns,
		Digest:    digest,
		Payload:   b[off : off+vlen], // zero-copy into b
	}, nil
}
