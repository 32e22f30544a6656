// Package wire frames stored entries so corruption and stale generations
// can be told apart from valid data on read.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version    byte = 1
	kindSingle byte = 1
	kindBulk   byte = 2

	singleHdr = 4 + 1 + 1 + 8 + 4
	bulkHdr   = 4 + 1 + 1 + 4
	maxKeyLen = 0xFFFF
)

var (
	ErrCorrupt = errors.New("swcache: corrupt entry")
	ErrKey     = errors.New("swcache: invalid key length")

	magic4 = [...]byte{'S', 'W', 'C', 'E'}
)

func header(b []byte, kind byte, min int) bool {
	return len(b) >= min && bytes.Equal(b[:4], magic4[:]) && b[4] == version && b[5] == kind
}

// EncodeSingle frames one stored response.
//
//	magic(4) | ver(1) | kind(1=single) | gen(u64 be) | vlen(u32 be) | payload(vlen)
func EncodeSingle(gen uint64, payload []byte) []byte {
	out := make([]byte, singleHdr, singleHdr+len(payload))
	copy(out, magic4[:])
	out[4] = version
	out[5] = kindSingle
	binary.BigEndian.PutUint64(out[6:14], gen)
	binary.BigEndian.PutUint32(out[14:18], uint32(len(payload)))
	return append(out, payload...)
}

// DecodeSingle returns the generation and a payload subslice of b.
// Trailing bytes after the payload are rejected.
func DecodeSingle(b []byte) (gen uint64, payload []byte, err error) {
	if !header(b, kindSingle, singleHdr) {
		return 0, nil, ErrCorrupt
	}
	gen = binary.BigEndian.Uint64(b[6:14])
	vlen := int(binary.BigEndian.Uint32(b[14:18]))
	if vlen != len(b)-singleHdr {
		return 0, nil, ErrCorrupt
	}
	return gen, b[singleHdr:], nil
}

// BulkItem is one member of a bulk frame. The store index uses bulk frames
// with empty payloads to list identities and the generation they were
// written under.
type BulkItem struct {
	Key     string
	Gen     uint64
	Payload []byte
}

// EncodeBulk frames items in order.
//
//	magic(4) | ver(1) | kind(1=bulk) | n(u32 be)
//	keyLen(u16 be) | key(keyLen) | gen(u64 be) | vlen(u32 be) | payload(vlen) * n
func EncodeBulk(items []BulkItem) ([]byte, error) {
	total := bulkHdr
	for _, it := range items {
		if l := len(it.Key); l == 0 || l > maxKeyLen {
			return nil, fmt.Errorf("%w: %d", ErrKey, l)
		}
		total += 2 + len(it.Key) + 8 + 4 + len(it.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindBulk)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint32(u4[:], uint32(len(items)))
	buf.Write(u4[:])

	for _, it := range items {
		binary.BigEndian.PutUint16(u2[:], uint16(len(it.Key)))
		buf.Write(u2[:])
		buf.WriteString(it.Key)

		binary.BigEndian.PutUint64(u8[:], it.Gen)
		buf.Write(u8[:])

		binary.BigEndian.PutUint32(u4[:], uint32(len(it.Payload)))
		buf.Write(u4[:])
		buf.Write(it.Payload)
	}
	return buf.Bytes(), nil
}

// DecodeBulk parses a bulk frame. Payloads are subslices of b.
func DecodeBulk(b []byte) ([]BulkItem, error) {
	if !header(b, kindBulk, bulkHdr) {
		return nil, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint32(b[6:10]))
	off := bulkHdr

	// every item needs at least 15 bytes; don't trust n for preallocation
	capHint := n
	if maxItems := (len(b) - off) / 15; capHint > maxItems {
		capHint = maxItems
	}
	items := make([]BulkItem, 0, capHint)

	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return nil, ErrCorrupt
		}
		klen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if klen == 0 || klen > len(b)-off {
			return nil, ErrCorrupt
		}
		key := string(b[off : off+klen])
		off += klen

		if off+12 > len(b) {
			return nil, ErrCorrupt
		}
		gen := binary.BigEndian.Uint64(b[off : off+8])
		off += 8
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen > len(b)-off {
			return nil, ErrCorrupt
		}
		payload := b[off : off+vlen]
		off += vlen

		items = append(items, BulkItem{Key: key, Gen: gen, Payload: payload})
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return items, nil
}
