package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses the output of Inner with zstd. Response bodies of a
// static app shell (JS bundles, manifests) compress well.
// The zero value is NOT ready to use. Construct with NewZstd.
type Zstd[V any] struct {
	Inner Codec[V]

	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewZstd[V any](inner Codec[V], maxDecode uint64) (Zstd[V], error) {
	if inner == nil {
		return Zstd[V]{}, fmt.Errorf("codec: zstd inner codec is required")
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return Zstd[V]{}, err
	}
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(0)}
	if maxDecode > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(maxDecode))
	}
	dec, err := zstd.NewReader(nil, opts...)
	if err != nil {
		_ = enc.Close()
		return Zstd[V]{}, err
	}
	return Zstd[V]{Inner: inner, enc: enc, dec: dec}, nil
}

func (c Zstd[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(b, nil), nil
}

func (c Zstd[V]) Decode(b []byte) (V, error) {
	raw, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("codec: zstd: %w", err)
	}
	return c.Inner.Decode(raw)
}
