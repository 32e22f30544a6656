package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

type asset struct {
	URL    string              `json:"url" msgpack:"url"`
	Status int                 `json:"status" msgpack:"status"`
	Header map[string][]string `json:"header" msgpack:"header"`
	Body   []byte              `json:"body" msgpack:"body"`
}

// pair is a tiny WireMessage: two big-endian uint32s.
type pair struct{ A, B uint32 }

func (p *pair) AppendWire(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, p.A)
	return binary.BigEndian.AppendUint32(b, p.B)
}

func (p *pair) UnmarshalWire(b []byte) error {
	if len(b) != 8 {
		return errors.New("pair: bad length")
	}
	p.A = binary.BigEndian.Uint32(b[:4])
	p.B = binary.BigEndian.Uint32(b[4:])
	return nil
}

func TestCodecsPreserveAsset(t *testing.T) {
	in := asset{
		URL:    "http://h/index.html",
		Status: 200,
		Header: map[string][]string{"Content-Type": {"text/html"}},
		Body:   []byte("<html></html>"),
	}
	codecs := map[string]Codec[asset]{
		"json":     JSON[asset]{},
		"cbor":     MustCBOR[asset](false),
		"cbor-det": MustCBOR[asset](true),
		"msgpack":  Msgpack[asset]{},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			b, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := c.Decode(b)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(in, out) {
				t.Fatalf("got %+v want %+v", out, in)
			}
		})
	}
}

func TestDeterministicCBORStableAcrossMapOrder(t *testing.T) {
	c := MustCBOR[map[string]string](true)
	a, err := c.Encode(map[string]string{"b": "2", "a": "1", "c": "3"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		b, err := c.Encode(map[string]string{"c": "3", "a": "1", "b": "2"})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("deterministic encoding differs: %x vs %x", a, b)
		}
	}
}

func TestProtobufUsesWireMethods(t *testing.T) {
	c := Protobuf[pair, *pair]{}
	b, err := c.Encode(pair{A: 1, B: 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("len=%d want 8", len(b))
	}
	got, err := c.Decode(b)
	if err != nil || got != (pair{A: 1, B: 2}) {
		t.Fatalf("Decode: got %+v err=%v", got, err)
	}
	if _, err := c.Decode(b[:3]); err == nil {
		t.Fatalf("expected error on short input")
	}
}

func TestLimitRejectsOversizedDecode(t *testing.T) {
	c := Limit[string]{Inner: JSON[string]{}, MaxDecode: 8}
	small, _ := c.Encode("ok")
	if v, err := c.Decode(small); err != nil || v != "ok" {
		t.Fatalf("small decode: v=%q err=%v", v, err)
	}
	big, _ := c.Encode("this string is too long")
	if _, err := c.Decode(big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
	unlimited := Limit[string]{Inner: JSON[string]{}}
	if _, err := unlimited.Decode(big); err != nil {
		t.Fatalf("MaxDecode=0 should not limit: %v", err)
	}
}

func TestZstdWrapsInner(t *testing.T) {
	c, err := NewZstd[asset](JSON[asset]{}, 1<<20)
	if err != nil {
		t.Fatalf("NewZstd: %v", err)
	}
	in := asset{URL: "http://app.test/main.dart.js", Body: bytes.Repeat([]byte("main();"), 512)}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	plain, _ := JSON[asset]{}.Encode(in)
	if len(b) >= len(plain) {
		t.Fatalf("compressed %d bytes, plain %d", len(b), len(plain))
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.URL != in.URL || !bytes.Equal(out.Body, in.Body) {
		t.Fatalf("round trip mismatch")
	}
	if _, err := c.Decode(plain); err == nil {
		t.Fatalf("uncompressed input should not decode")
	}
	if _, err := NewZstd[asset](nil, 0); err == nil {
		t.Fatalf("expected error without inner codec")
	}
}
