package codec

// WireMessage is a value that frames itself in protobuf wire format,
// usually hand-written with google.golang.org/protobuf/encoding/protowire.
type WireMessage interface {
	AppendWire(b []byte) []byte
	UnmarshalWire(b []byte) error
}

// Protobuf encodes V through its pointer's WireMessage methods.
// The zero value is ready to use, e.g. codec.Protobuf[swcache.Record, *swcache.Record]{}.
type Protobuf[V any, P interface {
	*V
	WireMessage
}] struct{}

func (Protobuf[V, P]) Encode(v V) ([]byte, error) {
	return P(&v).AppendWire(nil), nil
}

func (Protobuf[V, P]) Decode(b []byte) (V, error) {
	var v V
	err := P(&v).UnmarshalWire(b)
	return v, err
}
