package swcache

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Request is an outbound request as seen by the worker.
type Request struct {
	Method string // "" means GET
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest resolves ref against scope and returns a GET request for it.
func NewRequest(scope *url.URL, ref string) (*Request, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("swcache: parse asset %q: %w", ref, err)
	}
	return &Request{Method: http.MethodGet, URL: scope.ResolveReference(u)}, nil
}

// IsGet reports whether the request can be answered from a store.
func (r *Request) IsGet() bool {
	return r.Method == "" || r.Method == http.MethodGet
}

// Key is the request identity: the absolute URL without its fragment.
func (r *Request) Key() string {
	if r.URL == nil {
		return ""
	}
	u := *r.URL
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// Response is a response payload plus headers, as returned by the network or
// stored in a Cache.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	URL    string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Entry pairs a request with the response to store for it.
type Entry struct {
	Request  *Request
	Response *Response
}

// Record is the stored form of a response. Codecs serialize Records.
type Record struct {
	Key    string              `json:"key" msgpack:"key" cbor:"1,keyasint"`
	URL    string              `json:"url,omitempty" msgpack:"url,omitempty" cbor:"2,keyasint,omitempty"`
	Status int                 `json:"status" msgpack:"status" cbor:"3,keyasint"`
	Header map[string][]string `json:"header,omitempty" msgpack:"header,omitempty" cbor:"4,keyasint,omitempty"`
	Body   []byte              `json:"body,omitempty" msgpack:"body,omitempty" cbor:"5,keyasint,omitempty"`
}

func newRecord(key string, resp *Response) Record {
	return Record{
		Key:    key,
		URL:    resp.URL,
		Status: resp.Status,
		Header: resp.Header.Clone(),
		Body:   resp.Body,
	}
}

// Response returns a fresh Response for r.
func (r Record) Response() *Response {
	h := http.Header(r.Header).Clone()
	if h == nil {
		h = http.Header{}
	}
	return &Response{Status: r.Status, Header: h, Body: r.Body, URL: r.URL}
}

// protobuf field numbers for Record
const (
	recKey    protowire.Number = 1
	recURL    protowire.Number = 2
	recStatus protowire.Number = 3
	recHeader protowire.Number = 4
	recBody   protowire.Number = 5

	hdrName  protowire.Number = 1
	hdrValue protowire.Number = 2
)

// AppendWire appends r in protobuf wire format:
//
//	message Record { string key = 1; string url = 2; int64 status = 3;
//	                 repeated Header header = 4; bytes body = 5; }
//	message Header { string name = 1; repeated string value = 2; }
//
// Header names are written sorted so equal records encode equally.
func (r *Record) AppendWire(b []byte) []byte {
	b = protowire.AppendTag(b, recKey, protowire.BytesType)
	b = protowire.AppendString(b, r.Key)
	if r.URL != "" {
		b = protowire.AppendTag(b, recURL, protowire.BytesType)
		b = protowire.AppendString(b, r.URL)
	}
	b = protowire.AppendTag(b, recStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Status))

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var h []byte
		h = protowire.AppendTag(h, hdrName, protowire.BytesType)
		h = protowire.AppendString(h, name)
		for _, v := range r.Header[name] {
			h = protowire.AppendTag(h, hdrValue, protowire.BytesType)
			h = protowire.AppendString(h, v)
		}
		b = protowire.AppendTag(b, recHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, h)
	}

	if len(r.Body) > 0 {
		b = protowire.AppendTag(b, recBody, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Body)
	}
	return b
}

// UnmarshalWire parses the format written by AppendWire. Unknown fields are
// skipped.
func (r *Record) UnmarshalWire(b []byte) error {
	*r = Record{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == recKey && typ == protowire.BytesType:
			r.Key, n = protowire.ConsumeString(b)
		case num == recURL && typ == protowire.BytesType:
			r.URL, n = protowire.ConsumeString(b)
		case num == recStatus && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			r.Status = int(v)
		case num == recHeader && typ == protowire.BytesType:
			var h []byte
			h, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				if err := r.unmarshalHeader(h); err != nil {
					return err
				}
			}
		case num == recBody && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			r.Body = append([]byte(nil), v...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func (r *Record) unmarshalHeader(b []byte) error {
	var name string
	var values []string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == hdrName && typ == protowire.BytesType:
			name, n = protowire.ConsumeString(b)
		case num == hdrValue && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			values = append(values, v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	if r.Header == nil {
		r.Header = make(map[string][]string)
	}
	r.Header[name] = append(r.Header[name], values...)
	return nil
}
