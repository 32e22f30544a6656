// Package network is the default swcache.Fetcher: a plain net/http client
// that returns responses as received.
package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/unkn0wn-root/swcache"
)

const defaultMaxBody = 64 << 20

var ErrBodyTooLarge = errors.New("network: response body too large")

type Options struct {
	Client       *http.Client // nil => http.DefaultClient
	MaxBodyBytes int64        // 0 => 64 MiB
	UserAgent    string       // set when the request carries none
}

// HTTP fetches over net/http. Redirects follow the client's policy; the
// final response is returned whatever its status.
type HTTP struct {
	client    *http.Client
	maxBody   int64
	userAgent string
}

var _ swcache.Fetcher = (*HTTP)(nil)

func New(opts Options) *HTTP {
	h := &HTTP{client: opts.Client, maxBody: opts.MaxBodyBytes, userAgent: opts.UserAgent}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBody
	}
	return h
}

func (h *HTTP) Fetch(ctx context.Context, req *swcache.Request) (*swcache.Response, error) {
	if req.URL == nil {
		return nil, errors.New("network: request has no URL")
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		hr.Header[k] = append([]string(nil), vs...)
	}
	if h.userAgent != "" && hr.Header.Get("User-Agent") == "" {
		hr.Header.Set("User-Agent", h.userAgent)
	}

	res, err := h.client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, h.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > h.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, h.maxBody)
	}

	return &swcache.Response{
		Status: res.StatusCode,
		Header: res.Header.Clone(),
		Body:   b,
		URL:    res.Request.URL.String(),
	}, nil
}
