// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	urlpkg "net/url"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

const (
	nilCtxMsg = "streamx/request: nil context"
)

// A Plan describes one logical HTTP request to be streamed by a client:
// where to send it, how, and how long to wait for it to finish.
//
// The field structure of Plan mirrors a stripped-down http.Request
// (net/http). The body is pre-buffered, since the Transport Engine may
// need to send it more than once when following a redirect that
// preserves the request method.
//
// A Plan must not be modified once submitted to a client.
type Plan struct {
	// Method specifies the HTTP method (GET, POST, PUT, etc.).
	// An empty string means GET.
	Method string

	// URL specifies the absolute URL to access.
	URL *urlpkg.URL

	// Header contains the request header fields to be sent. Keys are
	// unique after canonicalization, and their order is irrelevant.
	Header http.Header

	// Body is the pre-buffered request body to be sent. A nil or empty
	// body indicates no request body should be sent.
	Body []byte

	// Timeout is the maximum time allowed between submitting the plan
	// and the request reaching a terminal state. Zero means the
	// client's timeout policy decides. Negative values are invalid.
	Timeout time.Duration

	// Host optionally overrides the Host header to send. If empty, the
	// value of URL.Host will be sent.
	Host string

	// ctx bounds the whole request. It should only be modified by
	// copying the whole Plan using WithContext.
	ctx context.Context
}

// NewPlan wraps NewPlanWithContext using the background context.
func NewPlan(method, url string, body interface{}) (*Plan, error) {
	return NewPlanWithContext(context.Background(), method, url, body)
}

// NewPlanWithContext returns a new Plan given a method, URL, and
// optional body.
//
// Parameter body may be nil (empty body), or it may be a string,
// []byte, io.Reader, or io.ReadCloser. If body is an io.Reader, it is
// read to the end and buffered into a []byte. If body is an
// io.ReadCloser, it is closed after buffering.
func NewPlanWithContext(ctx context.Context, method, url string, body interface{}) (*Plan, error) {
	if ctx == nil {
		return nil, errors.New(nilCtxMsg)
	}
	if method == "" {
		method = http.MethodGet
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("streamx/request: invalid method %q", method)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)
	b, err := BodyBytes(body)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ctx:    ctx,
		Method: method,
		URL:    u,
		Header: make(http.Header),
		Body:   b,
		Host:   u.Host,
	}, nil
}

// Context returns the plan's context. The returned context is always
// non-nil; it defaults to the background context.
//
// Cancelling the context fails the request with the context's error.
// It is an outer-layer cancellation mechanism: the client itself only
// ever cancels a request when its timeout expires.
func (p *Plan) Context() context.Context {
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of p with its context changed to
// ctx, which must be non-nil.
func (p *Plan) WithContext(ctx context.Context) *Plan {
	if ctx == nil {
		panic(nilCtxMsg)
	}
	p2 := new(Plan)
	*p2 = *p
	p2.ctx = ctx
	return p2
}

// Writes reports whether the plan's method is a write carrying a body,
// as opposed to a read-only method.
func (p *Plan) Writes() bool {
	switch p.Method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return len(p.Body) > 0
	default:
		return true
	}
}

// SetBasicAuth sets the plan's Authorization header to use HTTP Basic
// Authentication with the provided username and password.
func (p *Plan) SetBasicAuth(username, password string) {
	auth := username + ":" + password
	p.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
}

// Validate checks the preconditions a plan must meet before it can be
// submitted: an absolute http or https URL, a valid method, valid
// header fields, and a non-negative timeout.
func (p *Plan) Validate() error {
	if p.URL == nil {
		return errors.New("streamx/request: nil URL")
	}
	if p.URL.Scheme != "http" && p.URL.Scheme != "https" {
		return fmt.Errorf("streamx/request: unsupported URL scheme %q", p.URL.Scheme)
	}
	if p.URL.Host == "" {
		return fmt.Errorf("streamx/request: missing host in URL %q", p.URL.String())
	}
	if !validMethod(p.Method) {
		return fmt.Errorf("streamx/request: invalid method %q", p.Method)
	}
	for k, vs := range p.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("streamx/request: invalid header field name %q", k)
		}
		for _, v := range vs {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("streamx/request: invalid header field value for %q", k)
			}
		}
	}
	if p.Timeout < 0 {
		return fmt.Errorf("streamx/request: negative timeout %s", p.Timeout)
	}
	return nil
}

// ToRequest creates an HTTP request corresponding to the plan, bound to
// ctx, which may not be nil.
func (p *Plan) ToRequest(ctx context.Context) *http.Request {
	r := (&http.Request{
		Method:     p.Method,
		URL:        p.URL,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     p.Header,
		Host:       p.Host,
	}).WithContext(ctx)
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	if len(p.Body) > 0 {
		r.Body = io.NopCloser(bytes.NewReader(p.Body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(p.Body)), nil
		}
		r.ContentLength = int64(len(p.Body))
	}
	return r
}

func validMethod(method string) bool {
	// The empty string is always interpreted as GET, so only the token
	// characters need checking.
	return strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !httpguts.IsTokenRune(r)
}

// removeEmptyPort strips the empty port in ":port" to "" as mandated
// by RFC 3986 Section 6.2.3.
func removeEmptyPort(host string) string {
	if strings.LastIndex(host, ":") > strings.LastIndex(host, "]") {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
