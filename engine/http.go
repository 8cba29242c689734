// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/net/http2"

	"github.com/gogama/streamx/request"
)

// ErrClosed is the cause of the Failed event delivered for requests
// started on a closed engine.
var ErrClosed = errors.New("streamx/engine: engine closed")

// maxEmptyReads bounds how many consecutive empty reads a response body
// may return before the request fails with io.ErrNoProgress.
const maxEmptyReads = 100

// Options configures an HTTP engine.
type Options struct {
	// Transport sends individual HTTP requests. If nil, a clone of
	// http.DefaultTransport is used.
	Transport http.RoundTripper
	// HTTP2 upgrades Transport to speak HTTP/2 over TLS using
	// golang.org/x/net/http2. Transport must then be an
	// *http.Transport which has not been upgraded already.
	HTTP2 bool
	// Logger receives debug logs. If unset, logs are discarded.
	Logger logr.Logger
}

// HTTP is an Engine built on the net/http client. Redirects are not
// followed by net/http; they are surfaced as Redirect events instead.
//
// HTTP is safe for concurrent use by multiple goroutines. Its transport
// caches connections, so a single HTTP should be shared by the whole
// program rather than created per request.
type HTTP struct {
	client *http.Client
	log    logr.Logger
	closed atomic.Bool
}

var (
	defaultOnce   sync.Once
	defaultEngine *HTTP
)

// Default returns the process-wide engine used by clients that are not
// given one explicitly. It is built on first use, with HTTP/2 enabled,
// and is never closed.
func Default() *HTTP {
	defaultOnce.Do(func() {
		e, err := New(Options{HTTP2: true})
		if err != nil {
			panic(err)
		}
		defaultEngine = e
	})
	return defaultEngine
}

// New constructs an HTTP engine.
func New(opts Options) (*HTTP, error) {
	rt := opts.Transport
	if rt == nil {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}
	if opts.HTTP2 {
		t, ok := rt.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("streamx/engine: HTTP/2 requires *http.Transport, not %T", rt)
		}
		if err := http2.ConfigureTransport(t); err != nil {
			return nil, fmt.Errorf("streamx/engine: failed to enable HTTP/2: %w", err)
		}
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &HTTP{
		client: &http.Client{
			Transport: rt,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log.WithName("engine"),
	}, nil
}

// Start implements Engine.
func (h *HTTP) Start(p *request.Plan, sink Sink) Request {
	if sink == nil {
		panic("streamx/engine: nil sink")
	}
	ctx, cancel := context.WithCancel(p.Context())
	r := &httpRequest{
		engine: h,
		plan:   p,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
		cmds:   make(chan command, 1),
	}
	go r.run()
	return r
}

// Close stops the engine from starting new requests and closes idle
// connections. Requests already in flight are unaffected. Close always
// returns nil; calling it more than once has no further effect.
func (h *HTTP) Close() error {
	if h.closed.CompareAndSwap(false, true) {
		h.client.CloseIdleConnections()
	}
	return nil
}

// CloseIdleConnections closes connections sitting idle in a keep-alive
// state, without affecting requests in flight.
func (h *HTTP) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}

type command struct {
	buf    []byte
	follow bool
}

type httpRequest struct {
	engine    *HTTP
	plan      *request.Plan
	sink      Sink
	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan command
	cancelled atomic.Bool
}

func (r *httpRequest) Read(buf []byte) {
	r.send(command{buf: buf})
}

func (r *httpRequest) FollowRedirect() {
	r.send(command{follow: true})
}

func (r *httpRequest) send(cmd command) {
	select {
	case r.cmds <- cmd:
	default:
		panic("streamx/engine: operation already pending")
	}
}

func (r *httpRequest) Cancel() {
	r.cancelled.Store(true)
	r.cancel()
}

func (r *httpRequest) run() {
	defer r.cancel()

	if r.engine.closed.Load() {
		r.emit(Event{Kind: Failed, Err: ErrClosed})
		return
	}

	req := r.plan.ToRequest(r.ctx)
	chain := []string{req.URL.String()}
	var resp *http.Response
	var info *ResponseInfo
	for {
		var err error
		resp, err = r.engine.client.Do(req)
		if err != nil {
			r.fail(info, err)
			return
		}
		info = newResponseInfo(resp, chain)
		loc, err := redirectLocation(resp)
		if err != nil {
			_ = resp.Body.Close()
			r.fail(info, err)
			return
		} else if loc == nil {
			break
		}
		drain(resp.Body)
		r.engine.log.V(2).Info("Redirect received", "from", req.URL.String(), "to", loc.String(), "status", resp.StatusCode)
		r.emit(Event{Kind: Redirect, Info: info, Location: loc.String()})
		cmd, ok := r.next()
		if !ok {
			r.fail(info, r.ctx.Err())
			return
		} else if !cmd.follow {
			r.fail(info, errors.New("streamx/engine: read issued before response started"))
			return
		}
		req = redirectRequest(r.ctx, req, resp.StatusCode, loc, r.plan.Body)
		chain = append(chain[:len(chain):len(chain)], loc.String())
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	r.emit(Event{Kind: ResponseStarted, Info: info})

	var pending error
	for {
		cmd, ok := r.next()
		if !ok {
			r.fail(info, r.ctx.Err())
			return
		} else if cmd.follow {
			r.fail(info, errors.New("streamx/engine: no redirect to follow"))
			return
		}
		if pending == io.EOF {
			r.emit(Event{Kind: Succeeded, Info: info})
			return
		} else if pending != nil {
			r.fail(info, pending)
			return
		}
		n, err := readSome(resp.Body, cmd.buf)
		if n > 0 {
			info.ReceivedBytes += int64(n)
			pending = err
			r.emit(Event{Kind: ReadCompleted, Info: info, N: n})
		} else if err == io.EOF {
			r.emit(Event{Kind: Succeeded, Info: info})
			return
		} else {
			r.fail(info, err)
			return
		}
	}
}

func (r *httpRequest) next() (command, bool) {
	select {
	case cmd := <-r.cmds:
		return cmd, true
	case <-r.ctx.Done():
		return command{}, false
	}
}

func (r *httpRequest) fail(info *ResponseInfo, err error) {
	if r.cancelled.Load() {
		r.emit(Event{Kind: Canceled, Info: info})
		return
	}
	r.emit(Event{Kind: Failed, Info: info, Err: err})
}

// emit hands the sink a snapshot of info, so that the sink may keep it
// while the engine goes on updating its own copy.
func (r *httpRequest) emit(ev Event) {
	if ev.Info != nil {
		snapshot := *ev.Info
		ev.Info = &snapshot
	}
	r.sink(ev)
}

func newResponseInfo(resp *http.Response, chain []string) *ResponseInfo {
	return &ResponseInfo{
		URL:        resp.Request.URL.String(),
		URLChain:   chain,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Proto:      resp.Proto,
		Header:     resp.Header,
	}
}

func readSome(r io.Reader, buf []byte) (n int, err error) {
	for i := 0; i < maxEmptyReads; i++ {
		n, err = r.Read(buf)
		if n > 0 || err != nil {
			return
		}
	}
	return 0, io.ErrNoProgress
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

// redirectLocation returns the absolute redirect target of resp, or nil
// if resp is not a redirect. As in net/http, a 3xx response without a
// Location header is a final response.
func redirectLocation(resp *http.Response) (*url.URL, error) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return nil, nil
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, nil
	}
	u, err := resp.Request.URL.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("streamx/engine: failed to parse Location header %q: %w", loc, err)
	}
	return u, nil
}

// redirectRequest builds the request that follows a redirect, using the
// same method rules as net/http: 301, 302 and 303 switch to GET without
// a body (HEAD stays HEAD), while 307 and 308 resend the original method
// and body.
func redirectRequest(ctx context.Context, prev *http.Request, status int, loc *url.URL, body []byte) *http.Request {
	method := prev.Method
	header := prev.Header.Clone()
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		if method != http.MethodHead {
			method = http.MethodGet
		}
		body = nil
		header.Del("Content-Type")
		header.Del("Content-Length")
	}
	if !sameHost(prev.URL, loc) {
		for _, k := range []string{"Authorization", "Www-Authenticate", "Cookie", "Cookie2"} {
			header.Del(k)
		}
	}
	next := (&http.Request{
		Method:     method,
		URL:        loc,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Host:       loc.Host,
	}).WithContext(ctx)
	if len(body) > 0 {
		next.Body = io.NopCloser(bytes.NewReader(body))
		next.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		next.ContentLength = int64(len(body))
	}
	return next
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Hostname(), b.Hostname())
}
