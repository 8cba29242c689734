// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package streamx

import (
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/gogama/streamx/engine"
	"github.com/gogama/streamx/request"
	"github.com/gogama/streamx/timeout"
)

// DefaultMaxRedirects is the number of redirects a Client follows when
// its MaxRedirects field is zero.
const DefaultMaxRedirects = 20

// DefaultBufferSize is the size of the read buffer a Client allocates
// per request when its BufferSize field is zero.
const DefaultBufferSize = 1024

var emptyHandlers = HandlerGroup{}

// A Client is an asynchronous streaming HTTP client. Its zero value is
// a valid configuration.
//
// The zero value client uses engine.Default() as the engine,
// timeout.DefaultScheduler as the timeout scheduler,
// timeout.DefaultPolicy as the timeout policy, follows up to
// DefaultMaxRedirects redirects, reads into a DefaultBufferSize
// buffer, places no limit on the response body size, has an empty
// handler group, and discards its logs.
//
// The engine and the scheduler hold shared resources (cached
// connections, a timer goroutine) so Client instances should be reused
// instead of created as needed. Client is safe for concurrent use by
// multiple goroutines, but its fields must not be changed once it is in
// use.
//
// A Client is higher-level than its engine. The engine is responsible
// for all details of sending the HTTP request and receiving the
// response, while Client drives the engine one step at a time:
//
// • Client follows redirects reported by the engine, up to a limit;
//
// • Client reads the response body chunk by chunk and assembles it into
// a string;
//
// • Client times requests out using a customizable timeout policy, and
// cancels the engine request when they do;
//
// • Client invokes user-provided handler functions at designated
// plug-in points in the request lifecycle, allowing new features such
// as metrics to be mixed in from outside; and
//
// • Client reports the result of every request to its Callback exactly
// once, even when a timeout races against the end of the response.
type Client struct {
	// Engine starts requests and delivers their events.
	//
	// If Engine is nil, engine.Default() is used.
	Engine engine.Engine
	// Scheduler runs request timeouts.
	//
	// If Scheduler is nil, timeout.DefaultScheduler is used.
	Scheduler *timeout.Scheduler
	// TimeoutPolicy decides the timeout of plans which do not carry
	// their own.
	//
	// If TimeoutPolicy is nil, timeout.DefaultPolicy is used.
	TimeoutPolicy timeout.Policy
	// MaxRedirects is the number of redirects followed before a
	// request fails with failure.ErrTooManyRedirects.
	//
	// If MaxRedirects is zero, DefaultMaxRedirects is used. If it is
	// negative, the first redirect fails the request.
	MaxRedirects int
	// MaxBodyBytes limits the size of the response body. A request
	// whose body grows past the limit fails with
	// failure.ErrBodyTooLarge.
	//
	// If MaxBodyBytes is zero or negative, the body size is unlimited.
	MaxBodyBytes int64
	// BufferSize is the size of the buffer each request reads its
	// response body into.
	//
	// If BufferSize is zero or negative, DefaultBufferSize is used.
	BufferSize int
	// Handlers allows custom handler chains to be invoked when
	// designated events occur during a request execution.
	//
	// If Handlers is nil, no custom handlers will be run.
	Handlers *HandlerGroup
	// Logger receives the client's logs. Each request logs with its
	// execution ID, method and URL.
	//
	// If Logger is unset, logs are discarded.
	Logger logr.Logger
}

// Submit starts executing an HTTP request plan and returns without
// waiting for it.
//
// Exactly one of cb.Success or cb.Error is called exactly once when the
// execution ends, on a goroutine owned by the engine or the timeout
// scheduler, never on the goroutine calling Submit. A plan which fails
// validation ends in error without being started.
//
// Submit panics if p or cb is nil, or if p has a negative timeout. The
// plan must not be modified after it has been submitted.
func (c *Client) Submit(p *request.Plan, cb Callback) {
	c.submit(p, cb)
}

func (c *Client) submit(p *request.Plan, cb Callback) *controller {
	if p == nil {
		panic("streamx: nil plan")
	}
	if cb == nil {
		panic("streamx: nil callback")
	}
	if p.Timeout < 0 {
		panic("streamx: negative timeout")
	}

	e := &request.Execution{
		Plan:     p,
		ID:       uuid.NewString(),
		Timeout:  timeout.Resolve(c.timeoutPolicy(), p),
		URLChain: make([]string, 0, 1),
	}
	ctl := &controller{
		engine:       c.engine(),
		scheduler:    c.scheduler(),
		handlers:     c.handlers(),
		log:          c.logger(e),
		maxRedirects: c.maxRedirects(),
		bufferSize:   c.bufferSize(),
		cb:           cb,
		exec:         e,
		body:         accumulator{max: c.MaxBodyBytes},
	}

	ctl.handlers.run(BeforeStart, e)
	if err := p.Validate(); err != nil {
		ctl.reject(err)
		return ctl
	}
	e.URLChain = append(e.URLChain, p.URL.String())
	ctl.start()
	return ctl
}

// Do executes an HTTP request plan and waits for the result.
//
// The returned Execution is never nil. If the execution did not
// succeed, the returned error is the same as the Execution's Err field.
// A non-2XX status code does not result in an error.
func (c *Client) Do(p *request.Plan) (*request.Execution, error) {
	done := make(chan struct{})
	ctl := c.submit(p, Callbacks{
		OnSuccess: func(string) { close(done) },
		OnError:   func(error) { close(done) },
	})
	<-done
	return ctl.exec, ctl.exec.Err
}

// Get submits a GET to the specified URL, using the same policies
// followed by Submit.
//
// An error is returned, and cb is never called, if the URL cannot be
// parsed. To make a request plan with custom headers or a custom
// timeout, use request.NewPlan and Client.Submit.
func (c *Client) Get(url string, cb Callback) error {
	return Get(c, url, cb)
}

// Post submits a POST to the specified URL, using the same policies
// followed by Submit.
//
// The body parameter may be nil for an empty body, or may be any of
// the types supported by request.NewPlan and request.BodyBytes,
// namely: string; []byte; url.Values; io.Reader; and io.ReadCloser.
func (c *Client) Post(url, contentType string, body interface{}, cb Callback) error {
	return Post(c, url, contentType, body, cb)
}

// PostJSON submits a POST with a JSON body to the specified URL. See
// the PostJSON function for how body is encoded.
func (c *Client) PostJSON(url string, body interface{}, cb Callback) error {
	return PostJSON(c, url, body, cb)
}

// PostImage submits a POST to the specified URL whose body is the
// standard base64 encoding of image, sent as text/plain.
func (c *Client) PostImage(url string, image []byte, cb Callback) error {
	return PostImage(c, url, image, cb)
}

// CloseIdleConnections invokes the same method on the client's engine.
//
// If the engine has no CloseIdleConnections method, this method does
// nothing.
func (c *Client) CloseIdleConnections() {
	if ic, ok := c.engine().(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}

func (c *Client) engine() engine.Engine {
	if c.Engine == nil {
		return engine.Default()
	}

	return c.Engine
}

func (c *Client) scheduler() *timeout.Scheduler {
	if c.Scheduler == nil {
		return timeout.DefaultScheduler
	}

	return c.Scheduler
}

func (c *Client) timeoutPolicy() timeout.Policy {
	if c.TimeoutPolicy == nil {
		return timeout.DefaultPolicy
	}

	return c.TimeoutPolicy
}

func (c *Client) handlers() *HandlerGroup {
	if c.Handlers == nil {
		return &emptyHandlers
	}

	return c.Handlers
}

func (c *Client) maxRedirects() int {
	switch {
	case c.MaxRedirects == 0:
		return DefaultMaxRedirects
	case c.MaxRedirects < 0:
		return 0
	default:
		return c.MaxRedirects
	}
}

func (c *Client) bufferSize() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}

	return c.BufferSize
}

func (c *Client) logger(e *request.Execution) logr.Logger {
	log := c.Logger
	if log.GetSink() == nil {
		return logr.Discard()
	}

	var url string
	if e.Plan.URL != nil {
		url = e.Plan.URL.String()
	}
	return log.WithValues("requestID", e.ID, "method", e.Plan.Method, "url", url)
}
