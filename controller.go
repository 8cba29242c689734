// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package streamx

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/gogama/streamx/engine"
	"github.com/gogama/streamx/failure"
	"github.com/gogama/streamx/internal/logging"
	"github.com/gogama/streamx/request"
	"github.com/gogama/streamx/timeout"
)

type state int

const (
	idle state = iota
	started
	reading
	ended
)

// errSchedulerClosed ends requests whose timeout guard was lost to a
// closed scheduler.
var errSchedulerClosed = fmt.Errorf("%w: %w", failure.ErrCanceled, timeout.ErrClosed)

// A controller drives one request through its lifecycle. It consumes
// engine events and the timeout guard's fire, and dispatches the
// callback exactly once.
//
// Every input runs under mu and checks the state first, so at most
// one input ever moves the controller to ended, and inputs arriving
// after that are ignored. Dispatch happens after mu is released, by
// whichever input ended the request.
//
// Handlers run under hmu, never under mu, so a slow handler cannot hold
// back the timeout. While AfterRedirect, AfterResponseStart and
// AfterChunk handlers run, no engine operation is outstanding, and the
// only writes to the execution are made by dispatch, which also holds
// hmu.
type controller struct {
	engine       engine.Engine
	scheduler    *timeout.Scheduler
	handlers     *HandlerGroup
	log          logr.Logger
	maxRedirects int
	bufferSize   int
	cb           Callback

	mu    sync.Mutex
	state state
	exec  *request.Execution
	req   engine.Request
	guard *timeout.Token
	buf   []byte
	body  accumulator

	// Terminal result, copied into exec by dispatch.
	endedAt time.Time
	outcome request.Outcome
	err     error
	text    string

	hmu sync.Mutex
}

// A step is what remains to be done for an engine event once mu has
// been released.
type step struct {
	// done is set if the event ended the request.
	done bool
	// resume is set if the handlers for evt must run, followed by the
	// next engine operation: FollowRedirect if follow is set, and Read
	// otherwise.
	resume bool
	evt    Event
	follow bool
}

// start hands the plan to the engine and arms the timeout guard. The
// engine never calls back into the controller from within Start, and
// the guard cannot fire into it before mu is released, so no input is
// handled before both are in place.
func (c *controller) start() {
	e := c.exec
	c.mu.Lock()
	c.state = started
	e.Start = time.Now()
	if e.Timeout > 0 && e.Timeout < timeout.Forever {
		guard, err := c.scheduler.Arm(e.Timeout, c.expire)
		if err != nil {
			c.mu.Unlock()
			c.reject(errSchedulerClosed)
			return
		}
		c.guard = guard
	}
	c.req = c.engine.Start(e.Plan, c.handle)
	c.mu.Unlock()
	c.log.V(logging.VERBOSE).Info("Request started", "timeout", e.Timeout)
}

// reject ends a request which could not be started. The callback is
// dispatched on a new goroutine so that Submit never calls it.
func (c *controller) reject(err error) {
	c.mu.Lock()
	c.end(request.Failed, err)
	c.mu.Unlock()
	go c.dispatch()
}

// handle is the engine sink.
func (c *controller) handle(ev engine.Event) {
	c.mu.Lock()
	if c.state == ended {
		c.mu.Unlock()
		c.log.V(logging.TRACE).Info("Ignoring late engine event", "event", ev.Kind.String())
		return
	}

	var s step
	switch ev.Kind {
	case engine.Redirect:
		s = c.redirect(ev)
	case engine.ResponseStarted:
		s = c.responseStarted(ev)
	case engine.ReadCompleted:
		s = c.readCompleted(ev)
	case engine.Succeeded:
		c.guard.Disarm()
		s.done = c.end(request.Succeeded, nil)
	case engine.Failed:
		c.guard.Disarm()
		s.done = c.end(request.Failed, c.transportError(ev.Err))
	case engine.Canceled:
		// Only the controller cancels, and only after ending, so a
		// cancellation seen here came from outside.
		c.guard.Disarm()
		s.done = c.end(request.Failed, c.transportError(failure.ErrCanceled))
	}
	c.mu.Unlock()

	switch {
	case s.done:
		c.dispatch()
	case s.resume:
		c.run(s.evt)
		c.resume(s.follow)
	}
}

func (c *controller) redirect(ev engine.Event) step {
	e := c.exec
	e.Redirects++
	e.URLChain = append(e.URLChain, ev.Location)
	if e.Redirects > c.maxRedirects {
		c.req.Cancel()
		c.guard.Disarm()
		return step{done: c.end(request.Failed, c.transportError(failure.ErrTooManyRedirects))}
	}
	c.log.V(logging.VERBOSE).Info("Following redirect", "location", ev.Location, "status", ev.Info.StatusCode)
	return step{resume: true, evt: AfterRedirect, follow: true}
}

func (c *controller) responseStarted(ev engine.Event) step {
	e := c.exec
	c.state = reading
	e.StatusCode = ev.Info.StatusCode
	c.log.V(logging.DEBUG).Info("Response started", "status", e.StatusCode, "proto", ev.Info.Proto)
	c.buf = make([]byte, c.bufferSize)
	return step{resume: true, evt: AfterResponseStart}
}

func (c *controller) readCompleted(ev engine.Event) step {
	e := c.exec
	if !c.body.append(c.buf[:ev.N]) {
		c.req.Cancel()
		c.guard.Disarm()
		return step{done: c.end(request.Failed, c.transportError(failure.ErrBodyTooLarge))}
	}
	e.Chunks++
	e.Bytes = c.body.len()
	c.log.V(logging.TRACE).Info("Chunk received", "bytes", ev.N, "total", e.Bytes)
	return step{resume: true, evt: AfterChunk}
}

// run runs the handlers for a streaming event.
func (c *controller) run(evt Event) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers.run(evt, c.exec)
}

// resume issues the next engine operation, unless the request ended
// while the handlers ran.
func (c *controller) resume(follow bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ended {
		return
	}
	if follow {
		c.req.FollowRedirect()
	} else {
		c.req.Read(c.buf)
	}
}

// expire is the timeout guard's action. It also runs, ahead of the
// deadline, when the scheduler is closed.
func (c *controller) expire() {
	c.mu.Lock()
	e := c.exec
	var ok bool
	if time.Since(e.Start) < e.Timeout {
		ok = c.end(request.Failed, errSchedulerClosed)
	} else {
		ok = c.end(request.TimedOut, &failure.TimeoutError{After: e.Timeout})
	}
	if !ok {
		c.mu.Unlock()
		return
	}
	req := c.req
	c.mu.Unlock()

	req.Cancel()
	c.dispatch()
}

// end moves the controller to its terminal state and records the
// outcome. It must be called with mu held, and reports false if the
// controller had already ended.
func (c *controller) end(outcome request.Outcome, err error) bool {
	if c.state == ended {
		return false
	}
	c.state = ended
	c.endedAt = time.Now()
	c.outcome = outcome
	c.err = err
	if outcome == request.Succeeded {
		c.text = c.body.text()
	}
	c.buf = nil
	return true
}

// dispatch publishes the terminal result to the execution, runs the
// AfterTimeout and AfterEnd handlers, and calls the callback. It is
// called exactly once, without mu held, after end reported true.
func (c *controller) dispatch() {
	e := c.exec
	c.hmu.Lock()
	e.End = c.endedAt
	e.Outcome = c.outcome
	e.Err = c.err
	e.Body = c.text
	if e.Outcome == request.TimedOut {
		c.handlers.run(AfterTimeout, e)
	}
	c.handlers.run(AfterEnd, e)
	c.hmu.Unlock()

	if e.Outcome == request.Succeeded {
		c.log.V(logging.VERBOSE).Info("Request succeeded", "status", e.StatusCode, "bytes", e.Bytes, "duration", e.Duration())
		c.cb.Success(e.Body)
		return
	}
	c.log.Error(e.Err, "Request failed", "outcome", e.Outcome.String(), "kind", failure.Classify(e.Err).String(), "duration", e.Duration())
	c.cb.Error(e.Err)
}

func (c *controller) transportError(err error) error {
	p := c.exec.Plan
	return &failure.TransportError{
		Method: p.Method,
		URL:    p.URL.String(),
		Err:    err,
	}
}
