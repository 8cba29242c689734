// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package streamx

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gogama/streamx/engine"
	"github.com/gogama/streamx/request"
)

// fakeEngine hands every started request to the test, which then plays
// the engine's part by calling the request's sink.
type fakeEngine struct {
	started chan *fakeRequest
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{started: make(chan *fakeRequest, 16)}
}

func (f *fakeEngine) Start(p *request.Plan, sink engine.Sink) engine.Request {
	r := &fakeRequest{
		plan:      p,
		sink:      sink,
		reads:     make(chan []byte, 1),
		follows:   make(chan struct{}, 1),
		cancelled: make(chan struct{}),
	}
	f.started <- r
	return r
}

func (f *fakeEngine) next(t *testing.T) *fakeRequest {
	select {
	case r := <-f.started:
		return r
	case <-time.After(5 * time.Second):
		require.FailNow(t, "request never started")
		return nil
	}
}

type fakeRequest struct {
	plan       *request.Plan
	sink       engine.Sink
	reads      chan []byte
	follows    chan struct{}
	cancelled  chan struct{}
	cancelOnce sync.Once
	cancels    atomic.Int32
}

func (r *fakeRequest) Read(buf []byte) {
	select {
	case r.reads <- buf:
	default:
		panic("read already pending")
	}
}

func (r *fakeRequest) FollowRedirect() {
	select {
	case r.follows <- struct{}{}:
	default:
		panic("follow already pending")
	}
}

func (r *fakeRequest) Cancel() {
	r.cancels.Add(1)
	r.cancelOnce.Do(func() { close(r.cancelled) })
}

func (r *fakeRequest) info(status int) *engine.ResponseInfo {
	return &engine.ResponseInfo{
		URL:        r.plan.URL.String(),
		StatusCode: status,
		Status:     "",
		Proto:      "HTTP/1.1",
	}
}

// nextRead waits for the controller to issue a read. It reports false
// if the controller cancelled the request instead.
func (r *fakeRequest) nextRead() ([]byte, bool) {
	select {
	case buf := <-r.reads:
		return buf, true
	case <-r.cancelled:
		return nil, false
	case <-time.After(5 * time.Second):
		return nil, false
	}
}

// respond plays a complete response with the given chunks, stopping
// early with a Canceled event if the controller cancels.
func (r *fakeRequest) respond(status int, chunks ...string) {
	info := r.info(status)
	r.sink(engine.Event{Kind: engine.ResponseStarted, Info: info})
	for _, chunk := range chunks {
		buf, ok := r.nextRead()
		if !ok {
			r.sink(engine.Event{Kind: engine.Canceled, Info: info})
			return
		}
		n := copy(buf, chunk)
		info.ReceivedBytes += int64(n)
		r.sink(engine.Event{Kind: engine.ReadCompleted, Info: info, N: n})
	}
	if _, ok := r.nextRead(); !ok {
		r.sink(engine.Event{Kind: engine.Canceled, Info: info})
		return
	}
	r.sink(engine.Event{Kind: engine.Succeeded, Info: info})
}

// redirect plays a redirect and reports whether the controller asked to
// follow it.
func (r *fakeRequest) redirect(location string) bool {
	r.sink(engine.Event{Kind: engine.Redirect, Info: r.info(302), Location: location})
	select {
	case <-r.follows:
		return true
	case <-r.cancelled:
		return false
	case <-time.After(5 * time.Second):
		return false
	}
}

// recorder is a Callback which remembers every call.
type recorder struct {
	mu     sync.Mutex
	bodies []string
	errs   []error
	calls  atomic.Int32
	done   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) Success(body string) {
	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	r.mu.Unlock()
	if r.calls.Add(1) == 1 {
		close(r.done)
	}
}

func (r *recorder) Error(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	if r.calls.Add(1) == 1 {
		close(r.done)
	}
}

func (r *recorder) wait(t *testing.T) {
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "callback never called")
	}
}

func (r *recorder) result() ([]string, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bodies...), append([]error(nil), r.errs...)
}
