// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package streamx

import (
	"github.com/gogama/streamx/request"
)

// A HandlerGroup is a group of event handler chains which can be
// installed in a Client.
//
// Install all handlers before the group is used by a client. Handlers
// of one execution never run concurrently with each other, but handlers
// of different executions may.
type HandlerGroup struct {
	handlers [][]Handler
}

// PushBack adds an event handler to the back of the event handler chain
// for a specific event type.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("streamx: nil handler")
	}

	if g.handlers == nil {
		g.handlers = make([][]Handler, numEvents)
	}

	g.handlers[evt] = append(g.handlers[evt], h)
}

func (g *HandlerGroup) run(evt Event, e *request.Execution) {
	i := int(evt)
	if i < len(g.handlers) {
		run(g.handlers[i], evt, e)
	}
}

func run(chain []Handler, evt Event, e *request.Execution) {
	for _, h := range chain {
		h.Handle(evt, e)
	}
}

// A Handler handles the occurrence of an event during a request
// execution.
//
// Handlers for BeforeStart run on the goroutine calling Client.Submit.
// All other handlers run on engine or scheduler goroutines, one at a
// time per execution. A slow AfterRedirect, AfterResponseStart or
// AfterChunk handler delays the next engine operation but not the
// timeout, which still ends the request on time and runs its
// AfterTimeout and AfterEnd handlers once the slow handler returns.
type Handler interface {
	Handle(Event, *request.Execution)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as event handlers. If f is a function with appropriate
// signature, then HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(Event, *request.Execution)

// Handle calls f(evt, e).
func (f HandlerFunc) Handle(evt Event, e *request.Execution) {
	f(evt, e)
}
