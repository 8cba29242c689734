// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"time"
)

// An Execution represents the state of a single Plan execution.
//
// An Execution is created when a plan is submitted and is updated as the
// request moves through its lifecycle: started, redirected, reading
// chunks, and finally reaching exactly one terminal Outcome. It is the
// input type of event handlers and the return value of Client.Do.
//
// Event handlers may set values on an Execution using SetValue and read
// them back using Value, but should treat the exported fields as
// read-only. The execution never outlives its request: after the
// terminal event the client makes no further changes to it.
type Execution struct {
	// Plan specifies the request being executed. It is never nil.
	Plan *Plan

	// ID uniquely identifies the execution in logs.
	ID string

	// Timeout is the timeout armed for the execution, after resolving
	// a zero Plan.Timeout through the client's timeout policy.
	Timeout time.Duration

	// Start is the time the request was handed to the engine.
	Start time.Time

	// End is the time the terminal state was recorded. It is the zero
	// value until then.
	End time.Time

	// StatusCode is the HTTP status code of the final response, once
	// the response has started. It is zero before that.
	StatusCode int

	// Redirects counts the redirects followed so far.
	Redirects int

	// URLChain lists the URLs visited, starting with the plan URL and
	// followed by each redirect location.
	URLChain []string

	// Chunks counts the non-empty body reads completed so far.
	Chunks int

	// Bytes counts the body bytes received so far.
	Bytes int64

	// Body is the assembled response text. It is only set when the
	// execution Succeeded.
	Body string

	// Err is the terminal error. It is nil unless the execution Failed
	// or TimedOut.
	Err error

	// Outcome is the terminal state, or Pending while the request is
	// in flight.
	Outcome Outcome

	data context.Context
}

// Duration returns the duration of the execution.
//
// If the execution has not yet started, the duration is zero. If it
// has ended, the duration is End minus Start. Otherwise it is the time
// elapsed since Start.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return time.Duration(0)
	} else if !e.Ended() {
		return time.Since(e.Start)
	}

	return e.End.Sub(e.Start)
}

// Started indicates whether the execution has started.
func (e *Execution) Started() bool {
	return !e.Start.IsZero()
}

// Ended indicates whether the execution has reached its terminal state.
func (e *Execution) Ended() bool {
	return !e.End.IsZero()
}

// SetValue allows event handlers to store arbitrary data in the
// execution.
//
// The key must follow the same rules as the key parameter in
// context.WithValue: it may not be nil, it must be comparable, and it
// should not be of a built-in type.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}

	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data value associated with this execution for key,
// or nil if there is no value associated with key.
func (e *Execution) Value(key interface{}) interface{} {
	ctx := e.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
