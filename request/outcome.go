// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

// An Outcome is the terminal state of a request execution.
//
// An execution starts out Pending and moves at most once, to exactly
// one of the other values.
type Outcome int

const (
	// Pending means no terminal event has been recorded yet.
	Pending Outcome = iota
	// Succeeded means the engine delivered the whole response body.
	Succeeded
	// Failed means the engine reported a failure, or the client
	// stopped the request because a limit was exceeded.
	Failed
	// TimedOut means the timeout expired before any other terminal
	// event.
	TimedOut
)

var outcomeNames = []string{
	"pending",
	"succeeded",
	"failed",
	"timed_out",
}

// Terminal reports whether o is one of the terminal outcomes.
func (o Outcome) Terminal() bool {
	return o != Pending
}

// String returns the name of the outcome, suitable for use as a metric
// label.
func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}
