// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package streamx

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in a Client to extend it with custom
// functionality, such as metrics.
type Event int

const (
	// BeforeStart identifies the event that occurs when a plan is
	// submitted, before it is handed to the engine.
	//
	// When Client fires BeforeStart, the execution's plan, ID and
	// resolved timeout are set, but the start time is not.
	BeforeStart Event = iota
	// AfterRedirect identifies the event that occurs each time the
	// server redirects the request and the client decides to follow.
	//
	// When Client fires AfterRedirect, the execution's redirect
	// counter has been incremented and the new location appended to
	// its URL chain. A redirect never produces a callback.
	AfterRedirect
	// AfterResponseStart identifies the event that occurs when the
	// headers of the final response arrive, before the first body read
	// is issued.
	//
	// When Client fires AfterResponseStart, the execution's status
	// code is set.
	AfterResponseStart
	// AfterChunk identifies the event that occurs after each non-empty
	// chunk of the response body is appended to the body.
	//
	// When Client fires AfterChunk, the execution's chunk counter and
	// byte counter include the chunk. The next read is issued once the
	// handlers return.
	AfterChunk
	// AfterTimeout identifies the event that occurs when the request
	// times out. It is followed immediately by AfterEnd.
	//
	// When Client fires AfterTimeout, the execution's outcome is
	// request.TimedOut and its error is a *failure.TimeoutError. A
	// request whose guard is lost to a closed timeout.Scheduler ends
	// as request.Failed instead, and does not fire AfterTimeout.
	AfterTimeout
	// AfterEnd identifies the event that occurs exactly once per
	// execution, after it reaches its terminal outcome and before the
	// callback is invoked.
	//
	// When Client fires AfterEnd, the execution's end time, outcome,
	// and either body or error are set, and no further changes will be
	// made to it.
	AfterEnd
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel

	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"BeforeStart",
	"AfterRedirect",
	"AfterResponseStart",
	"AfterChunk",
	"AfterTimeout",
	"AfterEnd",
}

// Events returns a slice containing all events which can occur in a
// request execution by Client, in the order in which they would occur.
func Events() []Event {
	return []Event{
		BeforeStart,
		AfterRedirect,
		AfterResponseStart,
		AfterChunk,
		AfterTimeout,
		AfterEnd,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
