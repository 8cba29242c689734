// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package engine

import (
	"net/http"

	"github.com/gogama/streamx/request"
)

// An Engine starts requests.
//
// Implementations must be safe for concurrent use by multiple
// goroutines.
type Engine interface {
	// Start begins executing the plan asynchronously and returns a
	// handle on the in-flight request. Events are delivered to sink on
	// a goroutine owned by the engine, never from within Start itself.
	Start(p *request.Plan, sink Sink) Request
}

// A Request is a handle on one in-flight request. None of its methods
// block.
type Request interface {
	// Read asks the engine to read the next part of the response body
	// into buf. It may only be called after a ResponseStarted or
	// ReadCompleted event, and only once per such event. The caller must
	// not touch buf until the next event is delivered.
	Read(buf []byte)
	// FollowRedirect asks the engine to continue to the location given
	// in the last Redirect event.
	FollowRedirect()
	// Cancel asks the engine to abandon the request. It is best-effort
	// and idempotent; a Canceled event follows unless the request
	// already reached another terminal event.
	Cancel()
}

// A Sink receives the events of one request.
type Sink func(Event)

// An EventKind identifies what happened to a request.
type EventKind int

const (
	// Redirect means the server answered with a redirect. Location
	// holds the absolute URL to follow.
	Redirect EventKind = iota
	// ResponseStarted means the final response headers have arrived
	// and the body is ready to read.
	ResponseStarted
	// ReadCompleted means a Read finished. N holds the number of bytes
	// written into the buffer, which is always positive.
	ReadCompleted
	// Succeeded means the whole response body has been read.
	Succeeded
	// Failed means the request failed. Err holds the cause.
	Failed
	// Canceled means the request was cancelled through Request.Cancel.
	Canceled
)

var kindNames = []string{
	"Redirect",
	"ResponseStarted",
	"ReadCompleted",
	"Succeeded",
	"Failed",
	"Canceled",
}

// String returns the name of the event kind.
func (k EventKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "EventKind(?)"
	}
	return kindNames[k]
}

// Terminal reports whether no events follow an event of kind k.
func (k EventKind) Terminal() bool {
	return k == Succeeded || k == Failed || k == Canceled
}

// An Event is one step in the life of a request.
type Event struct {
	Kind EventKind
	// Info describes the most recent response. It is nil if no
	// response has been received, for example on a connection failure.
	Info *ResponseInfo
	// Location is the redirect target of a Redirect event.
	Location string
	// N is the number of bytes read by a ReadCompleted event.
	N int
	// Err is the cause of a Failed event.
	Err error
}

// ResponseInfo describes a response received by the engine.
type ResponseInfo struct {
	// URL is the URL the response came from.
	URL string
	// URLChain lists the URLs requested so far, starting with the plan
	// URL and ending with URL.
	URLChain []string
	// StatusCode and Status are the response status, for example 200
	// and "200 OK".
	StatusCode int
	Status     string
	// Proto is the protocol the response was received over, for
	// example "HTTP/1.1" or "HTTP/2.0".
	Proto string
	// Header holds the response header fields.
	Header http.Header
	// ReceivedBytes counts the body bytes received so far.
	ReceivedBytes int64
}
