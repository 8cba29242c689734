// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package failure

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrTooManyRedirects is the cause of a failure when a request
	// exceeds the client's redirect limit.
	ErrTooManyRedirects = errors.New("streamx: too many redirects")
	// ErrBodyTooLarge is the cause of a failure when the response body
	// exceeds the client's body size limit.
	ErrBodyTooLarge = errors.New("streamx: response body too large")
	// ErrCanceled is the cause of a failure when the engine reports the
	// request cancelled without the client asking for it.
	ErrCanceled = errors.New("streamx: request canceled")
	// ErrEmptyBody is reported by callers that treat an empty response
	// body as an error. The client itself reports empty bodies as
	// successes.
	ErrEmptyBody = errors.New("Empty response from server")
)

// A TimeoutError reports that a request did not reach a terminal state
// within its timeout.
type TimeoutError struct {
	// After is the timeout that expired.
	After time.Duration
}

// Error returns a message of the form "Request timed out after N
// seconds".
func (e *TimeoutError) Error() string {
	return "Request timed out after " + seconds(e.After) + " seconds"
}

// Timeout always returns true.
func (e *TimeoutError) Timeout() bool {
	return true
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// A TransportError reports a failure detected while sending a request
// or receiving its response. Its message is the message of the
// underlying cause, unchanged.
type TransportError struct {
	// Method and URL identify the request that failed.
	Method string
	URL    string
	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying cause is a timeout.
func (e *TransportError) Timeout() bool {
	var t hasTimeout
	return errors.As(e.Err, &t) && t.Timeout()
}
