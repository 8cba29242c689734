// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package failure

import (
	"context"
	"errors"
	"syscall"
)

// A Kind is the category of a terminal request error, as reported by
// Classify.
type Kind int

const (
	// None is the kind of a nil error.
	None Kind = iota
	// Timeout indicates the request ran out of time, either because its
	// own timeout expired (TimeoutError) or because the error or any of
	// its wrapped causes has a Timeout() method reporting true.
	Timeout
	// ConnRefused indicates the remote host refused the connection
	// (syscall.ECONNREFUSED in the error chain).
	ConnRefused
	// ConnReset indicates the remote host reset a previously active
	// connection (syscall.ECONNRESET in the error chain).
	ConnReset
	// Redirect indicates the redirect limit was exceeded.
	Redirect
	// TooLarge indicates the response body limit was exceeded.
	TooLarge
	// Canceled indicates the request was cancelled from outside the
	// client, for example through the plan context.
	Canceled
	// EmptyBody indicates a caller rejected an empty response body.
	EmptyBody
	// Transport indicates any other failure reported by the engine.
	Transport
)

var kindNames = []string{
	"none",
	"timeout",
	"conn_refused",
	"conn_reset",
	"redirect",
	"too_large",
	"canceled",
	"empty_body",
	"transport",
}

// String returns the name of the kind, suitable for use as a metric
// label.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Classify returns the kind of err, looking at the wrapped causes
// within err as well as err itself. Classify never inspects a
// Temporary() method, as its semantics aren't clear.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return None
	case errors.Is(err, ErrEmptyBody):
		return EmptyBody
	case errors.Is(err, ErrTooManyRedirects):
		return Redirect
	case errors.Is(err, ErrBodyTooLarge):
		return TooLarge
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return Canceled
	}

	var t hasTimeout
	if errors.As(err, &t) && t.Timeout() {
		return Timeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED:
			return ConnRefused
		case syscall.ECONNRESET:
			return ConnReset
		}
	}

	return Transport
}

type hasTimeout interface {
	Timeout() bool
}
