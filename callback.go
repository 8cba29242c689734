// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package streamx

import "github.com/gogama/streamx/failure"

// A Callback receives the result of one submitted request. For every
// call to Client.Submit, exactly one of its methods is called exactly
// once, on a goroutine owned by the engine or the timeout scheduler.
type Callback interface {
	// Success receives the complete response body, decoded as UTF-8.
	// The body may be empty. A non-2XX status code is not an error.
	Success(body string)
	// Error receives the reason the request failed or timed out.
	Error(err error)
}

// Callbacks adapts a pair of functions to the Callback interface. A nil
// function ignores its result.
type Callbacks struct {
	OnSuccess func(body string)
	OnError   func(err error)
}

// Success calls c.OnSuccess, if set.
func (c Callbacks) Success(body string) {
	if c.OnSuccess != nil {
		c.OnSuccess(body)
	}
}

// Error calls c.OnError, if set.
func (c Callbacks) Error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// NonEmpty wraps cb so that an empty successful body is reported to
// cb.Error as failure.ErrEmptyBody instead of to cb.Success.
func NonEmpty(cb Callback) Callback {
	if cb == nil {
		panic("streamx: nil callback")
	}
	return nonEmpty{cb}
}

type nonEmpty struct {
	Callback
}

func (n nonEmpty) Success(body string) {
	if body == "" {
		n.Callback.Error(failure.ErrEmptyBody)
		return
	}
	n.Callback.Success(body)
}
