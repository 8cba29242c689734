// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"time"

	"github.com/gogama/streamx/request"
)

// A Policy decides the timeout of a request plan whose own Timeout
// field is zero.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	Timeout(p *request.Plan) time.Duration
}

// DefaultReadTimeout is the timeout DefaultPolicy gives read-only
// requests, which are typically short polls of a status endpoint.
const DefaultReadTimeout = 1 * time.Second

// DefaultWriteTimeout is the timeout DefaultPolicy gives requests that
// carry a body, which are typically uploads.
const DefaultWriteTimeout = 30 * time.Second

// DefaultPolicy is the default timeout policy. It uses
// DefaultReadTimeout for read-only requests and DefaultWriteTimeout for
// requests that write a body.
var DefaultPolicy Policy = ByMethod(Fixed(DefaultReadTimeout), Fixed(DefaultWriteTimeout))

// Forever is the longest representable timeout. A request whose
// timeout is Forever is never timed out.
const Forever time.Duration = 1<<63 - 1

// Infinite is a policy which never times out.
var Infinite Policy = Fixed(Forever)

// Fixed constructs a policy that returns d for every plan.
//
// A timeout of zero disables the timeout, so Fixed(0) behaves like
// Infinite: the request is never timed out, and runs until the engine
// reports a terminal event. Fixed panics if d is negative.
func Fixed(d time.Duration) Policy {
	if d < 0 {
		panic("streamx/timeout: negative timeout")
	}
	return fixed(d)
}

type fixed time.Duration

func (f fixed) Timeout(_ *request.Plan) time.Duration {
	return time.Duration(f)
}

// ByMethod constructs a policy that delegates to read for read-only
// plans and to write for plans that write a body, as reported by
// request.Plan.Writes.
func ByMethod(read, write Policy) Policy {
	if read == nil || write == nil {
		panic("streamx/timeout: nil policy")
	}
	return byMethod{read: read, write: write}
}

type byMethod struct {
	read  Policy
	write Policy
}

func (b byMethod) Timeout(p *request.Plan) time.Duration {
	if p.Writes() {
		return b.write.Timeout(p)
	}
	return b.read.Timeout(p)
}

// Resolve returns the plan's own timeout if it is set, and otherwise
// the timeout chosen by policy.
func Resolve(policy Policy, p *request.Plan) time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return policy.Timeout(p)
}
