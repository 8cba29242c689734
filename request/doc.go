// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the core types Plan (describes a streamed HTTP
request) and Execution (describes the state of one Plan execution).

Create a plan and submit it to a client:

	p, err := request.NewPlan("GET", "http://example.com/status", nil)
	...
	p.Timeout = 2 * time.Second
	client.Submit(p, callback)

A plan may carry a context. Cancelling it fails the request; the client
reports the failure through the callback like any other.

	p, err := request.NewPlanWithContext(ctx, "POST", "http://example.com/upload", body)

The Execution is created by the client when the plan is submitted. Event
handlers observe it as the request is started, redirected, and read, and
once it reaches its terminal Outcome.
*/
package request
