// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package engine defines the Transport Engine a streamx client drives, and
provides an implementation on top of net/http.

An Engine owns connection setup, TLS, protocol framing and connection
pooling. It exposes four asynchronous primitives on each request it
starts (start, read into a buffer, follow a redirect, cancel) and
reports progress by delivering discrete Event values to a Sink:

	req := eng.Start(plan, func(ev engine.Event) {
		switch ev.Kind {
		case engine.Redirect:
			req.FollowRedirect()
		case engine.ResponseStarted, engine.ReadCompleted:
			req.Read(buf)
		...
		}
	})

Events for one request are delivered one at a time, in order. After a
Succeeded, Failed or Canceled event, no further events are delivered.

Construct one Engine when the program starts, share it between all
requests, and Close it when the program ends.
*/
package engine
