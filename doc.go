// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package streamx provides an asynchronous HTTP client which streams the
response body in chunks and reports each request's result to a callback
exactly once, even when a timeout races against the end of the
response.

Create a Client to begin making requests.

	client := &streamx.Client{}
	err := client.Get("http://192.168.1.66:3000/status", streamx.Callbacks{
		OnSuccess: func(body string) { ... },
		OnError:   func(err error) { ... },
	})
	...
	err := client.PostJSON("http://192.168.1.66:3000/sensor", payload, cb)
	...
	err := client.PostImage("http://192.168.1.66:3000/upload", jpeg, cb)

The callback runs on a goroutine owned by the client's engine or timeout
scheduler. To wait for the result instead, use Do:

	ex, err := client.Do(plan)

For control over how requests are sent, build an engine once at startup
and close it at shutdown:

	eng, err := engine.New(engine.Options{HTTP2: true})
	...
	defer eng.Close()
	client := &streamx.Client{
		Engine: eng,
	}

Requests time out after one second if they only read, and after thirty
seconds if they write a body. For other timeouts, set a timeout policy
using package timeout, or set Timeout on an individual request plan:

	client := &streamx.Client{
		TimeoutPolicy: timeout.Fixed(5*time.Second),
	}

To hook into the details of the client's request execution logic,
install a handler into the appropriate handler chain:

	handlers := &streamx.HandlerGroup{}
	handlers.PushBack(streamx.AfterChunk, streamx.HandlerFunc(
		func(_ streamx.Event, e *request.Execution) {
			log.Printf("Chunk %d of %s (%d bytes so far)", e.Chunks, e.ID, e.Bytes)
		}),
	)
	client := &streamx.Client{
		Handlers: handlers,
	}

Package metrics provides a ready-made set of handlers which record
Prometheus metrics.

Package streamx also provides basic interfaces for each method of the
client (Submitter, Doer, Getter, Poster, JSONPoster, ImagePoster, and
IdleCloser); a combined interface (Executor); and utility functions for
working with a Submitter (Inflate, Get, Post, PostJSON, and PostImage).
*/
package streamx
