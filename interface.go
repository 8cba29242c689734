// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package streamx

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gogama/streamx/request"
)

// Submitter is the interface that wraps the basic Submit method.
//
// Submit starts executing an HTTP request plan and reports its result
// to the callback exactly once. Client implements the Submitter
// interface, and any other Submitter implementation must behave
// substantially the same as Client.Submit.
//
// Any Submitter can be converted into an Executor via the Inflate
// function.
type Submitter interface {
	Submit(p *request.Plan, cb Callback)
}

// Doer is the interface that wraps the basic Do method.
//
// Do executes an HTTP request plan, waits for it to end, and returns
// the final execution state (and error, if any). Client implements the
// Doer interface.
type Doer interface {
	Do(p *request.Plan) (*request.Execution, error)
}

// Getter is the interface that wraps the basic Get method.
//
// Get creates an HTTP request plan to issue a GET to the specified URL
// and submits it. Client implements the Getter interface.
//
// Any Submitter can be used to emulate a Getter via the Get function.
type Getter interface {
	Get(url string, cb Callback) error
}

// Poster is the interface that wraps the basic Post method.
//
// Post creates an HTTP request plan to issue a POST to the specified
// URL and submits it. Client implements the Poster interface.
//
// The body parameter may be nil for an empty body, or may be any of the
// types supported by request.NewPlan and request.BodyBytes, namely:
// string; []byte; url.Values; io.Reader; and io.ReadCloser.
//
// Any Submitter can be used to emulate a Poster via the Post function.
type Poster interface {
	Post(url, contentType string, body interface{}, cb Callback) error
}

// JSONPoster is the interface that wraps the basic PostJSON method.
//
// Any Submitter can be used to emulate a JSONPoster via the PostJSON
// function.
type JSONPoster interface {
	PostJSON(url string, body interface{}, cb Callback) error
}

// ImagePoster is the interface that wraps the basic PostImage method.
//
// Any Submitter can be used to emulate an ImagePoster via the PostImage
// function.
type ImagePoster interface {
	PostImage(url string, image []byte, cb Callback) error
}

// IdleCloser is the interface that wraps the basic CloseIdleConnections
// method.
//
// If the underlying implementation supports it, CloseIdleConnections
// closes any connections which were previously connected from previous
// requests but are now sitting idle in a "keep-alive" state. It does
// not interrupt any connections currently in use.
//
// If the underlying implementation does not support this ability,
// CloseIdleConnections does nothing.
type IdleCloser interface {
	CloseIdleConnections()
}

// Executor is the interface that groups the basic Submit, Get, Post,
// PostJSON, PostImage, and CloseIdleConnections methods.
//
// Any Submitter can be converted into an Executor via the Inflate
// function.
type Executor interface {
	Submitter
	Getter
	Poster
	JSONPoster
	ImagePoster
	IdleCloser
}

// Get uses the specified Submitter to issue a GET to the specified URL.
//
// An error is returned, and cb is never called, if the plan cannot be
// created. To make a request plan with custom headers, use
// request.NewPlan and s.Submit.
func Get(s Submitter, url string, cb Callback) error {
	return submit(s, "GET", url, "", nil, cb)
}

// Post uses the specified Submitter to issue a POST to the specified
// URL.
func Post(s Submitter, url, contentType string, body interface{}, cb Callback) error {
	return submit(s, "POST", url, contentType, body, cb)
}

// PostJSON uses the specified Submitter to issue a POST to the
// specified URL with a JSON body.
//
// If body is a string, []byte, or json.RawMessage, it is sent as is.
// Otherwise it is encoded with encoding/json. The Content-Type header
// is set to application/json.
func PostJSON(s Submitter, url string, body interface{}, cb Callback) error {
	switch b := body.(type) {
	case string, []byte:
	case json.RawMessage:
		body = []byte(b)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("streamx: failed to encode JSON body: %w", err)
		}
		body = data
	}
	return submit(s, "POST", url, "application/json", body, cb)
}

// PostImage uses the specified Submitter to issue a POST to the
// specified URL whose body is the standard base64 encoding of image,
// sent as text/plain.
func PostImage(s Submitter, url string, image []byte, cb Callback) error {
	return submit(s, "POST", url, "text/plain", base64.StdEncoding.EncodeToString(image), cb)
}

func submit(s Submitter, method, url, contentType string, body interface{}, cb Callback) error {
	if cb == nil {
		panic("streamx: nil callback")
	}
	p, err := request.NewPlan(method, url, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		p.Header.Set("Content-Type", contentType)
	}
	s.Submit(p, cb)
	return nil
}

// Inflate converts any Submitter into an Executor.
//
// If the Submitter is already an Executor, it is returned as is. The
// CloseIdleConnections method of the returned Executor is forwarded to
// the Submitter if it is an IdleCloser, and otherwise does nothing.
func Inflate(s Submitter) Executor {
	if s == nil {
		panic("streamx: nil submitter")
	}

	if x, ok := s.(Executor); ok {
		return x
	}

	return inflated{s}
}

type inflated struct {
	Submitter
}

func (i inflated) Get(url string, cb Callback) error {
	return Get(i.Submitter, url, cb)
}

func (i inflated) Post(url, contentType string, body interface{}, cb Callback) error {
	return Post(i.Submitter, url, contentType, body, cb)
}

func (i inflated) PostJSON(url string, body interface{}, cb Callback) error {
	return PostJSON(i.Submitter, url, body, cb)
}

func (i inflated) PostImage(url string, image []byte, cb Callback) error {
	return PostImage(i.Submitter, url, image, cb)
}

func (i inflated) CloseIdleConnections() {
	if ic, ok := i.Submitter.(IdleCloser); ok {
		ic.CloseIdleConnections()
	}
}
