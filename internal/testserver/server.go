// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package testserver runs HTTP test servers whose responses are
// scripted by the request itself, so that tests can play with status
// codes, redirects, chunking, and pauses without a handler per case.
//
// The script is an Instruction, carried JSON-encoded in the "do" query
// parameter so that it survives redirects which drop the request body.
package testserver

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"
)

const param = "do"

// A Chunk is one part of a scripted response body. The server spreads
// Pause evenly over the bytes of Data, pausing before each byte and
// flushing after it.
type Chunk struct {
	Pause time.Duration
	Data  []byte
}

// An Instruction scripts one response.
type Instruction struct {
	// HeaderPause delays the response headers.
	HeaderPause time.Duration
	// StatusCode is the response status. Zero means 200.
	StatusCode int
	// Location, if set, is sent as the Location header. It may be an
	// absolute URL or a path on the same server.
	Location string
	// Echo replaces Body with the request method, a space, and the
	// request body.
	Echo bool
	// Body is the response body.
	Body []Chunk
}

// Text returns an instruction for a 200 response whose body is made of
// the given chunks, sent without pauses.
func Text(chunks ...string) *Instruction {
	i := &Instruction{StatusCode: http.StatusOK}
	for _, c := range chunks {
		i.Body = append(i.Body, Chunk{Data: []byte(c)})
	}
	return i
}

// Redirect returns an instruction for a redirect with the given status
// to the path of next on the same server.
func Redirect(status int, next *Instruction) *Instruction {
	return &Instruction{StatusCode: status, Location: next.Path()}
}

// Path returns the server-relative URL path carrying the instruction.
func (i *Instruction) Path() string {
	b, err := json.Marshal(i)
	if err != nil {
		panic(err)
	}
	return "/?" + param + "=" + base64.RawURLEncoding.EncodeToString(b)
}

// URL returns the absolute URL carrying the instruction on server s.
func (i *Instruction) URL(s *httptest.Server) string {
	return s.URL + i.Path()
}

func parse(req *http.Request) (*Instruction, error) {
	var i Instruction
	v := req.URL.Query().Get(param)
	if v == "" {
		return &i, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(v)
	if err != nil {
		return nil, err
	}
	if err = json.Unmarshal(b, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

// Handler serves scripted responses.
func Handler() http.Handler {
	return http.HandlerFunc(serve)
}

func serve(w http.ResponseWriter, req *http.Request) {
	i, err := parse(req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, fmt.Sprintf("failed to read instruction: %s", err.Error()))
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		panic("w does not implement Flusher")
	}

	body := i.Body
	if i.Echo {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body = []Chunk{{Data: append([]byte(req.Method+" "), b...)}}
	}

	contentLength := 0
	for _, chunk := range body {
		contentLength += len(chunk.Data)
	}
	header := w.Header()
	header.Set("Content-Length", strconv.Itoa(contentLength))
	if i.Location != "" {
		header.Set("Location", i.Location)
	}

	select {
	case <-time.After(i.HeaderPause):
	case <-req.Context().Done():
		return
	}

	status := i.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	f.Flush()

	for _, chunk := range body {
		if len(chunk.Data) == 0 {
			if !sleep(req, chunk.Pause) {
				return
			}
			continue
		}
		ppb := chunk.Pause / time.Duration(len(chunk.Data))
		for j := range chunk.Data {
			if !sleep(req, ppb) {
				return
			}
			if _, err = w.Write(chunk.Data[j : j+1]); err != nil {
				return
			}
			f.Flush()
		}
	}
}

func sleep(req *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-req.Context().Done():
		return false
	}
}

// Servers groups a plain HTTP, an HTTPS, and an HTTP/2 server, all
// serving Handler.
type Servers struct {
	HTTP  *httptest.Server
	HTTPS *httptest.Server
	HTTP2 *httptest.Server
}

// Start starts a new group of servers.
func Start() *Servers {
	s := &Servers{
		HTTP:  httptest.NewUnstartedServer(Handler()),
		HTTPS: httptest.NewUnstartedServer(Handler()),
		HTTP2: httptest.NewUnstartedServer(Handler()),
	}
	s.HTTP.Start()
	s.HTTPS.StartTLS()
	s.HTTP2.EnableHTTP2 = true
	s.HTTP2.StartTLS()
	return s
}

// All returns the servers in the group.
func (s *Servers) All() []*httptest.Server {
	return []*httptest.Server{s.HTTP, s.HTTPS, s.HTTP2}
}

// Name returns a short name for a server in the group.
func (s *Servers) Name(server *httptest.Server) string {
	switch server {
	case s.HTTP:
		return "http"
	case s.HTTPS:
		return "https"
	case s.HTTP2:
		return "http2"
	default:
		panic("unknown server")
	}
}

// Close shuts down every server in the group.
func (s *Servers) Close() {
	for _, server := range s.All() {
		server.Close()
	}
}

// Transport returns a fresh transport which trusts the certificates of
// every server in the group, and which has not been upgraded to HTTP/2.
func (s *Servers) Transport() *http.Transport {
	pool := x509.NewCertPool()
	pool.AddCert(s.HTTPS.Certificate())
	pool.AddCert(s.HTTP2.Certificate())
	return &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: pool},
	}
}
