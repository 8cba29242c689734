// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogama/streamx"
	"github.com/gogama/streamx/engine"
	"github.com/gogama/streamx/failure"
	"github.com/gogama/streamx/internal/testserver"
	"github.com/gogama/streamx/request"
	"github.com/gogama/streamx/timeout"
)

func newExecution(t *testing.T, method string) *request.Execution {
	p, err := request.NewPlan(method, "http://192.168.1.66:3000/upload", nil)
	require.NoError(t, err)
	return &request.Execution{Plan: p, Start: time.Now()}
}

func end(e *request.Execution, outcome request.Outcome, err error) {
	e.End = e.Start.Add(150 * time.Millisecond)
	e.Outcome = outcome
	e.Err = err
}

func TestCollector_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	require.NoError(t, reg.Register(c))
	assert.Error(t, reg.Register(New()), "duplicate metrics must be rejected")
}

func TestCollector_Handle(t *testing.T) {
	c := New()

	ok := newExecution(t, "GET")
	c.Handle(streamx.BeforeStart, ok)
	c.Handle(streamx.AfterRedirect, ok)
	c.Handle(streamx.AfterRedirect, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))
	ok.Bytes = 100
	end(ok, request.Succeeded, nil)
	c.Handle(streamx.AfterEnd, ok)

	timedOut := newExecution(t, "POST")
	c.Handle(streamx.BeforeStart, timedOut)
	end(timedOut, request.TimedOut, &failure.TimeoutError{After: time.Second})
	c.Handle(streamx.AfterEnd, timedOut)

	refused := newExecution(t, "GET")
	c.Handle(streamx.BeforeStart, refused)
	end(refused, request.Failed, &failure.TransportError{Err: errors.New("connection refused")})
	c.Handle(streamx.AfterEnd, refused)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.redirectsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GET", "succeeded", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("POST", "timed_out", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GET", "failed", "transport")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.requestDuration))

	expected := `
# HELP streamx_response_bytes Size of the response body of each successful request.
# TYPE streamx_response_bytes histogram
streamx_response_bytes_bucket{le="64"} 0
streamx_response_bytes_bucket{le="256"} 1
streamx_response_bytes_bucket{le="1024"} 1
streamx_response_bytes_bucket{le="4096"} 1
streamx_response_bytes_bucket{le="16384"} 1
streamx_response_bytes_bucket{le="65536"} 1
streamx_response_bytes_bucket{le="262144"} 1
streamx_response_bytes_bucket{le="1.048576e+06"} 1
streamx_response_bytes_bucket{le="4.194304e+06"} 1
streamx_response_bytes_bucket{le="1.6777216e+07"} 1
streamx_response_bytes_bucket{le="+Inf"} 1
streamx_response_bytes_sum 100
streamx_response_bytes_count 1
`
	assert.NoError(t, testutil.CollectAndCompare(c.responseBytes, strings.NewReader(expected)))
}

func TestCollector_Install(t *testing.T) {
	server := httptest.NewServer(testserver.Handler())
	defer server.Close()
	eng, err := engine.New(engine.Options{})
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()
	s := timeout.NewScheduler()
	defer s.Close()

	c := New()
	g := &streamx.HandlerGroup{}
	c.Install(g)
	client := &streamx.Client{Engine: eng, Scheduler: s, Handlers: g}

	i := testserver.Redirect(http.StatusFound, testserver.Text("hello"))
	p, err := request.NewPlan("GET", i.URL(server), nil)
	require.NoError(t, err)
	_, err = client.Do(p)
	require.NoError(t, err)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.redirectsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("GET", "succeeded", "none")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.responseBytes))
}
