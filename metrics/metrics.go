// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package metrics records Prometheus metrics about the requests made by
// a streamx client.
//
// Create a Collector, register it, and install it into the client's
// handler group before the client is used:
//
//	c := metrics.New()
//	prometheus.MustRegister(c)
//	handlers := &streamx.HandlerGroup{}
//	c.Install(handlers)
//	client := &streamx.Client{Handlers: handlers}
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogama/streamx"
	"github.com/gogama/streamx/failure"
	"github.com/gogama/streamx/request"
)

// Namespace prefixes every metric name.
const Namespace = "streamx"

// A Collector is a prometheus.Collector holding the metrics of every
// request made by the clients it is installed in.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseBytes   prometheus.Histogram
	redirectsTotal  prometheus.Counter
	inFlight        prometheus.Gauge
}

// New creates a Collector. The Collector is not registered.
func New() *Collector {
	return &Collector{
		// requestsTotal counts ended requests by outcome, and by the
		// failure kind of those which did not succeed.
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "requests_total",
				Help:      "Total requests ended, by method, outcome and failure reason.",
			},
			[]string{"method", "outcome", "reason"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from start to end of each request.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "outcome"},
		),
		// responseBytes buckets run from 64 bytes to 16 MiB.
		responseBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "response_bytes",
				Help:      "Size of the response body of each successful request.",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
			},
		),
		redirectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "redirects_total",
				Help:      "Total redirects followed.",
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "requests_in_flight",
				Help:      "Requests submitted but not yet ended.",
			},
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requestsTotal.Describe(ch)
	c.requestDuration.Describe(ch)
	c.responseBytes.Describe(ch)
	c.redirectsTotal.Describe(ch)
	c.inFlight.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requestsTotal.Collect(ch)
	c.requestDuration.Collect(ch)
	c.responseBytes.Collect(ch)
	c.redirectsTotal.Collect(ch)
	c.inFlight.Collect(ch)
}

// Install adds the Collector's event handlers to the back of the
// relevant handler chains in g.
func (c *Collector) Install(g *streamx.HandlerGroup) {
	g.PushBack(streamx.BeforeStart, c)
	g.PushBack(streamx.AfterRedirect, c)
	g.PushBack(streamx.AfterEnd, c)
}

// Handle implements streamx.Handler.
func (c *Collector) Handle(evt streamx.Event, e *request.Execution) {
	switch evt {
	case streamx.BeforeStart:
		c.inFlight.Inc()
	case streamx.AfterRedirect:
		c.redirectsTotal.Inc()
	case streamx.AfterEnd:
		c.inFlight.Dec()
		method := e.Plan.Method
		outcome := e.Outcome.String()
		c.requestsTotal.WithLabelValues(method, outcome, failure.Classify(e.Err).String()).Inc()
		c.requestDuration.WithLabelValues(method, outcome).Observe(e.Duration().Seconds())
		if e.Outcome == request.Succeeded {
			c.responseBytes.Observe(float64(e.Bytes))
		}
	}
}
