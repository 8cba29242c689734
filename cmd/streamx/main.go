// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command streamx sends streamed HTTP requests from the command line.
//
// Usage:
//
//	streamx [flags] get URL...
//	streamx [flags] post URL --data DATA [--type TYPE]
//	streamx [flags] post-json URL --data JSON
//	streamx [flags] upload-image URL FILE
//
// Relative URLs are resolved against --server. Response bodies are
// written to standard output, and the exit status is 1 if any request
// failed.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/gogama/streamx"
	"github.com/gogama/streamx/config"
	"github.com/gogama/streamx/engine"
	"github.com/gogama/streamx/internal/logging"
	"github.com/gogama/streamx/metrics"
	"github.com/gogama/streamx/timeout"
)

const usage = `usage: streamx [flags] COMMAND ARGS...

commands:
  get URL...               GET each URL
  post URL --data DATA     POST DATA with content type --type
  post-json URL --data J   POST the JSON document J
  upload-image URL FILE    POST FILE, base64 encoded

flags:
`

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	cfg        *config.Config
	client     *streamx.Client
	log        logr.Logger
	stdout     io.Writer
	mu         sync.Mutex
	data       string
	mediaType  string
	allowEmpty bool
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	cmd := &command{cfg: cfg, stdout: stdout}
	fs := pflag.NewFlagSet("streamx", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	cfg.BindFlags(fs)
	fs.StringVarP(&cmd.data, "data", "d", "", "request body for post and post-json")
	fs.StringVarP(&cmd.mediaType, "type", "t", "text/plain", "content type for post")
	fs.BoolVar(&cmd.allowEmpty, "allow-empty", false, "treat an empty response body as a success")
	if err = fs.Parse(args); err != nil {
		return 2
	}
	if err = cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	log, flush, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer flush()
	cmd.log = log

	eng, err := engine.New(engine.Options{HTTP2: cfg.HTTP2, Logger: log})
	if err != nil {
		log.Error(err, "Failed to create engine")
		return 1
	}
	defer func() { _ = eng.Close() }()
	scheduler := timeout.NewScheduler()
	defer scheduler.Close()

	handlers := &streamx.HandlerGroup{}
	collector := metrics.New()
	collector.Install(handlers)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, collector, log)
		defer func() { _ = srv.Close() }()
	}

	cmd.client = &streamx.Client{
		Engine:    eng,
		Scheduler: scheduler,
		Handlers:  handlers,
		Logger:    log,
	}
	cfg.Apply(cmd.client)

	err = cmd.dispatch(fs.Args())
	if errors.Is(err, errUsage) {
		fs.Usage()
		return 2
	} else if err != nil {
		return 1
	}
	return 0
}

func serveMetrics(addr string, c prometheus.Collector, log logr.Logger) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Metrics server failed", "addr", addr)
		}
	}()
	log.V(logging.VERBOSE).Info("Serving metrics", "addr", addr)
	return srv
}

func (cmd *command) dispatch(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]
	switch name {
	case "get":
		if len(args) == 0 {
			return errUsage
		}
		return cmd.get(args)
	case "post":
		if len(args) != 1 {
			return errUsage
		}
		return cmd.one(args[0], func(url string, cb streamx.Callback) error {
			return cmd.client.Post(url, cmd.mediaType, cmd.data, cb)
		})
	case "post-json":
		if len(args) != 1 {
			return errUsage
		}
		return cmd.one(args[0], func(url string, cb streamx.Callback) error {
			return cmd.client.PostJSON(url, cmd.data, cb)
		})
	case "upload-image":
		if len(args) != 2 {
			return errUsage
		}
		image, err := os.ReadFile(args[1])
		if err != nil {
			cmd.log.Error(err, "Failed to read image", "file", args[1])
			return err
		}
		return cmd.one(args[0], func(url string, cb streamx.Callback) error {
			return cmd.client.PostImage(url, image, cb)
		})
	default:
		return errUsage
	}
}

// get fetches every URL, with at most cfg.Concurrency requests in
// flight, and returns the first error.
func (cmd *command) get(urls []string) error {
	var g errgroup.Group
	g.SetLimit(cmd.cfg.Concurrency)
	for _, ref := range urls {
		ref := ref
		g.Go(func() error {
			return cmd.one(ref, func(url string, cb streamx.Callback) error {
				if !cmd.allowEmpty {
					cb = streamx.NonEmpty(cb)
				}
				return cmd.client.Get(url, cb)
			})
		})
	}
	return g.Wait()
}

// one resolves ref, submits a request for it, waits for the result and
// prints the body.
func (cmd *command) one(ref string, submit func(url string, cb streamx.Callback) error) error {
	url, err := cmd.cfg.Resolve(ref)
	if err != nil {
		cmd.log.Error(err, "Invalid URL", "url", ref)
		return err
	}
	body, err := await(func(cb streamx.Callback) error { return submit(url, cb) })
	if err != nil {
		cmd.log.Error(err, "Request failed", "url", url)
		return err
	}
	cmd.mu.Lock()
	defer cmd.mu.Unlock()
	_, err = fmt.Fprintln(cmd.stdout, body)
	return err
}

type result struct {
	body string
	err  error
}

// await submits a request through submit and blocks until its callback
// is called.
func await(submit func(streamx.Callback) error) (string, error) {
	ch := make(chan result, 1)
	err := submit(streamx.Callbacks{
		OnSuccess: func(body string) { ch <- result{body: body} },
		OnError:   func(err error) { ch <- result{err: err} },
	})
	if err != nil {
		return "", err
	}
	r := <-ch
	return r.body, r.err
}
