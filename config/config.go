// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads the settings of the streamx command from dotenv
// files, STREAMX_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/gogama/streamx"
	"github.com/gogama/streamx/internal/logging"
	"github.com/gogama/streamx/timeout"
)

// Prefix starts the name of every environment variable read by Load.
const Prefix = "STREAMX_"

// DefaultServerURL is the server the command talks to when none is
// configured.
const DefaultServerURL = "http://192.168.1.66:3000"

// Config holds the settings of the streamx command.
type Config struct {
	// ServerURL is the base URL relative request paths are resolved
	// against.
	ServerURL string
	// ReadTimeout is the timeout of requests which do not write a body.
	ReadTimeout time.Duration
	// UploadTimeout is the timeout of requests which write a body.
	UploadTimeout time.Duration
	// MaxRedirects, MaxBodyBytes and BufferSize are passed on to the
	// same-named fields of streamx.Client.
	MaxRedirects int
	MaxBodyBytes int64
	BufferSize   int
	// HTTP2 enables HTTP/2 over TLS.
	HTTP2 bool
	// LogLevel is the highest logging verbosity written, from
	// logging.DEFAULT to logging.TRACE.
	LogLevel int
	// LogDevelopment selects human-readable console logs.
	LogDevelopment bool
	// MetricsAddr, if set, is the address metrics are served on.
	MetricsAddr string
	// Concurrency bounds the number of requests in flight at once.
	Concurrency int
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ServerURL:     DefaultServerURL,
		ReadTimeout:   timeout.DefaultReadTimeout,
		UploadTimeout: timeout.DefaultWriteTimeout,
		MaxRedirects:  streamx.DefaultMaxRedirects,
		BufferSize:    streamx.DefaultBufferSize,
		HTTP2:         true,
		LogLevel:      logging.DEFAULT,
		Concurrency:   4,
	}
}

// Load returns the default configuration overridden by the environment.
//
// The given dotenv files are loaded into the environment first, without
// overriding variables which are already set. If no files are given,
// ".env" is loaded if it exists. Every malformed variable is reported
// in the returned error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("streamx/config: failed to load env files: %w", err)
		}
	}

	c := Default()
	var err error
	c.ServerURL = getString("SERVER_URL", c.ServerURL)
	c.ReadTimeout = getDuration("READ_TIMEOUT", c.ReadTimeout, &err)
	c.UploadTimeout = getDuration("UPLOAD_TIMEOUT", c.UploadTimeout, &err)
	c.MaxRedirects = getInt("MAX_REDIRECTS", c.MaxRedirects, &err)
	c.MaxBodyBytes = int64(getInt("MAX_BODY_BYTES", int(c.MaxBodyBytes), &err))
	c.BufferSize = getInt("BUFFER_SIZE", c.BufferSize, &err)
	c.HTTP2 = getBool("HTTP2", c.HTTP2, &err)
	c.LogLevel = getInt("LOG_LEVEL", c.LogLevel, &err)
	c.LogDevelopment = getBool("LOG_DEVELOPMENT", c.LogDevelopment, &err)
	c.MetricsAddr = getString("METRICS_ADDR", c.MetricsAddr)
	c.Concurrency = getInt("CONCURRENCY", c.Concurrency, &err)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// BindFlags registers a flag for each setting in fs. The current values
// of c are the flag defaults, and parsing fs overwrites them.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ServerURL, "server", c.ServerURL, "base URL of the server")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "timeout of requests without a body")
	fs.DurationVar(&c.UploadTimeout, "upload-timeout", c.UploadTimeout, "timeout of requests with a body")
	fs.IntVar(&c.MaxRedirects, "max-redirects", c.MaxRedirects, "redirects to follow (negative: none)")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", c.MaxBodyBytes, "response body size limit (0: unlimited)")
	fs.IntVar(&c.BufferSize, "buffer-size", c.BufferSize, "read buffer size in bytes")
	fs.BoolVar(&c.HTTP2, "http2", c.HTTP2, "enable HTTP/2 over TLS")
	fs.IntVarP(&c.LogLevel, "verbosity", "v", c.LogLevel, "log verbosity (0-3)")
	fs.BoolVar(&c.LogDevelopment, "log-dev", c.LogDevelopment, "human-readable logs")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address to serve /metrics on")
	fs.IntVarP(&c.Concurrency, "concurrency", "c", c.Concurrency, "maximum requests in flight")
}

// Validate reports every invalid setting in c.
func (c *Config) Validate() error {
	var err error
	if c.ServerURL != "" {
		u, parseErr := url.Parse(c.ServerURL)
		if parseErr != nil {
			err = multierr.Append(err, fmt.Errorf("streamx/config: invalid server URL: %w", parseErr))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			err = multierr.Append(err, fmt.Errorf("streamx/config: server URL %q must use http or https", c.ServerURL))
		}
	}
	if c.ReadTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("streamx/config: read timeout must be positive, not %s", c.ReadTimeout))
	}
	if c.UploadTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("streamx/config: upload timeout must be positive, not %s", c.UploadTimeout))
	}
	if c.MaxBodyBytes < 0 {
		err = multierr.Append(err, fmt.Errorf("streamx/config: negative body size limit %d", c.MaxBodyBytes))
	}
	if c.BufferSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("streamx/config: buffer size must be positive, not %d", c.BufferSize))
	}
	if c.LogLevel < logging.DEFAULT || c.LogLevel > logging.TRACE {
		err = multierr.Append(err, fmt.Errorf("streamx/config: log level %d out of range [%d, %d]", c.LogLevel, logging.DEFAULT, logging.TRACE))
	}
	if c.Concurrency < 1 {
		err = multierr.Append(err, fmt.Errorf("streamx/config: concurrency must be at least 1, not %d", c.Concurrency))
	}
	return err
}

// TimeoutPolicy returns the timeout policy described by c.
func (c *Config) TimeoutPolicy() timeout.Policy {
	return timeout.ByMethod(timeout.Fixed(c.ReadTimeout), timeout.Fixed(c.UploadTimeout))
}

// Apply copies the request settings of c into client.
func (c *Config) Apply(client *streamx.Client) {
	client.TimeoutPolicy = c.TimeoutPolicy()
	client.MaxRedirects = c.MaxRedirects
	client.MaxBodyBytes = c.MaxBodyBytes
	client.BufferSize = c.BufferSize
}

// Resolve resolves ref against the server URL. Absolute references are
// returned unchanged.
func (c *Config) Resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if r.IsAbs() {
		return ref, nil
	}
	if c.ServerURL == "" {
		return "", errors.New("streamx/config: relative URL " + strconv.Quote(ref) + " without server URL")
	}
	base, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(r).String(), nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(Prefix + key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int, errp *error) int {
	v := getString(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		*errp = multierr.Append(*errp, fmt.Errorf("streamx/config: %s%s: %w", Prefix, key, err))
		return def
	}
	return i
}

func getBool(key string, def bool, errp *error) bool {
	v := getString(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errp = multierr.Append(*errp, fmt.Errorf("streamx/config: %s%s: %w", Prefix, key, err))
		return def
	}
	return b
}

func getDuration(key string, def time.Duration, errp *error) time.Duration {
	v := getString(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errp = multierr.Append(*errp, fmt.Errorf("streamx/config: %s%s: %w", Prefix, key, err))
		return def
	}
	return d
}
