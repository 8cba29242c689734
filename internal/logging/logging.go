// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package logging builds the zap-backed logr logger used by the streamx
// command, and names the verbosity levels used throughout the module.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels, for use with logr.Logger.V.
const (
	DEFAULT = 0
	VERBOSE = 1
	DEBUG   = 2
	TRACE   = 3
)

// New creates a logger which writes entries up to the given verbosity
// level. A development logger writes human-readable console output;
// otherwise entries are JSON encoded. The returned sync function
// flushes buffered entries and should be called before the program
// exits.
func New(level int, development bool) (logr.Logger, func(), error) {
	if level < DEFAULT {
		return logr.Discard(), func() {}, fmt.Errorf("streamx/logging: negative level %d", level)
	}
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-level))
	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("streamx/logging: failed to build logger: %w", err)
	}
	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}
