// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package failure defines the errors a streamed request can end with,
// and classifies arbitrary errors into a small set of kinds suitable for
// logging and metrics.
//
// Every failure is terminal. Nothing in streamx retries, so a Kind only
// describes what went wrong, never whether to try again.
package failure
