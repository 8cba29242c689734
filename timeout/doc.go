// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout arms and disarms request timeouts.
//
// A Policy decides the timeout of a request whose plan does not carry
// one. A Scheduler runs the delayed timeout actions of many requests
// on a single goroutine and timer, handing out a cancellable Token for
// each one.
//
// Create one Scheduler when the program starts and close it when the
// program ends, or use DefaultScheduler:
//
//	s := timeout.NewScheduler()
//	defer s.Close()
//	tok := s.Schedule(5*time.Second, func() { ... })
//	...
//	if tok.Disarm() {
//		// The action will never run.
//	}
package timeout
