// Copyright 2021 The streamx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Arm when the scheduler has been closed.
var ErrClosed = errors.New("streamx/timeout: scheduler closed")

// DefaultScheduler is the process-wide scheduler used by clients that
// are not given one explicitly. It is never closed.
var DefaultScheduler = &Scheduler{}

// A Scheduler runs delayed actions. It is meant to be shared by every
// request in the process: all pending actions wait on one goroutine and
// one timer, however many requests are in flight.
//
// The zero value is ready to use. Its goroutine starts on the first
// call to Schedule. A Scheduler is safe for concurrent use by multiple
// goroutines.
type Scheduler struct {
	once   sync.Once
	mu     sync.Mutex
	queue  tokenQueue
	closed bool
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// A Token represents one scheduled action. It is released from its
// scheduler exactly once: either when the action fires, or when the
// token is disarmed first.
type Token struct {
	s        *Scheduler
	deadline time.Time
	f        func()
	index    int // position in the scheduler queue, or -1 once released
}

// NewScheduler returns a new, empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) init() {
	s.once.Do(func() {
		s.wake = make(chan struct{}, 1)
		s.done = make(chan struct{})
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.wg.Add(1)
			go s.loop()
		}
	})
}

// Schedule arranges for f to run on its own goroutine once d has
// elapsed, and returns a Token which can prevent it.
//
// Schedule panics if f is nil or the scheduler is closed.
func (s *Scheduler) Schedule(d time.Duration, f func()) *Token {
	t, err := s.Arm(d, f)
	if err != nil {
		panic("streamx/timeout: schedule on closed scheduler")
	}
	return t
}

// Arm is like Schedule, except that it returns ErrClosed instead of
// panicking if the scheduler is closed. It still panics if f is nil.
func (s *Scheduler) Arm(d time.Duration, f func()) (*Token, error) {
	if f == nil {
		panic("streamx/timeout: nil action")
	}
	s.init()

	t := &Token{s: s, deadline: time.Now().Add(d), f: f}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	heap.Push(&s.queue, t)
	first := t.index == 0
	s.mu.Unlock()

	if first {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return t, nil
}

// Disarm prevents the token's action from running. It reports true if
// the call released the token, and false if the action had already
// fired or the token had already been disarmed. Disarm is idempotent.
func (t *Token) Disarm() bool {
	if t == nil {
		return false
	}
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&s.queue, t.index)
	return true
}

// Pending reports whether the token's action is still waiting to fire.
func (t *Token) Pending() bool {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.index >= 0
}

// Len returns the number of actions waiting to fire.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close stops the scheduler goroutine and fires every pending action
// at once, ahead of its deadline, so that nothing waiting on a token
// is left stranded. Close waits for the goroutine to exit but not for
// the actions to finish. Calling Close more than once has no further
// effect.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.queue
	for _, t := range pending {
		t.index = -1
	}
	s.queue = nil
	s.mu.Unlock()

	s.init()
	close(s.done)
	s.wg.Wait()

	for _, t := range pending {
		go t.f()
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		var due []*Token
		wait := time.Duration(-1)

		s.mu.Lock()
		now := time.Now()
		for len(s.queue) > 0 && !s.queue[0].deadline.After(now) {
			due = append(due, heap.Pop(&s.queue).(*Token))
		}
		if len(s.queue) > 0 {
			wait = s.queue[0].deadline.Sub(now)
		}
		s.mu.Unlock()

		for _, t := range due {
			go t.f()
		}

		var expired <-chan time.Time
		if wait >= 0 {
			timer.Reset(wait)
			expired = timer.C
		} else {
			timer.Stop()
		}

		select {
		case <-expired:
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// tokenQueue is a min-heap of tokens ordered by deadline.
type tokenQueue []*Token

func (q tokenQueue) Len() int { return len(q) }

func (q tokenQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }

func (q tokenQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *tokenQueue) Push(x interface{}) {
	t := x.(*Token)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *tokenQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
