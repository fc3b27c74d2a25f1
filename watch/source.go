// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"sync"
	"time"

	"github.com/displaykit/displaywatch/lib/clock"
)

// source is the notification strategy behind the watch loop. All
// three implementations drive the same detector: every return from
// next is followed by exactly one detection cycle.
type source interface {
	// next blocks until something suggests a change (a kernel event,
	// a screen-change notification, or a periodic timeout). It
	// returns false once the source has been closed, and the loop
	// exits.
	next() bool
	// close releases the source and unblocks a pending next. Safe to
	// call more than once and from any goroutine.
	close() error
}

// splitSleepStep caps each individual sleep so a stop request is
// honored promptly even with long poll intervals.
const splitSleepStep = 200 * time.Millisecond

// pollSource wakes on a fixed interval, unconditionally.
type pollSource struct {
	interval time.Duration
	clk      clock.Clock

	stop chan struct{}
	once sync.Once
}

func newPollSource(interval time.Duration, clk clock.Clock) *pollSource {
	return &pollSource{
		interval: interval,
		clk:      clk,
		stop:     make(chan struct{}),
	}
}

func (s *pollSource) next() bool {
	remaining := s.interval
	for remaining > 0 {
		step := remaining
		if step > splitSleepStep {
			step = splitSleepStep
		}
		select {
		case <-s.stop:
			return false
		case <-s.clk.After(step):
		}
		remaining -= step
	}
	return true
}

func (s *pollSource) close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
