// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package i2cdev

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/displaykit/displaywatch/lib/clock"
)

// ErrFlockTimeout reports that another process held the device lock
// for the entire bounded wait.
var ErrFlockTimeout = errors.New("i2cdev: cross-process lock timeout")

// FlockOptions bounds the wait for the cross-process device lock.
type FlockOptions struct {
	// PollInterval is the delay between lock attempts.
	PollInterval time.Duration

	// MaxWait caps the total time spent waiting. Zero means a single
	// non-blocking attempt.
	MaxWait time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock
}

// DefaultFlockOptions matches the upstream defaults: retry every
// 100ms for up to 3 seconds.
func DefaultFlockOptions() FlockOptions {
	return FlockOptions{
		PollInterval: 100 * time.Millisecond,
		MaxWait:      3 * time.Second,
	}
}

// Flock acquires an exclusive advisory lock on the open device,
// serializing access to the display across processes. Each attempt is
// non-blocking (LOCK_EX|LOCK_NB); contention is retried every
// PollInterval until MaxWait elapses, then ErrFlockTimeout is
// returned.
//
// This is distinct from the in-process display lock: flock coordinates
// independent processes, the lock manager coordinates goroutines.
func Flock(device *Device, opts FlockOptions) error {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var waited time.Duration
	for attempt := 0; ; attempt++ {
		err := unix.Flock(int(device.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("flock on i2c bus %d: %w", device.Busno, err)
		}
		if waited >= opts.MaxWait {
			return fmt.Errorf("i2c bus %d held by another process after %d attempts: %w",
				device.Busno, attempt+1, ErrFlockTimeout)
		}
		clk.Sleep(opts.PollInterval)
		waited += opts.PollInterval
	}
}

// Funlock releases the advisory lock. Closing the device also
// releases it.
func Funlock(device *Device) error {
	if err := unix.Flock(int(device.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlocking i2c bus %d: %w", device.Busno, err)
	}
	return nil
}
