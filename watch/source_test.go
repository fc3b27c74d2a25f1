// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"testing"
	"time"

	"github.com/displaykit/displaywatch/lib/clock"
)

func TestPollSourceWakesAfterInterval(t *testing.T) {
	clk := clock.Fake(time.Unix(1000, 0))
	src := newPollSource(2*time.Second, clk)

	got := make(chan bool, 1)
	go func() { got <- src.next() }()

	// The interval is slept in bounded steps so stop stays prompt.
	for i := 0; i < 10; i++ {
		clk.BlockUntil(1)
		clk.Advance(splitSleepStep)
	}
	select {
	case v := <-got:
		if !v {
			t.Error("next returned false without close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("next did not return after the full interval")
	}
}

func TestPollSourceCloseUnblocks(t *testing.T) {
	clk := clock.Fake(time.Unix(1000, 0))
	src := newPollSource(time.Hour, clk)

	got := make(chan bool, 1)
	go func() { got <- src.next() }()
	clk.BlockUntil(1)

	src.close()
	select {
	case v := <-got:
		if v {
			t.Error("next returned true after close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("close did not unblock next")
	}
	// Close is idempotent and next stays false.
	src.close()
	if src.next() {
		t.Error("next after close returned true")
	}
}

func TestRelevantUevent(t *testing.T) {
	drm := []byte("change@/devices/pci0000:00/0000:00:02.0/drm/card0\x00ACTION=change\x00SUBSYSTEM=drm\x00HOTPLUG=1")
	if !relevantUevent(drm) {
		t.Error("drm uevent not recognized")
	}
	i2c := []byte("add@/devices/platform/i2c-9\x00ACTION=add\x00SUBSYSTEM=i2c-dev\x00MINOR=9")
	if !relevantUevent(i2c) {
		t.Error("i2c-dev uevent not recognized")
	}
	usb := []byte("add@/devices/usb1\x00ACTION=add\x00SUBSYSTEM=usb")
	if relevantUevent(usb) {
		t.Error("unrelated subsystem treated as relevant")
	}
	if relevantUevent(nil) {
		t.Error("empty uevent treated as relevant")
	}
}
