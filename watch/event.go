// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch detects display attach, detach, and DPMS sleep
// transitions and delivers them to registered callbacks. One watch
// loop goroutine owns all detection state; callbacks run on that
// goroutine, synchronously, in registration order.
package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/displaykit/displaywatch/display"
)

// EventType identifies what happened to a display.
type EventType int

const (
	// Connected: a display appeared and its EDID settled.
	Connected EventType = iota
	// Disconnected: a display went away.
	Disconnected
	// DPMSAsleep: a connected display entered a DPMS sleep state.
	DPMSAsleep
	// DPMSAwake: a sleeping display woke.
	DPMSAwake
)

func (t EventType) String() string {
	switch t {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case DPMSAsleep:
		return "dpms-asleep"
	case DPMSAwake:
		return "dpms-awake"
	}
	return fmt.Sprintf("event-type-%d", int(t))
}

// Class returns the event class the type belongs to.
func (t EventType) Class() EventClass {
	switch t {
	case DPMSAsleep, DPMSAwake:
		return ClassDPMS
	}
	return ClassConnection
}

// EventClass selects which kinds of events a watch reports.
type EventClass uint8

const (
	// ClassConnection: connect and disconnect events.
	ClassConnection EventClass = 1 << iota
	// ClassDPMS: sleep and wake events.
	ClassDPMS

	// ClassAll watches everything.
	ClassAll = ClassConnection | ClassDPMS
)

func (c EventClass) String() string {
	var parts []string
	if c&ClassConnection != 0 {
		parts = append(parts, "connection")
	}
	if c&ClassDPMS != 0 {
		parts = append(parts, "dpms")
	}
	if parts == nil {
		return "none"
	}
	return strings.Join(parts, ",")
}

// ParseClasses parses a comma-separated class list as written on the
// command line or in the config file.
func ParseClasses(s string) (EventClass, error) {
	var c EventClass
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case "connection":
			c |= ClassConnection
		case "dpms":
			c |= ClassDPMS
		case "all":
			c |= ClassAll
		case "":
		default:
			return 0, fmt.Errorf("unknown event class %q", part)
		}
	}
	return c, nil
}

// Event is one display state change.
type Event struct {
	// Timestamp is when the change was detected, not when the kernel
	// saw it.
	Timestamp time.Time
	Type      EventType
	// ConnectorName is the DRM connector involved, "" when the bus
	// had no known connector.
	ConnectorName string
	// Path locates the display.
	Path display.IOPath
	// Ref is the display reference the event concerns. Nil for
	// changes on buses that never had a usable display.
	Ref *display.Ref
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s connector=%q", e.Type, e.Path, e.ConnectorName)
}
