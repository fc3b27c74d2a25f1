// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package display tracks display references over time and arbitrates
// exclusive access to them. A reference identifies one attached
// monitor for the span of one attachment: disconnect and reconnect of
// the same physical monitor produces a new reference.
package display

import "fmt"

// IOType says how a display is reached.
type IOType int

const (
	// IOI2C: via an I2C bus device node.
	IOI2C IOType = iota
	// IOUSB: via a USB HID device. Reserved for USB-monitor support;
	// nothing creates these yet.
	IOUSB
)

// IOPath is the comparable access-path identity of a display. For I2C
// it is the bus number; two references to the same bus share the path
// and therefore the same lock.
type IOPath struct {
	Type  IOType
	Busno int
}

// I2C returns the path for an I2C bus number.
func I2C(busno int) IOPath { return IOPath{Type: IOI2C, Busno: busno} }

func (p IOPath) String() string {
	switch p.Type {
	case IOI2C:
		return fmt.Sprintf("i2c-%d", p.Busno)
	case IOUSB:
		return fmt.Sprintf("usb-%d", p.Busno)
	}
	return fmt.Sprintf("unknown-%d", p.Busno)
}
