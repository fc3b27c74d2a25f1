// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package i2cdev provides the low-level I2C device-node primitives the
// watch subsystem consumes: existence checks, open/close, and an
// advisory cross-process lock. The DDC/CI wire protocol itself lives
// above this package.
//
// Functions take an explicit device root (normally "/dev") so tests
// can point at a synthetic directory.
package i2cdev

import (
	"fmt"
	"os"
	"path/filepath"
)

// Path returns the device node path for a bus number, e.g.
// "/dev/i2c-5".
func Path(devRoot string, busno int) string {
	return filepath.Join(devRoot, fmt.Sprintf("i2c-%d", busno))
}

// Exists reports whether the device node for the bus is present.
func Exists(devRoot string, busno int) bool {
	_, err := os.Stat(Path(devRoot, busno))
	return err == nil
}

// Device is an open I2C bus device node.
type Device struct {
	Busno int

	file *os.File
}

// Open opens the device node for the bus read/write.
func Open(devRoot string, busno int) (*Device, error) {
	file, err := os.OpenFile(Path(devRoot, busno), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus %d: %w", busno, err)
	}
	return &Device{Busno: busno, file: file}, nil
}

// Fd returns the underlying file descriptor for ioctl and flock use.
func (d *Device) Fd() uintptr { return d.file.Fd() }

// Close releases the device node. Any advisory lock held on the
// descriptor is released by the kernel as a side effect.
func (d *Device) Close() error {
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("closing i2c bus %d: %w", d.Busno, err)
	}
	return nil
}
