// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package i2cdev

import (
	"golang.org/x/sys/unix"
)

// I2C slave addresses that matter for display detection: 0x50 answers
// with the EDID, 0x37 is the DDC/CI command address.
const (
	EDIDAddr = 0x50
	DDCAddr  = 0x37
)

// ioctl request selecting the slave address for subsequent reads.
const i2cSlave = 0x0703

// RespondsAt reports whether a device answers at the given slave
// address, by selecting the address and attempting a one-byte read.
// Any failure (including on file systems that are not real I2C
// devices) reads as "no device".
func (d *Device) RespondsAt(addr int) bool {
	if err := unix.IoctlSetInt(int(d.file.Fd()), i2cSlave, addr); err != nil {
		return false
	}
	buf := make([]byte, 1)
	n, err := unix.Read(int(d.file.Fd()), buf)
	return err == nil && n == 1
}
