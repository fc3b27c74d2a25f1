// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysfstest builds synthetic sysfs trees under a test
// temporary directory, shaped like the parts of /sys that the
// connector and watch packages read.
package sysfstest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// BusVia says how a connector's directory exposes its I2C bus.
type BusVia int

const (
	// NoBus leaves the connector with no resolvable bus.
	NoBus BusVia = iota
	// Subdir creates a direct i2c-N subdirectory (HDMI, DVI style).
	Subdir
	// DDCLink creates a ddc symlink pointing at the bus device.
	DDCLink
	// AuxChannel creates drm_dp_aux0/i2c-dev/i2c-N (DisplayPort style).
	AuxChannel
)

// Connector describes one synthetic connector directory.
type Connector struct {
	Name    string
	Status  string // defaults to "disconnected"
	Enabled bool
	DPMS    string // defaults to "On"
	EDID    []byte
	ID      int // connector_id; written when > 0
	Via     BusVia
	Busno   int
}

// Tree is a synthetic sysfs root. All mutations fail the test on
// filesystem errors.
type Tree struct {
	Root string

	t *testing.T
}

// New creates an empty tree with a card0 device and an i2c bus
// device directory, rooted in a fresh temp dir.
func New(t *testing.T) *Tree {
	t.Helper()
	tr := &Tree{Root: t.TempDir(), t: t}
	tr.mkdir("class", "drm", "card0")
	tr.mkdir("bus", "i2c", "devices")
	return tr
}

// AddConnector materializes a connector directory with the given
// attributes and returns its name.
func (tr *Tree) AddConnector(c Connector) string {
	tr.t.Helper()
	if c.Status == "" {
		c.Status = "disconnected"
	}
	if c.DPMS == "" {
		c.DPMS = "On"
	}
	dir := tr.mkdir("class", "drm", c.Name)
	tr.writeFile(filepath.Join(dir, "status"), []byte(c.Status+"\n"))
	tr.writeFile(filepath.Join(dir, "dpms"), []byte(c.DPMS+"\n"))
	enabled := "disabled"
	if c.Enabled {
		enabled = "enabled"
	}
	tr.writeFile(filepath.Join(dir, "enabled"), []byte(enabled+"\n"))
	tr.writeFile(filepath.Join(dir, "edid"), c.EDID)
	if c.ID > 0 {
		tr.writeFile(filepath.Join(dir, "connector_id"), []byte(fmt.Sprintf("%d\n", c.ID)))
	}

	busDir := fmt.Sprintf("i2c-%d", c.Busno)
	switch c.Via {
	case Subdir:
		tr.mkdir("class", "drm", c.Name, busDir)
		tr.AddBusDevice(c.Busno)
	case DDCLink:
		target := tr.mkdir("devices", "synthetic", busDir)
		if err := os.Symlink(target, filepath.Join(dir, "ddc")); err != nil {
			tr.t.Fatal(err)
		}
		tr.AddBusDevice(c.Busno)
	case AuxChannel:
		tr.mkdir("class", "drm", c.Name, "drm_dp_aux0", "i2c-dev", busDir)
		tr.AddBusDevice(c.Busno)
	}
	return c.Name
}

// RemoveConnector deletes a connector directory, simulating the
// kernel tearing it down.
func (tr *Tree) RemoveConnector(name string) {
	tr.t.Helper()
	if err := os.RemoveAll(filepath.Join(tr.Root, "class", "drm", name)); err != nil {
		tr.t.Fatal(err)
	}
}

// AddBusDevice registers i2c-N under bus/i2c/devices.
func (tr *Tree) AddBusDevice(busno int) {
	tr.t.Helper()
	tr.mkdir("bus", "i2c", "devices", fmt.Sprintf("i2c-%d", busno))
}

// RemoveBusDevice unregisters i2c-N from bus/i2c/devices.
func (tr *Tree) RemoveBusDevice(busno int) {
	tr.t.Helper()
	path := filepath.Join(tr.Root, "bus", "i2c", "devices", fmt.Sprintf("i2c-%d", busno))
	if err := os.RemoveAll(path); err != nil {
		tr.t.Fatal(err)
	}
}

// SetEDID rewrites a connector's edid attribute; nil truncates it,
// simulating disconnect.
func (tr *Tree) SetEDID(name string, raw []byte) {
	tr.t.Helper()
	tr.writeFile(filepath.Join(tr.Root, "class", "drm", name, "edid"), raw)
}

// SetDPMS rewrites a connector's dpms attribute.
func (tr *Tree) SetDPMS(name, state string) {
	tr.t.Helper()
	tr.writeFile(filepath.Join(tr.Root, "class", "drm", name, "dpms"), []byte(state+"\n"))
}

// SetStatus rewrites a connector's status attribute.
func (tr *Tree) SetStatus(name, status string) {
	tr.t.Helper()
	tr.writeFile(filepath.Join(tr.Root, "class", "drm", name, "status"), []byte(status+"\n"))
}

func (tr *Tree) mkdir(parts ...string) string {
	tr.t.Helper()
	path := filepath.Join(append([]string{tr.Root}, parts...)...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		tr.t.Fatal(err)
	}
	return path
}

func (tr *Tree) writeFile(path string, data []byte) {
	tr.t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tr.t.Fatal(err)
	}
}
