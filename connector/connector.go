// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package connector reads the DRM connector directories under
// /sys/class/drm and presents them as an ordered, immutable snapshot.
// Connector state on Linux only changes at hotplug time, so callers
// scan once and rescan when a change notification arrives; the two
// per-connector attributes that do move on their own (EDID presence
// and DPMS power state) have fresh-read accessors that bypass the
// snapshot.
package connector

import (
	"bytes"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/displaykit/displaywatch/lib/bitset"
	"github.com/displaykit/displaywatch/lib/edid"
	"github.com/displaykit/displaywatch/lib/sysfs"
)

// Entry is one DRM connector as read from sysfs. Entries are built
// once per scan and never mutated afterwards; a later scan produces
// new entries.
type Entry struct {
	// Name is the sysfs directory name, e.g. "card0-DP-1".
	Name string
	// ID is the DRM connector id from the connector_id attribute,
	// or -1 when the kernel does not expose one.
	ID int
	// Busno is the I2C bus number this connector drives, or -1 when
	// no bus could be resolved (typical for disconnected DP).
	Busno int
	// EDID holds the raw EDID bytes read at scan time, nil when the
	// attribute was empty.
	EDID []byte
	// Parsed is the decoded EDID, nil when EDID is nil or invalid.
	Parsed *edid.EDID

	Status  string // "connected", "disconnected", "unknown"
	Enabled bool   // the "enabled" attribute
	DPMS    string // "On", "Off", "Standby", "Suspend", or ""

	id Identifier
}

// Identifier returns the parsed form of the connector name.
func (e *Entry) Identifier() Identifier { return e.id }

// Laptop reports whether this is a built-in panel connector.
func (e *Entry) Laptop() bool { return laptopTypes[e.id.Type] }

// Connected reports whether the kernel sees a sink on this connector.
func (e *Entry) Connected() bool { return e.Status == "connected" }

// Snapshot is the result of one full scan, with entries in canonical
// order (card, connector type, instance).
type Snapshot struct {
	Entries []*Entry

	byName map[string]*Entry
}

// ByName returns the entry with the given sysfs name, or nil.
func (s *Snapshot) ByName(name string) *Entry { return s.byName[name] }

// ByBusno returns the first entry (in canonical order) that drives
// I2C bus busno, or nil.
func (s *Snapshot) ByBusno(busno int) *Entry {
	if busno < 0 {
		return nil
	}
	for _, e := range s.Entries {
		if e.Busno == busno {
			return e
		}
	}
	return nil
}

// ByEDID returns the first entry whose raw EDID matches, or nil.
func (s *Snapshot) ByEDID(raw []byte) *Entry {
	if len(raw) == 0 {
		return nil
	}
	for _, e := range s.Entries {
		if bytes.Equal(e.EDID, raw) {
			return e
		}
	}
	return nil
}

// ByID returns the entry with the given DRM connector id, or nil.
func (s *Snapshot) ByID(id int) *Entry {
	if id < 0 {
		return nil
	}
	for _, e := range s.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Find looks an entry up by whichever keys are set in the query,
// trying them in a fixed precedence: bus number, then raw EDID, then
// name, then connector id. The first key that matches wins; keys that
// are unset (negative numbers, nil or empty values) are skipped.
func (s *Snapshot) Find(q Query) *Entry {
	if e := s.ByBusno(q.Busno); e != nil {
		return e
	}
	if e := s.ByEDID(q.EDID); e != nil {
		return e
	}
	if q.Name != "" {
		if e := s.ByName(q.Name); e != nil {
			return e
		}
	}
	return s.ByID(q.ID)
}

// Query selects a connector by any subset of its identifying keys.
// Zero-value fields are treated as unset; construct with NewQuery to
// get the negative sentinels right.
type Query struct {
	Busno int
	EDID  []byte
	Name  string
	ID    int
}

// NewQuery returns a query with all keys unset.
func NewQuery() Query { return Query{Busno: -1, ID: -1} }

// EDIDBuses returns the set of resolved bus numbers belonging to
// connectors that currently expose a valid EDID. Presence alone is
// not enough: a truncated blob read mid-hotplug must not count, or
// the full EDID arriving one scan later would look like no change.
func (s *Snapshot) EDIDBuses() bitset.Set256 {
	var set bitset.Set256
	for _, e := range s.Entries {
		if e.Busno >= 0 && e.Parsed != nil {
			set = set.With(e.Busno)
		}
	}
	return set
}

// Directory scans DRM connector state from a sysfs tree. The sysfs
// root is injectable so tests can point it at a synthetic tree.
type Directory struct {
	sysRoot string
	log     *slog.Logger

	mu   sync.Mutex
	snap *Snapshot
}

// NewDirectory returns a directory reading from sysRoot (normally
// "/sys"). No scan happens until Snapshot is called.
func NewDirectory(sysRoot string, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{sysRoot: sysRoot, log: log}
}

// HasDRM reports whether any DRM card device exists. Hotplug
// detection is meaningless without one.
func (d *Directory) HasDRM() bool {
	names := sysfs.ListMatching(IsCardName, d.sysRoot, "class", "drm")
	return len(names) > 0
}

// Snapshot returns the connector snapshot, scanning sysfs when rescan
// is true or when no scan has happened yet. The returned snapshot is
// shared and must not be modified.
func (d *Directory) Snapshot(rescan bool) *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.snap == nil || rescan {
		d.snap = d.scan()
	}
	return d.snap
}

func (d *Directory) scan() *Snapshot {
	snap := &Snapshot{byName: make(map[string]*Entry)}
	names := sysfs.ListMatching(IsConnectorName, d.sysRoot, "class", "drm")
	for _, name := range names {
		e := d.readEntry(name)
		if e == nil {
			continue
		}
		snap.Entries = append(snap.Entries, e)
		snap.byName[name] = e
	}
	sortEntries(snap.Entries)
	return snap
}

// readEntry builds an Entry from one connector directory. A directory
// without a readable status attribute is not a usable connector and
// yields nil; this also covers the window where a connector vanishes
// mid-scan.
func (d *Directory) readEntry(name string) *Entry {
	id, err := ParseName(name)
	if err != nil {
		return nil
	}
	dir := []string{d.sysRoot, "class", "drm", name}

	status := sysfs.ReadString(append(dir, "status")...)
	if status == "" {
		return nil
	}

	e := &Entry{
		Name:   name,
		ID:     -1,
		Busno:  -1,
		Status: status,
		DPMS:   sysfs.ReadString(append(dir, "dpms")...),
		id:     id,
	}
	if connID, ok := sysfs.ReadInt(append(dir, "connector_id")...); ok {
		e.ID = connID
	}
	e.Enabled = sysfs.ReadString(append(dir, "enabled")...) == "enabled"
	e.EDID = sysfs.ReadBytes(append(dir, "edid")...)
	if parsed, err := edid.Parse(e.EDID); err == nil {
		e.Parsed = parsed
	}
	e.Busno = d.resolveBus(name)
	return e
}

// resolveBus finds the I2C bus number behind a connector, trying in
// order: a direct i2c-N subdirectory (HDMI, DVI), the ddc symlink
// (points at the i2c device on drivers that provide it), and finally
// the DisplayPort aux channel's i2c-dev directory. Returns -1 when
// none resolve.
func (d *Directory) resolveBus(name string) int {
	dir := []string{d.sysRoot, "class", "drm", name}

	names := sysfs.ListMatching(isI2CDevName, dir...)
	if len(names) > 0 {
		return busnoFromI2CName(names[0])
	}

	if target := sysfs.ReadLinkBase(append(dir, "ddc")...); target != "" {
		if n := busnoFromI2CName(target); n >= 0 {
			return n
		}
	}

	// DP: card0-DP-1/drm_dp_aux0/../i2c-dev/i2c-N
	auxNames := sysfs.ListMatching(func(n string) bool {
		return strings.HasPrefix(n, "drm_dp_aux")
	}, dir...)
	for _, aux := range auxNames {
		devNames := sysfs.ListMatching(isI2CDevName, append(dir, aux, "i2c-dev")...)
		if len(devNames) > 0 {
			return busnoFromI2CName(devNames[0])
		}
	}
	return -1
}

// HasEDID re-reads the EDID presence of one connector directly from
// sysfs, bypassing the snapshot. Used while waiting for a newly
// connected display to settle.
func (d *Directory) HasEDID(name string) bool {
	raw := sysfs.ReadBytes(d.sysRoot, "class", "drm", name, "edid")
	return len(raw) > 0
}

// IsAsleep re-reads the DPMS state of one connector directly from
// sysfs. Anything other than "On" counts as asleep: drivers report
// Off, Standby, Suspend and assorted casings, and a display in any
// of them will not answer DDC. A missing or unreadable attribute
// reads as awake, there being no data to say otherwise.
func (d *Directory) IsAsleep(name string) bool {
	s := sysfs.ReadString(d.sysRoot, "class", "drm", name, "dpms")
	return s != "" && s != "On"
}

// AttachedBuses returns the set of I2C bus numbers currently known to
// the kernel, from the i2c bus device list. This is the ground truth
// for which buses exist regardless of connector association.
func (d *Directory) AttachedBuses() bitset.Set256 {
	var set bitset.Set256
	names := sysfs.ListMatching(isI2CDevName, d.sysRoot, "bus", "i2c", "devices")
	for _, name := range names {
		if n := busnoFromI2CName(name); n >= 0 {
			set = set.With(n)
		}
	}
	return set
}

func isI2CDevName(name string) bool {
	return busnoFromI2CName(name) >= 0
}

func busnoFromI2CName(name string) int {
	rest, ok := strings.CutPrefix(name, "i2c-")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func sortEntries(entries []*Entry) {
	slices.SortFunc(entries, func(a, b *Entry) int {
		return Compare(a.id, b.id)
	})
}
