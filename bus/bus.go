// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus maintains the registry of known I2C buses: one record
// per bus number, carrying accessibility flags, the monitor's EDID
// when one is attached, and the DRM connector association. The watch
// loop creates, reprobes, and removes records as buses come and go.
package bus

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/displaykit/displaywatch/connector"
	"github.com/displaykit/displaywatch/lib/edid"
	"github.com/displaykit/displaywatch/lib/i2cdev"
)

// Flags records what probing established about a bus.
type Flags uint16

const (
	// FlagExists: the /dev/i2c-N node is present.
	FlagExists Flags = 1 << iota
	// FlagAccessible: the node could be opened read/write.
	FlagAccessible
	// FlagProbed: a probe has run since the record was created or reset.
	FlagProbed
	// FlagEDIDAddr: a device answers at slave address 0x50.
	FlagEDIDAddr
	// FlagDDCAddr: a device answers at slave address 0x37.
	FlagDDCAddr
	// FlagSysfsEDID: the EDID came from the connector's sysfs
	// attribute rather than an I2C read.
	FlagSysfsEDID
	// FlagLaptop: the bus drives a built-in panel (eDP, LVDS, DSI)
	// and will never speak DDC/CI.
	FlagLaptop
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagExists, "exists"},
	{FlagAccessible, "accessible"},
	{FlagProbed, "probed"},
	{FlagEDIDAddr, "edid-addr"},
	{FlagDDCAddr, "ddc-addr"},
	{FlagSysfsEDID, "sysfs-edid"},
	{FlagLaptop, "laptop"},
}

// Has reports whether all bits in want are set.
func (f Flags) Has(want Flags) bool { return f&want == want }

func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	if parts == nil {
		return "none"
	}
	return strings.Join(parts, "|")
}

// FoundBy says how a record's connector association was established.
type FoundBy int

const (
	// NotFound: no connector is associated with the bus.
	NotFound FoundBy = iota
	// ByBusno: a connector directly names this bus.
	ByBusno
	// ByEDID: matched through the EDID when no connector names the bus.
	ByEDID
)

func (f FoundBy) String() string {
	switch f {
	case ByBusno:
		return "busno"
	case ByEDID:
		return "edid"
	}
	return "not-found"
}

// Record is the registry's view of one I2C bus. Records are owned by
// the registry; callers mutate them only through Probe and Reset.
type Record struct {
	Busno int
	Flags Flags
	// EDID is nil exactly when no monitor is attached.
	EDID *edid.EDID
	// Connector association, empty/-1 when Found is NotFound.
	ConnectorName string
	ConnectorID   int
	Found         FoundBy
	// LastDPMSAsleep is the sleep state observed by the most recent
	// DPMS pass, used to emit asleep/awake transitions.
	LastDPMSAsleep bool
}

func (r *Record) String() string {
	return fmt.Sprintf("bus /dev/i2c-%d flags=%s connector=%q found=%s edid=%v",
		r.Busno, r.Flags, r.ConnectorName, r.Found, r.EDID)
}

// Registry holds at most one record per bus number.
type Registry struct {
	dir     *connector.Directory
	devRoot string
	log     *slog.Logger

	mu      sync.Mutex
	records map[int]*Record
}

// NewRegistry returns an empty registry reading device nodes from
// devRoot (normally "/dev") and connector state from dir.
func NewRegistry(dir *connector.Directory, devRoot string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		dir:     dir,
		devRoot: devRoot,
		log:     log,
		records: make(map[int]*Record),
	}
}

// Get returns the record for busno, or nil.
func (reg *Registry) Get(busno int) *Record {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.records[busno]
}

// GetOrCreate returns the record for busno, creating an unprobed one
// when none exists. The second return reports creation.
func (reg *Registry) GetOrCreate(busno int) (*Record, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rec, ok := reg.records[busno]; ok {
		return rec, false
	}
	rec := &Record{Busno: busno, ConnectorID: -1}
	reg.records[busno] = rec
	return rec, true
}

// Remove deletes the record for busno, if any. Used when the device
// node itself disappears.
func (reg *Registry) Remove(busno int) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.records, busno)
}

// Reset returns a record to the unprobed state: accessibility and
// probe results are cleared, but the connector association survives
// so a reconnected display can be matched to where it was. Reset is
// only reached when the device node is still present (a vanished node
// deletes the record instead), so FlagExists survives too.
func (reg *Registry) Reset(rec *Record) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	rec.Flags &= FlagExists
	rec.EDID = nil
	rec.LastDPMSAsleep = false
}

// Probe refreshes a record from the device node and the connector
// directory. rescan forces a fresh connector scan first. Probe
// failures degrade (missing attributes clear the corresponding
// flags); they are never errors.
func (reg *Registry) Probe(rec *Record, rescan bool) {
	// All I/O happens before the registry mutex is taken: the
	// connector scan, the device-node open, and the address probes.
	snap := reg.dir.Snapshot(rescan)

	var nodeFlags Flags
	if i2cdev.Exists(reg.devRoot, rec.Busno) {
		nodeFlags |= FlagExists
		if dev, err := i2cdev.Open(reg.devRoot, rec.Busno); err == nil {
			nodeFlags |= FlagAccessible
			if dev.RespondsAt(i2cdev.EDIDAddr) {
				nodeFlags |= FlagEDIDAddr
			}
			if dev.RespondsAt(i2cdev.DDCAddr) {
				nodeFlags |= FlagDDCAddr
			}
			dev.Close()
		}
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	// Keep the previous EDID around: when no connector names this
	// bus directly it is the only key left for the EDID match.
	priorEDID := rec.EDID
	rec.Flags = FlagProbed | nodeFlags
	rec.EDID = nil

	entry := snap.ByBusno(rec.Busno)
	found := ByBusno
	if entry == nil && priorEDID != nil {
		entry = snap.ByEDID(priorEDID.Raw)
		found = ByEDID
	}
	if entry == nil {
		rec.ConnectorName = ""
		rec.ConnectorID = -1
		rec.Found = NotFound
		reg.log.Debug("bus probe: no connector", "busno", rec.Busno)
		return
	}

	rec.ConnectorName = entry.Name
	rec.ConnectorID = entry.ID
	rec.Found = found
	if entry.Laptop() {
		rec.Flags |= FlagLaptop
	}
	if entry.Parsed != nil {
		rec.EDID = entry.Parsed
		rec.Flags |= FlagSysfsEDID
	}
	reg.log.Debug("bus probe", "busno", rec.Busno,
		"connector", rec.ConnectorName, "flags", rec.Flags.String())
}

// Each calls fn for every record under the registry mutex, in bus
// number order. fn must not call back into the registry.
func (reg *Registry) Each(fn func(*Record)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, busno := range reg.sortedBusnosLocked() {
		fn(reg.records[busno])
	}
}

// Report returns a multi-line human-readable summary.
func (reg *Registry) Report() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "bus registry: %d records\n", len(reg.records))
	for _, busno := range reg.sortedBusnosLocked() {
		fmt.Fprintf(&b, "  %s\n", reg.records[busno])
	}
	return b.String()
}

func (reg *Registry) sortedBusnosLocked() []int {
	busnos := make([]int, 0, len(reg.records))
	for busno := range reg.records {
		busnos = append(busnos, busno)
	}
	sort.Ints(busnos)
	return busnos
}
