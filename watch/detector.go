// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"log/slog"
	"time"

	"github.com/displaykit/displaywatch/bus"
	"github.com/displaykit/displaywatch/connector"
	"github.com/displaykit/displaywatch/display"
	"github.com/displaykit/displaywatch/lib/bitset"
	"github.com/displaykit/displaywatch/lib/clock"
	"github.com/displaykit/displaywatch/lib/i2cdev"
)

// Tuning holds the detector's debounce timings.
type Tuning struct {
	// ExtraStabilizeDelay is slept once before re-polling when a
	// removal is suspected. Several GPU drivers report a brief
	// disconnect during mode changes or MST renegotiation; this delay
	// absorbs those blips.
	ExtraStabilizeDelay time.Duration
	// StabilizePollInterval is the sleep between stabilization
	// re-polls.
	StabilizePollInterval time.Duration
	// MaxStabilizePolls bounds the re-poll loop; past it the cycle
	// proceeds with the last read.
	MaxStabilizePolls int
}

// DefaultTuning mirrors the timings that work on the hardware this
// was tuned against.
func DefaultTuning() Tuning {
	return Tuning{
		ExtraStabilizeDelay:   4 * time.Second,
		StabilizePollInterval: time.Second,
		MaxStabilizePolls:     8,
	}
}

// Detector turns consecutive sysfs snapshots into events. The
// previous-cycle bitset is owned by the single loop goroutine; only
// the registries it writes through are themselves locked.
type Detector struct {
	dir     *connector.Directory
	buses   *bus.Registry
	refs    *display.RefRegistry
	disp    *Dispatcher
	locks   *display.LockManager
	clk     clock.Clock
	log     *slog.Logger
	devRoot string
	tuning  Tuning
	classes EventClass

	previous bitset.Set256
	primed   bool
}

// NewDetector wires a detector over the given registries. classes
// filters which event classes are emitted; registry bookkeeping
// happens for all changes regardless. locks may be nil, in which case
// bus teardown does not wait for display locks.
func NewDetector(dir *connector.Directory, buses *bus.Registry, refs *display.RefRegistry,
	disp *Dispatcher, locks *display.LockManager, clk clock.Clock, devRoot string,
	tuning Tuning, classes EventClass, log *slog.Logger) *Detector {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}
	if tuning.MaxStabilizePolls <= 0 {
		tuning.MaxStabilizePolls = DefaultTuning().MaxStabilizePolls
	}
	return &Detector{
		dir:     dir,
		buses:   buses,
		refs:    refs,
		disp:    disp,
		locks:   locks,
		clk:     clk,
		log:     log,
		devRoot: devRoot,
		tuning:  tuning,
		classes: classes,
	}
}

// Prime runs the initial detection: records and references are
// created for everything already attached, with no events emitted.
// RunCycle calls it on first use if the caller has not.
func (d *Detector) Prime() {
	snap := d.dir.Snapshot(true)
	for _, entry := range snap.Entries {
		if entry.Busno < 0 || entry.Parsed == nil {
			continue
		}
		rec, _ := d.buses.GetOrCreate(entry.Busno)
		d.buses.Probe(rec, false)
		if rec.EDID != nil {
			ref := d.refs.Add(display.I2C(entry.Busno), rec.EDID, rec.ConnectorName, rec.ConnectorID)
			if !rec.Flags.Has(bus.FlagAccessible) {
				d.refs.Invalidate(ref)
			}
		}
	}
	d.previous = snap.EDIDBuses()
	d.primed = true
	d.log.Debug("detector primed", "buses", d.previous.String())
}

// RunCycle performs one full detection pass. When deferred is non-nil
// all events go to it, for the caller to Flush; otherwise they are
// delivered inline. Removal events always come before addition
// events, and DPMS events last.
func (d *Detector) RunCycle(deferred *[]Event) {
	if !d.primed {
		d.Prime()
		// Still run the DPMS pass: sleep state may have a baseline
		// transition to report on the very first cycle.
	}

	current := d.dir.Snapshot(true).EDIDBuses()
	removed := d.previous.Subtract(current)
	added := current.Subtract(d.previous)

	// Do not trust a disconnect immediately.
	if !removed.IsEmpty() {
		current = d.stabilize(current)
		removed = d.previous.Subtract(current)
		added = current.Subtract(d.previous)
	}

	for _, busno := range removed.Buses() {
		d.processRemoval(busno, deferred)
	}
	for _, busno := range added.Buses() {
		d.processAddition(busno, deferred)
	}

	d.previous = current

	if d.classes&ClassDPMS != 0 {
		d.dpmsPass(deferred)
	}
}

// stabilize re-reads the EDID bus set until two consecutive reads
// agree, after an initial settling delay. Bounded; on overrun the
// last read wins.
func (d *Detector) stabilize(first bitset.Set256) bitset.Set256 {
	d.clk.Sleep(d.tuning.ExtraStabilizeDelay)
	last := d.dir.Snapshot(true).EDIDBuses()
	if last == first {
		return last
	}
	for i := 0; i < d.tuning.MaxStabilizePolls; i++ {
		d.clk.Sleep(d.tuning.StabilizePollInterval)
		next := d.dir.Snapshot(true).EDIDBuses()
		if next == last {
			return last
		}
		last = next
	}
	d.log.Debug("stabilization did not converge", "buses", last.String())
	return last
}

func (d *Detector) processRemoval(busno int, deferred *[]Event) {
	rec, _ := d.buses.GetOrCreate(busno)
	connectorName := rec.ConnectorName

	ref := d.refs.FindLive(display.I2C(busno), false)
	if ref != nil {
		d.refs.MarkRemoved(ref)
		if connectorName == "" {
			connectorName = ref.ConnectorName
		}
	}
	d.emit(Event{
		Timestamp:     d.clk.Now(),
		Type:          Disconnected,
		ConnectorName: connectorName,
		Path:          display.I2C(busno),
		Ref:           ref,
	}, deferred)

	// A DDC I/O caller may still hold this display open; record
	// teardown waits until its lock is free. ErrAlreadyOpen means
	// the loop goroutine itself is the holder, which cannot deadlock.
	if d.locks != nil {
		if lk, err := d.locks.Acquire(display.I2C(busno), true); err == nil {
			d.locks.Release(lk)
		}
	}

	if !i2cdev.Exists(d.devRoot, busno) {
		// The bus itself is gone, not just the monitor behind it.
		d.buses.Remove(busno)
		return
	}
	d.buses.Reset(rec)
}

func (d *Detector) processAddition(busno int, deferred *[]Event) {
	rec, _ := d.buses.GetOrCreate(busno)
	d.buses.Probe(rec, false)
	if rec.EDID == nil {
		d.log.Debug("added bus has no EDID after probe", "busno", busno)
		return
	}
	ref := d.refs.Add(display.I2C(busno), rec.EDID, rec.ConnectorName, rec.ConnectorID)
	if !rec.Flags.Has(bus.FlagAccessible) {
		// The monitor is physically there but its bus device cannot
		// be opened, so DDC will never work; the reference keeps an
		// invalid display number until the bus comes back usable.
		d.refs.Invalidate(ref)
		d.log.Warn("display attached on unusable bus device", "busno", busno)
	}
	d.emit(Event{
		Timestamp:     d.clk.Now(),
		Type:          Connected,
		ConnectorName: rec.ConnectorName,
		Path:          display.I2C(busno),
		Ref:           ref,
	}, deferred)
}

// dpmsPass reports sleep transitions for displays that can answer
// DDC. Built-in panels are skipped: their backlight state is not a
// DDC concern.
func (d *Detector) dpmsPass(deferred *[]Event) {
	type candidate struct {
		rec           *bus.Record
		busno         int
		connectorName string
	}
	var candidates []candidate
	d.buses.Each(func(rec *bus.Record) {
		if rec.EDID == nil || rec.ConnectorName == "" || rec.Flags.Has(bus.FlagLaptop) {
			return
		}
		candidates = append(candidates, candidate{rec, rec.Busno, rec.ConnectorName})
	})

	for _, c := range candidates {
		asleep := d.dir.IsAsleep(c.connectorName)
		if asleep == c.rec.LastDPMSAsleep {
			continue
		}
		// Only the loop goroutine writes this field.
		c.rec.LastDPMSAsleep = asleep
		eventType := DPMSAwake
		if asleep {
			eventType = DPMSAsleep
		}
		ref := d.refs.FindLiveByConnector(c.connectorName, true)
		d.emit(Event{
			Timestamp:     d.clk.Now(),
			Type:          eventType,
			ConnectorName: c.connectorName,
			Path:          display.I2C(c.busno),
			Ref:           ref,
		}, deferred)
	}
}

func (d *Detector) emit(evt Event, deferred *[]Event) {
	if evt.Type.Class()&d.classes == 0 {
		return
	}
	d.disp.EmitOrQueue(evt, deferred)
}
