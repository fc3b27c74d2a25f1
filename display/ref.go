// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/displaykit/displaywatch/lib/clock"
	"github.com/displaykit/displaywatch/lib/edid"
)

// Dispno values below 1 are not real display numbers.
const (
	// DispnoInvalid marks a reference whose display turned out not to
	// be usable.
	DispnoInvalid = 0
	// DispnoTransient marks a reference created mid-hotplug, before a
	// number is assigned.
	DispnoTransient = -1
)

// Ref is one display reference. The identifying fields are set at
// creation and never change; Removed and Dispno are managed by the
// registry.
type Ref struct {
	Path      IOPath
	CreatedAt time.Time
	// seq breaks CreatedAt ties: fake clocks and coarse system clocks
	// can hand two references the same timestamp.
	seq uint64

	// Dispno is the user-visible display number, assigned once the
	// display is known usable.
	Dispno int
	// EDID identifies the monitor; nil for a reference created before
	// the EDID settled.
	EDID *edid.EDID

	ConnectorName string
	ConnectorID   int

	// Removed is set when the display detaches. Removed references
	// stay in the registry as tombstones.
	Removed bool
}

func (r *Ref) String() string {
	state := "live"
	if r.Removed {
		state = "removed"
	}
	return fmt.Sprintf("ref %s dispno=%d connector=%q %s", r.Path, r.Dispno, r.ConnectorName, state)
}

// RefRegistry owns every reference ever created in this process.
type RefRegistry struct {
	clk clock.Clock
	log *slog.Logger

	mu         sync.Mutex
	refs       []*Ref
	nextSeq    uint64
	nextDispno int
}

// NewRefRegistry returns an empty registry. clk may be nil for the
// real clock.
func NewRefRegistry(clk clock.Clock, log *slog.Logger) *RefRegistry {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}
	return &RefRegistry{clk: clk, log: log, nextDispno: 1}
}

// Add creates a live reference for the path and assigns it the next
// display number.
func (rr *RefRegistry) Add(path IOPath, id *edid.EDID, connectorName string, connectorID int) *Ref {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	ref := &Ref{
		Path:          path,
		CreatedAt:     rr.clk.Now(),
		seq:           rr.nextSeq,
		Dispno:        rr.nextDispno,
		EDID:          id,
		ConnectorName: connectorName,
		ConnectorID:   connectorID,
	}
	rr.nextSeq++
	rr.nextDispno++
	rr.refs = append(rr.refs, ref)
	return ref
}

// MarkRemoved tombstones a reference. Idempotent.
func (rr *RefRegistry) MarkRemoved(ref *Ref) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	ref.Removed = true
}

// FindLive returns the live reference for a path, or nil. With
// ignoreInvalid, references whose display number was invalidated are
// skipped too. When more than one live reference exists for the key
// (which a correct event sequence never produces) the newest is kept
// and the others are tombstoned, with an error logged; detection must
// keep working after a missed removal event.
func (rr *RefRegistry) FindLive(path IOPath, ignoreInvalid bool) *Ref {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.findLiveLocked(path.String(), ignoreInvalid, func(ref *Ref) bool {
		return ref.Path == path
	})
}

// FindLiveByConnector is FindLive keyed on the connector name,
// healing duplicates the same way.
func (rr *RefRegistry) FindLiveByConnector(name string, ignoreInvalid bool) *Ref {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.findLiveLocked(name, ignoreInvalid, func(ref *Ref) bool {
		return ref.ConnectorName == name
	})
}

func (rr *RefRegistry) findLiveLocked(key string, ignoreInvalid bool, match func(*Ref) bool) *Ref {
	var live []*Ref
	for _, ref := range rr.refs {
		if ref.Removed || !match(ref) {
			continue
		}
		if ignoreInvalid && ref.Dispno == DispnoInvalid {
			continue
		}
		live = append(live, ref)
	}
	if len(live) == 0 {
		return nil
	}
	newest := live[0]
	for _, ref := range live[1:] {
		if ref.CreatedAt.After(newest.CreatedAt) ||
			(ref.CreatedAt.Equal(newest.CreatedAt) && ref.seq > newest.seq) {
			newest = ref
		}
	}
	if len(live) > 1 {
		rr.log.Error("multiple live references for one key",
			"key", key, "count", len(live), "kept_dispno", newest.Dispno)
		for _, ref := range live {
			if ref != newest {
				ref.Removed = true
			}
		}
	}
	return newest
}

// Invalidate marks a reference's display number invalid without
// removing it, for displays that attached but never became usable.
func (rr *RefRegistry) Invalidate(ref *Ref) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	ref.Dispno = DispnoInvalid
}

// All returns a copy of the reference list, tombstones included.
func (rr *RefRegistry) All() []*Ref {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	out := make([]*Ref, len(rr.refs))
	copy(out, rr.refs)
	return out
}

// Report returns a multi-line human-readable summary.
func (rr *RefRegistry) Report() string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "display references: %d\n", len(rr.refs))
	for _, ref := range rr.refs {
		fmt.Fprintf(&b, "  %s\n", ref)
	}
	return b.String()
}
