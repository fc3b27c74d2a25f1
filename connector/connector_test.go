// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/displaykit/displaywatch/lib/edid/edidtest"
	"github.com/displaykit/displaywatch/lib/sysfs/sysfstest"
)

func TestSnapshotScanAndOrder(t *testing.T) {
	tree := sysfstest.New(t)
	// Added out of canonical order on purpose.
	tree.AddConnector(sysfstest.Connector{Name: "card0-HDMI-A-1", Via: sysfstest.Subdir, Busno: 5})
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-2", Via: sysfstest.AuxChannel, Busno: 9})
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-1", Status: "connected", Via: sysfstest.AuxChannel, Busno: 7})

	d := NewDirectory(tree.Root, nil)
	snap := d.Snapshot(false)

	var names []string
	for _, e := range snap.Entries {
		names = append(names, e.Name)
	}
	want := []string{"card0-DP-1", "card0-DP-2", "card0-HDMI-A-1"}
	if len(names) != len(want) {
		t.Fatalf("scan found %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("scan order %v, want %v", names, want)
		}
	}
	if e := snap.ByName("card0-DP-1"); !e.Connected() {
		t.Error("card0-DP-1 not seen as connected")
	}
}

func TestBusResolution(t *testing.T) {
	tree := sysfstest.New(t)
	tree.AddConnector(sysfstest.Connector{Name: "card0-HDMI-A-1", Via: sysfstest.Subdir, Busno: 5})
	tree.AddConnector(sysfstest.Connector{Name: "card0-DVI-D-1", Via: sysfstest.DDCLink, Busno: 3})
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-1", Via: sysfstest.AuxChannel, Busno: 7})
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-2", Via: sysfstest.NoBus})

	snap := NewDirectory(tree.Root, nil).Snapshot(false)
	for name, want := range map[string]int{
		"card0-HDMI-A-1": 5,
		"card0-DVI-D-1":  3,
		"card0-DP-1":     7,
		"card0-DP-2":     -1,
	} {
		e := snap.ByName(name)
		if e == nil {
			t.Fatalf("connector %s missing from snapshot", name)
		}
		if e.Busno != want {
			t.Errorf("%s resolved bus %d, want %d", name, e.Busno, want)
		}
	}
}

func TestSnapshotCachedUntilRescan(t *testing.T) {
	tree := sysfstest.New(t)
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-1", Via: sysfstest.AuxChannel, Busno: 7})

	d := NewDirectory(tree.Root, nil)
	first := d.Snapshot(false)
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-2", Via: sysfstest.AuxChannel, Busno: 8})

	if got := d.Snapshot(false); len(got.Entries) != len(first.Entries) {
		t.Error("Snapshot(false) rescanned")
	}
	if got := d.Snapshot(true); len(got.Entries) != 2 {
		t.Errorf("Snapshot(true) found %d entries, want 2", len(got.Entries))
	}
}

func TestEntryEDIDParsed(t *testing.T) {
	tree := sysfstest.New(t)
	raw := edidtest.Block("DEL", 0xA0EC, 1234, "U2720Q")
	tree.AddConnector(sysfstest.Connector{
		Name: "card0-DP-1", Status: "connected", EDID: raw,
		Via: sysfstest.AuxChannel, Busno: 7,
	})

	e := NewDirectory(tree.Root, nil).Snapshot(false).ByName("card0-DP-1")
	if !bytes.Equal(e.EDID, raw) {
		t.Fatal("raw EDID not carried through")
	}
	if e.Parsed == nil || e.Parsed.Manufacturer != "DEL" || e.Parsed.Model != "U2720Q" {
		t.Errorf("parsed EDID = %+v", e.Parsed)
	}
}

func TestFindPrecedence(t *testing.T) {
	tree := sysfstest.New(t)
	raw := edidtest.Block("ACR", 0x0001, 99, "XB273K")
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-1", ID: 101, EDID: raw, Via: sysfstest.AuxChannel, Busno: 7})
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-2", ID: 102, Via: sysfstest.AuxChannel, Busno: 9})

	snap := NewDirectory(tree.Root, nil).Snapshot(false)

	// Bus beats every other key.
	q := NewQuery()
	q.Busno = 9
	q.EDID = raw
	q.Name = "card0-DP-1"
	if got := snap.Find(q); got.Name != "card0-DP-2" {
		t.Errorf("bus key did not take precedence, got %s", got.Name)
	}

	// EDID beats name and id.
	q = NewQuery()
	q.EDID = raw
	q.Name = "card0-DP-2"
	if got := snap.Find(q); got.Name != "card0-DP-1" {
		t.Errorf("edid key did not take precedence, got %s", got.Name)
	}

	// A stale key falls through to the next one.
	q = NewQuery()
	q.Busno = 42
	q.ID = 102
	if got := snap.Find(q); got == nil || got.Name != "card0-DP-2" {
		t.Errorf("fallthrough to id failed, got %v", got)
	}

	if got := snap.Find(NewQuery()); got != nil {
		t.Errorf("empty query matched %s", got.Name)
	}
}

func TestBusSets(t *testing.T) {
	tree := sysfstest.New(t)
	raw := edidtest.Block("DEL", 1, 1, "P2419H")
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-1", EDID: raw, Via: sysfstest.AuxChannel, Busno: 7})
	tree.AddConnector(sysfstest.Connector{Name: "card0-HDMI-A-1", Via: sysfstest.Subdir, Busno: 5})
	tree.AddBusDevice(11) // bus with no connector

	d := NewDirectory(tree.Root, nil)
	attached := d.AttachedBuses()
	for _, n := range []int{5, 7, 11} {
		if !attached.Contains(n) {
			t.Errorf("attached set missing bus %d", n)
		}
	}

	withEDID := d.Snapshot(false).EDIDBuses()
	if got := withEDID.Buses(); len(got) != 1 || got[0] != 7 {
		t.Errorf("EDID bus set = %v, want [7]", got)
	}

	// A truncated EDID must not count as present.
	tree.SetEDID("card0-DP-1", raw[:64])
	withEDID = d.Snapshot(true).EDIDBuses()
	if !withEDID.IsEmpty() {
		t.Errorf("EDID bus set with truncated EDID = %v, want empty", withEDID.Buses())
	}
}

func TestFreshReads(t *testing.T) {
	tree := sysfstest.New(t)
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-1", Via: sysfstest.AuxChannel, Busno: 7})

	d := NewDirectory(tree.Root, nil)
	d.Snapshot(false)

	if d.HasEDID("card0-DP-1") {
		t.Error("HasEDID true before EDID written")
	}
	tree.SetEDID("card0-DP-1", edidtest.Block("DEL", 1, 1, "P2419H"))
	if !d.HasEDID("card0-DP-1") {
		t.Error("HasEDID did not see fresh EDID without rescan")
	}

	if d.IsAsleep("card0-DP-1") {
		t.Error("IsAsleep true while DPMS is On")
	}
	tree.SetDPMS("card0-DP-1", "Off")
	if !d.IsAsleep("card0-DP-1") {
		t.Error("IsAsleep did not see DPMS Off without rescan")
	}

	// Any non-"On" value means asleep, whatever casing the driver
	// uses; only a missing attribute reads as awake.
	for _, v := range []string{"off", "Standby", "suspend"} {
		tree.SetDPMS("card0-DP-1", v)
		if !d.IsAsleep("card0-DP-1") {
			t.Errorf("IsAsleep false for dpms %q", v)
		}
	}
	if d.IsAsleep("card0-HDMI-A-9") {
		t.Error("IsAsleep true for connector without a dpms attribute")
	}
}

func TestHasDRM(t *testing.T) {
	tree := sysfstest.New(t)
	if !NewDirectory(tree.Root, nil).HasDRM() {
		t.Error("HasDRM false with card0 present")
	}
	if NewDirectory(t.TempDir(), nil).HasDRM() {
		t.Error("HasDRM true on empty tree")
	}
}

func TestUnreadableConnectorOmitted(t *testing.T) {
	tree := sysfstest.New(t)
	tree.AddConnector(sysfstest.Connector{Name: "card0-DP-1", Via: sysfstest.AuxChannel, Busno: 7})
	// A connector directory with no status attribute: the kernel is
	// mid-teardown, or the entry is not really a connector.
	if err := os.Mkdir(filepath.Join(tree.Root, "class", "drm", "card0-HDMI-A-1"), 0o755); err != nil {
		t.Fatal(err)
	}

	snap := NewDirectory(tree.Root, nil).Snapshot(false)
	if len(snap.Entries) != 1 || snap.Entries[0].Name != "card0-DP-1" {
		t.Errorf("snapshot entries = %v, want just card0-DP-1", snap.Entries)
	}
}
