// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/displaykit/displaywatch/connector"
	"github.com/displaykit/displaywatch/lib/edid"
	"github.com/displaykit/displaywatch/lib/edid/edidtest"
	"github.com/displaykit/displaywatch/lib/sysfs/sysfstest"
)

// newFixture builds a registry over a synthetic sysfs tree and a temp
// dev root. Device nodes are plain files; address probes fail on them,
// which is the wanted behavior off real hardware.
func newFixture(t *testing.T) (*sysfstest.Tree, string, *Registry) {
	t.Helper()
	tree := sysfstest.New(t)
	devRoot := t.TempDir()
	dir := connector.NewDirectory(tree.Root, nil)
	return tree, devRoot, NewRegistry(dir, devRoot, nil)
}

func addDevNode(t *testing.T, devRoot string, busno int) {
	t.Helper()
	path := filepath.Join(devRoot, fmt.Sprintf("i2c-%d", busno))
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGetOrCreate(t *testing.T) {
	_, _, reg := newFixture(t)

	rec, created := reg.GetOrCreate(5)
	if !created {
		t.Fatal("first GetOrCreate did not create")
	}
	if rec.Busno != 5 || rec.Flags != 0 || rec.ConnectorID != -1 {
		t.Errorf("fresh record = %+v", rec)
	}

	again, created := reg.GetOrCreate(5)
	if created || again != rec {
		t.Error("second GetOrCreate did not return the same record")
	}
	if reg.Get(6) != nil {
		t.Error("Get of unknown bus returned a record")
	}
}

func TestProbeWithConnector(t *testing.T) {
	tree, devRoot, reg := newFixture(t)
	raw := edidtest.Block("DEL", 0xA0EC, 42, "U2720Q")
	tree.AddConnector(sysfstest.Connector{
		Name: "card0-DP-1", Status: "connected", ID: 101,
		EDID: raw, Via: sysfstest.AuxChannel, Busno: 7,
	})
	addDevNode(t, devRoot, 7)

	rec, _ := reg.GetOrCreate(7)
	reg.Probe(rec, true)

	if !rec.Flags.Has(FlagProbed | FlagExists | FlagAccessible | FlagSysfsEDID) {
		t.Errorf("flags = %s", rec.Flags)
	}
	if rec.Flags.Has(FlagEDIDAddr) || rec.Flags.Has(FlagDDCAddr) {
		t.Errorf("address flags set on a plain file: %s", rec.Flags)
	}
	if rec.ConnectorName != "card0-DP-1" || rec.ConnectorID != 101 || rec.Found != ByBusno {
		t.Errorf("association = %q/%d/%s", rec.ConnectorName, rec.ConnectorID, rec.Found)
	}
	if rec.EDID == nil || rec.EDID.Manufacturer != "DEL" {
		t.Errorf("EDID = %+v", rec.EDID)
	}
}

func TestProbeNoConnector(t *testing.T) {
	_, devRoot, reg := newFixture(t)
	addDevNode(t, devRoot, 3)

	rec, _ := reg.GetOrCreate(3)
	reg.Probe(rec, true)

	if rec.Found != NotFound || rec.ConnectorName != "" || rec.ConnectorID != -1 {
		t.Errorf("association = %q/%d/%s", rec.ConnectorName, rec.ConnectorID, rec.Found)
	}
	if rec.EDID != nil {
		t.Error("EDID set with no connector")
	}
	if !rec.Flags.Has(FlagExists) {
		t.Errorf("flags = %s", rec.Flags)
	}
}

func TestProbeMissingDevNode(t *testing.T) {
	tree, _, reg := newFixture(t)
	tree.AddConnector(sysfstest.Connector{Name: "card0-HDMI-A-1", Via: sysfstest.Subdir, Busno: 5})

	rec, _ := reg.GetOrCreate(5)
	reg.Probe(rec, true)

	if rec.Flags.Has(FlagExists) || rec.Flags.Has(FlagAccessible) {
		t.Errorf("flags = %s, want node flags clear", rec.Flags)
	}
	if rec.ConnectorName != "card0-HDMI-A-1" {
		t.Error("connector association missing despite absent dev node")
	}
}

func TestProbeByEDIDFallback(t *testing.T) {
	tree, _, reg := newFixture(t)
	raw := edidtest.Block("ACR", 2, 7, "XB273K")
	// The connector drives bus 9, but the record under probe is bus
	// 12: only the EDID can tie them together.
	tree.AddConnector(sysfstest.Connector{
		Name: "card0-DP-2", Status: "connected", EDID: raw,
		Via: sysfstest.AuxChannel, Busno: 9,
	})

	rec, _ := reg.GetOrCreate(12)
	parsed, err := edid.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	rec.EDID = parsed
	reg.Probe(rec, true)

	if rec.Found != ByEDID || rec.ConnectorName != "card0-DP-2" {
		t.Errorf("association = %q/%s, want card0-DP-2/edid", rec.ConnectorName, rec.Found)
	}
}

func TestProbeLaptopFlag(t *testing.T) {
	tree, _, reg := newFixture(t)
	tree.AddConnector(sysfstest.Connector{
		Name: "card0-eDP-1", Status: "connected",
		EDID: edidtest.Block("AUO", 1, 1, "panel"),
		Via:  sysfstest.DDCLink, Busno: 2,
	})

	rec, _ := reg.GetOrCreate(2)
	reg.Probe(rec, true)
	if !rec.Flags.Has(FlagLaptop) {
		t.Errorf("flags = %s, want laptop", rec.Flags)
	}
}

func TestReset(t *testing.T) {
	tree, devRoot, reg := newFixture(t)
	tree.AddConnector(sysfstest.Connector{
		Name: "card0-DP-1", Status: "connected",
		EDID: edidtest.Block("DEL", 1, 1, "P2419H"),
		Via:  sysfstest.AuxChannel, Busno: 7,
	})
	addDevNode(t, devRoot, 7)

	rec, _ := reg.GetOrCreate(7)
	reg.Probe(rec, true)
	rec.LastDPMSAsleep = true
	reg.Reset(rec)

	if rec.Flags != FlagExists || rec.EDID != nil || rec.LastDPMSAsleep {
		t.Errorf("after reset: %+v", rec)
	}
	if rec.ConnectorName != "card0-DP-1" {
		t.Error("reset dropped the connector association")
	}
}

func TestRemoveAndEach(t *testing.T) {
	_, _, reg := newFixture(t)
	for _, busno := range []int{9, 3, 7} {
		reg.GetOrCreate(busno)
	}
	reg.Remove(7)

	var seen []int
	reg.Each(func(rec *Record) { seen = append(seen, rec.Busno) })
	if len(seen) != 2 || seen[0] != 3 || seen[1] != 9 {
		t.Errorf("Each visited %v, want [3 9]", seen)
	}
}

func TestFlagsString(t *testing.T) {
	f := FlagExists | FlagAccessible | FlagLaptop
	if got := f.String(); got != "exists|accessible|laptop" {
		t.Errorf("String() = %q", got)
	}
	if got := Flags(0).String(); got != "none" {
		t.Errorf("zero String() = %q", got)
	}
}
