// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package edid_test

import (
	"errors"
	"testing"

	"github.com/displaykit/displaywatch/lib/edid"
	"github.com/displaykit/displaywatch/lib/edid/edidtest"
)

func TestParseIdentity(t *testing.T) {
	raw := edidtest.Block("DEL", 0xA0EC, 1234567, "DELL U3219Q")

	e, err := edid.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e.Manufacturer != "DEL" {
		t.Errorf("Manufacturer = %q, want DEL", e.Manufacturer)
	}
	if e.ProductCode != 0xA0EC {
		t.Errorf("ProductCode = %#x, want 0xa0ec", e.ProductCode)
	}
	if e.SerialNumber != 1234567 {
		t.Errorf("SerialNumber = %d, want 1234567", e.SerialNumber)
	}
	if e.Model != "DELL U3219Q" {
		t.Errorf("Model = %q, want DELL U3219Q", e.Model)
	}
}

func TestParseTooShort(t *testing.T) {
	_, err := edid.Parse(make([]byte, 64))
	if !errors.Is(err, edid.ErrInvalid) {
		t.Errorf("Parse(64 bytes) error = %v, want ErrInvalid", err)
	}
}

func TestParseBadHeader(t *testing.T) {
	raw := edidtest.Block("SAM", 1, 1, "X")
	raw[0] = 0x42
	if _, err := edid.Parse(raw); !errors.Is(err, edid.ErrInvalid) {
		t.Errorf("Parse with bad header error = %v, want ErrInvalid", err)
	}
}

func TestParseBadChecksum(t *testing.T) {
	raw := edidtest.Block("SAM", 1, 1, "X")
	raw[20] ^= 0xFF
	if _, err := edid.Parse(raw); !errors.Is(err, edid.ErrInvalid) {
		t.Errorf("Parse with bad checksum error = %v, want ErrInvalid", err)
	}
}

func TestParseCopiesRaw(t *testing.T) {
	raw := edidtest.Block("SAM", 1, 1, "X")
	e, err := edid.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	raw[30] = 0x99
	if e.Raw[30] == 0x99 {
		t.Error("EDID.Raw aliases the caller's slice")
	}
}

func TestEqualIgnoresRawDifferences(t *testing.T) {
	a, err := edid.Parse(edidtest.Block("SAM", 0x0C8A, 42, "U32H750"))
	if err != nil {
		t.Fatal(err)
	}
	// Same monitor identity, different timing bytes: still equal.
	rawB := edidtest.Block("SAM", 0x0C8A, 42, "U32H750")
	rawB[38] = 0x55
	var sum byte
	for _, c := range rawB[:127] {
		sum += c
	}
	rawB[127] = -sum
	b, err := edid.Parse(rawB)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Error("EDIDs for the same monitor identity compare unequal")
	}

	other, err := edid.Parse(edidtest.Block("SAM", 0x0C8A, 43, "U32H750"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Equal(other) {
		t.Error("EDIDs with different serials compare equal")
	}
}

func TestEqualNil(t *testing.T) {
	var a *edid.EDID
	if !a.Equal(nil) {
		t.Error("nil.Equal(nil) = false")
	}
	b, _ := edid.Parse(edidtest.Block("DEL", 1, 1, "X"))
	if a.Equal(b) || b.Equal(a) {
		t.Error("nil compared equal to non-nil")
	}
}
