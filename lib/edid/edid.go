// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package edid parses the base block of an EDID (Extended Display
// Identification Data) blob. The watch subsystem needs only enough of
// the structure to identify a monitor: manufacturer, product code,
// serial, and the model/serial descriptor strings. Extension blocks
// are retained in Raw but not interpreted.
package edid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// BlockSize is the length of the EDID base block.
const BlockSize = 128

var header = [8]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// ErrInvalid reports a blob that is not an EDID: too short, bad fixed
// header, or base-block checksum failure.
var ErrInvalid = errors.New("edid: invalid data")

// EDID holds the identifying fields of a parsed EDID plus a copy of
// the raw bytes it was parsed from.
type EDID struct {
	// Raw is a private copy of the input, including any extension
	// blocks.
	Raw []byte

	// Manufacturer is the three-letter PNP ID, e.g. "DEL", "SAM".
	Manufacturer string

	// ProductCode is the little-endian product code at bytes 10-11.
	ProductCode uint16

	// SerialNumber is the 32-bit binary serial at bytes 12-15. Zero
	// when the vendor does not populate it.
	SerialNumber uint32

	// Model is the display product name descriptor text, if present.
	Model string

	// SerialText is the display serial number descriptor text, if
	// present.
	SerialText string
}

// Parse validates and parses an EDID blob. At least BlockSize bytes
// are required; trailing extension blocks are kept but not examined.
func Parse(raw []byte) (*EDID, error) {
	if len(raw) < BlockSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalid, len(raw), BlockSize)
	}
	if [8]byte(raw[0:8]) != header {
		return nil, fmt.Errorf("%w: bad header", ErrInvalid)
	}
	var sum byte
	for _, b := range raw[:BlockSize] {
		sum += b
	}
	if sum != 0 {
		return nil, fmt.Errorf("%w: base block checksum", ErrInvalid)
	}

	e := &EDID{
		Raw:          append([]byte(nil), raw...),
		Manufacturer: decodeManufacturer(raw[8], raw[9]),
		ProductCode:  binary.LittleEndian.Uint16(raw[10:12]),
		SerialNumber: binary.LittleEndian.Uint32(raw[12:16]),
	}

	// Four 18-byte descriptor fields at fixed offsets in the base
	// block. A display descriptor starts with two zero bytes; byte 3
	// is the tag.
	for _, offset := range []int{54, 72, 90, 108} {
		d := raw[offset : offset+18]
		if d[0] != 0 || d[1] != 0 {
			continue // detailed timing descriptor
		}
		switch d[3] {
		case 0xFC:
			e.Model = descriptorText(d)
		case 0xFF:
			e.SerialText = descriptorText(d)
		}
	}
	return e, nil
}

// Equal reports whether two parsed EDIDs identify the same physical
// monitor. Comparison uses manufacturer, product code, and serial
// fields rather than the raw bytes: a monitor can return different
// EDIDs on different inputs.
func (e *EDID) Equal(other *EDID) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Manufacturer == other.Manufacturer &&
		e.ProductCode == other.ProductCode &&
		e.SerialNumber == other.SerialNumber &&
		e.SerialText == other.SerialText
}

// String returns a short identity like "DEL:0xa0ec:KDC0N89T0FME" for
// logging.
func (e *EDID) String() string {
	serial := e.SerialText
	if serial == "" {
		serial = fmt.Sprintf("%d", e.SerialNumber)
	}
	return fmt.Sprintf("%s:0x%04x:%s", e.Manufacturer, e.ProductCode, serial)
}

// decodeManufacturer unpacks the three 5-bit letters of the PNP ID.
func decodeManufacturer(hi, lo byte) string {
	value := uint16(hi)<<8 | uint16(lo)
	letters := [3]byte{
		byte(value>>10&0x1F) + 'A' - 1,
		byte(value>>5&0x1F) + 'A' - 1,
		byte(value&0x1F) + 'A' - 1,
	}
	for _, c := range letters {
		if c < 'A' || c > 'Z' {
			return ""
		}
	}
	return string(letters[:])
}

// descriptorText extracts the up-to-13-character text payload of a
// display descriptor, terminated by a newline per the EDID spec.
func descriptorText(d []byte) string {
	text := string(d[5:18])
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}
