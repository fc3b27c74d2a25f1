// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package edidtest builds syntactically valid EDID base blocks for
// tests. The blocks carry real headers, descriptors, and checksums so
// they survive edid.Parse, but the timing fields are zeroed.
package edidtest

// Block returns a 128-byte EDID base block with the given identity.
// mfg must be three uppercase ASCII letters. model is truncated to 13
// characters.
func Block(mfg string, product uint16, serial uint32, model string) []byte {
	raw := make([]byte, 128)
	copy(raw, []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00})

	if len(mfg) == 3 {
		value := uint16(mfg[0]-'A'+1)<<10 | uint16(mfg[1]-'A'+1)<<5 | uint16(mfg[2]-'A'+1)
		raw[8] = byte(value >> 8)
		raw[9] = byte(value)
	}
	raw[10] = byte(product)
	raw[11] = byte(product >> 8)
	raw[12] = byte(serial)
	raw[13] = byte(serial >> 8)
	raw[14] = byte(serial >> 16)
	raw[15] = byte(serial >> 24)

	// EDID version 1.4.
	raw[18] = 1
	raw[19] = 4

	// Product name descriptor in the first descriptor slot.
	raw[57] = 0xFC
	writeDescriptorText(raw[54:72], model)

	// Remaining slots: dummy descriptors (tag 0x10).
	raw[75] = 0x10
	raw[93] = 0x10
	raw[111] = 0x10

	var sum byte
	for _, b := range raw[:127] {
		sum += b
	}
	raw[127] = -sum
	return raw
}

func writeDescriptorText(d []byte, text string) {
	if len(text) > 13 {
		text = text[:13]
	}
	copy(d[5:], text)
	if len(text) < 13 {
		d[5+len(text)] = '\n'
		for i := 5 + len(text) + 1; i < 18; i++ {
			d[i] = ' '
		}
	}
}
