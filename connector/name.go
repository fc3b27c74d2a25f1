// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package connector

import (
	"fmt"
	"strconv"
	"strings"
)

// Identifier is the decomposed form of a DRM connector name like
// "card0-DP-1" or "card1-HDMI-A-2": the card number, the connector
// type, and the per-type instance number.
type Identifier struct {
	Card     int
	Type     string
	Instance int
}

// typeRank orders connector types the way the kernel numbers them
// (DRM_MODE_CONNECTOR_*). Sorting by this rank, not by the type
// string, keeps "DVI-I" ahead of "DP" and so on.
var typeRank = map[string]int{
	"VGA":       1,
	"DVI-I":     2,
	"DVI-D":     3,
	"DVI-A":     4,
	"Composite": 5,
	"SVIDEO":    6,
	"LVDS":      7,
	"Component": 8,
	"DIN":       9,
	"DP":        10,
	"HDMI-A":    11,
	"HDMI-B":    12,
	"TV":        13,
	"eDP":       14,
	"Virtual":   15,
	"DSI":       16,
	"DPI":       17,
	"Writeback": 18,
	"SPI":       19,
	"USB":       20,
}

// laptopTypes are the connector types of built-in panels. Buses behind
// them never speak DDC/CI.
var laptopTypes = map[string]bool{
	"eDP":  true,
	"LVDS": true,
	"DSI":  true,
}

// ParseName decomposes a connector directory name. It returns an error
// for names that are not of the form card<N>-<TYPE>-<M>.
func ParseName(name string) (Identifier, error) {
	var id Identifier
	rest, ok := strings.CutPrefix(name, "card")
	if !ok {
		return id, fmt.Errorf("connector name %q: missing card prefix", name)
	}
	dash := strings.IndexByte(rest, '-')
	if dash <= 0 {
		return id, fmt.Errorf("connector name %q: missing type", name)
	}
	card, err := strconv.Atoi(rest[:dash])
	if err != nil {
		return id, fmt.Errorf("connector name %q: bad card number", name)
	}
	rest = rest[dash+1:]

	lastDash := strings.LastIndexByte(rest, '-')
	if lastDash <= 0 || lastDash == len(rest)-1 {
		return id, fmt.Errorf("connector name %q: missing instance", name)
	}
	instance, err := strconv.Atoi(rest[lastDash+1:])
	if err != nil {
		return id, fmt.Errorf("connector name %q: bad instance number", name)
	}

	id.Card = card
	id.Type = rest[:lastDash]
	id.Instance = instance
	return id, nil
}

// IsConnectorName reports whether a /sys/class/drm entry names a
// connector (as opposed to a card device or render node).
func IsConnectorName(name string) bool {
	_, err := ParseName(name)
	return err == nil
}

// IsCardName reports whether the name is a bare DRM card device
// (card0, card1, ...), with no connector suffix.
func IsCardName(name string) bool {
	rest, ok := strings.CutPrefix(name, "card")
	if !ok || rest == "" {
		return false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Compare orders identifiers by card, then kernel connector type id,
// then instance. Lexical ordering of names would misplace "DP-10"
// before "DP-2"; this ordering never does.
func Compare(a, b Identifier) int {
	if a.Card != b.Card {
		if a.Card < b.Card {
			return -1
		}
		return 1
	}
	ra, rb := typeRank[a.Type], typeRank[b.Type]
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if a.Instance != b.Instance {
		if a.Instance < b.Instance {
			return -1
		}
		return 1
	}
	return 0
}

// CompareNames orders raw connector names canonically. Unparseable
// names sort first among themselves, lexically, so the order is still
// total and deterministic.
func CompareNames(a, b string) int {
	ida, errA := ParseName(a)
	idb, errB := ParseName(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return Compare(ida, idb)
}
