// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package bitset provides Set256, a fixed-size bit vector indexed by
// I2C bus number. Bus numbers on Linux are small non-negative integers;
// 256 bits covers every bus a machine can plausibly expose.
//
// Set256 is a plain value type. All operations return new values rather
// than mutating in place, so snapshots taken by the watch loop can be
// diffed without defensive copying.
package bitset

import (
	"math/bits"
	"strconv"
	"strings"
)

// Size is the number of distinct bus numbers a Set256 can represent.
const Size = 256

// Set256 is a fixed 256-bit set. The zero value is the empty set.
type Set256 [4]uint64

// With returns a copy of s with bit n set. Out-of-range n is ignored.
func (s Set256) With(n int) Set256 {
	if n < 0 || n >= Size {
		return s
	}
	s[n>>6] |= 1 << (uint(n) & 63)
	return s
}

// Without returns a copy of s with bit n cleared. Out-of-range n is
// ignored.
func (s Set256) Without(n int) Set256 {
	if n < 0 || n >= Size {
		return s
	}
	s[n>>6] &^= 1 << (uint(n) & 63)
	return s
}

// Contains reports whether bit n is set.
func (s Set256) Contains(n int) bool {
	if n < 0 || n >= Size {
		return false
	}
	return s[n>>6]&(1<<(uint(n)&63)) != 0
}

// Count returns the number of set bits.
func (s Set256) Count() int {
	total := 0
	for _, word := range s {
		total += bits.OnesCount64(word)
	}
	return total
}

// IsEmpty reports whether no bits are set.
func (s Set256) IsEmpty() bool {
	return s == Set256{}
}

// Union returns the set of bits in s or other.
func (s Set256) Union(other Set256) Set256 {
	for i := range s {
		s[i] |= other[i]
	}
	return s
}

// Intersect returns the set of bits in both s and other.
func (s Set256) Intersect(other Set256) Set256 {
	for i := range s {
		s[i] &= other[i]
	}
	return s
}

// Subtract returns the set of bits in s but not in other.
func (s Set256) Subtract(other Set256) Set256 {
	for i := range s {
		s[i] &^= other[i]
	}
	return s
}

// Buses returns the set members in ascending order.
func (s Set256) Buses() []int {
	result := make([]int, 0, s.Count())
	for i, word := range s {
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			result = append(result, i*64+bit)
			word &^= 1 << uint(bit)
		}
	}
	return result
}

// String renders the set as comma-separated decimal bus numbers,
// e.g. "3,5,12". The empty set renders as "".
func (s Set256) String() string {
	var b strings.Builder
	for i, n := range s.Buses() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}
