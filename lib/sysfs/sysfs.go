// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysfs provides small helpers for reading kernel sysfs
// attributes. An absent or unreadable attribute is a normal outcome,
// not an error: readers return zero values and callers decide whether
// the missing data matters.
//
// Every function takes path segments joined with filepath.Join so that
// callers (and tests) supply an explicit root instead of hardcoding
// "/sys".
package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadString reads a single-line sysfs attribute and returns its
// trimmed content. Returns "" on any error.
func ReadString(parts ...string) string {
	data, err := os.ReadFile(filepath.Join(parts...))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// ReadInt reads an integer attribute. The second return is false when
// the attribute is absent or not a number.
func ReadInt(parts ...string) (int, bool) {
	value := ReadString(parts...)
	if value == "" {
		return 0, false
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return result, true
}

// ReadBytes reads a binary attribute (such as a connector's edid blob).
// Returns nil on any error or when the attribute is empty.
func ReadBytes(parts ...string) []byte {
	data, err := os.ReadFile(filepath.Join(parts...))
	if err != nil || len(data) == 0 {
		return nil
	}
	return data
}

// Exists reports whether the path exists.
func Exists(parts ...string) bool {
	_, err := os.Stat(filepath.Join(parts...))
	return err == nil
}

// ReadLinkBase returns the basename of the symlink target at the path,
// or "" when the path is not a readable symlink.
func ReadLinkBase(parts ...string) string {
	target, err := os.Readlink(filepath.Join(parts...))
	if err != nil {
		return ""
	}
	return filepath.Base(target)
}

// ListMatching returns the names of directory entries for which match
// returns true, in directory order. A missing directory yields nil.
func ListMatching(match func(name string) bool, parts ...string) []string {
	entries, err := os.ReadDir(filepath.Join(parts...))
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if match(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	return names
}
