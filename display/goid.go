// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"runtime"
	"strconv"
	"strings"
)

// goid returns the calling goroutine's id, parsed from the first line
// of its stack trace ("goroutine 123 [running]:"). The runtime offers
// no supported accessor; lock ownership checks need a stable
// per-goroutine identity and this is the portable way to get one.
func goid() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	s := strings.TrimPrefix(string(buf), "goroutine ")
	if i := strings.IndexByte(s, ' '); i > 0 {
		if id, err := strconv.ParseUint(s[:i], 10, 64); err == nil {
			return id
		}
	}
	return 0
}
