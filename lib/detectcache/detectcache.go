// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package detectcache persists the most recent detection result so a
// fresh process can report displays before its first full probe. The
// cache is advisory: detection always rebuilds from sysfs, and a
// stale or corrupt cache is discarded, never trusted.
package detectcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same display set
// always produces identical cache bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("detectcache: CBOR encoder initialization failed: " + err.Error())
	}
}

// Display is one cached display.
type Display struct {
	Busno         int    `cbor:"busno"`
	ConnectorName string `cbor:"connector"`
	// EDID holds the raw EDID bytes; identity comparison on reload
	// uses these, not any parsed form.
	EDID []byte `cbor:"edid"`
}

// Cache is the persisted detection snapshot.
type Cache struct {
	SavedAt  time.Time `cbor:"saved_at"`
	Displays []Display `cbor:"displays"`
}

// Save writes the cache atomically: temp file, fsync, rename. Parent
// directories are created as needed.
func Save(path string, c *Cache) error {
	data, err := encMode.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding detection cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".displays-*")
	if err != nil {
		return fmt.Errorf("creating cache temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing detection cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing detection cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing detection cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("installing detection cache: %w", err)
	}
	return nil
}

// Load reads the cache. A missing file returns (nil, nil); a corrupt
// file is an error the caller should treat as "no cache".
func Load(path string) (*Cache, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading detection cache: %w", err)
	}
	var c Cache
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding detection cache: %w", err)
	}
	return &c, nil
}
