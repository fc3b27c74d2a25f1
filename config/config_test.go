// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/displaykit/displaywatch/watch"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Mode() != watch.ModeDynamic {
		t.Errorf("default mode = %v", cfg.Mode())
	}
	if cfg.Classes() != watch.ClassAll {
		t.Errorf("default classes = %v", cfg.Classes())
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "displaywatch.yaml")
	content := `
watch:
  mode: poll
  classes: connection
  poll_interval_ms: 500
paths:
  sys_root: /custom/sys
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watch.Mode != "poll" || cfg.Watch.PollIntervalMS != 500 {
		t.Errorf("overrides not applied: %+v", cfg.Watch)
	}
	if cfg.Paths.SysRoot != "/custom/sys" {
		t.Errorf("sys_root = %q", cfg.Paths.SysRoot)
	}
	// Untouched knobs keep defaults.
	if cfg.Watch.ExtraStabilizeMS != 4000 || cfg.Paths.DevRoot != "/dev" {
		t.Errorf("defaults lost: %+v", cfg)
	}

	opts := cfg.WatcherOptions()
	if opts.PollInterval.Milliseconds() != 500 {
		t.Errorf("options interval = %v", opts.PollInterval)
	}
	flock := cfg.FlockOptions()
	if flock.MaxWait.Milliseconds() != 3000 || flock.PollInterval.Milliseconds() != 100 {
		t.Errorf("flock options = %+v", flock)
	}
}

func TestLoadFileRejectsBadValues(t *testing.T) {
	for name, content := range map[string]string{
		"bad mode":      "watch:\n  mode: wayland\n",
		"bad class":     "watch:\n  classes: bogus\n",
		"zero interval": "watch:\n  poll_interval_ms: 0\n",
		"empty sysroot": "paths:\n  sys_root: \"\"\n",
	} {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFile(path); err == nil {
			t.Errorf("%s: LoadFile accepted invalid config", name)
		}
	}
}

func TestLoadHonorsEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "displaywatch.yaml")
	if err := os.WriteFile(path, []byte("watch:\n  mode: udev\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, path)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watch.Mode != "udev" {
		t.Errorf("mode = %q", cfg.Watch.Mode)
	}
}

func TestLoadWithoutEnvVarUsesDefaults(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Watch.Mode != "dynamic" {
		t.Errorf("mode = %q", cfg.Watch.Mode)
	}
}

func TestExpandPaths(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := filepath.Join(t.TempDir(), "displaywatch.yaml")
	if err := os.WriteFile(path, []byte("paths:\n  cache: ${HOME}/cache.cbor\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(cfg.Paths.Cache, "/home/tester/") {
		t.Errorf("cache = %q", cfg.Paths.Cache)
	}
}
