// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for displaywatch.
//
// Configuration comes from a single YAML file named by:
//   - DISPLAYWATCH_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery; every timing knob has
// a default that works without any file at all.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/displaykit/displaywatch/lib/i2cdev"
	"github.com/displaykit/displaywatch/watch"
)

// EnvVar names the config file when no flag is given.
const EnvVar = "DISPLAYWATCH_CONFIG"

// Config is the full displaywatch configuration.
type Config struct {
	Watch WatchConfig `yaml:"watch"`
	Paths PathsConfig `yaml:"paths"`
}

// WatchConfig holds the watch loop and debounce settings. All
// intervals are in milliseconds, matching how they are discussed in
// DDC tooling.
type WatchConfig struct {
	// Mode is dynamic, udev, poll, or x11.
	Mode string `yaml:"mode"`
	// Classes is a comma-separated list: connection, dpms, all.
	Classes string `yaml:"classes"`

	PollIntervalMS    int `yaml:"poll_interval_ms"`
	UeventRecheckMS   int `yaml:"uevent_recheck_ms"`
	XEventIntervalMS  int `yaml:"xevent_interval_ms"`
	ExtraStabilizeMS  int `yaml:"extra_stabilization_ms"`
	StabilizePollMS   int `yaml:"stabilization_poll_ms"`
	MaxStabilizePolls int `yaml:"max_stabilization_polls"`

	FlockMaxWaitMS      int `yaml:"flock_max_wait_ms"`
	FlockPollIntervalMS int `yaml:"flock_poll_interval_ms"`
}

// PathsConfig overrides filesystem locations, mainly for testing and
// containers.
type PathsConfig struct {
	SysRoot string `yaml:"sys_root"`
	DevRoot string `yaml:"dev_root"`
	// Cache is where the detection cache is written. Empty disables
	// the cache.
	Cache string `yaml:"cache"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Watch: WatchConfig{
			Mode:              "dynamic",
			Classes:           "all",
			PollIntervalMS:    2000,
			UeventRecheckMS:   2000,
			XEventIntervalMS:  100,
			ExtraStabilizeMS:  4000,
			StabilizePollMS:   1000,
			MaxStabilizePolls: 8,

			FlockMaxWaitMS:      3000,
			FlockPollIntervalMS: 100,
		},
		Paths: PathsConfig{
			SysRoot: "/sys",
			DevRoot: "/dev",
			Cache:   "${HOME}/.cache/displaywatch/displays.cbor",
		},
	}
}

// Load reads the file named by DISPLAYWATCH_CONFIG, or returns the
// defaults when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads a specific config file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandPaths() {
	c.Paths.SysRoot = os.ExpandEnv(c.Paths.SysRoot)
	c.Paths.DevRoot = os.ExpandEnv(c.Paths.DevRoot)
	c.Paths.Cache = os.ExpandEnv(c.Paths.Cache)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := watch.ParseMode(c.Watch.Mode); err != nil {
		errs = append(errs, err)
	}
	if classes, err := watch.ParseClasses(c.Watch.Classes); err != nil {
		errs = append(errs, err)
	} else if classes == 0 {
		errs = append(errs, fmt.Errorf("watch.classes must name at least one class"))
	}
	for _, check := range []struct {
		name  string
		value int
	}{
		{"watch.poll_interval_ms", c.Watch.PollIntervalMS},
		{"watch.uevent_recheck_ms", c.Watch.UeventRecheckMS},
		{"watch.xevent_interval_ms", c.Watch.XEventIntervalMS},
		{"watch.stabilization_poll_ms", c.Watch.StabilizePollMS},
		{"watch.max_stabilization_polls", c.Watch.MaxStabilizePolls},
		{"watch.flock_max_wait_ms", c.Watch.FlockMaxWaitMS},
		{"watch.flock_poll_interval_ms", c.Watch.FlockPollIntervalMS},
	} {
		if check.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", check.name))
		}
	}
	if c.Watch.ExtraStabilizeMS < 0 {
		errs = append(errs, fmt.Errorf("watch.extra_stabilization_ms must not be negative"))
	}
	if c.Paths.SysRoot == "" {
		errs = append(errs, fmt.Errorf("paths.sys_root is required"))
	}
	if c.Paths.DevRoot == "" {
		errs = append(errs, fmt.Errorf("paths.dev_root is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Mode returns the parsed watch mode. Call Validate first.
func (c *Config) Mode() watch.Mode {
	mode, _ := watch.ParseMode(c.Watch.Mode)
	return mode
}

// Classes returns the parsed event classes. Call Validate first.
func (c *Config) Classes() watch.EventClass {
	classes, _ := watch.ParseClasses(c.Watch.Classes)
	return classes
}

// FlockOptions translates the cross-process lock knobs, for DDC I/O
// layers built on top of this package.
func (c *Config) FlockOptions() i2cdev.FlockOptions {
	return i2cdev.FlockOptions{
		MaxWait:      time.Duration(c.Watch.FlockMaxWaitMS) * time.Millisecond,
		PollInterval: time.Duration(c.Watch.FlockPollIntervalMS) * time.Millisecond,
	}
}

// WatcherOptions translates the configuration into watch options.
func (c *Config) WatcherOptions() watch.Options {
	return watch.Options{
		SysRoot:        c.Paths.SysRoot,
		DevRoot:        c.Paths.DevRoot,
		PollInterval:   time.Duration(c.Watch.PollIntervalMS) * time.Millisecond,
		UeventRecheck:  time.Duration(c.Watch.UeventRecheckMS) * time.Millisecond,
		XEventInterval: time.Duration(c.Watch.XEventIntervalMS) * time.Millisecond,
		Tuning: watch.Tuning{
			ExtraStabilizeDelay:   time.Duration(c.Watch.ExtraStabilizeMS) * time.Millisecond,
			StabilizePollInterval: time.Duration(c.Watch.StabilizePollMS) * time.Millisecond,
			MaxStabilizePolls:     c.Watch.MaxStabilizePolls,
		},
	}
}
