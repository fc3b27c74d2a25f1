// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

// Displaywatch reports attached DDC-capable displays and watches for
// display hotplug and DPMS changes.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/displaykit/displaywatch/bus"
	"github.com/displaykit/displaywatch/config"
	"github.com/displaykit/displaywatch/connector"
	"github.com/displaykit/displaywatch/lib/detectcache"
	"github.com/displaykit/displaywatch/watch"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

const usage = `usage: displaywatch <command> [flags]

commands:
  detect   report attached displays once and exit
  watch    stream display change events until interrupted
`

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("a command is required")
	}
	switch args[0] {
	case "detect":
		return runDetect(args[1:])
	case "watch":
		return runWatch(args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

// loadConfig resolves the config from --config, the environment
// variable, or defaults, in that order.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runDetect(args []string) error {
	flags := pflag.NewFlagSet("detect", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	verbose := flags.BoolP("verbose", "v", false, "debug logging")
	noCache := flags.Bool("no-cache", false, "do not write the detection cache")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	log := newLogger(*verbose)
	slog.SetDefault(log)

	dir := connector.NewDirectory(cfg.Paths.SysRoot, log)
	if !dir.HasDRM() {
		return fmt.Errorf("no DRM display device on this system")
	}
	registry := bus.NewRegistry(dir, cfg.Paths.DevRoot, log)

	snap := dir.Snapshot(true)
	for _, entry := range snap.Entries {
		if entry.Busno < 0 {
			continue
		}
		rec, _ := registry.GetOrCreate(entry.Busno)
		registry.Probe(rec, false)
	}

	var cached []detectcache.Display
	displays := 0
	registry.Each(func(rec *bus.Record) {
		if rec.EDID == nil {
			return
		}
		displays++
		fmt.Printf("Display %d\n", displays)
		fmt.Printf("   I2C bus:   /dev/i2c-%d\n", rec.Busno)
		if rec.ConnectorName != "" {
			fmt.Printf("   Connector: %s\n", rec.ConnectorName)
		}
		fmt.Printf("   Monitor:   %s %s\n", rec.EDID.Manufacturer, rec.EDID.Model)
		if rec.EDID.SerialText != "" {
			fmt.Printf("   Serial:    %s\n", rec.EDID.SerialText)
		}
		fmt.Printf("   Flags:     %s\n", rec.Flags)
		cached = append(cached, detectcache.Display{
			Busno:         rec.Busno,
			ConnectorName: rec.ConnectorName,
			EDID:          rec.EDID.Raw,
		})
	})
	if displays == 0 {
		fmt.Println("No displays found")
	}

	if cfg.Paths.Cache != "" && !*noCache {
		cache := &detectcache.Cache{SavedAt: time.Now(), Displays: cached}
		if err := detectcache.Save(cfg.Paths.Cache, cache); err != nil {
			log.Warn("could not write detection cache", "err", err)
		}
	}
	return nil
}

func runWatch(args []string) error {
	flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	verbose := flags.BoolP("verbose", "v", false, "debug logging")
	modeFlag := flags.String("mode", "", "notification mode: dynamic, udev, poll, x11")
	classesFlag := flags.String("classes", "", "event classes: connection, dpms, all")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *modeFlag != "" {
		cfg.Watch.Mode = *modeFlag
	}
	if *classesFlag != "" {
		cfg.Watch.Classes = *classesFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := newLogger(*verbose)
	slog.SetDefault(log)

	opts := cfg.WatcherOptions()
	opts.Logger = log
	watcher := watch.New(opts)
	watcher.Register(func(e watch.Event) {
		attrs := []any{
			"type", e.Type.String(),
			"path", e.Path.String(),
			"connector", e.ConnectorName,
		}
		if e.Ref != nil {
			attrs = append(attrs, "dispno", e.Ref.Dispno)
			if e.Ref.EDID != nil {
				attrs = append(attrs, "monitor", e.Ref.EDID.String())
			}
		}
		log.Info("display event", attrs...)
	})

	if err := watcher.Start(cfg.Mode(), cfg.Classes()); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
	return watcher.Stop(true)
}
