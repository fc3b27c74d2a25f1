// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/displaykit/displaywatch/bus"
	"github.com/displaykit/displaywatch/connector"
	"github.com/displaykit/displaywatch/display"
	"github.com/displaykit/displaywatch/lib/clock"
)

var (
	// ErrAlreadyRunning: a watch is active; stop it first.
	ErrAlreadyRunning = errors.New("watch already running")
	// ErrNotRunning: no watch is active.
	ErrNotRunning = errors.New("watch not running")
	// ErrInvalidClass: the requested event classes are empty or
	// contain unknown bits.
	ErrInvalidClass = errors.New("invalid event classes")
	// ErrDRMRequired: the system exposes no DRM card device, so
	// hotplug detection cannot work.
	ErrDRMRequired = errors.New("no DRM display device")
)

// Mode selects the notification strategy.
type Mode int

const (
	// ModeDynamic picks the best available strategy at start time:
	// kernel events when the uevent socket opens, else X11 when a
	// DISPLAY is set, else polling.
	ModeDynamic Mode = iota
	// ModeUdev blocks on kernel hotplug uevents.
	ModeUdev
	// ModePoll re-detects on a fixed interval.
	ModePoll
	// ModeX11 wakes on RandR screen-change notifications.
	ModeX11
)

func (m Mode) String() string {
	switch m {
	case ModeDynamic:
		return "dynamic"
	case ModeUdev:
		return "udev"
	case ModePoll:
		return "poll"
	case ModeX11:
		return "x11"
	}
	return fmt.Sprintf("mode-%d", int(m))
}

// ParseMode parses a mode name as written in config or on the
// command line.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "dynamic", "":
		return ModeDynamic, nil
	case "udev":
		return ModeUdev, nil
	case "poll":
		return ModePoll, nil
	case "x11":
		return ModeX11, nil
	}
	return 0, fmt.Errorf("unknown watch mode %q", s)
}

// State is the watch loop lifecycle state.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

// Options configures a Watcher. Zero values get defaults.
type Options struct {
	// SysRoot and DevRoot are "/sys" and "/dev" in production,
	// synthetic trees in tests.
	SysRoot string
	DevRoot string

	// PollInterval is the cycle period in poll mode.
	PollInterval time.Duration
	// UeventRecheck caps how long udev mode goes without a cycle.
	UeventRecheck time.Duration
	// XEventInterval caps how long x11 mode goes without a cycle.
	XEventInterval time.Duration

	Tuning Tuning

	Clock  clock.Clock
	Logger *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.SysRoot == "" {
		o.SysRoot = "/sys"
	}
	if o.DevRoot == "" {
		o.DevRoot = "/dev"
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.UeventRecheck <= 0 {
		o.UeventRecheck = 2 * time.Second
	}
	if o.XEventInterval <= 0 {
		o.XEventInterval = 100 * time.Millisecond
	}
	if o.Tuning == (Tuning{}) {
		o.Tuning = DefaultTuning()
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher owns the watch loop and everything it drives: the connector
// directory, the bus and reference registries, and the dispatcher.
type Watcher struct {
	opts Options
	log  *slog.Logger
	clk  clock.Clock

	dir   *connector.Directory
	buses *bus.Registry
	refs  *display.RefRegistry
	disp  *Dispatcher
	locks *display.LockManager

	// newSource is swapped out by tests.
	newSource func(Mode) (source, Mode, error)

	mu      sync.Mutex
	state   State
	classes EventClass
	src     source
	done    chan struct{}
}

// New assembles a stopped watcher.
func New(opts Options) *Watcher {
	opts.applyDefaults()
	w := &Watcher{
		opts: opts,
		log:  opts.Logger,
		clk:  opts.Clock,
	}
	w.dir = connector.NewDirectory(opts.SysRoot, w.log)
	w.buses = bus.NewRegistry(w.dir, opts.DevRoot, w.log)
	w.refs = display.NewRefRegistry(w.clk, w.log)
	w.disp = NewDispatcher(w.log)
	w.locks = display.NewLockManager(w.log)
	w.newSource = w.makeSource
	return w
}

// Directory exposes the connector directory, for one-shot detection
// reporting alongside a watch.
func (w *Watcher) Directory() *connector.Directory { return w.dir }

// Buses exposes the bus registry.
func (w *Watcher) Buses() *bus.Registry { return w.buses }

// Refs exposes the display reference registry.
func (w *Watcher) Refs() *display.RefRegistry { return w.refs }

// Locks exposes the display lock manager. DDC I/O callers hold a
// display's lock across their transactions; the watch loop waits on
// it before tearing down the bus record of a removed display.
func (w *Watcher) Locks() *display.LockManager { return w.locks }

// Register adds an event callback; see Dispatcher.Register.
func (w *Watcher) Register(fn Callback) CallbackID { return w.disp.Register(fn) }

// Unregister removes an event callback by id.
func (w *Watcher) Unregister(id CallbackID) error { return w.disp.Unregister(id) }

// Start brings the watch loop up. It fails with ErrAlreadyRunning
// when a loop is active, ErrInvalidClass for an empty or unknown
// class set, and ErrDRMRequired when the system has no DRM device.
// An explicit x11 request silently falls back to polling when no X
// server is reachable.
func (w *Watcher) Start(mode Mode, classes EventClass) error {
	if classes == 0 || classes&^ClassAll != 0 {
		return fmt.Errorf("classes %b: %w", uint8(classes), ErrInvalidClass)
	}

	w.mu.Lock()
	if w.state != Stopped {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.state = Starting
	w.mu.Unlock()

	fail := func(err error) error {
		w.mu.Lock()
		w.state = Stopped
		w.mu.Unlock()
		return err
	}

	if !w.dir.HasDRM() {
		return fail(ErrDRMRequired)
	}
	src, resolved, err := w.newSource(mode)
	if err != nil {
		return fail(fmt.Errorf("starting %s watch: %w", mode, err))
	}

	det := NewDetector(w.dir, w.buses, w.refs, w.disp, w.locks, w.clk,
		w.opts.DevRoot, w.opts.Tuning, classes, w.log)
	det.Prime()

	w.mu.Lock()
	w.state = Running
	w.classes = classes
	w.src = src
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.log.Info("watch started", "mode", resolved.String(), "classes", classes.String())
	go w.run(det, src)
	return nil
}

// Stop asks the loop to exit. With wait true it blocks until the
// loop goroutine is gone.
func (w *Watcher) Stop(wait bool) error {
	w.mu.Lock()
	if w.state != Running {
		w.mu.Unlock()
		return ErrNotRunning
	}
	w.state = Stopping
	src, done := w.src, w.done
	w.mu.Unlock()

	src.close()
	if wait {
		<-done
	}
	return nil
}

// ActiveClasses returns the classes being watched, with ok false when
// no watch is running.
func (w *Watcher) ActiveClasses() (EventClass, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != Running && w.state != Stopping {
		return 0, false
	}
	return w.classes, true
}

func (w *Watcher) run(det *Detector, src source) {
	defer func() {
		// Idempotent; covers the source failing on its own, where
		// Stop never gets to close it.
		src.close()
		if n := w.locks.UnlockAllForCaller(); n > 0 {
			w.log.Warn("watch loop exited holding display locks", "count", n)
		}
		w.mu.Lock()
		w.state = Stopped
		w.src = nil
		close(w.done)
		w.mu.Unlock()
		w.log.Info("watch stopped")
	}()

	var deferred []Event
	for src.next() {
		det.RunCycle(&deferred)
		w.disp.Flush(&deferred)
	}
}

// makeSource builds the real notification source, resolving dynamic
// mode: kernel events when available, else X11 when a DISPLAY is set,
// else polling.
func (w *Watcher) makeSource(mode Mode) (source, Mode, error) {
	switch mode {
	case ModeUdev:
		src, err := newUeventSource(w.opts.UeventRecheck, w.log)
		return src, ModeUdev, err
	case ModePoll:
		return newPollSource(w.opts.PollInterval, w.clk), ModePoll, nil
	case ModeX11:
		src, err := newX11Source(w.opts.XEventInterval, w.clk, w.log)
		if err != nil {
			w.log.Info("x11 watch unavailable, using poll", "err", err)
			return newPollSource(w.opts.PollInterval, w.clk), ModePoll, nil
		}
		return src, ModeX11, nil
	case ModeDynamic:
		if src, err := newUeventSource(w.opts.UeventRecheck, w.log); err == nil {
			return src, ModeUdev, nil
		}
		if os.Getenv("DISPLAY") != "" {
			if src, err := newX11Source(w.opts.XEventInterval, w.clk, w.log); err == nil {
				return src, ModeX11, nil
			}
		}
		return newPollSource(w.opts.PollInterval, w.clk), ModePoll, nil
	}
	return nil, mode, fmt.Errorf("unknown watch mode %d", int(mode))
}
