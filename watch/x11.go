// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xproto"

	"github.com/displaykit/displaywatch/lib/clock"
)

// x11Source wakes on RandR screen-change notifications, a cheap proxy
// for "display topology may have changed". The X server coalesces
// bursts for us; the detector's own diffing handles the rest.
type x11Source struct {
	conn     *xgb.Conn
	interval time.Duration
	clk      clock.Clock
	log      *slog.Logger

	events chan struct{}
	stop   chan struct{}
	once   sync.Once
}

// newX11Source connects to the display named by DISPLAY and
// subscribes to screen changes. Any failure (no X server, no RandR)
// is returned for the caller to fall back on.
func newX11Source(interval time.Duration, clk clock.Clock, log *slog.Logger) (*x11Source, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("connecting to X server: %w", err)
	}
	if err := randr.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing randr: %w", err)
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root
	if err := randr.SelectInputChecked(conn, root, randr.NotifyMaskScreenChange).Check(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("selecting screen-change events: %w", err)
	}
	s := &x11Source{
		conn:     conn,
		interval: interval,
		clk:      clk,
		log:      log,
		events:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// pump forwards screen-change events to the channel the loop selects
// on. WaitForEvent only unblocks when the connection closes, which is
// exactly what close does.
func (s *x11Source) pump() {
	defer close(s.events)
	for {
		ev, err := s.conn.WaitForEvent()
		if ev == nil && err == nil {
			return // connection closed
		}
		if err != nil {
			s.log.Debug("x11 event error", "err", err)
			continue
		}
		if _, ok := ev.(randr.ScreenChangeNotifyEvent); ok {
			select {
			case s.events <- struct{}{}:
			default:
			}
		}
	}
}

func (s *x11Source) next() bool {
	select {
	case <-s.stop:
		return false
	case _, ok := <-s.events:
		return ok
	case <-s.clk.After(s.interval):
		// Periodic cycle: DPMS changes produce no screen-change event.
		return true
	}
}

func (s *x11Source) close() error {
	s.once.Do(func() {
		close(s.stop)
		s.conn.Close()
	})
	return nil
}
