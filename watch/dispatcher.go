// Copyright 2026 The Displaywatch Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNotFound: the callback id is not registered.
var ErrNotFound = errors.New("callback not registered")

// CallbackID identifies one registration, for later removal.
type CallbackID uint64

// Callback receives events on the watch loop goroutine. A callback
// that blocks stalls all detection; do real work elsewhere.
type Callback func(Event)

type registration struct {
	id CallbackID
	fn Callback
}

// Dispatcher fans events out to callbacks in registration order.
// Registration is safe from any goroutine; delivery happens only on
// the loop goroutine, so callbacks never run concurrently with each
// other.
type Dispatcher struct {
	log *slog.Logger

	mu     sync.Mutex
	nextID CallbackID
	regs   []registration
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log, nextID: 1}
}

// Register adds a callback and returns its id. The same function may
// be registered more than once; each registration is distinct.
func (d *Dispatcher) Register(fn Callback) CallbackID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.regs = append(d.regs, registration{id: id, fn: fn})
	return id
}

// Unregister removes a registration by id.
func (d *Dispatcher) Unregister(id CallbackID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, reg := range d.regs {
		if reg.id == id {
			d.regs = append(d.regs[:i], d.regs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("callback %d: %w", id, ErrNotFound)
}

// Count returns the number of live registrations.
func (d *Dispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regs)
}

// EmitOrQueue delivers the event immediately when queue is nil, and
// appends it to the queue otherwise. Detection passes queue while
// mid-cycle so that removal events always precede addition events in
// what callbacks observe.
func (d *Dispatcher) EmitOrQueue(evt Event, queue *[]Event) {
	if queue != nil {
		*queue = append(*queue, evt)
		return
	}
	d.deliver(evt)
}

// Flush delivers queued events in order and empties the queue.
func (d *Dispatcher) Flush(queue *[]Event) {
	for _, evt := range *queue {
		d.deliver(evt)
	}
	*queue = (*queue)[:0]
}

func (d *Dispatcher) deliver(evt Event) {
	d.mu.Lock()
	regs := make([]registration, len(d.regs))
	copy(regs, d.regs)
	d.mu.Unlock()

	d.log.Debug("dispatching event", "event", evt.String(), "callbacks", len(regs))
	for _, reg := range regs {
		// Panics propagate: a broken callback should crash loudly,
		// not leave detection silently wedged.
		reg.fn(evt)
	}
}
