/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "sync"

// dispatcher runs engine commands on one goroutine in submission order.
// submit never blocks, so it is safe to call while holding the orchestrator
// lock even when a running command is waiting for that lock.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// submit queues fn. Commands submitted after close are dropped.
func (d *dispatcher) submit(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending = append(d.pending, fn)
	d.cond.Signal()
}

// barrier blocks until every command submitted before it has run.
func (d *dispatcher) barrier() {
	reached := make(chan struct{})
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.pending = append(d.pending, func() { close(reached) })
	d.cond.Signal()
	d.mu.Unlock()
	<-reached
}

// close drains queued commands and stops the worker.
func (d *dispatcher) close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.cond.Signal()
	}
	d.mu.Unlock()
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}
