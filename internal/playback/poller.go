/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how often the engine is sampled while playing.
const DefaultPollInterval = 500 * time.Millisecond

// Poller runs tick on a fixed interval until stopped. Each Start creates a
// new instance context; tick receives it and must treat a cancelled context
// as "this instance is stale".
//
// Start and Stop are idempotent. Stop does not wait for an in-flight tick:
// the orchestrator calls it while holding its own lock, and its tick takes
// that same lock before checking the context, so a tick that runs after Stop
// returns always sees the cancellation.
type Poller struct {
	interval time.Duration
	tick     func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a stopped poller.
func NewPoller(interval time.Duration, tick func(ctx context.Context)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval, tick: tick}
}

// Start begins ticking. It is a no-op while already running.
func (p *Poller) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go p.run(ctx, done)
}

// Stop cancels the running instance. It is a no-op when stopped.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
}

// Running reports whether an instance is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Wait blocks until the most recently started instance has exited.
// It must not be called while holding a lock the tick function takes.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.tick(ctx)
		}
	}
}
