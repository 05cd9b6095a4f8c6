/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// output is where streamers are mixed. Streamers are pulled by the output's
// own goroutine; lock and unlock guard state shared with it.
type output interface {
	init(sr beep.SampleRate) error
	play(s beep.Streamer)
	lock()
	unlock()
	clear()
	close()
}

// clockOutput pulls streamers in real time and discards the audio. It stands
// in for a sound device on machines without one. With a zero interval it
// never ticks on its own and advance drives it.
type clockOutput struct {
	interval time.Duration

	mu        sync.Mutex
	sr        beep.SampleRate
	streamers []beep.Streamer
	buf       [][2]float64

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

func newClockOutput(interval time.Duration) *clockOutput {
	return &clockOutput{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *clockOutput) init(sr beep.SampleRate) error {
	c.once.Do(func() {
		c.mu.Lock()
		c.sr = sr
		c.mu.Unlock()
		if c.interval <= 0 {
			close(c.done)
			return
		}
		go c.run()
	})
	return nil
}

func (c *clockOutput) run() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			n := c.sr.N(now.Sub(last))
			c.mu.Unlock()
			last = now
			c.advance(n)
		}
	}
}

// advance pulls n samples from every playing streamer and drops the drained ones.
func (c *clockOutput) advance(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cap(c.buf) < n {
		c.buf = make([][2]float64, n)
	}
	buf := c.buf[:n]

	kept := c.streamers[:0]
	for _, s := range c.streamers {
		got, ok := s.Stream(buf)
		if ok && got == n {
			kept = append(kept, s)
		}
	}
	clear(c.streamers[len(kept):])
	c.streamers = kept
}

func (c *clockOutput) play(s beep.Streamer) {
	c.mu.Lock()
	c.streamers = append(c.streamers, s)
	c.mu.Unlock()
}

func (c *clockOutput) lock()   { c.mu.Lock() }
func (c *clockOutput) unlock() { c.mu.Unlock() }

func (c *clockOutput) clear() {
	c.mu.Lock()
	c.streamers = nil
	c.mu.Unlock()
}

func (c *clockOutput) close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	c.once.Do(func() { close(c.done) })
	<-c.done
}
