/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/media"
)

// DefaultSettleDelay is how long the directory must stay quiet before a rescan.
const DefaultSettleDelay = 2 * time.Second

// Watcher rescans the library when audio files under the root change.
type Watcher struct {
	scanner *Scanner
	delay   time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
	scans chan struct{}
}

// NewWatcher creates a watcher that feeds scanner. A delay of zero uses
// DefaultSettleDelay.
func NewWatcher(scanner *Scanner, delay time.Duration, logger zerolog.Logger) *Watcher {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Watcher{
		scanner: scanner,
		delay:   delay,
		logger:  logger.With().Str("component", "library_watcher").Logger(),
		scans:   make(chan struct{}, 1),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := w.addRecursive(fw, w.scanner.Root()); err != nil {
		return err
	}
	w.logger.Info().Str("root", w.scanner.Root()).Msg("watching music dir")

	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")

		case <-w.scans:
			if _, err := w.scanner.Scan(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("rescan failed")
			}
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fw, event.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
			}
			w.trigger()
			return
		}
	}
	if !media.IsAudioFile(event.Name) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.trigger()
	}
}

// trigger schedules a rescan once changes settle.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		select {
		case w.scans <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
