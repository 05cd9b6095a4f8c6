/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/models"
	"github.com/friendsincode/squarewave/internal/telemetry"
)

const saveTimeout = 5 * time.Second

// saver coalesces queue and preference writes and flushes them after a quiet
// period. Failures are logged and counted; the next successful flush carries
// the latest state, so nothing is retried.
type saver struct {
	store  Store
	delay  time.Duration
	logger zerolog.Logger

	mu         sync.Mutex
	timer      *time.Timer
	queue      []*models.Track
	queueDirty bool
	prefs      map[string]string

	flushMu sync.Mutex
}

func newSaver(store Store, delay time.Duration, logger zerolog.Logger) *saver {
	return &saver{
		store:  store,
		delay:  delay,
		logger: logger,
		prefs:  make(map[string]string),
	}
}

func (s *saver) saveQueue(tracks []*models.Track) {
	s.mu.Lock()
	s.queue = tracks
	s.queueDirty = true
	s.armLocked()
	s.mu.Unlock()
}

func (s *saver) savePref(key, value string) {
	s.mu.Lock()
	s.prefs[key] = value
	s.armLocked()
	s.mu.Unlock()
}

func (s *saver) armLocked() {
	if s.delay <= 0 {
		go s.flush()
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.flush)
}

// flush writes whatever is pending. Concurrent flushes are serialized so an
// older snapshot can never land after a newer one.
func (s *saver) flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	queue, queueDirty := s.queue, s.queueDirty
	prefs := s.prefs
	s.queue, s.queueDirty = nil, false
	s.prefs = make(map[string]string)
	s.mu.Unlock()

	if !queueDirty && len(prefs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if queueDirty {
		if err := s.store.SaveNowPlayingQueue(ctx, queue); err != nil {
			telemetry.PersistenceFailuresTotal.WithLabelValues("queue").Inc()
			s.logger.Error().Err(err).Int("tracks", len(queue)).Msg("failed to save now-playing queue")
		}
	}
	for key, value := range prefs {
		if err := s.store.SavePreference(ctx, key, value); err != nil {
			telemetry.PersistenceFailuresTotal.WithLabelValues("preference").Inc()
			s.logger.Error().Err(err).Str("key", key).Msg("failed to save preference")
		}
	}
}
