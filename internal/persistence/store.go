/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package persistence stores the music library, the now-playing queue and
// player preferences with GORM.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/squarewave/internal/models"
	"github.com/friendsincode/squarewave/internal/playback"
)

const batchSize = 200

var _ playback.Store = (*Store)(nil)

// Store is the GORM-backed playback.Store.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a store on an open, migrated database.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "persistence").Logger(),
	}
}

// LoadNowPlayingQueue returns the persisted queue in order. Entries whose
// track has left the library are skipped.
func (s *Store) LoadNowPlayingQueue(ctx context.Context) ([]*models.Track, error) {
	var entries []models.NowPlayingEntry
	if err := s.db.WithContext(ctx).Order("position").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("query now-playing entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := lo.Map(entries, func(e models.NowPlayingEntry, _ int) string { return e.TrackID })
	tracks, err := s.TracksByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := len(entries) - len(tracks); missing > 0 {
		s.logger.Warn().Int("missing", missing).Msg("now-playing queue references unknown tracks")
	}
	return tracks, nil
}

// SaveNowPlayingQueue replaces the persisted queue.
func (s *Store) SaveNowPlayingQueue(ctx context.Context, tracks []*models.Track) error {
	entries := lo.Map(tracks, func(t *models.Track, i int) models.NowPlayingEntry {
		return models.NowPlayingEntry{Position: i, TrackID: t.ID}
	})

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.NowPlayingEntry{}).Error; err != nil {
			return fmt.Errorf("clear now-playing entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(entries, batchSize).Error; err != nil {
			return fmt.Errorf("insert now-playing entries: %w", err)
		}
		return nil
	})
}

// LoadLastPlayedTrack resolves the last_played_track_id preference.
func (s *Store) LoadLastPlayedTrack(ctx context.Context) (*models.Track, bool, error) {
	id, found, err := s.LoadPreference(ctx, playback.PrefLastPlayedTrackID)
	if err != nil || !found || id == "" {
		return nil, false, err
	}

	var track models.Track
	err = s.db.WithContext(ctx).Where("id = ?", id).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query last played track: %w", err)
	}
	return &track, true, nil
}

// LoadPreference returns the stored value of key.
func (s *Store) LoadPreference(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, nil
	}

	var pref models.Preference
	err := s.db.WithContext(ctx).Where(&models.Preference{Key: key}).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query preference %s: %w", key, err)
	}
	return pref.Value, true, nil
}

// SavePreference upserts key.
func (s *Store) SavePreference(ctx context.Context, key, value string) error {
	pref := models.Preference{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return fmt.Errorf("upsert preference %s: %w", key, err)
	}
	return nil
}

// LoadLibrary returns every track, grouped by system and game.
func (s *Store) LoadLibrary(ctx context.Context) ([]*models.Track, error) {
	var tracks []*models.Track
	q := s.db.WithContext(ctx)
	for _, col := range []string{"system", "game", "path", "sub_track"} {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: col}})
	}
	err := q.Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("query library: %w", err)
	}
	return tracks, nil
}

// TracksByID returns the tracks with the given ids in the order given.
// Unknown ids are skipped.
func (s *Store) TracksByID(ctx context.Context, ids []string) ([]*models.Track, error) {
	byID := make(map[string]*models.Track, len(ids))
	for _, chunk := range lo.Chunk(lo.Uniq(ids), batchSize) {
		var tracks []*models.Track
		if err := s.db.WithContext(ctx).Where("id IN ?", chunk).Find(&tracks).Error; err != nil {
			return nil, fmt.Errorf("query tracks: %w", err)
		}
		for _, t := range tracks {
			byID[t.ID] = t
		}
	}

	return lo.FilterMap(ids, func(id string, _ int) (*models.Track, bool) {
		t, ok := byID[id]
		return t, ok
	}), nil
}

// UpsertTracks inserts tracks or refreshes their metadata, keyed by file and
// sub-track.
func (s *Store) UpsertTracks(ctx context.Context, tracks []*models.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "path"}, {Name: "sub_track"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"length_ms", "intro_ms", "loop_ms", "title", "artist", "game", "system", "updated_at",
		}),
	}).CreateInBatches(tracks, batchSize).Error
	if err != nil {
		return fmt.Errorf("upsert tracks: %w", err)
	}
	return nil
}

// RemoveTracks deletes tracks and their now-playing entries.
func (s *Store) RemoveTracks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range lo.Chunk(ids, batchSize) {
			if err := tx.Where("track_id IN ?", chunk).Delete(&models.NowPlayingEntry{}).Error; err != nil {
				return fmt.Errorf("delete now-playing entries: %w", err)
			}
			if err := tx.Where("id IN ?", chunk).Delete(&models.Track{}).Error; err != nil {
				return fmt.Errorf("delete tracks: %w", err)
			}
		}
		return nil
	})
}

// CountTracks returns the library size.
func (s *Store) CountTracks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Track{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return n, nil
}
