/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library indexes a music directory into the track table and keeps
// it current while files change.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/squarewave/internal/events"
	"github.com/friendsincode/squarewave/internal/media"
	"github.com/friendsincode/squarewave/internal/models"
	"github.com/friendsincode/squarewave/internal/telemetry"
)

// TrackStore is the part of the persistence layer the scanner writes to.
type TrackStore interface {
	LoadLibrary(ctx context.Context) ([]*models.Track, error)
	UpsertTracks(ctx context.Context, tracks []*models.Track) error
	RemoveTracks(ctx context.Context, ids []string) error
}

// Result summarizes one scan. RemovedIDs lists the tracks dropped because
// their file is gone.
type Result struct {
	Files      int           `json:"files"`
	Indexed    int           `json:"indexed"`
	Removed    int           `json:"removed"`
	RemovedIDs []string      `json:"removed_ids,omitempty"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
}

// Scanner walks the music directory. The expected layout is
// <root>/<system>/<game>/<file>, and tags win over directory names.
type Scanner struct {
	root   string
	store  TrackStore
	bus    *events.Bus
	logger zerolog.Logger

	mu sync.Mutex // one scan at a time
}

// NewScanner creates a scanner for root. bus may be nil.
func NewScanner(root string, store TrackStore, bus *events.Bus, logger zerolog.Logger) *Scanner {
	return &Scanner{
		root:   root,
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "library_scanner").Logger(),
	}
}

// Root is the scanned directory.
func (s *Scanner) Root() string {
	return s.root
}

// Scan indexes every audio file under the root and drops tracks whose file
// is gone.
func (s *Scanner) Scan(ctx context.Context) (result *Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := telemetry.StartSpan(ctx, "library.scan", attribute.String("library.root", s.root))
	defer func() {
		if result != nil {
			span.SetAttributes(
				attribute.Int("library.files", result.Files),
				attribute.Int("library.removed", result.Removed),
				attribute.Int("library.errors", result.Errors),
			)
		}
		telemetry.EndSpan(span, err)
	}()

	start := time.Now()
	result = &Result{}
	s.logger.Info().Str("root", s.root).Msg("starting library scan")

	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("resolve music dir: %w", err)
	}

	var found []*models.Track
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("error accessing path")
			result.Errors++
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() || !media.IsAudioFile(info.Name()) {
			return nil
		}

		result.Files++
		track, err := s.trackFor(root, path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to read audio file")
			result.Errors++
			return nil
		}
		found = append(found, track)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("walk music dir: %w", err)
	}

	if err := s.store.UpsertTracks(ctx, found); err != nil {
		return nil, err
	}
	result.Indexed = len(found)

	removed, err := s.prune(ctx, root, found)
	if err != nil {
		return nil, err
	}
	result.Removed = len(removed)
	result.RemovedIDs = removed

	result.Duration = time.Since(start)
	telemetry.LibraryScanDuration.Observe(result.Duration.Seconds())
	telemetry.LibraryTracks.Set(float64(result.Indexed))

	s.logger.Info().
		Int("files", result.Files).
		Int("indexed", result.Indexed).
		Int("removed", result.Removed).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("library scan complete")

	if s.bus != nil {
		s.bus.Publish(events.EventLibraryScanned, events.Payload{
			"result":  *result,
			"removed": removed,
		})
	}
	return result, nil
}

// prune removes tracks under root that the walk did not see and returns
// their IDs.
func (s *Scanner) prune(ctx context.Context, root string, found []*models.Track) ([]string, error) {
	existing, err := s.store.LoadLibrary(ctx)
	if err != nil {
		return nil, err
	}

	seen := lo.SliceToMap(found, func(t *models.Track) (string, struct{}) { return t.Path, struct{}{} })
	prefix := root + string(filepath.Separator)
	stale := lo.FilterMap(existing, func(t *models.Track, _ int) (string, bool) {
		_, ok := seen[t.Path]
		return t.ID, !ok && strings.HasPrefix(t.Path, prefix)
	})
	if len(stale) == 0 {
		return nil, nil
	}
	if err := s.store.RemoveTracks(ctx, stale); err != nil {
		return nil, err
	}
	return stale, nil
}

func (s *Scanner) trackFor(root, path string) (*models.Track, error) {
	info, err := media.Inspect(path)
	if err != nil {
		return nil, err
	}

	system, game := labelsFromPath(root, path)
	track := &models.Track{
		Path:     path,
		LengthMs: info.LengthMs(),
		IntroMs:  info.IntroMs(),
		LoopMs:   info.LoopMs(),
		Title:    info.Title,
		Artist:   info.Artist,
		Game:     lo.CoalesceOrEmpty(info.Album, game),
		System:   system,
	}
	if track.Title == "" {
		base := filepath.Base(path)
		track.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return track, nil
}

// labelsFromPath derives system and game names from the directories between
// root and the file.
func labelsFromPath(root, path string) (system, game string) {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return "", ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	switch len(parts) {
	case 1:
		return "", parts[0]
	default:
		return parts[0], parts[1]
	}
}
