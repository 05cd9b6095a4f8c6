/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"

	"github.com/friendsincode/squarewave/internal/models"
)

// Preference keys persisted by the orchestrator.
const (
	PrefLoopEnabled       = "loop_enabled"
	PrefShuffleEnabled    = "shuffle_enabled"
	PrefTempo             = "tempo"
	PrefLoopCount         = "loop_count"
	PrefFallbackLengthMs  = "fallback_length_ms"
	PrefLastPlayedTrackID = "last_played_track_id"
	PrefLastPlayedIndex   = "last_played_index"
)

// Store is the persistence the orchestrator reads at startup and writes
// (debounced) after every mutation. Lookups that may legitimately miss return
// a found flag instead of a sentinel error.
type Store interface {
	LoadNowPlayingQueue(ctx context.Context) ([]*models.Track, error)
	SaveNowPlayingQueue(ctx context.Context, tracks []*models.Track) error
	LoadLastPlayedTrack(ctx context.Context) (*models.Track, bool, error)
	LoadPreference(ctx context.Context, key string) (string, bool, error)
	SavePreference(ctx context.Context, key, value string) error
	// LoadLibrary returns every known track, used when the now-playing queue is empty.
	LoadLibrary(ctx context.Context) ([]*models.Track, error)
}
