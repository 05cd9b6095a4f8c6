/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package nowplaying mirrors the playback session into now-playing
// surfaces: desktop notifications, a Redis key and channel, and websocket
// clients.
package nowplaying

import (
	"github.com/friendsincode/squarewave/internal/playback"
)

// Genre is reported for every track.
const Genre = "Video Game Music"

// Metadata is the now-playing record. A zero TrackID means nothing is loaded.
type Metadata struct {
	TrackID string `json:"track_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Album   string `json:"album,omitempty"`
	Genre   string `json:"genre,omitempty"`

	// DurationMs is the fade point in track time. It is omitted while
	// looping, when Live is set instead.
	DurationMs   int            `json:"duration_ms,omitempty"`
	Live         bool           `json:"live"`
	ElapsedMs    int            `json:"elapsed_ms"`
	PlaybackRate float64        `json:"playback_rate"`
	State        playback.State `json:"state"`
	HasArtwork   bool           `json:"has_artwork"`
}

// Build derives metadata from a session snapshot.
func Build(s playback.Snapshot) Metadata {
	md := Metadata{State: s.State}
	if s.NowPlaying == nil {
		return md
	}

	t := s.NowPlaying
	md.TrackID = t.ID
	md.Title = t.Title
	md.Artist = t.Game
	md.Album = t.System
	md.Genre = Genre
	md.ElapsedMs = s.ElapsedMs

	if s.State == playback.StatePlaying {
		md.PlaybackRate = s.Tempo
	}

	// Elapsed is reported in track time, so the duration is computed at
	// unit tempo and the rate carries the speed.
	fade := playback.ComputeFade(playback.FadeInput{
		Track:       t,
		LoopEnabled: s.LoopEnabled,
		LoopCount:   s.LoopCount,
		FallbackMs:  s.FallbackMs,
		Tempo:       1,
	})
	if fade.Disabled {
		md.Live = true
	} else {
		md.DurationMs = fade.Ms
	}
	return md
}
