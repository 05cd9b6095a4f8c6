/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"slices"

	"github.com/friendsincode/squarewave/internal/models"
)

// State is the orchestrator's playback state.
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

func (s State) gaugeValue() float64 {
	switch s {
	case StatePlaying:
		return 1
	case StatePaused:
		return 2
	default:
		return 0
	}
}

// validTransitions lists the states reachable from each state.
var validTransitions = map[State][]State{
	StateStopped: {StatePlaying},
	StatePlaying: {StatePaused, StateStopped},
	StatePaused:  {StatePlaying, StateStopped},
}

func isValidTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// AllowedTempos is the set of playback rates the player accepts.
var AllowedTempos = []float64{0.5, 0.75, 1.0, 1.5, 2.0}

// ValidTempo reports whether t is one of AllowedTempos.
func ValidTempo(t float64) bool {
	return slices.Contains(AllowedTempos, t)
}

// Snapshot is a consistent read-only view of the session, published on the
// event bus after every transition.
type Snapshot struct {
	State          State         `json:"state"`
	NowPlaying     *models.Track `json:"now_playing,omitempty"`
	Position       int           `json:"position"`
	QueueLength    int           `json:"queue_length"`
	ElapsedMs      int           `json:"elapsed_ms"`
	LoopEnabled    bool          `json:"loop_enabled"`
	ShuffleEnabled bool          `json:"shuffle_enabled"`
	Tempo          float64       `json:"tempo"`
	MuteMask       uint32        `json:"mute_mask"`
	LoopCount      int           `json:"loop_count"`
	FallbackMs     int           `json:"fallback_ms"`
	Fade           FadeSpec      `json:"fade"`
}
