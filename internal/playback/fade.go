/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"math"

	"github.com/friendsincode/squarewave/internal/models"
)

// FadeInput carries everything the fade point depends on.
type FadeInput struct {
	Track       *models.Track
	LoopEnabled bool
	LoopCount   int
	FallbackMs  int
	Tempo       float64
}

// FadeSpec is the fade countdown pushed to the engine. Ms is measured in
// output time, so it already accounts for tempo.
type FadeSpec struct {
	Disabled bool `json:"disabled"`
	Ms       int  `json:"ms,omitempty"`
}

// ComputeFade returns when playback should start fading out.
//
// Looping disables the fade. Otherwise the fade point is the intro plus
// LoopCount passes of the loop body for tracks with loop metadata, the
// declared length for tracks that have one, and FallbackMs for the rest;
// each divided by tempo.
func ComputeFade(in FadeInput) FadeSpec {
	if in.LoopEnabled {
		return FadeSpec{Disabled: true}
	}

	tempo := in.Tempo
	if tempo <= 0 {
		tempo = 1
	}

	var ms int
	switch {
	case in.Track.HasLoop():
		ms = in.Track.IntroMs + in.Track.LoopMs*in.LoopCount
	case in.Track != nil && in.Track.LengthMs > 0:
		ms = in.Track.LengthMs
	default:
		ms = in.FallbackMs
	}

	return FadeSpec{Ms: int(math.Round(float64(ms) / tempo))}
}

// Apply pushes the fade to the engine.
func (f FadeSpec) Apply(e Engine) {
	if f.Disabled {
		e.ResetFadeCountdown()
		return
	}
	e.SetFadeCountdownMs(f.Ms)
}
