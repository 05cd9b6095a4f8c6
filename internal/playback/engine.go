/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "context"

// Engine is the decoder handle the orchestrator drives. Commands are issued
// from a single dispatcher goroutine in order; queries are polled from the
// poller goroutine, so implementations must tolerate queries running
// concurrently with commands.
type Engine interface {
	Stop()
	// LoadFile opens path and selects subTrack. It must give up once ctx is done.
	LoadFile(ctx context.Context, path string, subTrack int) error
	Play()
	Pause()
	SetTempo(tempo float64)
	SetMuteVoiceMask(mask uint32)
	// SetFadeCountdownMs makes the engine start fading out ms after the track
	// start (in output time) and report TrackEnded once the fade completes.
	SetFadeCountdownMs(ms int)
	// ResetFadeCountdown cancels any pending fade so the track plays until stopped.
	ResetFadeCountdown()

	// ElapsedMs reports output time since the track started, not scaled by tempo.
	ElapsedMs() int
	// TrackEnded stays true from the end of a track until the next load.
	TrackEnded() bool
	VoiceCount() int
	VoiceName(index int) string
}

// Voice describes one decoder voice channel.
type Voice struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Muted bool   `json:"muted"`
}

// MaxVoices is the number of voices a mute mask can address.
const MaxVoices = 32
