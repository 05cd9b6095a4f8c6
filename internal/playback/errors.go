/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "errors"

var (
	// ErrIndexOutOfRange indicates a queue seek outside [0, len). The queue is left untouched.
	ErrIndexOutOfRange = errors.New("queue index out of range")

	// ErrInvalidTempo indicates a tempo outside AllowedTempos.
	ErrInvalidTempo = errors.New("unsupported tempo")

	// ErrInvalidVoice indicates a voice index the engine does not expose.
	ErrInvalidVoice = errors.New("voice index out of range")

	// ErrInvalidLoopCount indicates a loop count below one.
	ErrInvalidLoopCount = errors.New("loop count must be at least 1")

	// ErrInvalidLength indicates a non-positive fallback track length.
	ErrInvalidLength = errors.New("fallback length must be positive")

	// ErrEngineLoad wraps any failure of the engine to load a track.
	ErrEngineLoad = errors.New("engine failed to load track")

	// ErrLoadTimeout indicates the engine did not finish loading before the deadline.
	ErrLoadTimeout = errors.New("engine load timed out")
)
