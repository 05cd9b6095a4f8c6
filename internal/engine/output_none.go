//go:build !((linux && cgo) || windows || darwin)

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"github.com/rs/zerolog"
)

// AudioAvailable indicates whether this build plays through a sound device.
// Sound output needs cgo on Linux.
const AudioAvailable = false

// New returns a silent player; without a sound device it keeps time only.
func New(opts Options, logger zerolog.Logger) *Player {
	logger.Warn().Msg("built without audio output, playing silently")
	return NewSilent(opts, logger)
}
