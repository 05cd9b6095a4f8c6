//go:build (linux && cgo) || windows || darwin

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"
)

// AudioAvailable indicates whether this build plays through a sound device.
const AudioAvailable = true

// speakerOutput plays through the system sound device.
type speakerOutput struct {
	once  sync.Once
	err   error
	ready bool
}

func (s *speakerOutput) init(sr beep.SampleRate) error {
	s.once.Do(func() {
		s.err = speaker.Init(sr, sr.N(time.Second/10))
		s.ready = s.err == nil
	})
	return s.err
}

func (s *speakerOutput) play(st beep.Streamer) { speaker.Play(st) }
func (s *speakerOutput) lock()                 { speaker.Lock() }
func (s *speakerOutput) unlock()               { speaker.Unlock() }
func (s *speakerOutput) clear()                { speaker.Clear() }

func (s *speakerOutput) close() {
	if s.ready {
		speaker.Close()
		s.ready = false
	}
}

// New returns a player on the system sound device.
func New(opts Options, logger zerolog.Logger) *Player {
	return newPlayer(&speakerOutput{}, opts, logger)
}
