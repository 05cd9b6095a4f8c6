/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package remote turns commands from outside the player (HTTP, NATS, the
// keyboard, OS media keys) into orchestrator calls.
package remote

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/telemetry"
)

// Command names a remote command.
type Command string

const (
	CommandTogglePlayPause   Command = "toggle-play-pause"
	CommandPause             Command = "pause"
	CommandPlay              Command = "play"
	CommandNextTrack         Command = "next-track"
	CommandPreviousTrack     Command = "previous-track"
	CommandChangeShuffleMode Command = "change-shuffle-mode"
	CommandChangeRepeatMode  Command = "change-repeat-mode"
	CommandInterruption      Command = "interruption"
)

// ErrUnknownCommand is returned for commands the bridge does not handle.
var ErrUnknownCommand = errors.New("unknown remote command")

// Event is one remote command with its arguments.
type Event struct {
	Command Command `json:"command"`
	// Enabled sets shuffle or repeat mode. Nil toggles it.
	Enabled *bool `json:"enabled,omitempty"`
	// Began and ShouldResume describe an audio-session interruption.
	Began        bool `json:"began,omitempty"`
	ShouldResume bool `json:"should_resume,omitempty"`
	// Source labels where the command came from, for logs and metrics.
	Source string `json:"-"`
	// Client is the authenticated caller, empty when the API is open.
	Client string `json:"-"`
}

// Controller is the slice of the orchestrator that remote commands drive.
type Controller interface {
	Play()
	Pause()
	TogglePlayPause()
	Next()
	Previous()
	SetShuffle(enabled bool)
	ToggleShuffle()
	SetLoop(enabled bool)
	ToggleLoop()
	InterruptionBegan()
	InterruptionEnded(shouldResume bool)
}

// Bridge dispatches remote events to a Controller.
type Bridge struct {
	ctrl   Controller
	logger zerolog.Logger
}

// NewBridge creates a bridge for ctrl.
func NewBridge(ctrl Controller, logger zerolog.Logger) *Bridge {
	return &Bridge{
		ctrl:   ctrl,
		logger: logger.With().Str("component", "remote").Logger(),
	}
}

// Handle applies ev. Unknown commands return ErrUnknownCommand and change nothing.
func (b *Bridge) Handle(ev Event) error {
	source := ev.Source
	if source == "" {
		source = "unknown"
	}

	switch ev.Command {
	case CommandTogglePlayPause:
		b.ctrl.TogglePlayPause()
	case CommandPause:
		b.ctrl.Pause()
	case CommandPlay:
		b.ctrl.Play()
	case CommandNextTrack:
		b.ctrl.Next()
	case CommandPreviousTrack:
		b.ctrl.Previous()
	case CommandChangeShuffleMode:
		if ev.Enabled == nil {
			b.ctrl.ToggleShuffle()
		} else {
			b.ctrl.SetShuffle(*ev.Enabled)
		}
	case CommandChangeRepeatMode:
		if ev.Enabled == nil {
			b.ctrl.ToggleLoop()
		} else {
			b.ctrl.SetLoop(*ev.Enabled)
		}
	case CommandInterruption:
		if ev.Began {
			b.ctrl.InterruptionBegan()
		} else {
			b.ctrl.InterruptionEnded(ev.ShouldResume)
		}
	default:
		b.logger.Warn().
			Str("command", string(ev.Command)).
			Str("source", source).
			Str("client", ev.Client).
			Msg("ignoring unknown remote command")
		return fmt.Errorf("%w: %q", ErrUnknownCommand, ev.Command)
	}

	telemetry.RemoteCommandsTotal.WithLabelValues(source, string(ev.Command)).Inc()
	b.logger.Debug().
		Str("command", string(ev.Command)).
		Str("source", source).
		Str("client", ev.Client).
		Msg("remote command")
	return nil
}
