/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package engine plays audio files through beep. A Player decodes one file
// at a time and reports progress only when asked.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/media"
	"github.com/friendsincode/squarewave/internal/playback"
)

const (
	// DefaultSampleRate is the output rate; files are resampled to it.
	DefaultSampleRate = beep.SampleRate(44100)
	// DefaultFadeOut is how long the fade-out lasts once the countdown expires.
	DefaultFadeOut = 8 * time.Second

	silentTick = 20 * time.Millisecond
)

// ErrNoSubTrack is returned when a file does not contain the requested sub-track.
var ErrNoSubTrack = errors.New("sub-track not available")

var voiceNames = []string{"Left", "Right"}

var _ playback.Engine = (*Player)(nil)

// Options configures a Player.
type Options struct {
	SampleRate beep.SampleRate
	FadeOut    time.Duration
}

// Player implements playback.Engine.
type Player struct {
	out     output
	sr      beep.SampleRate
	fadeOut time.Duration
	logger  zerolog.Logger

	mu     sync.Mutex
	cur    *track
	active bool // cur is attached to the output
	tempo  float64
	mask   uint32
	fadeMs int // -1 when disabled
}

// NewSilent returns a player that keeps time without a sound device.
func NewSilent(opts Options, logger zerolog.Logger) *Player {
	return newPlayer(newClockOutput(silentTick), opts, logger)
}

func newPlayer(out output, opts Options, logger zerolog.Logger) *Player {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.FadeOut <= 0 {
		opts.FadeOut = DefaultFadeOut
	}
	return &Player{
		out:     out,
		sr:      opts.SampleRate,
		fadeOut: opts.FadeOut,
		logger:  logger.With().Str("component", "engine").Logger(),
		tempo:   1,
		fadeMs:  -1,
	}
}

// Stop detaches the current track from the output. The decoder stays open so
// reloading the same file only rewinds it.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detachLocked()
}

func (p *Player) detachLocked() {
	if p.cur == nil || !p.active {
		return
	}
	p.out.lock()
	p.cur.ctrl.Paused = true
	p.out.unlock()
	p.out.clear()
	p.active = false
}

// LoadFile opens path and attaches it to the output, paused. Plain audio
// files have a single sub-track, 0.
func (p *Player) LoadFile(ctx context.Context, path string, subTrack int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subTrack != 0 {
		return fmt.Errorf("%w: %s#%d", ErrNoSubTrack, path, subTrack)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.detachLocked()
	if err := p.out.init(p.sr); err != nil {
		return fmt.Errorf("init audio output: %w", err)
	}

	if p.cur == nil || p.cur.path != path {
		t, err := p.open(path)
		if err != nil {
			return err
		}
		if p.cur != nil {
			if err := p.cur.close(); err != nil {
				p.logger.Debug().Err(err).Str("path", p.cur.path).Msg("closing previous file")
			}
		}
		p.cur = t
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	t := p.cur
	if err := t.build(p.tempo); err != nil {
		t.close()
		p.cur = nil
		return fmt.Errorf("rewind %s: %w", path, err)
	}
	t.mask = p.mask
	t.fadeLen = p.sr.N(p.fadeOut)
	t.fadeAt = p.fadeSamples(p.fadeMs)

	p.out.play(t.ctrl)
	p.active = true

	p.logger.Debug().
		Str("path", path).
		Int("sample_rate", int(t.format.SampleRate)).
		Int("loop_start", t.loopStart).
		Msg("file loaded")
	return nil
}

func (p *Player) open(path string) (*track, error) {
	loopStart := -1
	if f, err := os.Open(path); err == nil {
		tags, err := media.ReadTags(f)
		f.Close()
		if err != nil {
			p.logger.Debug().Err(err).Str("path", path).Msg("unreadable tags")
		} else if tags.HasLoop() {
			loopStart = tags.LoopStart
		}
	}

	dec, format, err := media.Open(path)
	if err != nil {
		return nil, err
	}
	return newTrack(path, dec, format, loopStart, p.sr), nil
}

// Play resumes the attached track.
func (p *Player) Play() {
	p.setPaused(false)
}

// Pause pauses the attached track, keeping its position.
func (p *Player) Pause() {
	p.setPaused(true)
}

func (p *Player) setPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil || !p.active {
		return
	}
	p.out.lock()
	p.cur.ctrl.Paused = paused
	p.out.unlock()
}

// SetTempo changes the playback rate; pitch follows.
func (p *Player) SetTempo(tempo float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tempo = tempo
	p.withTrack(func(t *track) { t.setTempo(tempo) })
}

// SetMuteVoiceMask silences the channels whose bits are set.
func (p *Player) SetMuteVoiceMask(mask uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mask = mask
	p.withTrack(func(t *track) { t.mask = mask })
}

// SetFadeCountdownMs schedules the fade-out ms of output time after the
// start of the track.
func (p *Player) SetFadeCountdownMs(ms int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fadeMs = max(ms, 0)
	at := p.fadeSamples(p.fadeMs)
	p.withTrack(func(t *track) { t.fadeAt = at })
}

// ResetFadeCountdown disables the fade so the track plays on.
func (p *Player) ResetFadeCountdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fadeMs = -1
	p.withTrack(func(t *track) { t.fadeAt = -1 })
}

// ElapsedMs is the output time played since the track was loaded.
func (p *Player) ElapsedMs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil || !p.active {
		return 0
	}
	p.out.lock()
	played := p.cur.played
	p.out.unlock()
	return int(p.sr.D(played) / time.Millisecond)
}

// TrackEnded reports whether the track finished, either by fading out or by
// running out of audio. It stays true until the next load.
func (p *Player) TrackEnded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil || !p.active {
		return false
	}
	p.out.lock()
	defer p.out.unlock()
	if err := p.cur.Err(); err != nil && !p.cur.ended {
		p.logger.Warn().Err(err).Str("path", p.cur.path).Msg("decoder error")
		p.cur.ended = true
	}
	return p.cur.ended
}

// VoiceCount is the number of mutable channels.
func (p *Player) VoiceCount() int {
	return len(voiceNames)
}

// VoiceName names channel i.
func (p *Player) VoiceName(i int) string {
	if i < 0 || i >= len(voiceNames) {
		return ""
	}
	return voiceNames[i]
}

// Close releases the file and the output.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.detachLocked()
	var err error
	if p.cur != nil {
		err = p.cur.close()
		p.cur = nil
	}
	p.out.close()
	return err
}

func (p *Player) withTrack(fn func(t *track)) {
	if p.cur == nil || p.cur.ctrl == nil {
		return
	}
	p.out.lock()
	fn(p.cur)
	p.out.unlock()
}

func (p *Player) fadeSamples(ms int) int {
	if ms < 0 {
		return -1
	}
	return p.sr.N(time.Duration(ms) * time.Millisecond)
}
