/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package engine

import (
	"github.com/gopxl/beep/v2"
)

const resampleQuality = 4

// track is the streamer chain of one loaded file:
//
//	decoder -> loopSource -> resampler (rate + tempo) -> track (mute, fade) -> ctrl
//
// Fields below the chain are touched by the output goroutine and must only be
// read or written under the output lock.
type track struct {
	path      string
	decoder   beep.StreamSeekCloser
	format    beep.Format
	loopStart int // source samples, -1 without loop tags
	baseRatio float64

	resampler *beep.Resampler
	ctrl      *beep.Ctrl

	played  int // output samples
	fadeAt  int // output samples, -1 disables the fade
	fadeLen int
	mask    uint32
	ended   bool
	err     error
}

func newTrack(path string, dec beep.StreamSeekCloser, format beep.Format, loopStart int, out beep.SampleRate) *track {
	t := &track{
		path:      path,
		decoder:   dec,
		format:    format,
		loopStart: loopStart,
		baseRatio: float64(format.SampleRate) / float64(out),
		fadeAt:    -1,
	}
	return t
}

// build wires a fresh chain at the start of the file. The chain starts paused.
func (t *track) build(tempo float64) error {
	if err := t.decoder.Seek(0); err != nil {
		return err
	}
	if tempo <= 0 {
		tempo = 1
	}
	t.resampler = beep.ResampleRatio(resampleQuality, t.baseRatio*tempo, &loopSource{t: t})
	t.ctrl = &beep.Ctrl{Streamer: t, Paused: true}
	t.played = 0
	t.ended = false
	t.err = nil
	return nil
}

func (t *track) setTempo(tempo float64) {
	if tempo <= 0 {
		tempo = 1
	}
	t.resampler.SetRatio(t.baseRatio * tempo)
}

// Stream applies the voice mask and the fade-out. Once the fade has run its
// course, or the source is drained, the track reports ended until the next load.
func (t *track) Stream(samples [][2]float64) (int, bool) {
	if t.ended {
		return 0, false
	}

	n, _ := t.resampler.Stream(samples)
	for i := 0; i < n; i++ {
		if t.mask&1 != 0 {
			samples[i][0] = 0
		}
		if t.mask&2 != 0 {
			samples[i][1] = 0
		}
		if t.fadeAt >= 0 && t.played >= t.fadeAt {
			gain := 1 - float64(t.played-t.fadeAt)/float64(t.fadeLen)
			if gain <= 0 {
				t.ended = true
				return i, i > 0
			}
			samples[i][0] *= gain
			samples[i][1] *= gain
		}
		t.played++
	}
	if n < len(samples) {
		t.ended = true
	}
	return n, n > 0
}

func (t *track) Err() error {
	if t.err != nil {
		return t.err
	}
	return t.decoder.Err()
}

func (t *track) close() error {
	return t.decoder.Close()
}

// wraps reports whether a drained decoder should start over. Tracks keep
// looping while the fade is disabled, and tracks with a loop body keep
// looping until the fade has finished.
func (t *track) wraps() bool {
	return t.fadeAt < 0 || t.loopStart >= 0
}

// loopSource reads the decoder and jumps back to the loop start when it runs dry.
type loopSource struct {
	t *track
}

func (s *loopSource) Stream(samples [][2]float64) (int, bool) {
	t := s.t
	n, _ := t.decoder.Stream(samples)
	for n < len(samples) && t.wraps() {
		if err := t.decoder.Seek(max(t.loopStart, 0)); err != nil {
			t.err = err
			break
		}
		m, _ := t.decoder.Stream(samples[n:])
		if m == 0 {
			break
		}
		n += m
	}
	return n, n > 0
}

func (s *loopSource) Err() error {
	return s.t.decoder.Err()
}
