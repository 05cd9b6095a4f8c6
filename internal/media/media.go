/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media opens and inspects audio files for the library scanner and
// the audio engine.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for files no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// IsAudioFile reports whether name has an extension the player can decode.
func IsAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".wav":
		return true
	default:
		return false
	}
}

// Open opens path and returns a seekable decoder for it. Closing the decoder
// closes the file.
func Open(path string) (beep.StreamSeekCloser, beep.Format, error) {
	if !IsAudioFile(path) {
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	default:
		s, format, err = wav.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return s, format, nil
}

// SamplesToMs converts a sample count at rate sr to milliseconds.
func SamplesToMs(n int, sr beep.SampleRate) int {
	if sr <= 0 {
		return 0
	}
	return int(sr.D(n) / time.Millisecond)
}
