/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"fmt"
	"os"

	"github.com/gopxl/beep/v2"
)

// Info describes one audio file.
type Info struct {
	Tags
	Format  beep.Format
	Samples int
}

// LengthMs is the decoded length of the file.
func (i *Info) LengthMs() int {
	return SamplesToMs(i.Samples, i.Format.SampleRate)
}

// IntroMs is the part before the loop body, zero without loop tags.
func (i *Info) IntroMs() int {
	if !i.HasLoop() {
		return 0
	}
	return SamplesToMs(i.LoopStart, i.Format.SampleRate)
}

// LoopMs is the length of one pass of the loop body, zero without loop tags.
func (i *Info) LoopMs() int {
	if !i.HasLoop() {
		return 0
	}
	return SamplesToMs(i.LoopLength, i.Format.SampleRate)
}

// Inspect reads tags and the stream header of the file at path.
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	tags, err := ReadTags(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}

	s, format, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return &Info{Tags: tags, Format: format, Samples: s.Len()}, nil
}
