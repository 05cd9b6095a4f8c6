/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// Tags is the metadata the player cares about. Loop points are in samples of
// the file's own sample rate; LoopStart is -1 when the file carries no loop.
type Tags struct {
	Title      string
	Artist     string
	Album      string
	Genre      string
	LoopStart  int
	LoopLength int
	Picture    *tag.Picture
}

// HasLoop reports whether the file declares a loop body.
func (t Tags) HasLoop() bool {
	return t.LoopStart >= 0 && t.LoopLength > 0
}

// ReadTags reads tag metadata from r. Files without tags yield empty Tags
// and no error.
func ReadTags(r io.ReadSeeker) (Tags, error) {
	tags := Tags{LoopStart: -1}

	m, err := tag.ReadFrom(r)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return tags, nil
	}
	if err != nil {
		return tags, err
	}

	tags.Title = m.Title()
	tags.Artist = m.Artist()
	tags.Album = m.Album()
	tags.Genre = m.Genre()
	tags.Picture = m.Picture()
	tags.LoopStart, tags.LoopLength = loopPoints(m.Raw())
	return tags, nil
}

// loopPoints finds LOOPSTART and LOOPLENGTH in raw tag frames. Vorbis
// comments store them as plain strings; ID3v2 stores them as TXXX frames,
// possibly several, keyed TXXX, TXXX_0 and so on.
func loopPoints(raw map[string]interface{}) (start, length int) {
	start = -1
	for key, value := range raw {
		var name, text string
		switch v := value.(type) {
		case *tag.Comm:
			name, text = v.Description, v.Text
		case string:
			name, text = key, v
		default:
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil || n < 0 {
			continue
		}
		switch strings.ToUpper(name) {
		case "LOOPSTART":
			start = n
		case "LOOPLENGTH":
			length = n
		}
	}
	return start, length
}
