/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package nowplaying

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/friendsincode/squarewave/internal/media"
	"github.com/friendsincode/squarewave/internal/models"
)

// DefaultArtworkSize is the edge length of published artwork.
const DefaultArtworkSize = 512

const artworkCacheLimit = 128

var artworkExts = []string{".png", ".jpg", ".jpeg"}

// Artwork finds cover art for a track and rescales it to a fixed square.
//
// Lookup order: a picture embedded in the file, <dir>/<system>/<game>.ext,
// then <dir>/<system>.ext.
type Artwork struct {
	dir    string
	size   int
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[string][]byte
}

// NewArtwork creates a lookup rooted at dir. size <= 0 uses DefaultArtworkSize.
func NewArtwork(dir string, size int, logger zerolog.Logger) *Artwork {
	if size <= 0 {
		size = DefaultArtworkSize
	}
	return &Artwork{
		dir:    dir,
		size:   size,
		logger: logger.With().Str("component", "artwork").Logger(),
		cache:  make(map[string][]byte),
	}
}

// For returns PNG bytes for t, or nil when no artwork exists.
func (a *Artwork) For(t *models.Track) ([]byte, error) {
	if t == nil {
		return nil, nil
	}

	a.mu.Lock()
	if data, ok := a.cache[t.Path]; ok {
		a.mu.Unlock()
		return data, nil
	}
	a.mu.Unlock()

	src, err := a.source(t)
	if err != nil {
		return nil, err
	}
	var data []byte
	if src != nil {
		data, err = Rescale(src, a.size)
		if err != nil {
			return nil, err
		}
	}

	a.mu.Lock()
	if len(a.cache) >= artworkCacheLimit {
		clear(a.cache)
	}
	a.cache[t.Path] = data
	a.mu.Unlock()
	return data, nil
}

func (a *Artwork) source(t *models.Track) (image.Image, error) {
	if img := a.embedded(t.Path); img != nil {
		return img, nil
	}
	if a.dir == "" {
		return nil, nil
	}

	var candidates []string
	if t.System != "" && t.Game != "" {
		candidates = append(candidates, filepath.Join(a.dir, t.System, t.Game))
	}
	if t.System != "" {
		candidates = append(candidates, filepath.Join(a.dir, t.System))
	}
	for _, base := range candidates {
		for _, ext := range artworkExts {
			img, err := decodeFile(base + ext)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return img, nil
		}
	}
	return nil, nil
}

func (a *Artwork) embedded(path string) image.Image {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	tags, err := media.ReadTags(f)
	if err != nil || tags.Picture == nil || len(tags.Picture.Data) == 0 {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(tags.Picture.Data))
	if err != nil {
		a.logger.Debug().Err(err).Str("path", path).Msg("embedded artwork unreadable")
		return nil
	}
	return img
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode artwork %s: %w", path, err)
	}
	return img, nil
}

// Rescale fits src inside a size x size transparent square, keeping its
// aspect ratio, and encodes the result as PNG.
func Rescale(src image.Image, size int) ([]byte, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("artwork has empty bounds")
	}

	w, h := size, size
	if b.Dx() > b.Dy() {
		h = max(1, size*b.Dy()/b.Dx())
	} else if b.Dy() > b.Dx() {
		w = max(1, size*b.Dx()/b.Dy())
	}
	x0, y0 := (size-w)/2, (size-h)/2

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode artwork: %w", err)
	}
	return buf.Bytes(), nil
}
