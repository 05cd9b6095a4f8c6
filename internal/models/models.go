/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Track is one playable unit: a file, or one sub-track inside a multi-track file.
type Track struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	Path     string `gorm:"uniqueIndex:idx_track_file" json:"path"`
	SubTrack int    `gorm:"uniqueIndex:idx_track_file" json:"sub_track"`

	// Declared length and loop metadata, in milliseconds. Zero means unknown.
	LengthMs int `json:"length_ms"`
	IntroMs  int `json:"intro_ms"`
	LoopMs   int `json:"loop_ms"`

	// Display labels.
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Game   string `gorm:"index" json:"game"`
	System string `gorm:"index" json:"system"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an identity when the scanner did not.
func (t *Track) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// HasLoop reports whether the track carries loop metadata.
func (t *Track) HasLoop() bool {
	return t != nil && t.LoopMs > 0
}

// NowPlayingEntry is one row of the persisted now-playing queue.
type NowPlayingEntry struct {
	ID        uint   `gorm:"primaryKey"`
	Position  int    `gorm:"index"`
	TrackID   string `gorm:"type:uuid;index"`
	CreatedAt time.Time
}

// Preference stores a single scalar player setting.
type Preference struct {
	Key       string `gorm:"primaryKey;type:varchar(64)"`
	Value     string
	UpdatedAt time.Time
}
