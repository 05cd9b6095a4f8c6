/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package nowplaying

import (
	"context"
	"strings"

	"github.com/gen2brain/beeep"
	"github.com/samber/lo"

	"github.com/friendsincode/squarewave/internal/events"
)

// NotifySink shows a desktop notification when the track changes.
type NotifySink struct {
	notify func(title, message string) error
	last   string
}

// NewNotifySink creates a sink backed by the desktop notification service.
func NewNotifySink(appName string) *NotifySink {
	if appName != "" {
		beeep.AppName = appName
	}
	return &NotifySink{notify: func(title, message string) error {
		return beeep.Notify(title, message, "")
	}}
}

// Name implements Sink.
func (s *NotifySink) Name() string { return "notify" }

// Publish implements Sink.
func (s *NotifySink) Publish(_ context.Context, et events.EventType, md Metadata) error {
	if et != events.EventTrackChanged || md.TrackID == "" || md.TrackID == s.last {
		return nil
	}
	s.last = md.TrackID
	return s.notify(md.Title, notifyBody(md))
}

func notifyBody(md Metadata) string {
	return strings.Join(lo.Compact([]string{md.Artist, md.Album}), " / ")
}
