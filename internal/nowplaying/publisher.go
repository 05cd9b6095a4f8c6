/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package nowplaying

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/events"
	"github.com/friendsincode/squarewave/internal/playback"
	"github.com/friendsincode/squarewave/internal/telemetry"
)

const sinkTimeout = 2 * time.Second

// Sink receives now-playing updates.
type Sink interface {
	Name() string
	Publish(ctx context.Context, et events.EventType, md Metadata) error
}

// Publisher rebuilds Metadata from playback events and fans it out to sinks.
type Publisher struct {
	bus     *events.Bus
	artwork *Artwork
	sinks   []Sink
	logger  zerolog.Logger

	mu       sync.RWMutex
	latest   Metadata
	art      []byte
	artTrack string
}

// NewPublisher creates a publisher. artwork may be nil.
func NewPublisher(bus *events.Bus, artwork *Artwork, logger zerolog.Logger, sinks ...Sink) *Publisher {
	return &Publisher{
		bus:     bus,
		artwork: artwork,
		sinks:   sinks,
		logger:  logger.With().Str("component", "nowplaying").Logger(),
	}
}

// Run consumes playback events until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	sub := p.bus.SubscribeMany(events.PlaybackEvents...)
	defer p.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub:
			if !ok {
				return nil
			}
			p.handle(ctx, payload)
		}
	}
}

func (p *Publisher) handle(ctx context.Context, payload events.Payload) {
	snap, ok := payload["session"].(playback.Snapshot)
	if !ok {
		return
	}
	et, _ := payload["type"].(events.EventType)

	md := p.update(snap)
	for _, sink := range p.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := sink.Publish(sctx, et, md)
		cancel()
		if err != nil {
			telemetry.NowPlayingSinkErrorsTotal.WithLabelValues(sink.Name()).Inc()
			p.logger.Warn().Err(err).Str("sink", sink.Name()).Msg("now-playing publish failed")
		}
	}
}

func (p *Publisher) update(snap playback.Snapshot) Metadata {
	md := Build(snap)

	p.mu.Lock()
	defer p.mu.Unlock()

	if md.TrackID != p.artTrack {
		p.art = nil
		p.artTrack = md.TrackID
		if p.artwork != nil && snap.NowPlaying != nil {
			data, err := p.artwork.For(snap.NowPlaying)
			if err != nil {
				p.logger.Warn().Err(err).Str("track_id", md.TrackID).Msg("artwork lookup failed")
			}
			p.art = data
		}
	}
	md.HasArtwork = len(p.art) > 0
	p.latest = md
	return md
}

// Latest returns the most recent metadata.
func (p *Publisher) Latest() Metadata {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Artwork returns PNG bytes for the current track, or nil.
func (p *Publisher) Artwork() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.art
}
