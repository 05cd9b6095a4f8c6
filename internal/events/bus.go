/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventPlaybackState fires on every Stopped/Playing/Paused transition.
	EventPlaybackState EventType = "playback.state"
	// EventTrackChanged fires when a different track is committed to the engine.
	EventTrackChanged EventType = "playback.track"
	// EventQueueChanged fires after the now-playing queue is replaced, reordered or trimmed.
	EventQueueChanged EventType = "playback.queue"
	// EventModifiersChanged covers loop, shuffle, tempo, mute and fade preferences.
	EventModifiersChanged EventType = "playback.modifiers"
	// EventProgress fires from the poller with the tempo-scaled elapsed time.
	EventProgress EventType = "playback.progress"
	// EventEngineFailure fires when a track could not be loaded.
	EventEngineFailure EventType = "playback.engine_failure"

	EventLibraryScanned EventType = "library.scanned"
)

// PlaybackEvents lists the event types emitted by the orchestrator.
var PlaybackEvents = []EventType{
	EventPlaybackState,
	EventTrackChanged,
	EventQueueChanged,
	EventModifiersChanged,
	EventProgress,
	EventEngineFailure,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	return b.SubscribeMany(eventType)
}

// SubscribeMany registers one subscriber for several event types. The payload
// carries its type under the "type" key so a single reader can tell them apart.
func (b *Bus) SubscribeMany(eventTypes ...EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	for _, et := range eventTypes {
		b.subs[et] = append(b.subs[et], ch)
	}
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather
// than block the publisher.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if payload == nil {
		payload = Payload{}
	}
	payload["type"] = eventType

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber from every event type and closes it.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	found := false
	for et, subs := range b.subs {
		for i, candidate := range subs {
			if candidate == sub {
				b.subs[et] = append(subs[:i:i], subs[i+1:]...)
				found = true
				break
			}
		}
	}
	if found {
		close(sub)
	}
}
