/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package nowplaying

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/squarewave/internal/events"
	"github.com/friendsincode/squarewave/internal/telemetry"
)

const (
	hubPingInterval = 15 * time.Second
	hubWriteTimeout = 5 * time.Second
	hubClientBuffer = 16
)

// WebsocketHub pushes now-playing updates to websocket clients. New clients
// receive the latest update immediately.
type WebsocketHub struct {
	logger zerolog.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
	last    []byte
}

// NewWebsocketHub creates an empty hub.
func NewWebsocketHub(logger zerolog.Logger) *WebsocketHub {
	return &WebsocketHub{
		logger:  logger.With().Str("component", "nowplaying_ws").Logger(),
		clients: make(map[chan []byte]struct{}),
	}
}

// Name implements Sink.
func (h *WebsocketHub) Name() string { return "websocket" }

// Publish implements Sink. Clients that fall behind miss updates.
func (h *WebsocketHub) Publish(_ context.Context, et events.EventType, md Metadata) error {
	data, err := json.Marshal(update{Type: et, NowPlaying: md})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = data
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

func (h *WebsocketHub) register() chan []byte {
	ch := make(chan []byte, hubClientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last != nil {
		ch <- h.last
	}
	h.clients[ch] = struct{}{}
	telemetry.NowPlayingSubscribers.Inc()
	return ch
}

func (h *WebsocketHub) unregister(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		telemetry.NowPlayingSubscribers.Dec()
	}
}

// ServeHTTP upgrades the request and streams updates until the client leaves.
func (h *WebsocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	// Clients only listen; reading handles control frames and notices close.
	ctx := conn.CloseRead(r.Context())

	ch := h.register()
	defer h.unregister(ch)

	ticker := time.NewTicker(hubPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := h.write(ctx, conn, []byte(`{"type":"ping"}`)); err != nil {
				return
			}
		case data := <-ch:
			if err := h.write(ctx, conn, data); err != nil {
				return
			}
		}
	}
}

func (h *WebsocketHub) write(ctx context.Context, conn *ws.Conn, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, hubWriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, ws.MessageText, data); err != nil {
		h.logger.Debug().Err(err).Msg("websocket write failed")
		return err
	}
	return nil
}
