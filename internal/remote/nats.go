/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/version"
)

// NATSConfig configures the NATS command source.
type NATSConfig struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns defaults for a local server.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "squarewave.remote",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSSource receives JSON encoded Events on a subject. Requests with a reply
// subject get {"ok":true} or {"error":"..."} back.
type NATSSource struct {
	bridge *Bridge
	logger zerolog.Logger
	conn   *nats.Conn
	sub    *nats.Subscription
}

// NewNATSSource connects and subscribes.
func NewNATSSource(cfg NATSConfig, bridge *Bridge, logger zerolog.Logger) (*NATSSource, error) {
	logger = logger.With().Str("component", "remote_nats").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name(version.String()),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	s := &NATSSource{bridge: bridge, logger: logger, conn: conn}
	s.sub, err = conn.Subscribe(cfg.Subject, s.handleMsg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", cfg.Subject, err)
	}

	logger.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("listening for remote commands")
	return s, nil
}

func (s *NATSSource) handleMsg(msg *nats.Msg) {
	reply := s.apply(msg.Data)
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		s.logger.Warn().Err(err).Msg("failed to reply to remote command")
	}
}

func (s *NATSSource) apply(data []byte) map[string]any {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn().Err(err).Msg("invalid remote command payload")
		return map[string]any{"error": "invalid_payload"}
	}
	ev.Source = "nats"
	if err := s.bridge.Handle(ev); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{"ok": true}
}

// Close drains the subscription and closes the connection.
func (s *NATSSource) Close() error {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.conn != nil {
		return s.conn.Drain()
	}
	return nil
}
