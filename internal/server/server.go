/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/squarewave/internal/config"
	"github.com/friendsincode/squarewave/internal/db"
	"github.com/friendsincode/squarewave/internal/engine"
	"github.com/friendsincode/squarewave/internal/events"
	"github.com/friendsincode/squarewave/internal/library"
	"github.com/friendsincode/squarewave/internal/nowplaying"
	"github.com/friendsincode/squarewave/internal/persistence"
	"github.com/friendsincode/squarewave/internal/playback"
	"github.com/friendsincode/squarewave/internal/remote"
	"github.com/friendsincode/squarewave/internal/telemetry"
)

const dbMetricsInterval = 30 * time.Second

// Server bundles the playback core, its collaborators and the HTTP API.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db           *gorm.DB
	store        *persistence.Store
	bus          *events.Bus
	engine       *engine.Player
	orchestrator *playback.Orchestrator
	scanner      *library.Scanner
	watcher      *library.Watcher
	publisher    *nowplaying.Publisher
	hub          *nowplaying.WebsocketHub
	bridge       *remote.Bridge

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("squarewave-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Websocket clients hold the connection open; handlers manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	s.store = persistence.New(database, s.logger)

	if s.cfg.SilentOutput {
		s.engine = engine.NewSilent(engine.Options{}, s.logger)
	} else {
		s.engine = engine.New(engine.Options{}, s.logger)
	}
	s.DeferClose(s.engine.Close)

	s.orchestrator = playback.New(s.engine, s.store, s.bus, playback.Options{
		PollInterval:      s.cfg.PollInterval,
		LoadTimeout:       s.cfg.LoadTimeout,
		PersistDebounce:   s.cfg.PersistDebounce,
		DefaultLoopCount:  s.cfg.DefaultLoopCount,
		DefaultFallbackMs: s.cfg.DefaultFallbackMs,
	}, s.logger)
	// Registered after the engine so it closes first and drains engine commands.
	s.DeferClose(func() error { s.orchestrator.Close(); return nil })

	s.scanner = library.NewScanner(s.cfg.MusicDir, s.store, s.bus, s.logger)
	if s.cfg.WatchLibrary {
		s.watcher = library.NewWatcher(s.scanner, library.DefaultSettleDelay, s.logger)
	}

	s.hub = nowplaying.NewWebsocketHub(s.logger)
	sinks := []nowplaying.Sink{s.hub}
	if s.cfg.RedisAddr != "" {
		rcfg := nowplaying.DefaultRedisConfig()
		rcfg.Addr = s.cfg.RedisAddr
		rcfg.Password = s.cfg.RedisPassword
		rcfg.DB = s.cfg.RedisDB
		sink, err := nowplaying.NewRedisSink(rcfg)
		if err != nil {
			// The mirror is optional; playback works without it.
			s.logger.Warn().Err(err).Str("addr", s.cfg.RedisAddr).Msg("redis unavailable, now-playing mirror disabled")
		} else {
			sinks = append(sinks, sink)
			s.DeferClose(sink.Close)
		}
	}
	if s.cfg.NotificationsEnabled {
		sinks = append(sinks, nowplaying.NewNotifySink("squarewave"))
	}
	artwork := nowplaying.NewArtwork(s.cfg.ArtworkDir, nowplaying.DefaultArtworkSize, s.logger)
	s.publisher = nowplaying.NewPublisher(s.bus, artwork, s.logger, sinks...)

	s.bridge = remote.NewBridge(s.orchestrator, s.logger)
	if s.cfg.NATSURL != "" {
		ncfg := remote.DefaultNATSConfig()
		ncfg.URL = s.cfg.NATSURL
		ncfg.Subject = s.cfg.NATSSubject
		source, err := remote.NewNATSSource(ncfg, s.bridge, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", s.cfg.NATSURL).Msg("nats unavailable, remote commands over nats disabled")
		} else {
			s.DeferClose(source.Close)
		}
	}

	return nil
}

// Start restores the persisted session and launches background workers.
// Publishers start before the restore so they see its events.
func (s *Server) Start(ctx context.Context) error {
	s.startBackgroundWorkers()

	if err := s.orchestrator.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	count, err := s.store.CountTracks(ctx)
	if err != nil {
		return fmt.Errorf("count tracks: %w", err)
	}
	if count == 0 {
		s.logger.Info().Str("root", s.scanner.Root()).Msg("library empty, scanning")
		if _, err := s.scanner.Scan(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("initial library scan failed")
		}
	}
	return nil
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.goWorker("nowplaying", func() error { return s.publisher.Run(ctx) })

	scanned := s.bus.Subscribe(events.EventLibraryScanned)
	s.goWorker("queue_prune", func() error {
		defer s.bus.Unsubscribe(scanned)
		for {
			select {
			case <-ctx.Done():
				return nil
			case payload, ok := <-scanned:
				if !ok {
					return nil
				}
				ids, _ := payload["removed"].([]string)
				s.pruneQueue(ids)
			}
		}
	})
	if s.watcher != nil {
		s.goWorker("library_watcher", func() error { return s.watcher.Run(ctx) })
	}
	s.goWorker("db_metrics", func() error {
		ticker := time.NewTicker(dbMetricsInterval)
		defer ticker.Stop()
		for {
			db.UpdateConnectionMetrics(s.db)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
}

// pruneQueue drops tracks whose files left the library from the live queue,
// every occurrence included.
func (s *Server) pruneQueue(ids []string) {
	removed := 0
	for _, id := range ids {
		for s.orchestrator.RemoveTrack(id) {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("dropped deleted tracks from queue")
	}
}

func (s *Server) goWorker(name string, run func() error) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := run(); err != nil {
			s.logger.Error().Err(err).Str("worker", name).Msg("background worker stopped")
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgWG.Wait()
		s.bgCancel = nil
	}
}

// HTTPServer returns the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Orchestrator returns the playback core.
func (s *Server) Orchestrator() *playback.Orchestrator {
	return s.orchestrator
}

// Bridge returns the remote-control bridge.
func (s *Server) Bridge() *remote.Bridge {
	return s.bridge
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
