/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/friendsincode/squarewave/internal/auth"
	"github.com/friendsincode/squarewave/internal/models"
	"github.com/friendsincode/squarewave/internal/playback"
	"github.com/friendsincode/squarewave/internal/version"
)

const maxRequestBody = 1 << 20

func (s *Server) configureRoutes() {
	secret := []byte(s.cfg.JWTSigningKey)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.Require(secret, auth.ScopeRead))
			r.Get("/nowplaying", s.handleNowPlaying)
			r.Get("/nowplaying/artwork", s.handleArtwork)
			r.Handle("/nowplaying/ws", s.hub)
			r.Get("/session", s.handleSession)
			r.Get("/queue", s.handleQueue)
			r.Get("/voices", s.handleVoices)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Require(secret, auth.ScopeRemote))
			r.Mount("/remote", s.bridge.Routes())
			r.Put("/queue", s.handleReplaceQueue)
			r.Delete("/queue", s.handleClearQueue)
			r.Delete("/queue/{trackID}", s.handleRemoveTrack)
			r.Post("/queue/{index}/play", s.handlePlayIndex)
			r.Put("/tempo", s.handleSetTempo)
			r.Post("/voices/{index}/toggle", s.handleToggleVoice)
			r.Put("/loop-count", s.handleSetLoopCount)
			r.Put("/fallback-length", s.handleSetFallbackLength)
			r.Post("/library/scan", s.handleScan)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.publisher.Latest())
}

func (s *Server) handleArtwork(w http.ResponseWriter, r *http.Request) {
	data := s.publisher.Artwork()
	if len(data) == 0 {
		writeError(w, http.StatusNotFound, "no_artwork")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Snapshot())
}

type queueResponse struct {
	Tracks   []*models.Track `json:"tracks"`
	Position int             `json:"position"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	tracks, pos := s.orchestrator.Queue()
	if tracks == nil {
		tracks = []*models.Track{}
	}
	writeJSON(w, http.StatusOK, queueResponse{Tracks: tracks, Position: pos})
}

type replaceQueueRequest struct {
	TrackIDs        []string `json:"track_ids"`
	PreserveCurrent bool     `json:"preserve_current"`
}

func (s *Server) handleReplaceQueue(w http.ResponseWriter, r *http.Request) {
	var req replaceQueueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tracks, err := s.store.TracksByID(r.Context(), req.TrackIDs)
	if err != nil {
		s.logger.Error().Err(err).Msg("resolve queue tracks failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if len(tracks) != len(req.TrackIDs) {
		writeError(w, http.StatusBadRequest, "unknown_track")
		return
	}
	if !s.orchestrator.ReplaceQueue(tracks, req.PreserveCurrent) {
		writeError(w, http.StatusConflict, "empty_queue")
		return
	}
	s.handleQueue(w, r)
}

func (s *Server) handleClearQueue(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.ClearQueue()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	if !s.orchestrator.RemoveTrack(chi.URLParam(r, "trackID")) {
		writeError(w, http.StatusNotFound, "not_in_queue")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlayIndex(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}
	if err := s.orchestrator.PlayIndex(idx); err != nil {
		writePlaybackError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Voices())
}

func (s *Server) handleToggleVoice(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return
	}
	if err := s.orchestrator.ToggleVoice(idx); err != nil {
		writePlaybackError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.Voices())
}

func (s *Server) handleSetTempo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tempo float64 `json:"tempo"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.orchestrator.SetTempo(req.Tempo); err != nil {
		writePlaybackError(w, err)
		return
	}
	s.handleSession(w, r)
}

func (s *Server) handleSetLoopCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoopCount int `json:"loop_count"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.orchestrator.SetLoopCount(req.LoopCount); err != nil {
		writePlaybackError(w, err)
		return
	}
	s.handleSession(w, r)
}

func (s *Server) handleSetFallbackLength(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FallbackMs int `json:"fallback_ms"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.orchestrator.SetFallbackLength(req.FallbackMs); err != nil {
		writePlaybackError(w, err)
		return
	}
	s.handleSession(w, r)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	result, err := s.scanner.Scan(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("library scan failed")
		writeError(w, http.StatusInternalServerError, "scan_failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writePlaybackError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playback.ErrIndexOutOfRange), errors.Is(err, playback.ErrInvalidVoice):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, playback.ErrInvalidTempo),
		errors.Is(err, playback.ErrInvalidLoopCount),
		errors.Is(err, playback.ErrInvalidLength):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "playback_error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
