/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package remote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/squarewave/internal/auth"
)

const maxBodyBytes = 4 << 10

// Routes serves POST /{command}. The optional JSON body carries the
// remaining Event fields.
func (b *Bridge) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{command}", b.handleCommand)
	return r
}

func (b *Bridge) handleCommand(w http.ResponseWriter, r *http.Request) {
	var ev Event
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&ev); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	ev.Command = Command(chi.URLParam(r, "command"))
	ev.Source = "http"
	ev.Client = auth.ClientID(r.Context())

	if err := b.Handle(ev); err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			writeError(w, http.StatusNotFound, "unknown_command")
			return
		}
		writeError(w, http.StatusInternalServerError, "command_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
