package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/auth"
	"github.com/friendsincode/squarewave/internal/config"
	"github.com/friendsincode/squarewave/internal/models"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Environment:       "test",
		HTTPBind:          "127.0.0.1",
		HTTPPort:          0,
		DBBackend:         config.DatabaseSQLite,
		DBDSN:             ":memory:",
		SilentOutput:      true,
		MusicDir:          t.TempDir(),
		ArtworkDir:        t.TempDir(),
		PollInterval:      time.Hour,
		LoadTimeout:       time.Second,
		PersistDebounce:   time.Hour,
		DefaultLoopCount:  2,
		DefaultFallbackMs: 150000,
		JWTSigningKey:     testSecret,
	}
	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func token(t *testing.T, scopes ...string) string {
	t.Helper()
	tok, err := auth.Issue([]byte(testSecret), auth.Claims{ClientID: "test", Scopes: scopes}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return "Bearer " + tok
}

func do(t *testing.T, srv *Server, method, path, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func seed(t *testing.T, srv *Server) []*models.Track {
	t.Helper()
	tracks := []*models.Track{
		{ID: "a1", Path: "/music/a.mp3", Title: "A", LengthMs: 1000},
		{ID: "b2", Path: "/music/b.mp3", Title: "B", LengthMs: 1000},
		{ID: "c3", Path: "/music/c.mp3", Title: "C", LengthMs: 1000},
	}
	if err := srv.store.UpsertTracks(context.Background(), tracks); err != nil {
		t.Fatalf("UpsertTracks: %v", err)
	}
	return tracks
}

func TestSecurityHeadersMiddleware_BaselineHeaders(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nowplaying", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q, want DENY", got)
	}
	if got := rr.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("expected no HSTS on non-HTTPS request, got %q", got)
	}

	req.Header.Set("X-Forwarded-Proto", "https")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("Strict-Transport-Security=%q", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	if rr := do(t, srv, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rr.Code)
	}
	rr := do(t, srv, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "squarewave_") {
		t.Fatalf("metrics = %d", rr.Code)
	}
}

func TestAPIRequiresScopes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		authz  string
		want   int
	}{
		{"read without token", http.MethodGet, "/api/v1/session", "", http.StatusUnauthorized},
		{"read with read scope", http.MethodGet, "/api/v1/session", token(t, auth.ScopeRead), http.StatusOK},
		{"remote with read scope", http.MethodPost, "/api/v1/remote/pause", token(t, auth.ScopeRead), http.StatusForbidden},
		{"remote with remote scope", http.MethodPost, "/api/v1/remote/pause", token(t, auth.ScopeRemote), http.StatusNoContent},
		{"unknown remote command", http.MethodPost, "/api/v1/remote/eject", token(t, auth.ScopeRemote), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, srv, tt.method, tt.path, tt.authz, ""); rr.Code != tt.want {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestQueueEndpoints(t *testing.T) {
	srv := newTestServer(t)
	seed(t, srv)
	remoteTok := token(t, auth.ScopeRemote)
	readTok := token(t, auth.ScopeRead)

	rr := do(t, srv, http.MethodPut, "/api/v1/queue", remoteTok, `{"track_ids":["c3","a1"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("replace = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/api/v1/queue", readTok, "")
	var q queueResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(q.Tracks) != 2 || q.Tracks[0].ID != "c3" || q.Tracks[1].ID != "a1" {
		t.Fatalf("unexpected queue %+v", q.Tracks)
	}

	if rr := do(t, srv, http.MethodPut, "/api/v1/queue", remoteTok, `{"track_ids":["zz"]}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown track = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/v1/queue/9/play", remoteTok, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("out of range = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/v1/queue/a1", remoteTok, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("remove = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/v1/queue/a1", remoteTok, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second remove = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/api/v1/queue", remoteTok, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("clear = %d", rr.Code)
	}
	if tracks, _ := srv.Orchestrator().Queue(); len(tracks) != 0 {
		t.Fatalf("queue not cleared: %d", len(tracks))
	}
}

func TestModifierEndpoints(t *testing.T) {
	srv := newTestServer(t)
	tok := token(t, auth.ScopeRemote)

	tests := []struct {
		path string
		body string
		want int
	}{
		{"/api/v1/tempo", `{"tempo":1.5}`, http.StatusOK},
		{"/api/v1/tempo", `{"tempo":1.25}`, http.StatusBadRequest},
		{"/api/v1/loop-count", `{"loop_count":3}`, http.StatusOK},
		{"/api/v1/loop-count", `{"loop_count":0}`, http.StatusBadRequest},
		{"/api/v1/fallback-length", `{"fallback_ms":60000}`, http.StatusOK},
		{"/api/v1/fallback-length", `{"fallback":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rr := do(t, srv, http.MethodPut, tt.path, tok, tt.body); rr.Code != tt.want {
			t.Fatalf("%s %s = %d, want %d", tt.path, tt.body, rr.Code, tt.want)
		}
	}

	snap := srv.Orchestrator().Snapshot()
	if snap.Tempo != 1.5 || snap.LoopCount != 3 || snap.FallbackMs != 60000 {
		t.Fatalf("unexpected session %+v", snap)
	}

	if rr := do(t, srv, http.MethodPost, "/api/v1/voices/7/toggle", tok, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("toggle out of range = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, "/api/v1/voices/1/toggle", tok, ""); rr.Code != http.StatusOK {
		t.Fatalf("toggle = %d", rr.Code)
	}
	if got := srv.Orchestrator().Snapshot().MuteMask; got != 0b10 {
		t.Fatalf("mute mask = %b", got)
	}
}

func TestStartScansEmptyLibrary(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rr := do(t, srv, http.MethodGet, "/api/v1/nowplaying", token(t, auth.ScopeRead), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("nowplaying = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/v1/nowplaying/artwork", token(t, auth.ScopeRead), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("artwork = %d", rr.Code)
	}
}

func writeWAV(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	format := beep.Format{SampleRate: 8000, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, beep.Silence(format.SampleRate.N(200*time.Millisecond)), format); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestRescanDropsDeletedTracksFromQueue(t *testing.T) {
	srv := newTestServer(t)
	for _, name := range []string{"overworld.wav", "dungeon.wav", "ending.wav"} {
		writeWAV(t, filepath.Join(srv.cfg.MusicDir, "NES", "Zelda", name))
	}

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	lib, err := srv.store.LoadLibrary(ctx)
	if err != nil || len(lib) != 3 {
		t.Fatalf("LoadLibrary = %d tracks, err %v", len(lib), err)
	}

	deleted := lib[1]
	queue := append(slices.Clone(lib), deleted)
	if !srv.Orchestrator().ReplaceQueue(queue, false) {
		t.Fatal("ReplaceQueue refused")
	}

	if err := os.Remove(deleted.Path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	res, err := srv.scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Removed != 1 {
		t.Fatalf("scan removed %d tracks, want 1", res.Removed)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		tracks, _ := srv.Orchestrator().Queue()
		if len(tracks) == 2 {
			for _, tr := range tracks {
				if tr.ID == deleted.ID {
					t.Fatalf("deleted track %s still queued", deleted.ID)
				}
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue has %d tracks, want 2", len(tracks))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
