package playback

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/events"
	"github.com/friendsincode/squarewave/internal/models"
)

// fakeEngine records commands and serves scripted query results.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	elapsed  int
	ended    bool
	voices   []string
	loadErr  map[string]error
	blockOn  map[string]bool
	fadeMs   int
	fadeSet  bool
	tempo    float64
	muteMask uint32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		voices:  []string{"Square 1", "Square 2", "Triangle", "Noise"},
		loadErr: make(map[string]error),
		blockOn: make(map[string]bool),
		tempo:   1,
	}
}

func (e *fakeEngine) record(call string) {
	e.calls = append(e.calls, call)
}

func (e *fakeEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop")
}

func (e *fakeEngine) LoadFile(ctx context.Context, path string, subTrack int) error {
	e.mu.Lock()
	e.record(fmt.Sprintf("load:%s#%d", path, subTrack))
	block := e.blockOn[path]
	err := e.loadErr[path]
	e.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.elapsed = 0
	e.ended = false
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("play")
}

func (e *fakeEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("pause")
}

func (e *fakeEngine) SetTempo(tempo float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tempo = tempo
	e.record(fmt.Sprintf("tempo:%v", tempo))
}

func (e *fakeEngine) SetMuteVoiceMask(mask uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muteMask = mask
	e.record(fmt.Sprintf("mask:%d", mask))
}

func (e *fakeEngine) SetFadeCountdownMs(ms int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fadeMs, e.fadeSet = ms, true
	e.record(fmt.Sprintf("fade:%d", ms))
}

func (e *fakeEngine) ResetFadeCountdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fadeMs, e.fadeSet = 0, false
	e.record("fade:reset")
}

func (e *fakeEngine) ElapsedMs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsed
}

func (e *fakeEngine) TrackEnded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended
}

func (e *fakeEngine) VoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

func (e *fakeEngine) VoiceName(i int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.voices) {
		return ""
	}
	return e.voices[i]
}

func (e *fakeEngine) set(elapsed int, ended bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.elapsed, e.ended = elapsed, ended
}

func (e *fakeEngine) count(prefix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (e *fakeEngine) last(prefix string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.calls) - 1; i >= 0; i-- {
		if strings.HasPrefix(e.calls[i], prefix) {
			return e.calls[i]
		}
	}
	return ""
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu         sync.Mutex
	queue      []*models.Track
	library    []*models.Track
	prefs      map[string]string
	byID       map[string]*models.Track
	saves      int
	saveErr    error
	prefErr    error
	queueSaved []*models.Track
}

func newFakeStore() *fakeStore {
	return &fakeStore{prefs: make(map[string]string), byID: make(map[string]*models.Track)}
}

func (s *fakeStore) LoadNowPlayingQueue(ctx context.Context) ([]*models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Track(nil), s.queue...), nil
}

func (s *fakeStore) SaveNowPlayingQueue(ctx context.Context, tracks []*models.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.queueSaved = append([]*models.Track(nil), tracks...)
	return nil
}

func (s *fakeStore) LoadLastPlayedTrack(ctx context.Context) (*models.Track, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.prefs[PrefLastPlayedTrackID]
	if !ok {
		return nil, false, nil
	}
	t, ok := s.byID[id]
	return t, ok, nil
}

func (s *fakeStore) LoadPreference(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.prefs[key]
	return v, ok, nil
}

func (s *fakeStore) SavePreference(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefErr != nil {
		return s.prefErr
	}
	s.prefs[key] = value
	return nil
}

func (s *fakeStore) LoadLibrary(ctx context.Context) ([]*models.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Track(nil), s.library...), nil
}

func (s *fakeStore) pref(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs[key]
}

func (s *fakeStore) remember(tracks ...*models.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tracks {
		s.byID[t.ID] = t
	}
}

var errDiskFull = errors.New("disk full")

func makeTracks(n int) []*models.Track {
	tracks := make([]*models.Track, n)
	for i := range tracks {
		tracks[i] = &models.Track{
			ID:       fmt.Sprintf("t%02d", i),
			Path:     fmt.Sprintf("/music/track%02d.mp3", i),
			Title:    fmt.Sprintf("Track %d", i),
			LengthMs: 60000,
		}
	}
	return tracks
}

func ids(tracks []*models.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}

func seeded() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// newTestOrchestrator builds an orchestrator whose poller never fires on its
// own; tests drive pollTick directly.
func newTestOrchestrator(t *testing.T, engine *fakeEngine, store *fakeStore, bus *events.Bus) *Orchestrator {
	t.Helper()
	o := New(engine, store, bus, Options{
		PollInterval:    time.Hour,
		LoadTimeout:     time.Second,
		PersistDebounce: time.Hour,
		Rand:            seeded(),
	}, zerolog.Nop())
	t.Cleanup(o.Close)
	return o
}

// settle waits for every queued engine command and load result.
func settle(o *Orchestrator) {
	o.dispatch.barrier()
}

// tick runs one poll against a live instance context.
func tick(o *Orchestrator) {
	o.pollTick(context.Background())
}
