/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/squarewave/internal/events"
	"github.com/friendsincode/squarewave/internal/models"
	"github.com/friendsincode/squarewave/internal/telemetry"
)

const (
	storeTimeout = 5 * time.Second

	defaultLoadTimeout = 5 * time.Second
	defaultLoopCount   = 2
	defaultFallbackMs  = 150000
)

// Track change causes, used as metric labels and log fields.
const (
	causeUser     = "user"
	causeEnded    = "ended"
	causeJump     = "jump"
	causePrevious = "previous"
	causeRestart  = "restart"
)

// Options tunes an Orchestrator. Zero values fall back to defaults.
type Options struct {
	PollInterval      time.Duration
	LoadTimeout       time.Duration
	PersistDebounce   time.Duration
	DefaultLoopCount  int
	DefaultFallbackMs int
	// Rand drives shuffling. Tests pass a seeded source.
	Rand *rand.Rand
}

// Orchestrator owns the playback session: what is playing, from which queue,
// at what position and under which modifiers. All state lives behind one
// mutex, so public methods may be called from any goroutine and are applied
// one at a time.
//
// Engine commands never run under that mutex. They are handed to a single
// dispatcher goroutine in order and the session is updated optimistically;
// load results come back tagged with the generation of the track change
// that issued them, and stale results are ignored.
type Orchestrator struct {
	engine Engine
	store  Store
	bus    *events.Bus
	logger zerolog.Logger

	loadTimeout time.Duration

	mu                sync.Mutex
	queue             *TrackQueue
	state             State
	nowPlaying        *models.Track
	elapsedMs         int
	loopEnabled       bool
	shuffleEnabled    bool
	tempo             float64
	muteMask          uint32
	loopCount         int
	fallbackMs        int
	trackEndedLatched bool
	interrupted       bool

	// generation increments on every track change; engineReady is true once
	// the engine confirmed the load of the current generation.
	generation  uint64
	engineReady bool

	rng      *rand.Rand
	poller   *Poller
	dispatch *dispatcher
	saver    *saver

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an orchestrator in the Stopped state with an empty queue.
// Call Restore to load the persisted session.
func New(engine Engine, store Store, bus *events.Bus, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	if opts.DefaultLoopCount < 1 {
		opts.DefaultLoopCount = defaultLoopCount
	}
	if opts.DefaultFallbackMs <= 0 {
		opts.DefaultFallbackMs = defaultFallbackMs
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With().Str("component", "playback").Logger()

	o := &Orchestrator{
		engine:      engine,
		store:       store,
		bus:         bus,
		logger:      logger,
		loadTimeout: opts.LoadTimeout,
		queue:       NewTrackQueue(nil),
		state:       StateStopped,
		tempo:       1.0,
		loopCount:   opts.DefaultLoopCount,
		fallbackMs:  opts.DefaultFallbackMs,
		rng:         opts.Rand,
		dispatch:    newDispatcher(),
		saver:       newSaver(store, opts.PersistDebounce, logger),
		ctx:         ctx,
		cancel:      cancel,
	}
	o.poller = NewPoller(opts.PollInterval, o.pollTick)
	return o
}

// Restore rebuilds the session from persisted preferences, the persisted
// now-playing queue and the last played track. The session stays Stopped;
// the last played track is kept as nowPlaying for display.
func (o *Orchestrator) Restore(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.loopEnabled = o.loadBoolPref(ctx, PrefLoopEnabled, false)
	o.shuffleEnabled = o.loadBoolPref(ctx, PrefShuffleEnabled, false)
	if v, ok := o.loadPref(ctx, PrefTempo); ok {
		if t, err := strconv.ParseFloat(v, 64); err == nil && ValidTempo(t) {
			o.tempo = t
		} else {
			o.logger.Warn().Str("value", v).Msg("ignoring persisted tempo")
		}
	}
	if v, ok := o.loadPref(ctx, PrefLoopCount); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			o.loopCount = n
		}
	}
	if v, ok := o.loadPref(ctx, PrefFallbackLengthMs); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			o.fallbackMs = n
		}
	}

	tracks, err := o.store.LoadNowPlayingQueue(ctx)
	if err != nil {
		return fmt.Errorf("load now-playing queue: %w", err)
	}
	last, found, err := o.store.LoadLastPlayedTrack(ctx)
	if err != nil {
		return fmt.Errorf("load last played track: %w", err)
	}

	o.queue.Replace(tracks, last, found)
	if v, ok := o.loadPref(ctx, PrefLastPlayedIndex); ok {
		// The index also tells apart repeated copies of the last track.
		i, err := strconv.Atoi(v)
		if err == nil && i >= 0 && i < len(tracks) &&
			(!found || indexOf(tracks, last) < 0 || tracks[i].ID == last.ID) {
			_, _ = o.queue.JumpTo(i)
		}
	}
	if o.shuffleEnabled && o.queue.Len() > 0 {
		// Only the shuffled order was persisted.
		o.queue.adoptAsShuffled()
	}
	if found {
		o.nowPlaying = last
	} else {
		o.nowPlaying = o.queue.Current()
	}

	tempo, mask := o.tempo, o.muteMask
	o.dispatch.submit(func() {
		o.engine.SetTempo(tempo)
		o.engine.SetMuteVoiceMask(mask)
	})

	o.logger.Info().
		Int("queue_length", o.queue.Len()).
		Int("position", o.queue.Position()).
		Bool("loop", o.loopEnabled).
		Bool("shuffle", o.shuffleEnabled).
		Float64("tempo", o.tempo).
		Msg("playback session restored")

	o.publishLocked(events.EventQueueChanged)
	o.publishLocked(events.EventModifiersChanged)
	if o.nowPlaying != nil {
		o.publishLocked(events.EventTrackChanged)
	}
	return nil
}

// Play starts or resumes playback.
//
// From Paused it resumes the engine. From Stopped it loads the track at the
// queue position, first filling an empty queue from the persisted
// now-playing list or, failing that, the whole library. An empty library
// leaves the session Stopped.
func (o *Orchestrator) Play() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playLocked()
}

func (o *Orchestrator) playLocked() {
	switch o.state {
	case StatePlaying:
		return
	case StatePaused:
		if o.nowPlaying != nil {
			o.dispatch.submit(o.engine.Play)
			o.transitionLocked(StatePlaying)
			o.poller.Start(o.ctx)
			return
		}
	}

	if o.queue.Len() == 0 {
		o.populateQueueLocked()
		if o.queue.Len() == 0 {
			o.logger.Info().Msg("nothing to play")
			return
		}
		if _, err := o.queue.JumpTo(0); err != nil {
			return
		}
	}
	o.loadAndPlayLocked(o.queue.Current(), causeUser)
}

// Pause pauses playback. It is a no-op unless Playing.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pauseLocked()
}

func (o *Orchestrator) pauseLocked() {
	if o.state != StatePlaying {
		return
	}
	o.poller.Stop()
	o.dispatch.submit(o.engine.Pause)
	o.transitionLocked(StatePaused)
}

// TogglePlayPause pauses when Playing and plays otherwise.
func (o *Orchestrator) TogglePlayPause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StatePlaying {
		o.pauseLocked()
		return
	}
	o.playLocked()
}

// Stop halts the engine. The last track stays as nowPlaying for display.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked("stop requested")
}

func (o *Orchestrator) stopLocked(reason string) {
	o.poller.Stop()
	o.generation++
	o.engineReady = false
	o.elapsedMs = 0
	if o.state == StateStopped {
		return
	}
	o.dispatch.submit(o.engine.Stop)
	o.logger.Debug().Str("reason", reason).Msg("stopping playback")
	o.transitionLocked(StateStopped)
}

// PlayIndex plays the track at index i of the current play order. While
// shuffled the queue is reshuffled with that track first.
func (o *Orchestrator) PlayIndex(i int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if i < 0 || i >= o.queue.Len() {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, o.queue.Len())
	}

	o.poller.Stop()

	var (
		track *models.Track
		err   error
	)
	if o.shuffleEnabled && o.queue.Shuffled() {
		track, err = o.queue.ShuffleAt(i, o.rng)
		if err == nil {
			o.queueChangedLocked()
		}
	} else {
		track, err = o.queue.JumpTo(i)
	}
	if err != nil {
		return err
	}

	o.loadAndPlayLocked(track, causeJump)
	return nil
}

// Next advances to the following track, or stops at the end of the queue.
func (o *Orchestrator) Next() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.advanceLocked(causeUser)
}

func (o *Orchestrator) advanceLocked(cause string) {
	o.poller.Stop()
	track := o.queue.Advance()
	if track == nil {
		o.logger.Info().Str("cause", cause).Msg("end of queue")
		o.stopLocked("queue exhausted")
		return
	}
	o.loadAndPlayLocked(track, cause)
}

// Previous restarts the current track when it has played for at least
// RestartThresholdMs, otherwise moves back a track, and replays the head of
// the queue when there is nothing before it.
func (o *Orchestrator) Previous() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.poller.Stop()
	track, outcome := o.queue.Retreat(o.elapsedMs)
	switch outcome {
	case RetreatRestart:
		o.loadAndPlayLocked(track, causeRestart)
	case RetreatPrevious:
		o.loadAndPlayLocked(track, causePrevious)
	default:
		head, err := o.queue.JumpTo(0)
		if err != nil {
			o.stopLocked("previous on empty queue")
			return
		}
		o.loadAndPlayLocked(head, causeRestart)
	}
}

// loadAndPlayLocked commits track as nowPlaying and queues the engine batch
// stop, load, configure, play. The poller is stopped before nowPlaying moves.
func (o *Orchestrator) loadAndPlayLocked(track *models.Track, cause string) {
	o.poller.Stop()

	o.generation++
	gen := o.generation
	o.nowPlaying = track
	o.elapsedMs = 0
	o.engineReady = false

	fade := o.fadeLocked()
	tempo, mask := o.tempo, o.muteMask
	o.dispatch.submit(func() {
		o.runLoad(gen, track, tempo, mask, fade)
	})

	telemetry.TrackChangesTotal.WithLabelValues(cause).Inc()
	o.logger.Info().
		Str("track_id", track.ID).
		Str("title", track.Title).
		Int("position", o.queue.Position()).
		Str("cause", cause).
		Int("fade_ms", fade.Ms).
		Msg("loading track")

	if o.state == StatePlaying {
		o.publishLocked(events.EventPlaybackState)
	} else {
		o.transitionLocked(StatePlaying)
	}
	o.poller.Start(o.ctx)
	o.publishLocked(events.EventTrackChanged)

	o.saver.savePref(PrefLastPlayedTrackID, track.ID)
	o.saver.savePref(PrefLastPlayedIndex, strconv.Itoa(o.queue.Position()))
}

// runLoad executes on the dispatcher goroutine.
func (o *Orchestrator) runLoad(gen uint64, track *models.Track, tempo float64, mask uint32, fade FadeSpec) {
	ctx, cancel := context.WithTimeout(o.ctx, o.loadTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "engine.load", telemetry.TrackAttributes(track)...)

	o.engine.Stop()
	start := time.Now()
	err := o.engine.LoadFile(ctx, track.Path, track.SubTrack)
	telemetry.EngineLoadDuration.Observe(time.Since(start).Seconds())
	if err == nil && ctx.Err() != nil {
		err = ErrLoadTimeout
	}
	telemetry.EndSpan(span, err)
	if err != nil {
		o.loadFailed(gen, track, err)
		return
	}

	o.engine.SetTempo(tempo)
	o.engine.SetMuteVoiceMask(mask)
	fade.Apply(o.engine)
	o.engine.Play()
	o.loadSucceeded(gen)
}

func (o *Orchestrator) loadSucceeded(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return
	}
	o.engineReady = true
	o.trackEndedLatched = false
}

// loadFailed leaves the session Stopped. There is no retry and no skip.
func (o *Orchestrator) loadFailed(gen uint64, track *models.Track, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation {
		return
	}

	reason := "error"
	if errors.Is(err, ErrLoadTimeout) || errors.Is(err, context.DeadlineExceeded) {
		reason = "timeout"
	}
	telemetry.EngineLoadFailuresTotal.WithLabelValues(reason).Inc()
	o.logger.Error().
		Err(err).
		Str("track_id", track.ID).
		Str("path", track.Path).
		Int("sub_track", track.SubTrack).
		Msg("engine failed to load track")

	o.stopLocked("load failed")
	if o.bus != nil {
		o.bus.Publish(events.EventEngineFailure, events.Payload{
			"session":  o.snapshotLocked(),
			"track_id": track.ID,
			"error":    fmt.Errorf("%w: %w", ErrEngineLoad, err).Error(),
		})
	}
}

// pollTick samples the engine. ctx belongs to the poller instance that
// scheduled the tick; once it is cancelled the tick is stale and does nothing.
func (o *Orchestrator) pollTick(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ctx.Err() != nil || o.state != StatePlaying {
		return
	}
	telemetry.PollerTicksTotal.Inc()
	if !o.engineReady {
		return
	}

	o.elapsedMs = int(math.Round(float64(o.engine.ElapsedMs()) * o.tempo))
	ended := o.engine.TrackEnded()
	o.publishLocked(events.EventProgress)

	if !ended {
		o.trackEndedLatched = false
		return
	}
	if o.loopEnabled || o.trackEndedLatched {
		return
	}

	o.trackEndedLatched = true
	o.poller.Stop()
	o.logger.Debug().Int("elapsed_ms", o.elapsedMs).Msg("track ended")
	o.advanceLocked(causeEnded)
}

// ToggleLoop flips loop mode.
func (o *Orchestrator) ToggleLoop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLoopLocked(!o.loopEnabled)
}

// SetLoop sets loop mode. Looping disables the fade so the track plays until
// the user moves on.
func (o *Orchestrator) SetLoop(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLoopLocked(enabled)
}

func (o *Orchestrator) setLoopLocked(enabled bool) {
	if o.loopEnabled == enabled {
		return
	}
	o.loopEnabled = enabled
	o.applyFadeLocked()
	o.saver.savePref(PrefLoopEnabled, strconv.FormatBool(enabled))
	o.publishLocked(events.EventModifiersChanged)
}

// ToggleShuffle flips shuffle mode.
func (o *Orchestrator) ToggleShuffle() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setShuffleLocked(!o.shuffleEnabled)
}

// SetShuffle sets shuffle mode. The queue is reordered before the poller
// resumes so a tick never sees a half-shuffled queue.
func (o *Orchestrator) SetShuffle(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setShuffleLocked(enabled)
}

func (o *Orchestrator) setShuffleLocked(enabled bool) {
	if o.shuffleEnabled == enabled {
		return
	}
	wasPolling := o.poller.Running()
	o.poller.Stop()

	o.shuffleEnabled = enabled
	o.queue.Shuffle(enabled, o.nowPlaying, o.rng)

	if wasPolling && o.state == StatePlaying {
		o.poller.Start(o.ctx)
	}
	o.saver.savePref(PrefShuffleEnabled, strconv.FormatBool(enabled))
	o.queueChangedLocked()
	o.publishLocked(events.EventModifiersChanged)
}

// SetTempo changes the playback rate. Only AllowedTempos are accepted; other
// values return ErrInvalidTempo and leave the session untouched.
func (o *Orchestrator) SetTempo(tempo float64) error {
	if !ValidTempo(tempo) {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, tempo)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tempo == tempo {
		return nil
	}
	o.tempo = tempo
	o.dispatch.submit(func() { o.engine.SetTempo(tempo) })
	o.applyFadeLocked()
	o.saver.savePref(PrefTempo, strconv.FormatFloat(tempo, 'f', -1, 64))
	o.publishLocked(events.EventModifiersChanged)
	return nil
}

// SetMuteMask sets which voices are muted, one bit per voice.
func (o *Orchestrator) SetMuteMask(mask uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setMuteMaskLocked(mask)
}

func (o *Orchestrator) setMuteMaskLocked(mask uint32) {
	if o.muteMask == mask {
		return
	}
	o.muteMask = mask
	o.dispatch.submit(func() { o.engine.SetMuteVoiceMask(mask) })
	o.publishLocked(events.EventModifiersChanged)
}

// ToggleVoice flips the mute bit of one voice.
func (o *Orchestrator) ToggleVoice(index int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if index < 0 || index >= min(o.engine.VoiceCount(), MaxVoices) {
		return fmt.Errorf("%w: %d", ErrInvalidVoice, index)
	}
	o.setMuteMaskLocked(o.muteMask ^ (1 << uint(index)))
	return nil
}

// Voices lists the engine's voices with their mute state.
func (o *Orchestrator) Voices() []Voice {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := min(o.engine.VoiceCount(), MaxVoices)
	voices := make([]Voice, 0, n)
	for i := 0; i < n; i++ {
		voices = append(voices, Voice{
			Index: i,
			Name:  o.engine.VoiceName(i),
			Muted: o.muteMask&(1<<uint(i)) != 0,
		})
	}
	return voices
}

// SetLoopCount sets how many passes of a track's loop body play before the fade.
func (o *Orchestrator) SetLoopCount(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidLoopCount, n)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.loopCount == n {
		return nil
	}
	o.loopCount = n
	o.applyFadeLocked()
	o.saver.savePref(PrefLoopCount, strconv.Itoa(n))
	o.publishLocked(events.EventModifiersChanged)
	return nil
}

// SetFallbackLength sets the play length of tracks with no length or loop metadata.
func (o *Orchestrator) SetFallbackLength(ms int) error {
	if ms <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, ms)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.fallbackMs == ms {
		return nil
	}
	o.fallbackMs = ms
	o.applyFadeLocked()
	o.saver.savePref(PrefFallbackLengthMs, strconv.Itoa(ms))
	o.publishLocked(events.EventModifiersChanged)
	return nil
}

// ReplaceQueue installs a new now-playing list. With preserveCurrent the
// sounding track keeps playing when it is part of the new list. Otherwise,
// or when it is missing, playback stops and Play starts from the new head.
// An empty list with preserveCurrent is ignored and reported as false.
func (o *Orchestrator) ReplaceQueue(tracks []*models.Track, preserveCurrent bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	wasPolling := o.poller.Running()
	o.poller.Stop()

	if !o.queue.Replace(tracks, o.nowPlaying, preserveCurrent) {
		if wasPolling {
			o.poller.Start(o.ctx)
		}
		return false
	}

	kept := preserveCurrent && indexOf(tracks, o.nowPlaying) >= 0
	if o.shuffleEnabled && o.queue.Len() > 0 {
		var anchor *models.Track
		if kept {
			anchor = o.nowPlaying
		}
		o.queue.Shuffle(true, anchor, o.rng)
	}

	if kept {
		if wasPolling && o.state == StatePlaying {
			o.poller.Start(o.ctx)
		}
	} else {
		o.stopLocked("queue replaced")
		o.nowPlaying = nil
		o.publishLocked(events.EventTrackChanged)
	}

	o.queueChangedLocked()
	return true
}

// RemoveTrack drops a track from the queue. Removing the sounding track stops playback.
func (o *Orchestrator) RemoveTrack(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	wasPolling := o.poller.Running()
	o.poller.Stop()

	if !o.queue.Remove(id) {
		if wasPolling {
			o.poller.Start(o.ctx)
		}
		return false
	}

	if o.nowPlaying != nil && o.nowPlaying.ID == id {
		o.stopLocked("now playing track removed")
		o.nowPlaying = nil
		o.publishLocked(events.EventTrackChanged)
	} else if wasPolling && o.state == StatePlaying {
		o.poller.Start(o.ctx)
	}

	o.queueChangedLocked()
	return true
}

// ClearQueue stops playback and empties the queue.
func (o *Orchestrator) ClearQueue() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopLocked("queue cleared")
	o.queue.Clear()
	o.nowPlaying = nil
	o.publishLocked(events.EventTrackChanged)
	o.queueChangedLocked()
}

// InterruptionBegan pauses playback for an audio-session interruption.
func (o *Orchestrator) InterruptionBegan() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StatePlaying {
		return
	}
	o.interrupted = true
	o.pauseLocked()
}

// InterruptionEnded resumes playback when the interruption paused it and the
// source hints that playback should resume.
func (o *Orchestrator) InterruptionEnded(shouldResume bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	interrupted := o.interrupted
	o.interrupted = false
	if shouldResume && interrupted && o.state == StatePaused {
		o.playLocked()
	}
}

// Snapshot returns the current session.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Queue returns the play order and the current position.
func (o *Orchestrator) Queue() ([]*models.Track, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Tracks(), o.queue.Position()
}

// Sync writes pending persistence immediately.
func (o *Orchestrator) Sync() {
	o.saver.flush()
}

// Close stops playback activity, drains engine commands and flushes
// persistence.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.poller.Stop()
	o.mu.Unlock()

	o.cancel()
	o.poller.Wait()
	o.dispatch.close()
	o.saver.flush()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:          o.state,
		NowPlaying:     o.nowPlaying,
		Position:       o.queue.Position(),
		QueueLength:    o.queue.Len(),
		ElapsedMs:      o.elapsedMs,
		LoopEnabled:    o.loopEnabled,
		ShuffleEnabled: o.shuffleEnabled,
		Tempo:          o.tempo,
		MuteMask:       o.muteMask,
		LoopCount:      o.loopCount,
		FallbackMs:     o.fallbackMs,
		Fade:           o.fadeLocked(),
	}
}

func (o *Orchestrator) fadeLocked() FadeSpec {
	return ComputeFade(FadeInput{
		Track:       o.nowPlaying,
		LoopEnabled: o.loopEnabled,
		LoopCount:   o.loopCount,
		FallbackMs:  o.fallbackMs,
		Tempo:       o.tempo,
	})
}

// applyFadeLocked pushes a recomputed fade for the loaded track.
func (o *Orchestrator) applyFadeLocked() {
	if o.nowPlaying == nil || o.state == StateStopped {
		return
	}
	fade := o.fadeLocked()
	o.dispatch.submit(func() { fade.Apply(o.engine) })
}

func (o *Orchestrator) transitionLocked(to State) {
	from := o.state
	if from == to {
		return
	}
	if !isValidTransition(from, to) {
		o.logger.Error().Str("from", string(from)).Str("to", string(to)).Msg("invalid playback transition")
		return
	}
	o.state = to

	telemetry.PlaybackTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	telemetry.PlaybackState.Set(to.gaugeValue())
	o.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("playback state transition")
	o.publishLocked(events.EventPlaybackState)
}

func (o *Orchestrator) queueChangedLocked() {
	o.saver.saveQueue(o.queue.Tracks())
	o.saver.savePref(PrefLastPlayedIndex, strconv.Itoa(o.queue.Position()))
	o.publishLocked(events.EventQueueChanged)
}

func (o *Orchestrator) publishLocked(et events.EventType) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(et, events.Payload{"session": o.snapshotLocked()})
}

// populateQueueLocked fills an empty queue from the persisted now-playing
// list, falling back to the whole library.
func (o *Orchestrator) populateQueueLocked() {
	ctx, cancel := context.WithTimeout(o.ctx, storeTimeout)
	defer cancel()

	tracks, err := o.store.LoadNowPlayingQueue(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("failed to load now-playing queue")
	}
	source := "now_playing"
	if len(tracks) == 0 {
		tracks, err = o.store.LoadLibrary(ctx)
		if err != nil {
			o.logger.Error().Err(err).Msg("failed to load library")
		}
		source = "library"
	}
	if len(tracks) == 0 {
		return
	}

	o.queue.Replace(tracks, nil, false)
	if o.shuffleEnabled {
		o.queue.Shuffle(true, nil, o.rng)
	}
	o.logger.Info().Str("source", source).Int("tracks", len(tracks)).Msg("queue populated")
	o.queueChangedLocked()
}

func (o *Orchestrator) loadPref(ctx context.Context, key string) (string, bool) {
	v, ok, err := o.store.LoadPreference(ctx, key)
	if err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("failed to load preference")
		return "", false
	}
	return v, ok
}

func (o *Orchestrator) loadBoolPref(ctx context.Context, key string, def bool) bool {
	v, ok := o.loadPref(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
