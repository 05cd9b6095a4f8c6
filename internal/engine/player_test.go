package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"
)

const testRate = beep.SampleRate(1000)

func constant(v float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{v, v}
		}
		return len(samples), true
	})
}

// writeTone writes a wav file of n samples at testRate, so one sample is one
// millisecond.
func writeTone(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	format := beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, beep.Take(n, constant(0.5)), format); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func newTestPlayer(t *testing.T) (*Player, *clockOutput) {
	t.Helper()
	out := newClockOutput(0)
	p := newPlayer(out, Options{SampleRate: testRate, FadeOut: 100 * time.Millisecond}, zerolog.Nop())
	t.Cleanup(func() { p.Close() })
	return p, out
}

func load(t *testing.T, p *Player, path string) {
	t.Helper()
	if err := p.LoadFile(context.Background(), path, 0); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
}

func TestPlayerFadeEndsTrack(t *testing.T) {
	p, out := newTestPlayer(t)
	load(t, p, writeTone(t, 2000))
	p.SetFadeCountdownMs(500)
	p.Play()

	out.advance(400)
	if got := p.ElapsedMs(); got != 400 {
		t.Fatalf("elapsed = %d, want 400", got)
	}

	out.advance(200)
	if p.TrackEnded() {
		t.Fatal("track ended in the middle of the fade")
	}

	out.advance(100)
	if !p.TrackEnded() {
		t.Fatal("expected track to end once the fade finished")
	}
	out.advance(100)
	if !p.TrackEnded() {
		t.Fatal("ended flag must stay set until the next load")
	}
	if got := p.ElapsedMs(); got != 600 {
		t.Fatalf("elapsed = %d, want 600", got)
	}
}

func TestPlayerDrainedFileEnds(t *testing.T) {
	p, out := newTestPlayer(t)
	load(t, p, writeTone(t, 1000))
	p.SetFadeCountdownMs(60000)
	p.Play()

	out.advance(500)
	if p.TrackEnded() {
		t.Fatal("ended too early")
	}
	out.advance(1000)
	if !p.TrackEnded() {
		t.Fatal("expected the drained file to end")
	}
}

func TestPlayerLoopsWithoutFade(t *testing.T) {
	p, out := newTestPlayer(t)
	load(t, p, writeTone(t, 1000))
	p.ResetFadeCountdown()
	p.Play()

	for i := 0; i < 5; i++ {
		out.advance(1000)
	}
	if p.TrackEnded() {
		t.Fatal("a track without fade must keep playing")
	}
	if got := p.ElapsedMs(); got != 5000 {
		t.Fatalf("elapsed = %d, want 5000", got)
	}
}

func TestPlayerPauseHoldsPosition(t *testing.T) {
	p, out := newTestPlayer(t)
	load(t, p, writeTone(t, 2000))
	p.Play()
	out.advance(300)

	p.Pause()
	out.advance(500)
	if got := p.ElapsedMs(); got != 300 {
		t.Fatalf("elapsed moved while paused: %d", got)
	}

	p.Play()
	out.advance(200)
	if got := p.ElapsedMs(); got != 500 {
		t.Fatalf("elapsed = %d, want 500", got)
	}
}

func TestPlayerLoadsPaused(t *testing.T) {
	p, out := newTestPlayer(t)
	load(t, p, writeTone(t, 2000))

	out.advance(300)
	if got := p.ElapsedMs(); got != 0 {
		t.Fatalf("track advanced before Play: %d", got)
	}
}

func TestPlayerTempoShortensTrack(t *testing.T) {
	p, out := newTestPlayer(t)
	load(t, p, writeTone(t, 2000))
	p.SetTempo(2)
	p.ResetFadeCountdown()
	p.SetFadeCountdownMs(60000)
	p.Play()

	out.advance(800)
	if p.TrackEnded() {
		t.Fatal("ended too early at double tempo")
	}
	out.advance(500)
	if !p.TrackEnded() {
		t.Fatal("a 2s file at double tempo should end after about 1s")
	}
}

func TestPlayerReloadSameFileRewinds(t *testing.T) {
	p, out := newTestPlayer(t)
	path := writeTone(t, 1000)
	load(t, p, path)
	p.SetFadeCountdownMs(100)
	p.Play()
	out.advance(500)
	if !p.TrackEnded() {
		t.Fatal("expected end")
	}

	p.Stop()
	if p.ElapsedMs() != 0 || p.TrackEnded() {
		t.Fatal("stopped player should report nothing")
	}

	p.ResetFadeCountdown()
	load(t, p, path)
	if p.TrackEnded() {
		t.Fatal("reload must clear the ended flag")
	}
	p.Play()
	out.advance(250)
	if got := p.ElapsedMs(); got != 250 {
		t.Fatalf("elapsed = %d after reload, want 250", got)
	}
}

func TestPlayerLoadErrors(t *testing.T) {
	p, _ := newTestPlayer(t)
	path := writeTone(t, 100)

	if err := p.LoadFile(context.Background(), path, 1); !errors.Is(err, ErrNoSubTrack) {
		t.Fatalf("expected ErrNoSubTrack, got %v", err)
	}
	if err := p.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"), 0); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.LoadFile(ctx, path, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPlayerVoices(t *testing.T) {
	p, _ := newTestPlayer(t)
	if p.VoiceCount() != 2 || p.VoiceName(0) != "Left" || p.VoiceName(1) != "Right" || p.VoiceName(2) != "" {
		t.Fatal("unexpected voice layout")
	}
}

type memDecoder struct {
	beep.StreamSeeker
}

func (memDecoder) Close() error { return nil }

func TestTrackMutesVoices(t *testing.T) {
	format := beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2}
	buf := beep.NewBuffer(format)
	buf.Append(beep.Take(100, constant(0.5)))

	tr := newTrack("mem", memDecoder{buf.Streamer(0, buf.Len())}, format, -1, testRate)
	if err := tr.build(1); err != nil {
		t.Fatalf("build: %v", err)
	}
	tr.mask = 0b01

	samples := make([][2]float64, 10)
	n, ok := tr.Stream(samples)
	if !ok || n != 10 {
		t.Fatalf("Stream = (%d, %v)", n, ok)
	}
	for i, s := range samples {
		if s[0] != 0 {
			t.Fatalf("sample %d left channel not muted: %v", i, s[0])
		}
		if s[1] == 0 {
			t.Fatalf("sample %d right channel muted", i)
		}
	}
}
