package media

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

func writeWAV(t *testing.T, dir string, samples int) string {
	t.Helper()
	path := filepath.Join(dir, "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	format := beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, beep.Silence(samples), format); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func TestIsAudioFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"song.mp3", true},
		{"SONG.MP3", true},
		{"jingle.wav", true},
		{"cover.png", false},
		{"notes", false},
		{"music.spc", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAudioFile(tt.name); got != tt.want {
				t.Errorf("IsAudioFile(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestOpenUnsupported(t *testing.T) {
	_, _, err := Open("/music/track.spc")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestInspectWAV(t *testing.T) {
	path := writeWAV(t, t.TempDir(), 88200)

	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if info.Samples != 88200 {
		t.Errorf("samples = %d, want 88200", info.Samples)
	}
	if info.LengthMs() != 2000 {
		t.Errorf("length = %dms, want 2000", info.LengthMs())
	}
	if info.HasLoop() || info.IntroMs() != 0 || info.LoopMs() != 0 {
		t.Errorf("untagged file reported loop %+v", info.Tags)
	}
}

func TestLoopPoints(t *testing.T) {
	tests := []struct {
		name       string
		raw        map[string]interface{}
		wantStart  int
		wantLength int
	}{
		{
			name:       "vorbis comments",
			raw:        map[string]interface{}{"loopstart": "44100", "looplength": "441000"},
			wantStart:  44100,
			wantLength: 441000,
		},
		{
			name: "id3 user text frames",
			raw: map[string]interface{}{
				"TXXX":   &tag.Comm{Description: "LOOPSTART", Text: "1000"},
				"TXXX_0": &tag.Comm{Description: "LOOPLENGTH", Text: " 5000 "},
				"TXXX_1": &tag.Comm{Description: "REPLAYGAIN_TRACK_GAIN", Text: "-6.2 dB"},
			},
			wantStart:  1000,
			wantLength: 5000,
		},
		{
			name:       "garbage values ignored",
			raw:        map[string]interface{}{"loopstart": "soon", "looplength": "-4"},
			wantStart:  -1,
			wantLength: 0,
		},
		{
			name:      "no loop tags",
			raw:       map[string]interface{}{"title": "Overworld"},
			wantStart: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, length := loopPoints(tt.raw)
			if start != tt.wantStart || length != tt.wantLength {
				t.Errorf("loopPoints = (%d, %d), want (%d, %d)", start, length, tt.wantStart, tt.wantLength)
			}
		})
	}
}

func TestInfoLoopMs(t *testing.T) {
	info := &Info{
		Tags:    Tags{LoopStart: 22050, LoopLength: 441000},
		Format:  beep.Format{SampleRate: 44100},
		Samples: 463050,
	}
	if info.IntroMs() != 500 || info.LoopMs() != 10000 || info.LengthMs() != 10500 {
		t.Fatalf("intro=%d loop=%d length=%d", info.IntroMs(), info.LoopMs(), info.LengthMs())
	}
}
