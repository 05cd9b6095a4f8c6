package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/friendsincode/squarewave/internal/models"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestStartSpanWithTrackAttributes(t *testing.T) {
	recorder := recordSpans(t)
	track := &models.Track{ID: "t1", Path: "/music/NES/Zelda/dungeon.wav", SubTrack: 0, LoopMs: 8000}

	_, span := StartSpan(context.Background(), "engine.load", TrackAttributes(track)...)
	EndSpan(span, nil)

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Name() != "engine.load" {
		t.Fatalf("span name = %q", ended[0].Name())
	}
	attrs := attrMap(ended[0].Attributes())
	if attrs["track.id"].AsString() != "t1" || !attrs["track.looped"].AsBool() {
		t.Fatalf("unexpected attributes %v", ended[0].Attributes())
	}
	if ended[0].Status().Code == codes.Error {
		t.Fatal("successful span marked as error")
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartSpan(context.Background(), "library.scan")
	EndSpan(span, errors.New("walk music dir: permission denied"))

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Fatalf("status = %v, want error", ended[0].Status().Code)
	}
	if len(ended[0].Events()) == 0 {
		t.Fatal("expected the error to be recorded as a span event")
	}
}

func TestTrackAttributesNilTrack(t *testing.T) {
	if attrs := TrackAttributes(nil); attrs != nil {
		t.Fatalf("expected no attributes, got %v", attrs)
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := samplerFor(tt.rate).Description()
		if !strings.HasPrefix(desc, "ParentBased{") || !strings.Contains(desc, "root:"+tt.want) {
			t.Errorf("samplerFor(%v) = %s, want root %s", tt.rate, desc, tt.want)
		}
	}
}

func TestInitTracerDisabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := InitTracer(context.Background(), TracerConfig{Enabled: false}, zerolog.Nop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
