package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestJournalKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"module", "MODULE"},
		{"recording-id", "RECORDING_ID"},
		{"frame.count", "FRAME_COUNT"},
		{"_private", "PRIVATE"},
		{"3d", "F_3D"},
		{"", "F_"},
	}
	for _, tt := range tests {
		if got := journalKey(tt.in); got != tt.want {
			t.Errorf("journalKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAddJournalField(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	fields := map[string]string{}
	for _, a := range []slog.Attr{
		slog.String("shader", "sepia"),
		slog.Int("frames", 42),
		slog.Float64("fps", 29.97),
		slog.Bool("hdr", true),
		slog.Duration("elapsed", 1500*time.Millisecond),
		slog.Time("at", at),
		slog.Group("encoder", slog.String("codec", "h264"), slog.Group("rate", slog.Int("kbps", 8000))),
		{},
	} {
		addJournalField(fields, "", a)
	}

	want := map[string]string{
		"SHADER":            "sepia",
		"FRAMES":            "42",
		"FPS":               "29.97",
		"HDR":               "true",
		"ELAPSED":           "1.5s",
		"AT":                "2026-10-19T12:00:00Z",
		"ENCODER_CODEC":     "h264",
		"ENCODER_RATE_KBPS": "8000",
	}
	if len(fields) != len(want) {
		t.Errorf("fields = %v, want %v", fields, want)
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%s] = %q, want %q", k, fields[k], v)
		}
	}
}

func TestJournalHandlerDerive(t *testing.T) {
	h := NewJournalHandler(slog.LevelInfo)
	derived := h.WithAttrs([]slog.Attr{slog.String("module", "capture")}).WithGroup("req").(*JournalHandler)

	if derived.fields["MODULE"] != "capture" {
		t.Errorf("fields = %v, want MODULE=capture", derived.fields)
	}
	if derived.prefix != "REQ_" {
		t.Errorf("prefix = %q, want REQ_", derived.prefix)
	}
	if len(h.fields) != 0 {
		t.Errorf("WithAttrs modified the parent handler: %v", h.fields)
	}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(debug) = true at info level")
	}
}

type failingHandler struct {
	err     error
	handled int
}

func (f *failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (f *failingHandler) Handle(context.Context, slog.Record) error {
	f.handled++
	return f.err
}

func (f *failingHandler) WithAttrs([]slog.Attr) slog.Handler { return f }

func (f *failingHandler) WithGroup(string) slog.Handler { return f }

func TestMultiHandlerJoinsErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	a, ok, b := &failingHandler{err: errA}, &failingHandler{}, &failingHandler{err: errB}
	multi := NewMultiHandler(a, ok, b)

	err := multi.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Handle() error = %v, want both handler errors", err)
	}
	if a.handled != 1 || ok.handled != 1 || b.handled != 1 {
		t.Errorf("handled = %d %d %d, want every handler called once", a.handled, ok.handled, b.handled)
	}
}
