package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestModuleLevelOverride(t *testing.T) {
	// Reset state
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	isInitialized = false
	mutex.Unlock()

	// Initialize with global info level, but pipeline module at debug
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"pipeline": "debug",
			"api":      "warn",
		},
	})

	tests := []struct {
		module      string
		wantDebug   bool
		wantInfo    bool
		wantWarn    bool
		description string
	}{
		{"pipeline", true, true, true, "pipeline module should log debug (override to debug)"},
		{"api", false, false, true, "api module should only log warn (override to warn)"},
		{"other", false, true, true, "other module should log info (global default)"},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			logger := GetLogger(tt.module)

			// Get the handler from the logger to test Enabled
			// We need to check if the handler accepts different levels
			handler := logger.Handler()

			gotDebug := handler.Enabled(context.Background(), slog.LevelDebug)
			gotInfo := handler.Enabled(context.Background(), slog.LevelInfo)
			gotWarn := handler.Enabled(context.Background(), slog.LevelWarn)

			if gotDebug != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, gotInfo, tt.wantInfo)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestModuleLevelWithMultiHandler(t *testing.T) {
	// Reset state
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	isInitialized = false
	mutex.Unlock()

	// Initialize with debug level for encoder module
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"encoder": "debug",
		},
	})

	logger := GetLogger("encoder")
	handler := logger.Handler()

	// Verify the handler accepts debug level
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("encoder module handler should accept Debug level")
	}

	// Regardless of handler type, debug should be enabled
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Errorf("Debug should be enabled for encoder module, handler type: %T", handler)
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	// Create two handlers - one with debug, one with info
	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	multi := NewMultiHandler(debugHandler, infoHandler)
	logger := slog.New(multi).With("module", "test")

	// Write debug log - should appear once (from debugHandler)
	logger.Debug("debug only message")

	output := buf.String()
	if !strings.Contains(output, "debug only message") {
		t.Errorf("Debug message not written via MultiHandler. Output: %s", output)
	}

	// Count occurrences - should be 1 (only debugHandler writes it)
	count := strings.Count(output, "debug only message")
	if count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, output)
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	// Reset state completely
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	mutex.Unlock()

	// Get logger BEFORE Initialize - should default to info level
	loggerBefore := GetLogger("encoder")
	handlerBefore := loggerBefore.Handler()

	// Should NOT have debug enabled (defaults to info)
	if handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	// Now Initialize with debug level for encoder
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"encoder": "debug",
		},
	})

	// Get logger AFTER Initialize - should be SAME logger (cached) with updated level
	loggerAfter := GetLogger("encoder")

	// With LevelVar fix, logger should be cached (same pointer) but level updated dynamically
	if loggerBefore != loggerAfter {
		t.Error("Logger should be cached - same pointer before and after Initialize")
	}

	// The cached logger should now have debug enabled (LevelVar was updated)
	if !handlerBefore.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Cached logger should have debug enabled after Initialize updates LevelVar")
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
				}
			} else {
				if got == nil {
					t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
				} else if *got != tt.want {
					t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
				}
			}
		})
	}
}

func resetLogging(t *testing.T) {
	t.Helper()
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	logCallback = nil
	mutex.Unlock()
}

func TestBufferHandlerSequence(t *testing.T) {
	resetLogging(t)
	Initialize(Config{Level: "debug", Format: "text"})

	var mu sync.Mutex
	var seen []LogEntry
	SetLogCallback(func(e LogEntry) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	})
	defer SetLogCallback(nil)

	logger := GetLogger("capture").With("camera", "0")
	logger.Info("first")
	logger.Warn("second", "error", context.Canceled)

	entries := GetBuffer().ReadAll()
	if len(entries) != 2 {
		t.Fatalf("ReadAll() = %d entries, want 2", len(entries))
	}
	if entries[0].Seq >= entries[1].Seq {
		t.Errorf("Seq = %d, %d, want increasing", entries[0].Seq, entries[1].Seq)
	}
	if entries[1].Module != "capture" {
		t.Errorf("Module = %q, want capture", entries[1].Module)
	}
	if got := entries[1].Attributes["camera"]; got != "0" {
		t.Errorf("camera attribute = %v, want 0", got)
	}
	if got := entries[1].Attributes["error"]; got != context.Canceled.Error() {
		t.Errorf("error attribute = %v, want %q", got, context.Canceled.Error())
	}

	since := GetBuffer().ReadSince(entries[0].Seq)
	if len(since) != 1 || since[0].Message != "second" {
		t.Errorf("ReadSince() = %+v, want only the second entry", since)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[1].Seq != entries[1].Seq {
		t.Errorf("callback saw %+v, want both entries with sequence numbers", seen)
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(2)
	for _, msg := range []string{"a", "b", "c"} {
		rb.Write(LogEntry{Message: msg})
	}
	entries := rb.ReadAll()
	if len(entries) != 2 || entries[0].Message != "b" || entries[1].Message != "c" {
		t.Errorf("ReadAll() = %+v, want b, c", entries)
	}
	if entries[1].Seq != 3 {
		t.Errorf("Seq = %d, want 3", entries[1].Seq)
	}
	if got := rb.ReadSince(3); got != nil {
		t.Errorf("ReadSince(3) = %+v, want nil", got)
	}
}

func TestSetLevel(t *testing.T) {
	resetLogging(t)
	Initialize(Config{Level: "info", Format: "text"})

	handler := GetLogger("shader").Handler()
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug enabled before SetLevel")
	}
	if err := SetLevel("shader", "debug"); err != nil {
		t.Fatalf("SetLevel() error = %v", err)
	}
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug not enabled after SetLevel")
	}
	if got := Levels()["shader"]; got != "debug" {
		t.Errorf("Levels()[shader] = %q, want debug", got)
	}
	if err := SetLevel("shader", "loud"); err == nil {
		t.Error("SetLevel(loud) error = nil, want error")
	}
}

func TestFormatLogLine(t *testing.T) {
	got := FormatLogLine(LogEntry{
		Level:      "warn",
		Module:     "encoder",
		Message:    "Frame dropped",
		Attributes: map[string]any{"b": 2, "a": 1},
	})
	if !strings.HasSuffix(got, "[WARN] [encoder] Frame dropped a=1 b=2") {
		t.Errorf("FormatLogLine() = %q", got)
	}
}
