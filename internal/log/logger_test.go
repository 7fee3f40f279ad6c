package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewHandlerFormats(t *testing.T) {
	for _, format := range []string{"", FormatText, FormatJSON, FormatTint} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			h, err := NewHandler(format, slog.LevelInfo, &buf)
			if err != nil {
				t.Fatalf("NewHandler(%q): %v", format, err)
			}
			slog.New(h).Info("hello", "k", "v")
			if !strings.Contains(buf.String(), "hello") {
				t.Fatalf("output %q missing message", buf.String())
			}
		})
	}

	if _, err := NewHandler("xml", slog.LevelInfo, nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentBills, Output: &buf})

	logger.Info("created", FieldBillID, 7)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec[FieldComponent] != ComponentBills || rec[FieldBillID] != float64(7) {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Format: FormatText, Output: &buf})
	logger.Debug("hidden")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("missing logger should fall back to default")
	}

	logger := New(DefaultConfig())
	var got *Logger
	h := RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context())
		}))
	Middleware(logger)(ComponentMiddleware(ComponentAPI)(h)).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || got.Component() != ComponentAPI {
		t.Fatalf("expected api component logger, got %+v", got)
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, Format: FormatJSON, Output: &buf}))
	r := httptest.NewRequest(http.MethodGet, "/api/bills/", nil)

	sl.LogHTTPEnd(context.Background(), r, "req_1", http.StatusInternalServerError, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Fatalf("5xx should log at error: %s", buf.String())
	}

	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, "req_2", http.StatusNotFound, 1, "127.0.0.1")
	if !strings.Contains(buf.String(), `"level":"WARN"`) {
		t.Fatalf("4xx should log at warn: %s", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("bad"), ComponentStorage, OpCreate, nil)
	if !strings.Contains(buf.String(), `"error":"bad"`) || !strings.Contains(buf.String(), `"component":"storage"`) {
		t.Fatalf("unexpected error record: %s", buf.String())
	}
}
