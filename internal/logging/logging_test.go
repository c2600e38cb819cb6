package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// captureLogOutput redirects the global logger to a buffer while f runs.
func captureLogOutput(f func()) string {
	var buf bytes.Buffer
	oldLogger := defaultLogger
	defaultLogger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defer func() { defaultLogger = oldLogger }()

	f()
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"debug json", LevelDebug, FormatJSON},
		{"info text", LevelInfo, FormatText},
		{"warn json", LevelWarn, FormatJSON},
		{"error text", LevelError, FormatText},
		{"unknown level", Level(99), FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Fatal("GetLogger() returned nil")
			}
			if slog.Default() != GetLogger() {
				t.Error("InitLogger did not install the default slog logger")
			}
		})
	}
	InitLogger(LevelInfo, FormatJSON)
}

func TestParseLevelAndFormat(t *testing.T) {
	levels := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		" warn ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range levels {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if got := ParseFormat("Text"); got != FormatText {
		t.Errorf("ParseFormat(Text) = %v, want FormatText", got)
	}
	if got := ParseFormat("json"); got != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, want FormatJSON", got)
	}
	if got := ParseFormat("yaml"); got != FormatJSON {
		t.Errorf("ParseFormat(yaml) = %v, want FormatJSON", got)
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID() = %q, want req-1", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID(empty) = %q, want empty", got)
	}

	output := captureLogOutput(func() {
		InfoContext(ctx, "context message")
	})
	if !strings.Contains(output, `"request_id":"req-1"`) {
		t.Errorf("context log missing request_id: %s", output)
	}
}

func TestLevelHelpers(t *testing.T) {
	output := captureLogOutput(func() {
		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message", "key", "value")
		DebugContext(context.Background(), "debug ctx")
		WarnContext(context.Background(), "warn ctx")
		ErrorContext(context.Background(), "error ctx")
	})

	for _, want := range []string{"debug message", "info message", "warn message", "error message", `"key":"value"`, "debug ctx", "warn ctx", "error ctx"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestDomainHelpers(t *testing.T) {
	tests := []struct {
		name string
		log  func()
		want []string
	}{
		{
			name: "book opened",
			log:  func() { BookOpened("PackageArchive", "alice.epub", 12, "title", "Alice") },
			want: []string{"book_opened", "PackageArchive", "alice.epub", `"sections":12`, `"title":"Alice"`},
		},
		{
			name: "open failed",
			log:  func() { OpenFailed("notes.txt", errors.New("file type not supported")) },
			want: []string{"open_failed", "notes.txt", "file type not supported", `"level":"WARN"`},
		},
		{
			name: "loader built",
			log:  func() { LoaderBuilt("zip", 42) },
			want: []string{"loader_built", `"kind":"zip"`, `"entries":42`},
		},
		{
			name: "annotation rejected",
			log:  func() { AnnotationRejected(7, "epubcfi(/6/7!/4)", errors.New("odd spine position")) },
			want: []string{"annotation_rejected", `"annotation_id":7`, "odd spine position"},
		},
		{
			name: "surface event",
			log:  func() { SurfaceEvent("load", 3) },
			want: []string{"surface_event", `"kind":"load"`, `"index":3`},
		},
		{
			name: "websocket event",
			log:  func() { WebSocketEvent("client_connected", 2) },
			want: []string{"websocket_event", "client_connected", `"client_count":2`},
		},
		{
			name: "server startup",
			log:  func() { ServerStartup("bridge", "ws", 8080) },
			want: []string{"server_startup", "bridge", `"port":8080`},
		},
		{
			name: "security event",
			log:  func() { SecurityEvent("origin_rejected", "bridge") },
			want: []string{"security_event", "origin_rejected"},
		},
		{
			name: "http request",
			log:  func() { HTTPRequest("GET", "/ws", "127.0.0.1", 101, 5*time.Millisecond) },
			want: []string{"http_request", `"status_code":101`, `"duration_ms":5`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.log)
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q: %s", want, output)
				}
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" {
			t.Fatal("no request ID in context")
		}
		if got := rec.Header().Get("X-Request-ID"); got != seen {
			t.Errorf("X-Request-ID = %q, want %q", got, seen)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "upstream-id")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "upstream-id" {
			t.Errorf("request ID = %q, want upstream-id", seen)
		}
	})
}

func TestLoggingMiddleware(t *testing.T) {
	handler := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	output := captureLogOutput(func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/annotations", nil))
	})

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	for _, want := range []string{`"method":"POST"`, `"path":"/annotations"`, `"status_code":418`, "request_id"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q: %s", want, output)
		}
	}
}

func TestStatusRecorderHijackUnsupported(t *testing.T) {
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); !errors.Is(err, http.ErrNotSupported) {
		t.Errorf("Hijack() error = %v, want ErrNotSupported", err)
	}
}
