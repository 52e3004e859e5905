package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware_Levels(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			h := requestIDMiddleware(loggingMiddleware(logger, inner))
			req := httptest.NewRequest(http.MethodGet, "/users/1", nil)
			req.Header.Set("X-Request-ID", "rid-1")
			h.ServeHTTP(httptest.NewRecorder(), req)

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, "http request", line["msg"])
			assert.Equal(t, float64(tt.status), line["status"])
			assert.Equal(t, "rid-1", line["request_id"])
			assert.Equal(t, "/users/1", line["path"])
		})
	}
}

func TestRequestIDMiddleware_RejectsOversizedID(t *testing.T) {
	t.Parallel()
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 500))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	_, _ = sw.Write([]byte("x"))
	sw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, sw.statusCode)
}

func TestDecodeFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		body    string
		want    map[string]any
		wantErr bool
	}{
		{"object", `{"a":1}`, map[string]any{"a": float64(1)}, false},
		{"empty", ``, map[string]any{}, false},
		{"null", `null`, nil, true},
		{"array", `[]`, nil, true},
		{"garbage", `{`, nil, true},
		{"trailing whitespace", "{\"a\":1}\n ", map[string]any{"a": float64(1)}, false},
		{"trailing word", `{"a":1} trailing`, nil, true},
		{"second object", `{"a":1}{"b":2}`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			got, err := decodeFields(httptest.NewRecorder(), req, 1024)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
