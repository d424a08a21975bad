package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	dto "github.com/prometheus/client_model/go"

	"streambox/internal/logging"
	"streambox/internal/metrics"
)

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	if rw.statusCode != http.StatusOK || rw.wroteHeader {
		t.Fatalf("fresh writer = %+v", rw)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusNotFound {
		t.Errorf("statusCode = %d, first WriteHeader should win", rw.statusCode)
	}

	n, err := rw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if rw.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d", rw.bytesWritten)
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"api request", "/api/jobs/x/segments", DefaultLoggingConfig(), false},
		{"health check hidden", "/health", DefaultLoggingConfig(), true},
		{"health check shown", "/readyz", LoggingConfig{LogHealthChecks: true}, false},
		{"segment hidden", "/video/job-1/12.ts", DefaultLoggingConfig(), true},
		{"segment shown", "/video/job-1/12.ts", LoggingConfig{LogSegments: true}, false},
		{"playlist", "/video/job-1/index.m3u8", DefaultLoggingConfig(), false},
		{"skip prefix", "/metrics", LoggingConfig{SkipPaths: []string{"/metrics"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSkip(tt.path, tt.config); got != tt.want {
				t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestLoggerWritesW3CLine(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.SetOutput(&buf)
	t.Cleanup(func() { logging.SetOutput(prev) })

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?limit=1", http.NoBody)
	req.Header.Set("User-Agent", "hls player")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{" 10.0.0.1 GET /api/jobs limit=1 418 15 ", `"hls player"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := map[string]string{
		"plain":              "plain",
		"line\nbreak":        "line break",
		"carriage\rreturn":   "carriage return",
		"null\x00byte":       "nullbyte",
		"\x1b[31mred\x1b[0m": "[31mred[0m",
		"tab\tkept":          "tab\tkept",
	}
	for in, want := range tests {
		if got := sanitizeLogField(in); got != want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.0.2.1:54321"
	if got := getClientIP(req); got != "192.0.2.1" {
		t.Errorf("RemoteAddr IP = %q", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.7")
	if got := getClientIP(req); got != "198.51.100.7" {
		t.Errorf("X-Real-IP = %q", got)
	}
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/jobs/{id}/segments", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {}).Methods(http.MethodGet)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/jobs/{id}/segments", "404")
	before := counterValue(t, counter)

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+id+"/segments", http.NoBody)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := counterValue(t, counter) - before; got != 2 {
		t.Errorf("requests recorded under route template = %v, want 2", got)
	}

	health := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")
	hBefore := counterValue(t, health)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if counterValue(t, health) != hBefore {
		t.Error("skipped route was recorded")
	}
}

func TestCompression(t *testing.T) {
	playlist := "#EXTM3U\n" + strings.Repeat("#EXTINF:4.000,\n0.ts\n", 100)

	tests := []struct {
		name           string
		contentType    string
		acceptEncoding string
		method         string
		wantGzip       bool
	}{
		{"playlist", "application/vnd.apple.mpegurl", "gzip, deflate", http.MethodGet, true},
		{"json with charset", "application/json; charset=utf-8", "gzip", http.MethodGet, true},
		{"segment", "video/mp2t", "gzip", http.MethodGet, false},
		{"no gzip support", "application/json", "", http.MethodGet, false},
		{"head request", "application/json", "gzip", http.MethodHead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, playlist)
			}))

			req := httptest.NewRequest(tt.method, "/video/index.m3u8", http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			gotGzip := rec.Header().Get("Content-Encoding") == "gzip"
			if gotGzip != tt.wantGzip {
				t.Fatalf("Content-Encoding gzip = %v, want %v", gotGzip, tt.wantGzip)
			}
			if !gotGzip {
				return
			}

			zr, err := gzip.NewReader(rec.Body)
			if err != nil {
				t.Fatalf("gzip.NewReader() error = %v", err)
			}
			body, err := io.ReadAll(zr)
			if err != nil {
				t.Fatalf("reading gzip body: %v", err)
			}
			if string(body) != playlist {
				t.Error("decompressed body does not match")
			}
		})
	}
}

func TestCompressionSkipsNoContent(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("204 response should not be gzip encoded")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body length = %d", rec.Body.Len())
	}
}

func TestFormatW3CDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", http.NoBody)
	req.RemoteAddr = "127.0.0.1:1"
	rw := newResponseWriter(httptest.NewRecorder())

	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	got := formatW3C(req, rw, 3*time.Millisecond, now)
	want := "2024-05-01 12:30:00 127.0.0.1 GET /livez - 200 0 3 -"
	if got != want {
		t.Errorf("formatW3C() = %q, want %q", got, want)
	}
}
