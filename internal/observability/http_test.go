package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reyadatime/reyadatime/internal/config"
)

func TestTraceMiddlewareKeepsOrMintsTraceID(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if seen != "trace-1" || rr.Header().Get(traceHeader) != "trace-1" {
		t.Fatalf("trace id = %q, header = %q", seen, rr.Header().Get(traceHeader))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if seen == "" || rr.Header().Get(traceHeader) != seen {
		t.Fatalf("minted trace id = %q, header = %q", seen, rr.Header().Get(traceHeader))
	}
}

func TestTraceIDFromEmptyContext(t *testing.T) {
	if got := TraceIDFromContext(context.Background()); got != "" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{status: http.StatusOK, level: "INFO"},
		{status: http.StatusNotFound, level: "WARN"},
		{status: http.StatusBadGateway, level: "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))

		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/facilities/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("body"))
		})
		LoggingMiddleware(logger)(mux).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/facilities/f-1", nil))

		var line map[string]any
		if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
			t.Fatalf("log line %q: %v", buf.String(), err)
		}
		if line["level"] != tt.level || line["status"] != float64(tt.status) {
			t.Fatalf("status %d logged as %v/%v", tt.status, line["level"], line["status"])
		}
		if line["route"] != "GET /v1/facilities/{id}" || line["bytes"] != float64(4) {
			t.Fatalf("route/bytes = %v/%v", line["route"], line["bytes"])
		}
	}
}

func TestRouteLabelForUnmatchedRequest(t *testing.T) {
	if got := routeLabel(httptest.NewRequest(http.MethodGet, "/nope/123", nil)); got != "unmatched" {
		t.Fatalf("routeLabel() = %q", got)
	}
}

func TestNewLoggerRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Service: config.ServiceConfig{Name: "reyada-api"}}
	cfg.Observability.LogJSON = true

	NewLogger(cfg, &buf).Info("sign in",
		slog.String("email", "a@example.com"),
		slog.String("password", "hunter22"),
		slog.String("Authorization", "Bearer abc"),
	)
	out := buf.String()
	if strings.Contains(out, "hunter22") || strings.Contains(out, "Bearer abc") {
		t.Fatalf("credentials leaked: %s", out)
	}
	if !strings.Contains(out, `"email":"a@example.com"`) || !strings.Contains(out, `"service":"reyada-api"`) {
		t.Fatalf("log line = %s", out)
	}
}

func TestWithComponentFallsBackToDefault(t *testing.T) {
	if WithComponent(nil, "query") == nil {
		t.Fatal("WithComponent(nil) returned nil")
	}
}
