package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	cfgpkg "github.com/rzbill/evstore/internal/config"
	"github.com/rzbill/evstore/internal/metrics"
	"github.com/rzbill/evstore/internal/runtime"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
	logpkg "github.com/rzbill/evstore/pkg/log"
)

type testServer struct {
	*Server
	rt    *runtime.Runtime
	clock *quartz.Mock
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Init.PushAllowlist = []string{"producer"}
	cfg.Init.ReadAllowlist = []string{"consumer"}
	clock := quartz.NewMock(t)
	rt, err := runtime.Open(runtime.Options{
		DataDir:    t.TempDir(),
		Fsync:      pebblestore.FsyncModeAlways,
		Config:     cfg,
		Clock:      clock,
		Metrics:    metrics.New(),
		SaltSource: bytes.NewReader(bytes.Repeat([]byte{1}, 32)),
	})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return testServer{Server: New(rt, logger), rt: rt, clock: clock}
}

func (s testServer) do(method, target, caller, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if caller != "" {
		req.Header.Set("X-Caller", caller)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// migrate fires one heartbeat so pushed events reach the current stream.
func (s testServer) migrate(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.clock.Advance(s.rt.Config().HeartbeatInterval()).MustWait(ctx)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/v1/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestPushAndReadHandlers(t *testing.T) {
	s := newTestServer(t)
	body := `{"events":[{"token":"00000000000000000000000000000001","name":"swap","timestamp":1704067200000,"user":{"value":"alice","visibility":0}}]}`
	if w := s.do(http.MethodPost, "/v1/events", "producer", body); w.Code != http.StatusAccepted {
		t.Fatalf("push status: %d %s", w.Code, w.Body.String())
	}
	w := s.do(http.MethodGet, "/v1/events?start=0&length=5", "consumer", "")
	if w.Code != http.StatusOK {
		t.Fatalf("read status: %d %s", w.Code, w.Body.String())
	}
	var resp events.EventsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Name != "swap" || *resp.Events[0].User != "alice" {
		t.Fatalf("unexpected events: %+v", resp.Events)
	}
}

func TestUnauthorizedIsForbidden(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(http.MethodGet, "/v1/events", "producer", ""); w.Code != http.StatusForbidden {
		t.Fatalf("status: %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/v1/events", "", `{"events":[]}`); w.Code != http.StatusForbidden {
		t.Fatalf("status: %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/v1/events?start=x", "consumer", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestAggregatedDataHandler(t *testing.T) {
	s := newTestServer(t)
	body := `{"events":[
		{"token":"00000000000000000000000000000001","name":"swap","timestamp":1704067200000,"user":{"value":"bob"}},
		{"token":"00000000000000000000000000000002","name":"swap","timestamp":1704070800000,"user":{"value":"alice"}},
		{"token":"00000000000000000000000000000003","name":"swap","timestamp":1704070900000,"user":{"value":"alice"}}
	]}`
	if w := s.do(http.MethodPost, "/v1/events", "producer", body); w.Code != http.StatusAccepted {
		t.Fatalf("push status: %d %s", w.Code, w.Body.String())
	}
	s.migrate(t)

	w := s.do(http.MethodGet, "/aggregated-data/2024-01-01/daily", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"results":[],"pageCount":1}` {
		t.Fatalf("page 0 body: %s", got)
	}

	w = s.do(http.MethodGet, "/aggregated-data/2024-01-01/daily?page=1", "", "")
	want := `{"results":[{"user":"alice","transactions":2},{"user":"bob","transactions":1}],"pageCount":1}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("daily body: %s", got)
	}

	w = s.do(http.MethodGet, "/aggregated-data/2024-01-01/hourly?page=1", "", "")
	want = `{"results":[{"dateTime":"2024-01-01 00:00:00","user":"bob","transactions":1},{"dateTime":"2024-01-01 01:00:00","user":"alice","transactions":2}],"pageCount":1}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Fatalf("hourly body: %s", got)
	}
}

func TestAggregatedDataInputValidation(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]int{
		"/aggregated-data/2024-01-01/weekly":       http.StatusNotFound,
		"/aggregated-data/2024-1-32/daily":         http.StatusNotFound,
		"/aggregated-data/2024-1-1/daily":          http.StatusOK,
		"/aggregated-data/2024-01-01/daily?page=x": http.StatusBadRequest,
		"/no-such-route":                           http.StatusNotFound,
	}
	for target, want := range cases {
		if w := s.do(http.MethodGet, target, "", ""); w.Code != want {
			t.Fatalf("%s: status %d, want %d", target, w.Code, want)
		}
	}
}

func TestAllowlistsAndMetrics(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/v1/allowlists", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"push":["producer"]`) {
		t.Fatalf("allowlists: %d %s", w.Code, w.Body.String())
	}
	w = s.do(http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", w.Code)
	}
}

func TestPreflightDoesNotAllowCallerHeader(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/events", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	req.Header.Set("Access-Control-Request-Headers", "X-Caller")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if allowed := w.Header().Get("Access-Control-Allow-Headers"); strings.Contains(strings.ToLower(allowed), "x-caller") {
		t.Fatalf("preflight allows caller header: %q", allowed)
	}
}
