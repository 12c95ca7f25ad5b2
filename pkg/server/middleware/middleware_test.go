package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"arbor-hq/gatekeeper/pkg/telemetry/logging"
)

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected a generated request ID in the context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context ID %q", got, seen)
	}
}

func TestRequestIDHonorsClientSupplied(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := logging.RequestID(r.Context()); got != "req-abc" {
			t.Errorf("context request ID = %q, want req-abc", got)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "req-abc" {
		t.Errorf("response header = %q, want req-abc", got)
	}
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error.Code != "internal_error" {
		t.Errorf("error code = %q, want internal_error", body.Error.Code)
	}
	if strings.Contains(body.Error.Message, "boom") {
		t.Error("panic detail leaked into the response body")
	}
}

func TestLoggingRecordsStatusAndPath(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/graphs/g-1", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decoding log line %q: %v", buf.String(), err)
	}
	if line["status"] != float64(http.StatusTeapot) {
		t.Errorf("logged status = %v, want %d", line["status"], http.StatusTeapot)
	}
	if line["path"] != "/api/graphs/g-1" {
		t.Errorf("logged path = %v, want /api/graphs/g-1", line["path"])
	}
}

func TestLoggingDefaultsStatusTo200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	if line["status"] != float64(http.StatusOK) {
		t.Errorf("logged status = %v, want 200", line["status"])
	}
}

func TestTrackerQueueDepth(t *testing.T) {
	tr := NewInFlightTracker(4, 10)

	if got := tr.QueueDepth(); got != 0 {
		t.Errorf("idle queue depth = %d, want 0", got)
	}

	for i := 0; i < 7; i++ {
		tr.Acquire()
	}
	if got := tr.ActiveWork(); got != 7 {
		t.Errorf("active work = %d, want 7", got)
	}
	if got := tr.QueueDepth(); got != 3 {
		t.Errorf("queue depth = %d, want 3 (7 in flight over target 4)", got)
	}

	for i := 0; i < 7; i++ {
		tr.Release()
	}
	if got := tr.InFlight(); got != 0 {
		t.Errorf("in flight after release = %d, want 0", got)
	}
}

func TestTrackerTrackBalancesUnderConcurrency(t *testing.T) {
	tr := NewInFlightTracker(4, 10)
	h := tr.Track(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tr.InFlight() < 1 {
			t.Error("in-flight count dropped below 1 inside a tracked handler")
		}
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		}()
	}
	wg.Wait()

	if got := tr.InFlight(); got != 0 {
		t.Errorf("in flight after all requests = %d, want 0", got)
	}
}
