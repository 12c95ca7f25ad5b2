package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordAdmission(t *testing.T) {
	c := NewCollector(CollectorConfig{})

	c.RecordAdmission("accept")
	c.RecordAdmission("accept")
	c.RecordAdmission("reject_memory")

	if got := testutil.ToFloat64(c.admission.decisions.WithLabelValues("accept")); got != 2 {
		t.Errorf("accept count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.admission.decisions.WithLabelValues("reject_memory")); got != 1 {
		t.Errorf("reject_memory count = %v, want 1", got)
	}
}

func TestCollector_Gauges(t *testing.T) {
	c := NewCollector(CollectorConfig{})

	c.SetPressureScore(0.73)
	if got := testutil.ToFloat64(c.admission.pressureScore); got != 0.73 {
		t.Errorf("pressure score = %v, want 0.73", got)
	}

	c.SetSheddingActive(true, 3*time.Second)
	if got := testutil.ToFloat64(c.admission.sheddingActive); got != 1 {
		t.Errorf("shedding active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.admission.sheddingSeconds); got != 3 {
		t.Errorf("shedding seconds = %v, want 3", got)
	}

	c.SetSheddingActive(false, 0)
	if got := testutil.ToFloat64(c.admission.sheddingActive); got != 0 {
		t.Errorf("shedding active after reset = %v, want 0", got)
	}

	c.SetInFlight(17)
	if got := testutil.ToFloat64(c.requests.inFlight); got != 17 {
		t.Errorf("in flight = %v, want 17", got)
	}
}

func TestCollector_RateLimitCounters(t *testing.T) {
	c := NewCollector(CollectorConfig{})

	c.RecordRateLimit("free", "graph_read", "allowed")
	c.RecordRateLimit("free", "graph_read", "denied")
	c.RecordRepositoryLimit("open-street-graph", "read", "allowed")
	c.RecordStoreError()

	if got := testutil.ToFloat64(c.ratelimit.checks.WithLabelValues("free", "graph_read", "denied")); got != 1 {
		t.Errorf("denied check count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ratelimit.repoChecks.WithLabelValues("open-street-graph", "read", "allowed")); got != 1 {
		t.Errorf("repo check count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ratelimit.storeErrors); got != 1 {
		t.Errorf("store error count = %v, want 1", got)
	}
}

func TestCollector_HandlerExposesMetrics(t *testing.T) {
	c := NewCollector(CollectorConfig{})
	c.RecordAdmission("accept")
	c.RecordRequest("GET", "200", 42*time.Millisecond)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body := rr.Body.String()
	if !strings.Contains(body, "arbor_gatekeeper_admission_decisions_total") {
		t.Errorf("admission counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, "arbor_gatekeeper_requests_total") {
		t.Errorf("request counter missing from exposition:\n%s", body)
	}
}

func TestCollector_IsolatedRegistries(t *testing.T) {
	a := NewCollector(CollectorConfig{})
	b := NewCollector(CollectorConfig{})

	a.RecordAdmission("accept")

	if got := testutil.ToFloat64(b.admission.decisions.WithLabelValues("accept")); got != 0 {
		t.Errorf("registries are shared: %v", got)
	}
}
