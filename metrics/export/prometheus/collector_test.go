package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/credcore"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot credcore.MetricsSnapshot
	dropped  uint64
	pending  int
}

func (f fakeSource) MetricsSnapshot() credcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }
func (f fakeSource) AuditPending() int                         { return f.pending }

func populatedSource() fakeSource {
	return fakeSource{
		snapshot: credcore.MetricsSnapshot{
			Counters: map[credcore.MetricID]uint64{
				credcore.MetricLoginSuccess: 7,
			},
			Histograms: map[credcore.MetricID][]uint64{
				credcore.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 2,
		pending: 3,
	}
}

func TestCollectEmptyWhenMetricsDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: credcore.MetricsSnapshot{
			Counters:   map[credcore.MetricID]uint64{},
			Histograms: map[credcore.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(c); n != 0 {
		t.Fatalf("expected no metrics, got %d", n)
	}
}

func TestCollectCounterAndAuditGauges(t *testing.T) {
	c := NewCollectorFromSource(populatedSource())

	expected := `
# HELP credcore_login_success_total Successful logins.
# TYPE credcore_login_success_total counter
credcore_login_success_total 7
# HELP credcore_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE credcore_audit_dropped_total counter
credcore_audit_dropped_total 2
# HELP credcore_audit_pending Audit events buffered and not yet delivered to the sink.
# TYPE credcore_audit_pending gauge
credcore_audit_pending 3
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"credcore_login_success_total", "credcore_audit_dropped_total", "credcore_audit_pending"); err != nil {
		t.Fatalf("unexpected collection: %v", err)
	}
}

func TestCollectHistogramIsCumulative(t *testing.T) {
	c := NewCollectorFromSource(populatedSource())

	expected := `
# HELP credcore_validate_latency_seconds Token validation latency.
# TYPE credcore_validate_latency_seconds histogram
credcore_validate_latency_seconds_bucket{le="0.001"} 1
credcore_validate_latency_seconds_bucket{le="0.0025"} 2
credcore_validate_latency_seconds_bucket{le="0.005"} 3
credcore_validate_latency_seconds_bucket{le="0.01"} 4
credcore_validate_latency_seconds_bucket{le="0.025"} 5
credcore_validate_latency_seconds_bucket{le="0.05"} 6
credcore_validate_latency_seconds_bucket{le="0.1"} 7
credcore_validate_latency_seconds_bucket{le="+Inf"} 8
credcore_validate_latency_seconds_sum 0
credcore_validate_latency_seconds_count 8
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "credcore_validate_latency_seconds"); err != nil {
		t.Fatalf("unexpected histogram: %v", err)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	c := NewCollectorFromSource(populatedSource())

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "credcore_login_success_total 7") {
		t.Fatalf("counter missing from body:\n%s", body)
	}
}
