package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goMFA "github.com/MrEthical07/goMFA"
)

type fakeSource struct {
	snapshot goMFA.MetricsSnapshot
	dropped  uint64
	panics   uint64
}

func (f fakeSource) MetricsSnapshot() goMFA.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                   { return f.dropped }
func (f fakeSource) AuditSinkPanics() uint64                { return f.panics }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goMFA.MetricsSnapshot{
			Counters:   map[goMFA.MetricID]uint64{},
			Histograms: map[goMFA.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goMFA.MetricsSnapshot{
			Counters: map[goMFA.MetricID]uint64{
				goMFA.MetricTOTPSuccess: 7,
				goMFA.MetricTOTPReplay:  2,
			},
			Histograms: map[goMFA.MetricID][]uint64{
				goMFA.MetricVerifyLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
		panics:  1,
	})

	out := exp.Render()
	for _, want := range []string{
		"gomfa_totp_success_total 7",
		"gomfa_totp_replay_total 2",
		"gomfa_channel_code_expired_total 0",
		"# TYPE gomfa_verify_latency_seconds histogram",
		`gomfa_verify_latency_seconds_bucket{le="0.005"} 1`,
		`gomfa_verify_latency_seconds_bucket{le="+Inf"} 36`,
		"gomfa_verify_latency_seconds_count 36",
		"gomfa_audit_dropped_total 2",
		"gomfa_audit_sink_panics_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestHandlerServesEngineMetrics(t *testing.T) {
	engine, err := goMFA.New().WithStore(goMFA.NewMemoryStore()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	_ = engine.Verify(context.Background(), "u1", goMFA.MethodTOTP, "123456")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	NewPrometheusExporter(engine).Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gomfa_verify_failure_total 1") {
		t.Fatalf("expected failed verification counter, got:\n%s", rec.Body.String())
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goMFA.MetricsSnapshot{
			Counters: map[goMFA.MetricID]uint64{
				goMFA.MetricVerifySuccess:     1000,
				goMFA.MetricVerifyFailure:     40,
				goMFA.MetricChannelCodeIssued: 300,
			},
			Histograms: map[goMFA.MetricID][]uint64{
				goMFA.MetricVerifyLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
