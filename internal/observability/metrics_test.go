package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.ObserveEmbedding("hash", "ok", time.Millisecond, 3)
	m.IncTriggerEvent("skipped")
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus on nil: %v", err)
	}
}

func TestWritePrometheus(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("POST", "/messages", "200", 30*time.Millisecond)
	m.ObserveIngestionRun("webhook", "succeeded", 12)
	m.IncTriggerEvent("delivered")
	m.ObserveBootstrap("vector_store", "qdrant", "error", "connect_failed")

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`ragdesk_api_requests_total{method="POST",route="/messages",status="200"} 1`,
		`ragdesk_api_request_duration_seconds_bucket{method="POST",route="/messages",status="200",le="0.05"} 1`,
		`ragdesk_ingestion_runs_total{trigger="webhook",status="succeeded"} 1`,
		`ragdesk_ingestion_records_written_total 12`,
		`ragdesk_trigger_events_total{outcome="delivered"} 1`,
		`ragdesk_provider_bootstrap_total{component="vector_store",provider="qdrant",status="error",code="connect_failed"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing line %q in:\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"route"}, []string{`a"b`})
	if got != `{route="a\"b"}` {
		t.Fatalf("labelString: want=%q got=%q", `{route="a\"b"}`, got)
	}
}
