package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/ragdesk-backend/internal/platform/envutil"
	"github.com/yungbote/ragdesk-backend/internal/platform/logger"
)

// Metrics is a small Prometheus text-format registry. All methods are safe on
// a nil receiver so callers never need to check whether metrics are enabled.
type Metrics struct {
	apiRequests   *CounterVec
	apiLatency    *HistogramVec
	apiInflight   *Gauge
	embedCalls    *CounterVec
	embedInputs   *CounterVec
	embedLatency  *HistogramVec
	modelCalls    *CounterVec
	modelLatency  *HistogramVec
	vectorOps     *CounterVec
	vectorLatency *HistogramVec
	ingestRuns    *CounterVec
	ingestStage   *HistogramVec
	ingestRecords *Counter
	triggerEvents *CounterVec
	sessionsLive  *Gauge
	bootstraps    *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests:   NewCounterVec("ragdesk_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:    NewHistogramVec("ragdesk_api_request_duration_seconds", "API request latency.", []string{"method", "route", "status"}, latencyBuckets),
		apiInflight:   NewGauge("ragdesk_api_inflight_requests", "In-flight API requests."),
		embedCalls:    NewCounterVec("ragdesk_embedding_calls_total", "Embedding provider calls.", []string{"provider", "status"}),
		embedInputs:   NewCounterVec("ragdesk_embedding_inputs_total", "Texts sent for embedding.", []string{"provider"}),
		embedLatency:  NewHistogramVec("ragdesk_embedding_duration_seconds", "Embedding call latency.", []string{"provider", "status"}, latencyBuckets),
		modelCalls:    NewCounterVec("ragdesk_model_calls_total", "Language model calls.", []string{"model", "status"}),
		modelLatency:  NewHistogramVec("ragdesk_model_duration_seconds", "Language model latency.", []string{"model", "status"}, latencyBuckets),
		vectorOps:     NewCounterVec("ragdesk_vector_store_operations_total", "Vector store operations.", []string{"backend", "operation", "status"}),
		vectorLatency: NewHistogramVec("ragdesk_vector_store_duration_seconds", "Vector store latency.", []string{"backend", "operation", "status"}, latencyBuckets),
		ingestRuns:    NewCounterVec("ragdesk_ingestion_runs_total", "Ingestion runs by trigger and final status.", []string{"trigger", "status"}),
		ingestStage:   NewHistogramVec("ragdesk_ingestion_stage_duration_seconds", "Time spent per pipeline stage.", []string{"stage", "status"}, latencyBuckets),
		ingestRecords: NewCounter("ragdesk_ingestion_records_written_total", "Embedding records written."),
		triggerEvents: NewCounterVec("ragdesk_trigger_events_total", "Storage events handled by the trigger bridge.", []string{"outcome"}),
		sessionsLive:  NewGauge("ragdesk_conversation_sessions", "Conversation sessions held in memory."),
		bootstraps:    NewCounterVec("ragdesk_provider_bootstrap_total", "Provider bootstrap attempts by component/provider/status/code.", []string{"component", "provider", "status", "code"}),
	}
}

func (m *Metrics) collectors() []collector {
	return []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.embedCalls, m.embedInputs, m.embedLatency,
		m.modelCalls, m.modelLatency,
		m.vectorOps, m.vectorLatency,
		m.ingestRuns, m.ingestStage, m.ingestRecords,
		m.triggerEvents, m.sessionsLive,
		m.bootstraps,
	}
}

// StartServer exposes /metrics on a separate listener until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil || strings.TrimSpace(addr) == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.collectors() {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Add(1)
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Add(-1)
	}
}

func (m *Metrics) ObserveEmbedding(provider, status string, dur time.Duration, inputs int) {
	if m == nil {
		return
	}
	m.embedCalls.Inc(provider, status)
	m.embedInputs.Add(float64(inputs), provider)
	m.embedLatency.Observe(dur.Seconds(), provider, status)
}

func (m *Metrics) ObserveModel(model, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.modelCalls.Inc(model, status)
	m.modelLatency.Observe(dur.Seconds(), model, status)
}

func (m *Metrics) ObserveVectorStoreOperation(backend, operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Inc(backend, operation, status)
	m.vectorLatency.Observe(dur.Seconds(), backend, operation, status)
}

func (m *Metrics) ObserveIngestionStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.ingestStage.Observe(dur.Seconds(), stage, status)
}

func (m *Metrics) ObserveIngestionRun(trigger, status string, records int) {
	if m == nil {
		return
	}
	m.ingestRuns.Inc(trigger, status)
	m.ingestRecords.Add(float64(records))
}

func (m *Metrics) IncTriggerEvent(outcome string) {
	if m != nil {
		m.triggerEvents.Inc(outcome)
	}
}

func (m *Metrics) SetSessions(n int) {
	if m != nil {
		m.sessionsLive.Set(float64(n))
	}
}

// ObserveBootstrap records the outcome of selecting a backend at startup.
func (m *Metrics) ObserveBootstrap(component, provider, status, code string) {
	if m != nil {
		m.bootstraps.Inc(component, provider, status, code)
	}
}

type collector interface {
	WritePrometheus(w io.Writer) error
}

func writeHeader(w io.Writer, name, help, kind string) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	return err
}

// series holds float values keyed by rendered label set.
type series struct {
	name   string
	help   string
	kind   string
	labels []string
	mu     sync.RWMutex
	values map[string]float64
}

func (s *series) add(v float64, labelValues []string) {
	key := labelString(s.labels, labelValues)
	s.mu.Lock()
	s.values[key] += v
	s.mu.Unlock()
}

func (s *series) set(v float64, labelValues []string) {
	key := labelString(s.labels, labelValues)
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
}

func (s *series) WritePrometheus(w io.Writer) error {
	if err := writeHeader(w, s.name, s.help, s.kind); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range sortedKeys(s.values) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", s.name, k, s.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type CounterVec struct{ s *series }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{s: &series{name: name, help: help, kind: "counter", labels: labels, values: map[string]float64{}}}
}

func (c *CounterVec) Inc(values ...string) { c.Add(1, values...) }

func (c *CounterVec) Add(v float64, values ...string) {
	if c != nil {
		c.s.add(v, values)
	}
}

func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.values[labelString(c.s.labels, values)]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error { return c.s.WritePrometheus(w) }

type Counter struct{ s *series }

func NewCounter(name, help string) *Counter {
	return &Counter{s: &series{name: name, help: help, kind: "counter", values: map[string]float64{}}}
}

func (c *Counter) Inc() { c.Add(1) }

func (c *Counter) Add(v float64) {
	if c != nil {
		c.s.add(v, nil)
	}
}

func (c *Counter) WritePrometheus(w io.Writer) error { return c.s.WritePrometheus(w) }

type Gauge struct{ s *series }

func NewGauge(name, help string) *Gauge {
	return &Gauge{s: &series{name: name, help: help, kind: "gauge", values: map[string]float64{}}}
}

func (g *Gauge) Set(v float64) {
	if g != nil {
		g.s.set(v, nil)
	}
}

func (g *Gauge) Add(v float64) {
	if g != nil {
		g.s.add(v, nil)
	}
}

func (g *Gauge) WritePrometheus(w io.Writer) error { return g.s.WritePrometheus(w) }

type HistogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64
	mu      sync.Mutex
	values  map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = latencyBuckets
	}
	return &HistogramVec{name: name, help: help, labels: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	key := labelString(h.labels, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[key]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets))}
		h.values[key] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if err := writeHeader(w, h.name, h.help, "histogram"); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		hist := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), hist.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n%s_sum%s %g\n%s_count%s %d\n",
			h.name, withLe(k, "+Inf"), hist.total, h.name, k, hist.sum, h.name, k, hist.total); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	parts := make([]string, len(names))
	for i, name := range names {
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		parts[i] = name + "=\"" + escapeLabel(val) + "\""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func escapeLabel(v string) string {
	return strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n").Replace(v)
}

func withLe(labels string, le string) string {
	if labels == "" {
		return "{le=\"" + le + "\"}"
	}
	return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
}
