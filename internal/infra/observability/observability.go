// Package observability records what the engagement engine does.
//
// This provides:
//   - Lightweight spans around task completions, kept in a ring buffer and
//     served at /api/traces
//   - Prometheus metrics for XP credits, level-ups, badge awards and
//     completion latency
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans
// ═══════════════════════════════════════════════════════════════════════════

// Span represents one traced unit of work.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus string

const (
	SpanOK    SpanStatus = "ok"
	SpanError SpanStatus = "error"
)

// SetAttr attaches a key/value to the span. Safe on a nil span.
func (s *Span) SetAttr(key, value string) {
	if s == nil {
		return
	}
	if s.Attrs == nil {
		s.Attrs = make(map[string]string)
	}
	s.Attrs[key] = value
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent finished spans in memory.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 1_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 1_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span and returns a context carrying its IDs, so spans
// started from that context become children.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, *Span) {
	if t == nil || !t.enabled {
		return ctx, &Span{Operation: operation}
	}

	span := &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
	ctx = context.WithValue(ctx, traceIDKey, span.TraceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return ctx, span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		span.SetAttr("error", err.Error())
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, oldest first.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "guild-trace-id"
	spanIDKey  contextKey = "guild-span-id"
)

// WithTraceID returns a context with the given trace ID. The HTTP layer uses
// it to tie spans to a request ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Engagement Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// XPCredited tracks XP credited, by reason.
var XPCredited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "ledger",
	Name:      "xp_credited_total",
	Help:      "Total XP credited to accounts, by reason.",
}, []string{"reason"})

// LevelUps tracks credits that moved an account to a higher level.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "ledger",
	Name:      "level_ups_total",
	Help:      "Total credits that raised an account's level.",
})

// BadgesAwarded tracks badge awards by badge.
var BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "badges",
	Name:      "awarded_total",
	Help:      "Total badges awarded, by badge id.",
}, []string{"badge"})

// ─── Completion Metrics ─────────────────────────────────────────────────────

// TaskCompletions tracks task completions by outcome
// (credited, unassigned, failed).
var TaskCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "tasks",
	Name:      "completions_total",
	Help:      "Task transitions into done, by outcome.",
}, []string{"outcome"})

// CompletionDuration tracks how long a completion transaction takes.
var CompletionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "guild",
	Subsystem: "tasks",
	Name:      "completion_duration_seconds",
	Help:      "Time spent distributing XP for one task completion.",
	Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
})

// ─── Event Metrics ──────────────────────────────────────────────────────────

// EventsPublished tracks engagement events by type and result.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Engagement events handed to the publisher, by type and result.",
}, []string{"type", "result"})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "guild",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
