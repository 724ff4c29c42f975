// Package tracing times the stages of a pipeline operation. Spans nest
// through the context; a finished root span logs its whole tree.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

// Span is one timed stage. Children started from its context become its
// stages.
type Span struct {
	Name    string
	TraceID string

	mu       sync.Mutex
	start    time.Time
	end      time.Time
	children []*Span
	attrs    map[string]any
}

// Start opens a span under the span already in ctx, or a new root span
// with a fresh trace id.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{Name: name, start: time.Now(), attrs: make(map[string]any)}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the innermost span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End stops the clock. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		s.end = time.Now()
	}
}

// Duration is the elapsed time, up to now for a span still open.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// Stages maps each direct child's name to its duration in milliseconds.
func (s *Span) Stages() map[string]int64 {
	s.mu.Lock()
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	out := make(map[string]int64, len(children))
	for _, c := range children {
		out[c.Name] += c.Duration().Milliseconds()
	}
	return out
}

// Log writes the span tree to l at debug level, one record per span.
func (s *Span) Log(ctx context.Context, l *slog.Logger) {
	s.log(ctx, l, 0)
}

func (s *Span) log(ctx context.Context, l *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"depth", depth,
	}
	for k, v := range s.attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	attrs = append(attrs, "duration_ms", s.Duration().Milliseconds())
	l.DebugContext(ctx, "span", attrs...)

	for _, c := range children {
		c.log(ctx, l, depth+1)
	}
}
