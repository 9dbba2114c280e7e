package store

import (
	"context"
	"time"

	"github.com/kenvote/registry/internal/metrics"
)

// Instrumented times every Update of the wrapped store.
type Instrumented struct {
	Store
	metrics *metrics.Metrics
}

// WithMetrics wraps s so that Update durations are observed.
func WithMetrics(s Store, m *metrics.Metrics) *Instrumented {
	return &Instrumented{Store: s, metrics: m}
}

func (s *Instrumented) Update(ctx context.Context, fn func(doc *Document) error) error {
	defer s.metrics.ObserveStoreUpdate(time.Now())
	return s.Store.Update(ctx, fn)
}
