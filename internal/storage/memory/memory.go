// Package memory keeps impact history in process. It is the default backend
// and loses everything on restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/impact-simulator/model"
)

// DefaultCapacity bounds the number of reports kept.
const DefaultCapacity = 1000

// Backend is a bounded, newest-last list of reports.
type Backend struct {
	mu       sync.RWMutex
	capacity int
	reports  []model.ImpactReport
	seen     map[string]struct{}
}

// New creates a memory backend holding at most capacity reports. A
// non-positive capacity means DefaultCapacity.
func New(capacity int) *Backend {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Backend{
		capacity: capacity,
		seen:     make(map[string]struct{}),
	}
}

func (b *Backend) Init(context.Context) error { return nil }

func (b *Backend) Close() error { return nil }

// RecordImpact appends report, dropping the oldest once full.
func (b *Backend) RecordImpact(_ context.Context, report model.ImpactReport) error {
	if report.RunID == "" {
		return fmt.Errorf("record impact: empty run id")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.seen[report.RunID]; dup {
		return nil
	}
	if len(b.reports) == b.capacity {
		delete(b.seen, b.reports[0].RunID)
		b.reports = append(b.reports[:0], b.reports[1:]...)
	}
	b.reports = append(b.reports, report)
	b.seen[report.RunID] = struct{}{}
	return nil
}

// History returns up to limit reports, most recently recorded first.
func (b *Backend) History(_ context.Context, limit int) ([]model.ImpactReport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if limit > len(b.reports) {
		limit = len(b.reports)
	}
	out := make([]model.ImpactReport, 0, limit)
	for i := len(b.reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, b.reports[i])
	}
	return out, nil
}

// CountByDanger groups the kept reports by danger level.
func (b *Backend) CountByDanger(context.Context) (map[model.DangerLevel]int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[model.DangerLevel]int64)
	for _, r := range b.reports {
		out[r.Consequences.Danger]++
	}
	return out, nil
}

// Len reports how many runs are stored.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.reports)
}
