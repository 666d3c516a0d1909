// Package storage persists finished impact reports so the server can serve a
// run history across restarts.
package storage

import (
	"context"
	"errors"

	"github.com/signalsfoundry/impact-simulator/model"
)

// DefaultHistoryLimit caps History when the caller passes a non-positive limit.
const DefaultHistoryLimit = 50

// ErrUnknownBackend is returned by NewBackend for an unsupported storage type.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Backend is the interface all impact history stores satisfy. It is also a
// core.ImpactSink.
type Backend interface {
	Init(ctx context.Context) error
	Close() error

	// RecordImpact stores a report. Recording the same run twice is a no-op.
	RecordImpact(ctx context.Context, report model.ImpactReport) error
	// History returns up to limit reports, most recent impact first.
	History(ctx context.Context, limit int) ([]model.ImpactReport, error)
	// CountByDanger groups every stored report by its danger level.
	CountByDanger(ctx context.Context) (map[model.DangerLevel]int64, error)
}
