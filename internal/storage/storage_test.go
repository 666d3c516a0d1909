package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/storage"
	"github.com/signalsfoundry/impact-simulator/model"
)

func report(runID string, startedAt time.Time, megatons float64) model.ImpactReport {
	return model.ImpactReport{
		RunID: runID,
		Impactor: model.ImpactorProfile{
			ID:               "2023-ABC",
			Name:             "2023 ABC",
			DiameterMeters:   500,
			VelocityKmPerSec: 20,
		},
		Selected:     model.GeoCoordinate{Lat: 40.7, Lng: -74.0},
		Actual:       model.GeoCoordinate{Lat: 40.7, Lng: -56.81},
		DriftDegrees: 17.19,
		Region:       "North Atlantic Ocean",
		Result:       model.ImpactResult{Megatons: megatons, CraterDiameterMeters: 900},
		Consequences: model.Consequences{Danger: model.DangerCritical, EstimatedCasualties: 1000},
		StartedAt:    startedAt,
		FlightTime:   5 * time.Second,
	}
}

func TestNewBackend_UnknownType(t *testing.T) {
	_, err := storage.NewBackend(context.Background(), config.StorageConfig{Type: "cassandra"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrUnknownBackend))
}

func TestNewBackend_Memory(t *testing.T) {
	ctx := context.Background()
	b, err := storage.NewBackend(ctx, config.StorageConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	defer b.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.RecordImpact(ctx, report("run-1", base, 1)))
	require.NoError(t, b.RecordImpact(ctx, report("run-2", base.Add(time.Minute), 2)))

	got, err := b.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-2", got[0].RunID)
}

func TestNewBackend_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := config.StorageConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "impacts.db")},
	}
	b, err := storage.NewBackend(ctx, cfg, nil)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := report("run-1", base, 62571.5)
	require.NoError(t, b.RecordImpact(ctx, want))
	require.NoError(t, b.Close())

	// A fresh connection sees the persisted run.
	b, err = storage.NewBackend(ctx, cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.RunID, got[0].RunID)
	assert.Equal(t, want.Impactor, got[0].Impactor)
	assert.Equal(t, want.Actual, got[0].Actual)
	assert.Equal(t, want.Result, got[0].Result)
	assert.Equal(t, want.Consequences.Danger, got[0].Consequences.Danger)
	assert.Equal(t, want.FlightTime, got[0].FlightTime)
	assert.True(t, want.StartedAt.Equal(got[0].StartedAt))
}
