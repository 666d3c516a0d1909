// Package gormstore implements impact history on top of any GORM dialect.
// The sqlite and postgres packages only differ in how they open the DB.
package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/signalsfoundry/impact-simulator/model"
)

// ImpactRecord is one finished run. The flat columns exist for querying; the
// full report is kept as JSON.
type ImpactRecord struct {
	ID           uint      `gorm:"primarykey"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	RunID        string    `gorm:"size:64;uniqueIndex;not null"`
	ImpactorID   string    `gorm:"size:128;index"`
	ImpactorName string    `gorm:"size:255"`
	DiameterM    float64
	VelocityKmS  float64
	SelectedLat  float64
	SelectedLng  float64
	ActualLat    float64
	ActualLng    float64
	DriftDegrees float64
	Megatons     float64
	Danger       string    `gorm:"size:16"`
	Region       string    `gorm:"size:64"`
	ImpactedAt   time.Time `gorm:"index"`
	Report       datatypes.JSONType[model.ImpactReport]
}

// TableName keeps the table name stable if the struct is renamed.
func (ImpactRecord) TableName() string { return "impact_records" }

// RecordFromReport flattens a report into its table row.
func RecordFromReport(r model.ImpactReport) ImpactRecord {
	return ImpactRecord{
		RunID:        r.RunID,
		ImpactorID:   r.Impactor.ID,
		ImpactorName: r.Impactor.Name,
		DiameterM:    r.Impactor.DiameterMeters,
		VelocityKmS:  r.Impactor.VelocityKmPerSec,
		SelectedLat:  r.Selected.Lat,
		SelectedLng:  r.Selected.Lng,
		ActualLat:    r.Actual.Lat,
		ActualLng:    r.Actual.Lng,
		DriftDegrees: r.DriftDegrees,
		Megatons:     r.Result.Megatons,
		Danger:       string(r.Consequences.Danger),
		Region:       r.Region,
		ImpactedAt:   r.StartedAt.Add(r.FlightTime).UTC(),
		Report:       datatypes.NewJSONType(r),
	}
}

// Backend stores ImpactRecords through GORM.
type Backend struct {
	db *gorm.DB
}

// New wraps an open connection. Call Init before use.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB { return b.db }

// Init migrates the schema.
func (b *Backend) Init(ctx context.Context) error {
	if err := b.db.WithContext(ctx).AutoMigrate(&ImpactRecord{}); err != nil {
		return fmt.Errorf("migrate impact_records: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordImpact inserts the report, ignoring a run that is already stored.
func (b *Backend) RecordImpact(ctx context.Context, report model.ImpactReport) error {
	if report.RunID == "" {
		return fmt.Errorf("record impact: empty run id")
	}
	rec := RecordFromReport(report)
	err := b.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "run_id"}}, DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("record impact %s: %w", report.RunID, err)
	}
	return nil
}

// History returns up to limit reports, latest impact first.
func (b *Backend) History(ctx context.Context, limit int) ([]model.ImpactReport, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ImpactRecord
	err := b.db.WithContext(ctx).
		Order("impacted_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load impact history: %w", err)
	}
	out := make([]model.ImpactReport, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Report.Data())
	}
	return out, nil
}

// CountByDanger groups stored impacts by danger level.
func (b *Backend) CountByDanger(ctx context.Context) (map[model.DangerLevel]int64, error) {
	var rows []struct {
		Danger string
		N      int64
	}
	err := b.db.WithContext(ctx).
		Model(&ImpactRecord{}).
		Select("danger, count(*) as n").
		Group("danger").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count impacts by danger: %w", err)
	}
	out := make(map[model.DangerLevel]int64, len(rows))
	for _, r := range rows {
		out[model.DangerLevel(r.Danger)] = r.N
	}
	return out, nil
}
