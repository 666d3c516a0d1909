package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/impact-simulator/timectrl"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_DefaultValues(t *testing.T) {
	s, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "text", s.Log.Format)
	assert.Equal(t, ":8080", s.HTTP.Addr)
	assert.Equal(t, ":9090", s.Metrics.Addr)
	assert.Equal(t, "https://api.nasa.gov/neo/rest/v1", s.NeoWs.BaseURL)
	assert.Equal(t, "DEMO_KEY", s.NeoWs.APIKey)
	assert.Equal(t, 20, s.NeoWs.PageSize)
	assert.Equal(t, 10*time.Second, s.NeoWs.Timeout)
	assert.Equal(t, 15.0, s.Sim.Radius)
	assert.Equal(t, 5*time.Second, s.Sim.Duration)
	assert.Equal(t, 16*time.Millisecond, s.Sim.Tick)
	assert.Equal(t, "smoothstep", s.Sim.Easing)
	assert.InDelta(t, 50.0/15.0, s.Sim.StartDistance, 1e-12)
	assert.Equal(t, 100.0, s.Sim.PopulationDensity)
	assert.Equal(t, timectrl.DefaultRotationPeriod, s.Rotation.Period)
	assert.Equal(t, "none", s.Rotation.Alignment)
	assert.Equal(t, "memory", s.Storage.Type)
	assert.Equal(t, "./impacts.db", s.Storage.SQLite.Path)
	assert.Equal(t, "5432", s.Storage.Postgres.Port)
	assert.False(t, s.Influx.Enabled)
	assert.Equal(t, "impacts", s.Influx.Bucket)
	assert.False(t, s.Tracing.Enabled)
	assert.Equal(t, "stdout", s.Tracing.Exporter)
	assert.Equal(t, 1.0, s.Tracing.SampleRatio)
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	dir := writeConfig(t, `{
		"log": { "level": "debug", "format": "json" },
		"sim": { "duration": "8s", "easing": "ease-out-quad", "radius": 6371 },
		"rotation": { "period": "24h", "alignment": "gmst" },
		"storage": { "type": "sqlite", "sqlite": { "path": "/tmp/x.db" } },
		"influx": { "enabled": true, "token": "secret" }
	}`)

	s, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, 8*time.Second, s.Sim.Duration)
	assert.Equal(t, "ease-out-quad", s.Sim.Easing)
	assert.Equal(t, 6371.0, s.Sim.Radius)
	assert.Equal(t, 24*time.Hour, s.Rotation.Period)
	assert.Equal(t, "gmst", s.Rotation.Alignment)
	assert.Equal(t, "sqlite", s.Storage.Type)
	assert.Equal(t, "/tmp/x.db", s.Storage.SQLite.Path)
	assert.True(t, s.Influx.Enabled)
	assert.Equal(t, "secret", s.Influx.Token)
	// Untouched keys keep their defaults.
	assert.Equal(t, 16*time.Millisecond, s.Sim.Tick)
	assert.Equal(t, "impact-sim", s.Influx.Org)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("IMPACT_HTTP_ADDR", ":7000")
	t.Setenv("IMPACT_STORAGE_TYPE", "postgres")

	s, err := Load(writeConfig(t, `{"storage": {"type": "sqlite"}}`))
	require.NoError(t, err)

	assert.Equal(t, ":7000", s.HTTP.Addr)
	assert.Equal(t, "postgres", s.Storage.Type)
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	s, err := Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "error reading config file")
	assert.Equal(t, ":8080", s.HTTP.Addr)
	assert.Equal(t, 5*time.Second, s.Sim.Duration)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(writeConfig(t, `{"log": `))
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `{"sim": {"duration": "soon"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding config")
}

func TestLoad_DefaultRotationSpinsAtSceneRate(t *testing.T) {
	s, err := Load(writeConfig(t, `{}`))
	require.NoError(t, err)

	clock, err := timectrl.NewRotationClock(s.Rotation.Period, 0)
	require.NoError(t, err)
	assert.InDelta(t, timectrl.DefaultRotationRatePerMs, clock.RatePerMs(), 1e-12)
	// A 5 s flight turns the planet by 0.3 rad.
	assert.InDelta(t, 0.3, clock.AngleAtTime(5*time.Second), 1e-9)
}
