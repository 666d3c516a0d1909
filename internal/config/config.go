package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/impact-simulator/timectrl"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "impact.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. IMPACT_HTTP_ADDR.
const EnvPrefix = "IMPACT"

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
	File   string `json:"file" mapstructure:"file"`
}

// NeoWsConfig holds NASA NeoWs client settings.
type NeoWsConfig struct {
	BaseURL    string        `json:"baseUrl" mapstructure:"baseUrl"`
	APIKey     string        `json:"apiKey" mapstructure:"apiKey"`
	PageSize   int           `json:"pageSize" mapstructure:"pageSize"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"maxRetries" mapstructure:"maxRetries"`
}

// SimConfig holds scene and flight settings.
type SimConfig struct {
	Radius             float64       `json:"radius" mapstructure:"radius"`
	LongitudeOffsetDeg float64       `json:"longitudeOffsetDeg" mapstructure:"longitudeOffsetDeg"`
	Duration           time.Duration `json:"duration" mapstructure:"duration"`
	Tick               time.Duration `json:"tick" mapstructure:"tick"`
	Easing             string        `json:"easing" mapstructure:"easing"`
	StartDistance      float64       `json:"startDistance" mapstructure:"startDistance"`
	PopulationDensity  float64       `json:"populationDensity" mapstructure:"populationDensity"`
	CacheSize          int           `json:"cacheSize" mapstructure:"cacheSize"`
}

// RotationConfig holds planet spin settings. Alignment is "none" or "gmst".
type RotationConfig struct {
	Period    time.Duration `json:"period" mapstructure:"period"`
	Alignment string        `json:"alignment" mapstructure:"alignment"`
}

// SQLiteConfig holds the sqlite backend settings.
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// PostgresConfig holds the postgres backend settings.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// StorageConfig selects the impact history backend.
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// InfluxConfig holds the InfluxDB impact event sink settings.
type InfluxConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Token   string `json:"token" mapstructure:"token"`
	Org     string `json:"org" mapstructure:"org"`
	Bucket  string `json:"bucket" mapstructure:"bucket"`
}

// TracingConfig holds OpenTelemetry settings. Exporter is "stdout" or "otlp".
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	Exporter    string  `json:"exporter" mapstructure:"exporter"`
	Endpoint    string  `json:"endpoint" mapstructure:"endpoint"`
	Insecure    bool    `json:"insecure" mapstructure:"insecure"`
	SampleRatio float64 `json:"sampleRatio" mapstructure:"sampleRatio"`
	ServiceName string  `json:"serviceName" mapstructure:"serviceName"`
}

// AddrConfig holds a listen address.
type AddrConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// Settings is the full typed configuration.
type Settings struct {
	Log      LogConfig      `json:"log" mapstructure:"log"`
	HTTP     AddrConfig     `json:"http" mapstructure:"http"`
	Metrics  AddrConfig     `json:"metrics" mapstructure:"metrics"`
	NeoWs    NeoWsConfig    `json:"neows" mapstructure:"neows"`
	Sim      SimConfig      `json:"sim" mapstructure:"sim"`
	Rotation RotationConfig `json:"rotation" mapstructure:"rotation"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Influx   InfluxConfig   `json:"influx" mapstructure:"influx"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("neows.baseUrl", "https://api.nasa.gov/neo/rest/v1")
	v.SetDefault("neows.apiKey", "DEMO_KEY")
	v.SetDefault("neows.pageSize", 20)
	v.SetDefault("neows.timeout", "10s")
	v.SetDefault("neows.maxRetries", 3)

	v.SetDefault("sim.radius", 15.0)
	v.SetDefault("sim.longitudeOffsetDeg", 0.0)
	v.SetDefault("sim.duration", "5s")
	v.SetDefault("sim.tick", "16ms")
	v.SetDefault("sim.easing", "smoothstep")
	v.SetDefault("sim.startDistance", 50.0/15.0)
	v.SetDefault("sim.populationDensity", 100.0)
	v.SetDefault("sim.cacheSize", 256)

	v.SetDefault("rotation.period", timectrl.DefaultRotationPeriod)
	v.SetDefault("rotation.alignment", "none")

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.sqlite.path", "./impacts.db")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.username", "postgres")
	v.SetDefault("storage.postgres.password", "postgres")
	v.SetDefault("storage.postgres.database", "impacts")
	v.SetDefault("storage.postgres.sslMode", "disable")

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "impact-sim")
	v.SetDefault("influx.bucket", "impacts")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sampleRatio", 1.0)
	v.SetDefault("tracing.serviceName", "impact-simulator")
}

// New returns a viper instance with defaults and environment overrides
// applied but no file read.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads FileName from configDir over the defaults and decodes the
// result. When the file does not exist the defaults are still returned
// along with an error that IsNotFound recognises.
func Load(configDir string) (Settings, error) {
	v := New()
	v.SetConfigName(FileName)
	v.SetConfigType("json")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}

	readErr := v.ReadInConfig()
	if readErr != nil && !IsNotFound(readErr) {
		return Settings{}, fmt.Errorf("error reading config file: %w", readErr)
	}

	s, err := Decode(v)
	if err != nil {
		return Settings{}, err
	}
	if readErr != nil {
		return s, fmt.Errorf("error reading config file: %w", readErr)
	}
	return s, nil
}

// Decode unmarshals v into Settings.
func Decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decoding config: %w", err)
	}
	return s, nil
}

// IsNotFound reports whether err means the config file was absent.
func IsNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}
