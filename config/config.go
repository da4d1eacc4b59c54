package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	ThreatCorr ThreatCorrConfig `yaml:"threatcorr"`
}

// ThreatCorrConfig is the project configuration.
type ThreatCorrConfig struct {
	Input      InputConfig      `yaml:"input"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Storage    StorageConfig    `yaml:"storage"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	EventKinds []string         `yaml:"extra_event_kinds"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Output     OutputConfig     `yaml:"output"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InputConfig controls the event queue reader.
type InputConfig struct {
	Redis RedisQueueConfig `yaml:"redis"`
}

// RedisQueueConfig controls the Redis list input.
type RedisQueueConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	Queue        string        `yaml:"queue"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// PipelineConfig controls ingest pipeline behavior.
type PipelineConfig struct {
	Workers       int           `yaml:"workers" validate:"gte=0"`
	BatchSize     int           `yaml:"batch_size" validate:"gte=0"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// StorageConfig selects the persistence backend and retention bounds.
type StorageConfig struct {
	Mode                string             `yaml:"mode" validate:"omitempty,oneof=memory redis"`
	Redis               RedisStorageConfig `yaml:"redis"`
	EventCapacity       int                `yaml:"event_capacity" validate:"gte=0"`
	CorrelationCapacity int                `yaml:"correlation_capacity" validate:"gte=0"`
}

// RedisStorageConfig controls the Redis storage backend.
type RedisStorageConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CatalogConfig controls attack pattern loading. An empty path installs the
// built-in default catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// EnrichmentConfig controls Sigma rule enrichment.
type EnrichmentConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RulesPath string `yaml:"rules_path"`
}

// OutputConfig controls the correlation sink.
type OutputConfig struct {
	Mode       string           `yaml:"mode" validate:"omitempty,oneof=file http clickhouse"`
	File       FileOutputConfig `yaml:"file"`
	HTTP       HTTPOutputConfig `yaml:"http"`
	ClickHouse CHOutputConfig   `yaml:"clickhouse"`
}

// FileOutputConfig config for local JSONL output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url" validate:"omitempty,url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// CHOutputConfig config for ClickHouse HTTP JSONEachRow writes.
type CHOutputConfig struct {
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Database string            `yaml:"database"`
	Table    string            `yaml:"table"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	Timeout  time.Duration     `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

var validate = validator.New()

// LoadConfig reads, parses and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
