// Package config loads and validates translator configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is the credentials file read when no --config flag is given.
const DefaultPath = "config/user.yaml"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	APIKey   string         `mapstructure:"api_key"`
	BaseURL  string         `mapstructure:"base_url"`
	User     string         `mapstructure:"user"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Export   ExportConfig   `mapstructure:"export"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// PipelineConfig sizes the worker pool and its buffers.
type PipelineConfig struct {
	ChunkSize  int `mapstructure:"chunk_size"`
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
	// ReorderWindow caps chunks pulled but not yet written; 0 means QueueDepth.
	ReorderWindow int    `mapstructure:"reorder_window"`
	OutputKey     string `mapstructure:"output_key"`
}

// WindowSize resolves the effective reorder window.
func (p PipelineConfig) WindowSize() int {
	if p.ReorderWindow > 0 {
		return p.ReorderWindow
	}
	return p.QueueDepth
}

// HTTPConfig configures the workflow client.
type HTTPConfig struct {
	// TimeoutSeconds bounds a whole request; 0 disables the limit.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxFrameBytes  int `mapstructure:"max_frame_bytes"`
}

// Timeout converts TimeoutSeconds to a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// StorageConfig locates the output tree.
type StorageConfig struct {
	BaseDir        string `mapstructure:"base_dir"`
	TranslationDir string `mapstructure:"translation_dir"`
	CursorDir      string `mapstructure:"cursor_dir"`
	TermDir        string `mapstructure:"term_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the optional status server. An empty address disables it.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DBConfig controls access to the run bookkeeping database. Empty DSN disables it.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ExportConfig selects where finished translations are copied.
type ExportConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-finished notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from the credentials file and environment. A missing
// or malformed file is an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRANSLATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Bound so AutomaticEnv can supply them without a file entry.
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("user", "fww")
	v.SetDefault("pipeline.chunk_size", 10)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_depth", 1024)
	v.SetDefault("pipeline.reorder_window", 0)
	v.SetDefault("pipeline.output_key", "output")
	v.SetDefault("http.timeout_seconds", 0)
	v.SetDefault("http.max_frame_bytes", 8<<20)
	v.SetDefault("storage.base_dir", ".")
	v.SetDefault("storage.translation_dir", "translation")
	v.SetDefault("storage.cursor_dir", "config")
	v.SetDefault("storage.term_dir", "term")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.listen_addr", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.local_dir", "")
	v.SetDefault("export.prefix", "translations")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("api_key is required")
	}
	if err := validateBaseURL(c.BaseURL); err != nil {
		return err
	}
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	if c.Pipeline.ReorderWindow < 0 {
		return fmt.Errorf("pipeline.reorder_window must be >= 0")
	}
	if c.HTTP.TimeoutSeconds < 0 {
		return fmt.Errorf("http.timeout_seconds must be >= 0")
	}
	if c.HTTP.MaxFrameBytes <= 0 {
		return fmt.Errorf("http.max_frame_bytes must be > 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

func validateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("base_url must include a host, got %q", raw)
	}
	return nil
}
