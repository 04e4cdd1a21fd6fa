// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	API        APIConfig        `mapstructure:"api"`
	Input      InputConfig      `mapstructure:"input"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Harvest    HarvestConfig    `mapstructure:"harvest"`
	Tagging    TaggingConfig    `mapstructure:"tagging"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	Schema          string `mapstructure:"schema"`
	Table           string `mapstructure:"table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// APIConfig holds external metadata API access settings.
type APIConfig struct {
	Keys           []string `mapstructure:"keys"`
	BaseURL        string   `mapstructure:"base_url"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// InputConfig locates the handle list to ingest.
type InputConfig struct {
	File string `mapstructure:"file"`
}

// CheckpointConfig locates the durable progress record.
type CheckpointConfig struct {
	File string `mapstructure:"file"`
}

// HarvestConfig governs worker pool and retry behavior. BatchSize is the
// progress log cadence in committed tasks; rows flush per task.
type HarvestConfig struct {
	Concurrency   int  `mapstructure:"concurrency"`
	BatchSize     int  `mapstructure:"batch_size"`
	MaxRetries    int  `mapstructure:"max_retries"`
	CallDelayMs   int  `mapstructure:"call_delay_ms"`
	TaskDelayMs   int  `mapstructure:"task_delay_ms"`
	MaxPages      int  `mapstructure:"max_pages"`
	HaltOnFailure bool `mapstructure:"halt_on_failure"`
}

// TaggingConfig configures the keyword scoring command.
type TaggingConfig struct {
	KeywordFile string `mapstructure:"keyword_file"`
	OutputFile  string `mapstructure:"output_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVEST")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.schema", "recycle_bin")
	v.SetDefault("db.table", "youtube_scraped_data")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("api.base_url", "https://www.googleapis.com/youtube/v3")
	v.SetDefault("api.timeout_seconds", 15)
	v.SetDefault("checkpoint.file", "harvest_checkpoint.json")
	v.SetDefault("harvest.concurrency", 3)
	v.SetDefault("harvest.batch_size", 3)
	v.SetDefault("harvest.max_retries", 3)
	v.SetDefault("harvest.call_delay_ms", 200)
	v.SetDefault("harvest.task_delay_ms", 1500)
	v.SetDefault("harvest.max_pages", 400)
	v.SetDefault("harvest.halt_on_failure", false)
	v.SetDefault("tagging.output_file", "tagged_videos.csv")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Harvest.Concurrency <= 0 {
		return fmt.Errorf("harvest.concurrency must be > 0")
	}
	if c.Harvest.BatchSize <= 0 {
		return fmt.Errorf("harvest.batch_size must be > 0")
	}
	if c.Harvest.MaxRetries < 0 {
		return fmt.Errorf("harvest.max_retries must be >= 0")
	}
	if c.Harvest.MaxPages <= 0 {
		return fmt.Errorf("harvest.max_pages must be > 0")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	return nil
}

// CallDelay returns the politeness pause between dependent API calls.
func (c Config) CallDelay() time.Duration {
	return time.Duration(c.Harvest.CallDelayMs) * time.Millisecond
}

// TaskDelay returns the politeness pause between completed tasks.
func (c Config) TaskDelay() time.Duration {
	return time.Duration(c.Harvest.TaskDelayMs) * time.Millisecond
}

// APITimeout returns the per-call timeout for external API requests.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}
