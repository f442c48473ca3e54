package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sicko7947/smartflow"
	"github.com/spf13/viper"
)

// Config represents the complete configuration of the smartflow binary
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Log           LogConfig           `mapstructure:"log"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Store         StoreConfig         `mapstructure:"store"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Collaborators CollaboratorsConfig `mapstructure:"collaborators"`

	// Workflows lists YAML definition files (globs allowed) registered at startup
	Workflows []string `mapstructure:"workflows"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig selects the zerolog level and output format (console or json)
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig mirrors smartflow.EngineConfig
type EngineConfig struct {
	HistoryLimit                 int           `mapstructure:"history_limit"`
	MinExecutionsForConfig       int           `mapstructure:"min_executions_for_config"`
	MinExecutionsForOptimization int           `mapstructure:"min_executions_for_optimization"`
	RetryBaseDelay               time.Duration `mapstructure:"retry_base_delay"`
}

// StoreConfig selects the execution store: memory, dynamodb or postgres
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	DynamoDB DynamoDBConfig `mapstructure:"dynamodb"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// DynamoDBConfig contains DynamoDB table settings
type DynamoDBConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Table    string `mapstructure:"table"`
}

// PostgresConfig contains the PostgreSQL connection string
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// CacheConfig selects the step result cache: none, memory or redis.
// The redis driver is fronted by an in-process LRU of Size entries.
type CacheConfig struct {
	Driver string      `mapstructure:"driver"`
	Size   int         `mapstructure:"size"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	Database  int           `mapstructure:"database"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// CollaboratorsConfig holds the remote endpoints used by extract, summarize
// and custom steps. An empty URL leaves the step type unconfigured.
type CollaboratorsConfig struct {
	Extraction    EndpointConfig `mapstructure:"extraction"`
	Summarization EndpointConfig `mapstructure:"summarization"`
	Custom        EndpointConfig `mapstructure:"custom"`
}

// EndpointConfig describes one HTTP collaborator
type EndpointConfig struct {
	URL          string            `mapstructure:"url"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Headers      map[string]string `mapstructure:"headers"`
	MaxFailures  uint32            `mapstructure:"max_failures"`
	OpenDuration time.Duration     `mapstructure:"open_duration"`
}

// LoadConfig reads smartflow.yaml (or path, when set) and SMARTFLOW_*
// environment variables on top of the defaults
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SMARTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("smartflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		// Defaults and env vars are enough when no file was found
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":3000")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("engine.history_limit", smartflow.DefaultEngineConfig.HistoryLimit)
	v.SetDefault("engine.min_executions_for_config", smartflow.DefaultEngineConfig.MinExecutionsForConfig)
	v.SetDefault("engine.min_executions_for_optimization", smartflow.DefaultEngineConfig.MinExecutionsForOptimization)
	v.SetDefault("engine.retry_base_delay", smartflow.DefaultEngineConfig.RetryBaseDelay)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dynamodb.region", "")
	v.SetDefault("store.dynamodb.endpoint", "")
	v.SetDefault("store.dynamodb.table", "smartflow")
	v.SetDefault("store.postgres.dsn", "")

	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.database", 0)
	v.SetDefault("cache.redis.key_prefix", "smartflow:result:")
	v.SetDefault("cache.redis.ttl", time.Hour)

	for _, name := range []string{"extraction", "summarization", "custom"} {
		v.SetDefault("collaborators."+name+".url", "")
		v.SetDefault("collaborators."+name+".timeout", 30*time.Second)
		v.SetDefault("collaborators."+name+".max_failures", 5)
		v.SetDefault("collaborators."+name+".open_duration", 30*time.Second)
	}

	v.SetDefault("workflows", []string{})
}

// Validate rejects unknown drivers and incomplete driver settings
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "dynamodb":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// EngineConfig converts the loaded settings into the engine's configuration
func (c *Config) EngineConfig() smartflow.EngineConfig {
	return smartflow.EngineConfig{
		HistoryLimit:                 c.Engine.HistoryLimit,
		MinExecutionsForConfig:       c.Engine.MinExecutionsForConfig,
		MinExecutionsForOptimization: c.Engine.MinExecutionsForOptimization,
		RetryBaseDelay:               c.Engine.RetryBaseDelay,
	}.WithDefaults()
}
