package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Taxonomy TaxonomyConfig `mapstructure:"taxonomy"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// Addr returns the listen address for the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TaxonomyConfig holds the collection endpoint and cache slot configuration
type TaxonomyConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	FirstPagePath        string `mapstructure:"first_page_path"`
	PageSize             int    `mapstructure:"page_size"`
	MaxPages             int    `mapstructure:"max_pages"`
	Timeout              int    `mapstructure:"timeout"`
	MaxRetries           int    `mapstructure:"max_retries"`
	MaxRequestsPerSecond int    `mapstructure:"max_requests_per_second"`

	CacheKey   string `mapstructure:"cache_key"`
	CacheTTLMs int64  `mapstructure:"cache_ttl_ms"`
}

// FirstPageURL is the relative URL the paginated fetch starts from
func (t TaxonomyConfig) FirstPageURL() string {
	return fmt.Sprintf("%s?limit=%d", t.FirstPagePath, t.PageSize)
}

// CacheTTL returns the snapshot time-to-live
func (t TaxonomyConfig) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLMs) * time.Millisecond
}

// StorageConfig selects the backend of the persisted cache slot
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`     // memory, redis or postgres
	KeyPrefix string `mapstructure:"key_prefix"` // Prepended to slot keys by the redis and postgres backends
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// DSN returns the pgx connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Name)
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
}

// Addr returns host:port for the Redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from config.yaml in the working directory with
// environment variable overrides. A missing file leaves the defaults in place.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with an explicit search directory
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Taxonomy.PageSize <= 0 {
		return fmt.Errorf("taxonomy.page_size must be positive, got %d", c.Taxonomy.PageSize)
	}

	if c.Taxonomy.CacheTTLMs <= 0 {
		return fmt.Errorf("taxonomy.cache_ttl_ms must be positive, got %d", c.Taxonomy.CacheTTLMs)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")

	v.SetDefault("taxonomy.base_url", "http://localhost:8000")
	v.SetDefault("taxonomy.first_page_path", "/api/subcategories/")
	v.SetDefault("taxonomy.page_size", 100)
	v.SetDefault("taxonomy.max_pages", 1000)
	v.SetDefault("taxonomy.timeout", 30)
	v.SetDefault("taxonomy.max_retries", 3)
	v.SetDefault("taxonomy.max_requests_per_second", 10)
	v.SetDefault("taxonomy.cache_key", "subcategories")
	v.SetDefault("taxonomy.cache_ttl_ms", 3600000)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.key_prefix", "heritage:cache:")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "heritage")
	v.SetDefault("database.user", "heritage_user")
	v.SetDefault("database.password", "heritage_pass")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)

	v.SetDefault("log.level", "info")
}
