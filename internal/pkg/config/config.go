package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Engine    EngineConfig    `mapstructure:"engine"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProvidersConfig selects and configures the routing backends.
type ProvidersConfig struct {
	Primary        string `mapstructure:"primary"`  // "osrm" or "ors"
	Fallback       string `mapstructure:"fallback"` // second backend, may be empty
	OSRMBaseURL    string `mapstructure:"osrm_base_url"`
	ORSBaseURL     string `mapstructure:"ors_base_url"`
	ORSAPIKey      string `mapstructure:"ors_api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EngineConfig overrides the engine's calibrated defaults. Zero values mean
// "keep the default"; the tolerances vary per deployment (urban vs highway).
type EngineConfig struct {
	CorridorToleranceM float64 `mapstructure:"corridor_tolerance_m"`
	StrictToleranceM   float64 `mapstructure:"strict_tolerance_m"`
	TrendThresholdKMH  float64 `mapstructure:"trend_threshold_kmh"`
	AssumedCruiseKMH   float64 `mapstructure:"assumed_cruise_kmh"`
	HistorySize        int     `mapstructure:"history_size"`
	TrafficAware       bool    `mapstructure:"traffic_aware"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ordertrack")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ordertrack")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.enabled", false)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("providers.primary", "osrm")
	v.SetDefault("providers.fallback", "")
	v.SetDefault("providers.osrm_base_url", "https://router.project-osrm.org")
	v.SetDefault("providers.ors_base_url", "https://api.openrouteservice.org")
	v.SetDefault("providers.timeout_seconds", 12)
	v.SetDefault("engine.traffic_aware", false)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: ORDERTRACK_NATS_URL → nats.url
	v.SetEnvPrefix("ORDERTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required when database.enabled")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required when database.enabled")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required when database.enabled")
		}
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required when valkey.enabled")
	}
	switch c.Providers.Primary {
	case "osrm", "ors":
	default:
		errs = append(errs, fmt.Sprintf("providers.primary must be osrm or ors, got %q", c.Providers.Primary))
	}
	switch c.Providers.Fallback {
	case "", "osrm", "ors":
	default:
		errs = append(errs, fmt.Sprintf("providers.fallback must be empty, osrm or ors, got %q", c.Providers.Fallback))
	}
	if c.Providers.Primary == "ors" && c.Providers.ORSAPIKey == "" {
		errs = append(errs, "providers.ors_api_key is required when ors is the primary backend")
	}
	if c.Engine.CorridorToleranceM < 0 || c.Engine.StrictToleranceM < 0 {
		errs = append(errs, "engine tolerances must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
