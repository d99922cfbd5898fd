package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Session      SessionConfig      `mapstructure:"session"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Identity     IdentityConfig     `mapstructure:"identity"`
	Appointments AppointmentsConfig `mapstructure:"appointments"`
	Migration    MigrationConfig    `mapstructure:"migration"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	// An empty URL disables event publishing.
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type SessionConfig struct {
	Secret string `mapstructure:"secret"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	File  string `mapstructure:"file"`
}

type IdentityConfig struct {
	DefaultRegion     string `mapstructure:"default_region"`
	MaxCreateAttempts int    `mapstructure:"max_create_attempts"`
}

type AppointmentsConfig struct {
	DefaultDurationMinutes int           `mapstructure:"default_duration_minutes"`
	PolicyCacheTTL         time.Duration `mapstructure:"policy_cache_ttl"`
}

type MigrationConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.rate_limit_rps", 50)
	v.SetDefault("server.rate_limit_burst", 100)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)

	// Keys without a real default are still registered so that
	// AutomaticEnv applies to them during Unmarshal.
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "appointment-events")
	v.SetDefault("session.secret", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.file", "")

	v.SetDefault("identity.default_region", "AM")
	v.SetDefault("identity.max_create_attempts", 5)

	v.SetDefault("appointments.default_duration_minutes", 30)
	v.SetDefault("appointments.policy_cache_ttl", time.Minute)

	v.SetDefault("migration.batch_size", 500)
}

// Load reads config.yaml from the usual locations and overlays environment
// variables (DATABASE_HOST overrides database.host). A missing file is not
// an error; defaults and the environment are enough to start.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Migration.BatchSize <= 0 {
		return fmt.Errorf("migration.batch_size must be positive, got %d", c.Migration.BatchSize)
	}
	if c.Identity.MaxCreateAttempts <= 0 {
		return fmt.Errorf("identity.max_create_attempts must be positive, got %d", c.Identity.MaxCreateAttempts)
	}
	if c.Appointments.DefaultDurationMinutes <= 0 {
		return fmt.Errorf("appointments.default_duration_minutes must be positive, got %d", c.Appointments.DefaultDurationMinutes)
	}
	return nil
}
