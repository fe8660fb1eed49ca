package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the API.
type Config struct {
	APIPort     int    `mapstructure:"apiPort"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
	// TrustProxy takes the client address from X-Forwarded-For style
	// headers. Only enable it behind a proxy that overwrites them.
	TrustProxy bool `mapstructure:"trustProxy"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Database Database `mapstructure:"database"`

	Auth struct {
		JWTSecret       string        `mapstructure:"jwtSecret"`
		AccessTokenTTL  time.Duration `mapstructure:"accessTokenTTL"`
		RefreshTokenTTL time.Duration `mapstructure:"refreshTokenTTL"`
		ResetCodeTTL    time.Duration `mapstructure:"resetCodeTTL"`
		BcryptCost      int           `mapstructure:"bcryptCost"`
	} `mapstructure:"auth"`

	Progression struct {
		Threshold int `mapstructure:"threshold"`
		MaxLevel  int `mapstructure:"maxLevel"`
	} `mapstructure:"progression"`

	RateLimit struct {
		Enabled   bool          `mapstructure:"enabled"`
		Requests  int           `mapstructure:"requests"`
		Window    time.Duration `mapstructure:"window"`
		Retention time.Duration `mapstructure:"retention"`
		MaxKeys   int           `mapstructure:"maxKeys"`
		RedisAddr string        `mapstructure:"redisAddr"`
	} `mapstructure:"rateLimit"`

	Notify struct {
		AMQPURL  string `mapstructure:"amqpURL"`
		Exchange string `mapstructure:"exchange"`
	} `mapstructure:"notify"`

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`

	S3 struct {
		Endpoint        string `mapstructure:"endpoint"`
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		AccessKeyID     string `mapstructure:"accessKeyID"`
		SecretAccessKey string `mapstructure:"secretAccessKey"`
	} `mapstructure:"s3"`

	Scheduler struct {
		ProgressionInterval time.Duration `mapstructure:"progressionInterval"`
		TokenPurgeInterval  time.Duration `mapstructure:"tokenPurgeInterval"`
		ReminderInterval    time.Duration `mapstructure:"reminderInterval"`
	} `mapstructure:"scheduler"`

	CORS struct {
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
	} `mapstructure:"cors"`
}

// Database selects the storage driver and its connection settings.
type Database struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslMode"`
	MaxConns        int           `mapstructure:"maxConns"`
	MaxIdle         int           `mapstructure:"maxIdle"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

var ErrMissingSecret = errors.New("auth.jwtSecret is required")

func setDefaults(v *viper.Viper) {
	v.SetDefault("apiPort", 8080)
	v.SetDefault("environment", "development")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("trustProxy", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "yoga.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "yoga")
	v.SetDefault("database.user", "yoga")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.maxIdle", 5)
	v.SetDefault("database.connMaxLifetime", "5m")

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.accessTokenTTL", "24h")
	v.SetDefault("auth.refreshTokenTTL", "168h")
	v.SetDefault("auth.resetCodeTTL", "10m")
	v.SetDefault("auth.bcryptCost", 10)

	v.SetDefault("progression.threshold", 120)
	v.SetDefault("progression.maxLevel", 3)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requests", 100)
	v.SetDefault("rateLimit.window", "1m")
	v.SetDefault("rateLimit.retention", "5m")
	v.SetDefault("rateLimit.maxKeys", 10000)
	v.SetDefault("rateLimit.redisAddr", "")

	v.SetDefault("notify.amqpURL", "")
	v.SetDefault("notify.exchange", "notifications")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@yogaflow.app")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.accessKeyID", "")
	v.SetDefault("s3.secretAccessKey", "")

	v.SetDefault("scheduler.progressionInterval", "1h")
	v.SetDefault("scheduler.tokenPurgeInterval", "1h")
	v.SetDefault("scheduler.reminderInterval", "24h")

	v.SetDefault("cors.allowedOrigins", []string{"http://localhost:*", "http://127.0.0.1:*"})
}

// LoadConfig loads the configuration from file and environment variables.
// A missing file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Warn("config file not found, using defaults and environment", slog.String("path", path))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "pgx":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" && c.Environment != "test" {
		return ErrMissingSecret
	}
	if c.Progression.Threshold <= 0 {
		return fmt.Errorf("progression.threshold must be positive, got %d", c.Progression.Threshold)
	}
	if c.Progression.MaxLevel < 1 {
		return fmt.Errorf("progression.maxLevel must be at least 1, got %d", c.Progression.MaxLevel)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the zone in which calendar days are computed.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "prod" || c.Environment == "production"
}

// Default returns the built-in defaults without reading any file or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return &cfg
}
