// Package config reads kolcrm settings from KOLCRM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Blob    BlobConfig
	Kafka   KafkaConfig
	OTEL    OTELConfig
	// FlashTTL is how long confirmation messages stay visible.
	FlashTTL time.Duration
	// SeedRoster loads the built-in roster into an empty store at startup.
	SeedRoster bool
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr     string
	Env      string
	Passcode string
}

// Development reports whether human-readable logging should be used.
func (s ServerConfig) Development() bool { return s.Env == EnvDevelopment }

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	Redis       RedisConfig
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// BlobConfig selects the export artifact store.
type BlobConfig struct {
	Driver string
	FSRoot string
	S3     S3Config
}

// S3Config holds bucket settings for the s3 blob driver.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	Prefix    string
	PathStyle bool
}

// KafkaConfig enables event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// OTELConfig enables OTLP trace export when Endpoint is set.
type OTELConfig struct {
	ServiceName string
	Endpoint    string
}

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Defaults.
const (
	DefaultAddr        = ":8080"
	DefaultPasscode    = "1234"
	DefaultStorage     = "sqlite"
	DefaultSQLitePath  = "./kolcrm.db"
	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisPrefix = "kolcrm:"
	DefaultBlobDriver  = "fs"
	DefaultBlobRoot    = "./blobdata"
	DefaultKafkaTopic  = "kolcrm.events"
	DefaultServiceName = "kolcrm"
	DefaultFlashTTL    = 3 * time.Second
	defaultPostgresDSN = "postgres://localhost/kolcrm?sslmode=disable"
	defaultEnvironment = EnvDevelopment
	envPrefix          = "KOLCRM_"
)

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration through getenv, which receives full variable
// names such as KOLCRM_ADDR.
func LoadFrom(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	cfg := &Config{
		Server: ServerConfig{
			Addr:     r.str("ADDR", DefaultAddr),
			Env:      r.str("ENV", defaultEnvironment),
			Passcode: r.str("PASSCODE", DefaultPasscode),
		},
		Storage: StorageConfig{
			Driver:      r.str("STORAGE_DRIVER", DefaultStorage),
			SQLitePath:  r.str("SQLITE_PATH", DefaultSQLitePath),
			PostgresDSN: r.str("POSTGRES_DSN", defaultPostgresDSN),
			Redis: RedisConfig{
				Addr:     r.str("REDIS_ADDR", DefaultRedisAddr),
				Password: r.str("REDIS_PASSWORD", ""),
				DB:       r.integer("REDIS_DB", 0),
				Prefix:   r.str("REDIS_PREFIX", DefaultRedisPrefix),
			},
		},
		Blob: BlobConfig{
			Driver: r.str("BLOB_DRIVER", DefaultBlobDriver),
			FSRoot: r.str("BLOB_FS_ROOT", DefaultBlobRoot),
			S3: S3Config{
				Bucket:    r.str("BLOB_S3_BUCKET", ""),
				Region:    r.str("BLOB_S3_REGION", ""),
				Endpoint:  r.str("BLOB_S3_ENDPOINT", ""),
				Prefix:    r.str("BLOB_S3_PREFIX", ""),
				PathStyle: r.boolean("BLOB_S3_PATH_STYLE", false),
			},
		},
		Kafka: KafkaConfig{
			Brokers: r.list("KAFKA_BROKERS"),
			Topic:   r.str("KAFKA_TOPIC", DefaultKafkaTopic),
		},
		OTEL: OTELConfig{
			ServiceName: r.str("OTEL_SERVICE_NAME", DefaultServiceName),
			Endpoint:    r.str("OTEL_ENDPOINT", ""),
		},
		FlashTTL:   r.duration("FLASH_TTL", DefaultFlashTTL),
		SeedRoster: r.boolean("SEED_ROSTER", true),
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerations and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.Server.Env {
	case EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("%sENV: unknown environment %q", envPrefix, c.Server.Env))
	}
	if c.Server.Passcode == "" {
		errs = append(errs, fmt.Errorf("%sPASSCODE must not be empty", envPrefix))
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		errs = append(errs, fmt.Errorf("%sSTORAGE_DRIVER: unknown driver %q", envPrefix, c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("%sBLOB_S3_BUCKET required for s3 driver", envPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("%sBLOB_DRIVER: unknown driver %q", envPrefix, c.Blob.Driver))
	}
	if c.FlashTTL <= 0 {
		errs = append(errs, fmt.Errorf("%sFLASH_TTL must be positive", envPrefix))
	}
	return errors.Join(errs...)
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) raw(key string) string {
	return strings.TrimSpace(r.getenv(envPrefix + key))
}

func (r *reader) str(key, def string) string {
	if v := r.raw(key); v != "" {
		return v
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	v := r.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return n
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.raw(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.raw(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
