// Package config loads settings from defaults, an optional YAML file and the
// environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gradegate/internal/platform/database"
	strs "gradegate/pkg/platform/strings"
)

// Config is the full process configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Audit     Audit     `yaml:"audit"`
	Dashboard Dashboard `yaml:"dashboard"`
	Proposal  Proposal  `yaml:"proposal"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Log       Log       `yaml:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	AdminToken      string        `yaml:"admin_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Database struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// Redis is optional; without a URL the change bus stays in-process.
type Redis struct {
	URL         string        `yaml:"url"`
	Channel     string        `yaml:"channel"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Audit is delivered to Kafka when brokers are set, otherwise kept in memory.
type Audit struct {
	Brokers           []string      `yaml:"brokers"`
	Topic             string        `yaml:"topic"`
	Partitions        int32         `yaml:"partitions"`
	ReplicationFactor int16         `yaml:"replication_factor"`
	BufferSize        int           `yaml:"buffer_size"`
	FlushInterval     time.Duration `yaml:"flush_interval"`
}

type Dashboard struct {
	RefreshInterval     time.Duration `yaml:"refresh_interval"`
	BufferSize          int           `yaml:"buffer_size"`
	SnapshotConcurrency int           `yaml:"snapshot_concurrency"`
}

type Proposal struct {
	DecideRetryAttempts int           `yaml:"decide_retry_attempts"`
	DecideRetryInitial  time.Duration `yaml:"decide_retry_initial"`
	DecideRetryMax      time.Duration `yaml:"decide_retry_max"`
}

// RateLimit budgets requests per viewer (or client address) and window.
type RateLimit struct {
	Enabled bool          `yaml:"enabled"`
	Read    int           `yaml:"read"`
	Write   int           `yaml:"write"`
	Window  time.Duration `yaml:"window"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{
			Driver:          database.DriverMemory,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: Redis{
			Channel:     "gradegate:proposal-changes",
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
		},
		Audit: Audit{
			Topic:             "gradegate.audit",
			Partitions:        3,
			ReplicationFactor: 1,
			BufferSize:        1024,
			FlushInterval:     time.Second,
		},
		Dashboard: Dashboard{
			RefreshInterval:     15 * time.Second,
			BufferSize:          16,
			SnapshotConcurrency: 8,
		},
		Proposal: Proposal{
			DecideRetryAttempts: 3,
			DecideRetryInitial:  50 * time.Millisecond,
			DecideRetryMax:      time.Second,
		},
		RateLimit: RateLimit{
			Enabled: true,
			Read:    300,
			Write:   60,
			Window:  time.Minute,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}
	e.str("GRADEGATE_ADDR", &c.Server.Addr)
	e.str("ADMIN_TOKEN", &c.Server.AdminToken)
	e.duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	e.str("DATABASE_DRIVER", &c.Database.Driver)
	e.str("DATABASE_URL", &c.Database.URL)
	e.boolean("DATABASE_AUTO_MIGRATE", &c.Database.AutoMigrate)
	e.integer("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)

	e.str("REDIS_URL", &c.Redis.URL)
	e.str("REDIS_CHANNEL", &c.Redis.Channel)

	e.list("KAFKA_BROKERS", &c.Audit.Brokers)
	e.str("AUDIT_TOPIC", &c.Audit.Topic)
	e.integer("AUDIT_BUFFER", &c.Audit.BufferSize)

	e.duration("DASHBOARD_REFRESH_INTERVAL", &c.Dashboard.RefreshInterval)
	e.integer("DASHBOARD_BUFFER", &c.Dashboard.BufferSize)

	e.integer("DECIDE_RETRY_ATTEMPTS", &c.Proposal.DecideRetryAttempts)

	e.boolean("RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)
	e.integer("RATE_LIMIT_READ", &c.RateLimit.Read)
	e.integer("RATE_LIMIT_WRITE", &c.RateLimit.Write)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)
	return errors.Join(e.errs...)
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Database.Driver {
	case database.DriverMemory:
	case database.DriverPgx, database.DriverPostgres, database.DriverSQLite:
		if c.Database.URL == "" {
			errs = append(errs, fmt.Errorf("database.url is required for driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be memory, pgx, postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Dashboard.RefreshInterval <= 0 {
		errs = append(errs, errors.New("dashboard.refresh_interval must be positive"))
	}
	// A push queues two events back to back.
	if c.Dashboard.BufferSize < 2 {
		errs = append(errs, errors.New("dashboard.buffer_size must be at least 2"))
	}
	if c.Proposal.DecideRetryAttempts < 1 {
		errs = append(errs, errors.New("proposal.decide_retry_attempts must be at least 1"))
	}
	if len(c.Audit.Brokers) > 0 && c.Audit.Topic == "" {
		errs = append(errs, errors.New("audit.topic is required when brokers are set"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Read < 1 || c.RateLimit.Write < 1 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit read, write and window must be positive when enabled"))
	}
	if c.Audit.BufferSize < 1 {
		errs = append(errs, errors.New("audit.buffer_size must be at least 1"))
	}
	return errors.Join(errs...)
}

// DatabaseOptions converts pool settings for database.Open.
func (c *Config) DatabaseOptions() database.Options {
	return database.Options{
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (e *envReader) list(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		*dst = strs.SplitList(v, ",")
	}
}
