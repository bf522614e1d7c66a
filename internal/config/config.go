package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aevon-lab/eventbridge/internal/collection"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Store, stream and schema source drivers.
const (
	DriverMongoDB  = "mongodb"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"

	SourceFilesystem = "filesystem"
)

// Config represents the top-level configuration of the bridge.
type Config struct {
	Server      ServerConfig        `koanf:"server"`
	Log         LogConfig           `koanf:"log"`
	Store       StoreConfig         `koanf:"store"`
	Stream      StreamConfig        `koanf:"stream"`
	Consumer    ConsumerConfig      `koanf:"consumer"`
	Schema      SchemaConfig        `koanf:"schema"`
	Collections []collection.Config `koanf:"collections"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug | info | warn | error
	Format string `koanf:"format"` // text | json
}

// SlogLevel parses Level. Validate has already rejected unknown levels.
func (c LogConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// StoreConfig selects the read store. URL is the default connection string of
// collections that do not set their own.
type StoreConfig struct {
	Driver          string `koanf:"driver"`
	URL             string `koanf:"url"`
	UsersURL        string `koanf:"users_url"`
	UsersCollection string `koanf:"users_collection"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
	ConnectTimeout  string `koanf:"connect_timeout"`
}

// EffectiveUsersURL returns the users connection string, defaulting to URL.
func (c StoreConfig) EffectiveUsersURL() string {
	if c.UsersURL != "" {
		return c.UsersURL
	}
	return c.URL
}

type StreamConfig struct {
	Driver   string         `koanf:"driver"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	RabbitMQ RabbitMQConfig `koanf:"rabbitmq"`
}

type KafkaConfig struct {
	Brokers            []string `koanf:"brokers"`
	ClientID           string   `koanf:"client_id"`
	TLS                bool     `koanf:"tls"`
	InsecureSkipVerify bool     `koanf:"insecure_skip_verify"`
}

type RabbitMQConfig struct {
	URL      string `koanf:"url"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// ConsumerConfig controls the in-process projection consumer.
type ConsumerConfig struct {
	Enabled        bool     `koanf:"enabled"`
	GroupID        string   `koanf:"group_id"`
	MaxPollRecords int      `koanf:"max_poll_records"`
	RetryBackoff   string   `koanf:"retry_backoff"`
	Queue          string   `koanf:"queue"`
	RoutingKeys    []string `koanf:"routing_keys"`
	PrefetchCount  int      `koanf:"prefetch_count"`
}

type SchemaConfig struct {
	SourceType string `koanf:"source_type"`
	Path       string `koanf:"path"`
	Strict     bool   `koanf:"strict"`
	CacheSize  int    `koanf:"cache_size"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format %q (must be text or json)", c.Log.Format)
	}

	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateConsumer(); err != nil {
		return err
	}
	return c.validateCollections()
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverMemory:
		return nil
	case DriverMongoDB, DriverPostgres:
	default:
		return fmt.Errorf("unsupported store.driver %q", c.Store.Driver)
	}
	if strings.TrimSpace(c.Store.URL) == "" {
		return fmt.Errorf("store.url is required")
	}
	if c.Store.Driver == DriverPostgres {
		if c.Store.MaxOpenConns <= 0 {
			return fmt.Errorf("store.max_open_conns must be > 0")
		}
		if c.Store.MaxIdleConns <= 0 {
			return fmt.Errorf("store.max_idle_conns must be > 0")
		}
	}
	if c.Store.ConnectTimeout != "" {
		if _, err := parsePositiveDuration(c.Store.ConnectTimeout); err != nil {
			return fmt.Errorf("invalid store.connect_timeout: %w", err)
		}
	}
	return nil
}

func (c *Config) validateStream() error {
	switch c.Stream.Driver {
	case DriverMemory:
	case DriverKafka:
		if len(c.Stream.Kafka.Brokers) == 0 {
			return fmt.Errorf("stream.kafka.brokers is required")
		}
	case DriverRabbitMQ:
		if strings.TrimSpace(c.Stream.RabbitMQ.URL) == "" {
			return fmt.Errorf("stream.rabbitmq.url is required")
		}
	default:
		return fmt.Errorf("unsupported stream.driver %q", c.Stream.Driver)
	}
	return nil
}

func (c *Config) validateConsumer() error {
	if !c.Consumer.Enabled {
		return nil
	}
	if _, err := parsePositiveDuration(c.Consumer.RetryBackoff); err != nil {
		return fmt.Errorf("invalid consumer.retry_backoff: %w", err)
	}
	switch c.Stream.Driver {
	case DriverKafka:
		if c.Consumer.GroupID == "" {
			return fmt.Errorf("consumer.group_id is required for kafka")
		}
		if c.Consumer.MaxPollRecords <= 0 {
			return fmt.Errorf("consumer.max_poll_records must be > 0")
		}
	case DriverRabbitMQ:
		if c.Consumer.Queue == "" {
			return fmt.Errorf("consumer.queue is required for rabbitmq")
		}
		if c.Consumer.PrefetchCount < 1 {
			return fmt.Errorf("consumer.prefetch_count must be >= 1")
		}
	}
	return nil
}

func (c *Config) validateCollections() error {
	if len(c.Collections) == 0 {
		return fmt.Errorf("at least one collection is required")
	}

	seen := make(map[string]bool, len(c.Collections))
	usesSchemas := false
	for _, coll := range c.Collections {
		if err := coll.Validate(); err != nil {
			return err
		}
		if seen[coll.Name] {
			return fmt.Errorf("duplicate collection %q", coll.Name)
		}
		seen[coll.Name] = true
		usesSchemas = usesSchemas || coll.Schema.Enabled
	}

	if !usesSchemas {
		return nil
	}
	if c.Schema.SourceType != SourceFilesystem {
		return fmt.Errorf("unsupported schema.source_type %q", c.Schema.SourceType)
	}
	if strings.TrimSpace(c.Schema.Path) == "" {
		return fmt.Errorf("schema.path is required")
	}
	if _, err := os.Stat(c.Schema.Path); err != nil {
		return fmt.Errorf("schema.path %q is not accessible: %w", c.Schema.Path, err)
	}
	return nil
}

// RetryBackoffDuration returns the parsed consumer retry backoff.
func (c ConsumerConfig) RetryBackoffDuration() time.Duration {
	d, _ := parsePositiveDuration(c.RetryBackoff)
	return d
}

// ConnectTimeoutDuration returns the parsed store connect timeout, zero when unset.
func (c StoreConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := parsePositiveDuration(c.ConnectTimeout)
	return d
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be > 0", s)
	}
	return d, nil
}

// Load parses config from defaults, the YAML file at configPath and environment
// variables, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":               8080,
		"server.host":               "0.0.0.0",
		"server.max_body_size_mb":   1,
		"server.mode":               "release",
		"log.level":                 "info",
		"log.format":                "text",
		"store.driver":              DriverMongoDB,
		"store.url":                 "mongodb://localhost:27017/eventbridge",
		"store.users_collection":    "users",
		"store.max_open_conns":      25,
		"store.max_idle_conns":      25,
		"store.auto_migrate":        true,
		"stream.driver":             DriverKafka,
		"stream.kafka.brokers":      []string{"localhost:9092"},
		"stream.kafka.client_id":    "eventbridge",
		"consumer.enabled":          true,
		"consumer.group_id":         "eventbridge-projection",
		"consumer.max_poll_records": 500,
		"consumer.retry_backoff":    "1s",
		"consumer.queue":            "eventbridge-projection",
		"consumer.prefetch_count":   1,
		"schema.source_type":        SourceFilesystem,
		"schema.path":               "./schemas",
		"schema.cache_size":         1000,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// EVENTBRIDGE_SERVER__PORT=9090 overrides server.port
	if err := k.Load(env.Provider("EVENTBRIDGE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "EVENTBRIDGE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
