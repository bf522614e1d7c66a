package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aevon-lab/eventbridge/internal/auth"
	"github.com/aevon-lab/eventbridge/internal/collection"
	"github.com/aevon-lab/eventbridge/internal/config"
	"github.com/aevon-lab/eventbridge/internal/core/storage"
	"github.com/aevon-lab/eventbridge/internal/core/storage/memory"
	"github.com/aevon-lab/eventbridge/internal/core/storage/mongodb"
	"github.com/aevon-lab/eventbridge/internal/core/storage/postgres"
	"github.com/aevon-lab/eventbridge/internal/ingestion"
	"github.com/aevon-lab/eventbridge/internal/migrations"
	"github.com/aevon-lab/eventbridge/internal/projection"
	"github.com/aevon-lab/eventbridge/internal/schema"
	schemaapi "github.com/aevon-lab/eventbridge/internal/schema/api"
	"github.com/aevon-lab/eventbridge/internal/schema/formats/protobuf"
	"github.com/aevon-lab/eventbridge/internal/schema/formats/yaml"
	schemastorage "github.com/aevon-lab/eventbridge/internal/schema/storage"
	"github.com/aevon-lab/eventbridge/internal/server"
	"github.com/aevon-lab/eventbridge/internal/stream"
	"github.com/aevon-lab/eventbridge/internal/stream/kafka"
	"github.com/aevon-lab/eventbridge/internal/stream/rabbitmq"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "eventbridge.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))
	slog.Info("Loaded config",
		"store_driver", cfg.Store.Driver,
		"stream_driver", cfg.Stream.Driver,
		"collections", len(cfg.Collections),
		"consumer_enabled", cfg.Consumer.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Bridge stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Bridge stopped")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// readStore is a read store that also resolves login tokens.
type readStore interface {
	storage.Store
	auth.UserStore
}

// runner is a log consumer loop.
type runner interface {
	Start(ctx context.Context) error
}

func run(ctx context.Context, cfg *config.Config) error {
	// 2. Initialize Storage
	store, checks := newStore(cfg)
	defer store.Close()

	// 3. Initialize Schema Registry
	registry, validator := newSchemas(cfg)

	// 4. Initialize Collections
	colls := make([]*collection.Collection, 0, len(cfg.Collections))
	for _, cc := range cfg.Collections {
		var validate collection.Validator
		if cc.Schema.Enabled {
			v, err := collection.SchemaValidator(ctx, registry, validator, cc.Name, cc.Schema.Version)
			if err != nil {
				return err
			}
			validate = v
		}
		colls = append(colls, collection.FromConfig(cc, cfg.Store.URL, validate))
	}
	consumer := projection.NewConsumer(store, colls...)

	// 5. Initialize Stream
	publisher, logConsumer, err := newStream(cfg, consumer)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// 6. Initialize Pipelines and Server
	pipelines := make([]*collection.Pipeline, len(colls))
	for i, c := range colls {
		pipelines[i] = collection.NewPipeline(c, store, store, publisher)
		slog.Info("Collection ready",
			"collection", c.Name,
			"stream", c.StreamName,
			"store_collection", c.Store.Collection,
			"versioned", c.Versioned,
			"schema", c.Validate != nil)
	}

	services := []server.RouteRegistrar{ingestion.NewService(pipelines, consumer, cfg.Server.MaxBodySizeMB)}
	if registry != nil {
		services = append(services, schemaapi.NewHandler(registry, validator))
	}
	srv := server.New(cfg.Server.Addr(), cfg.Server.Mode, checks, services...)

	// 7. Start Services
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if logConsumer != nil {
		g.Go(func() error { return logConsumer.Start(gctx) })
	} else {
		slog.Info("Log consumer disabled")
	}
	return g.Wait()
}

func newStore(cfg *config.Config) (readStore, map[string]server.HealthChecker) {
	switch cfg.Store.Driver {
	case config.DriverMongoDB:
		s := mongodb.NewStore(mongodb.Options{
			UsersURL:        cfg.Store.EffectiveUsersURL(),
			UsersCollection: cfg.Store.UsersCollection,
			ConnectTimeout:  cfg.Store.ConnectTimeoutDuration(),
		})
		return s, map[string]server.HealthChecker{
			"store": server.CheckFunc(func(ctx context.Context) error { return s.Ping(ctx, cfg.Store.URL) }),
		}
	case config.DriverPostgres:
		s := postgres.NewStore(postgres.Options{
			MaxOpenConns: cfg.Store.MaxOpenConns,
			MaxIdleConns: cfg.Store.MaxIdleConns,
			UsersURL:     cfg.Store.EffectiveUsersURL(),
			OnConnect: func(db *sql.DB) error {
				return migrations.RunMigrations(db, cfg.Store.AutoMigrate)
			},
		})
		return s, map[string]server.HealthChecker{
			"store": server.CheckFunc(func(ctx context.Context) error { return s.Ping(ctx, cfg.Store.URL) }),
		}
	}
	slog.Warn("Using in-memory store; documents are lost on exit")
	return memory.NewStore(), nil
}

// newSchemas builds the registry when the schema directory is available. Collections
// that enable schemas have already had the directory checked by config validation.
func newSchemas(cfg *config.Config) (*schema.Registry, *schema.Validator) {
	if _, err := os.Stat(cfg.Schema.Path); err != nil {
		slog.Info("Schema directory not found, schema API disabled", "path", cfg.Schema.Path)
		return nil, nil
	}
	repo := schemastorage.NewFileSystemRepository(cfg.Schema.Path, cfg.Schema.Strict)
	registry := schema.NewRegistryWithCache(repo, cfg.Schema.CacheSize)

	validator := schema.NewValidator()
	validator.Register(schema.FormatProtobuf, protobuf.New())
	validator.Register(schema.FormatYaml, yaml.New())

	slog.Info("Schema registry initialized", "path", cfg.Schema.Path, "formats", validator.Formats())
	return registry, validator
}

func newStream(cfg *config.Config, consumer *projection.Consumer) (stream.Publisher, runner, error) {
	switch cfg.Stream.Driver {
	case config.DriverKafka:
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:  cfg.Stream.Kafka.Brokers,
			ClientID: cfg.Stream.Kafka.ClientID,
			TLS:      kafka.TLSConfig{Enabled: cfg.Stream.Kafka.TLS, InsecureSkipVerify: cfg.Stream.Kafka.InsecureSkipVerify},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		publisher := stream.LoggingPublisher{Next: producer, Driver: "Kafka"}
		if !cfg.Consumer.Enabled {
			return publisher, nil, nil
		}
		c, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:        cfg.Stream.Kafka.Brokers,
			Topics:         consumer.Streams(),
			GroupID:        cfg.Consumer.GroupID,
			ClientID:       cfg.Stream.Kafka.ClientID,
			MaxPollRecords: cfg.Consumer.MaxPollRecords,
			RetryBackoff:   cfg.Consumer.RetryBackoffDuration(),
			TLS:            kafka.TLSConfig{Enabled: cfg.Stream.Kafka.TLS, InsecureSkipVerify: cfg.Stream.Kafka.InsecureSkipVerify},
		}, consumer)
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("failed to create kafka consumer: %w", err), publisher.Close())
		}
		return publisher, c, nil

	case config.DriverRabbitMQ:
		rmqAuth := rabbitmq.AuthConfig{Username: cfg.Stream.RabbitMQ.Username, Password: cfg.Stream.RabbitMQ.Password}
		producer, err := rabbitmq.NewProducer(rabbitmq.ProducerConfig{URL: cfg.Stream.RabbitMQ.URL, Auth: rmqAuth})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create rabbitmq producer: %w", err)
		}
		publisher := stream.LoggingPublisher{Next: producer, Driver: "RabbitMQ"}
		if !cfg.Consumer.Enabled {
			return publisher, nil, nil
		}
		c, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
			URL:           cfg.Stream.RabbitMQ.URL,
			Exchanges:     consumer.Streams(),
			Queue:         cfg.Consumer.Queue,
			RoutingKeys:   cfg.Consumer.RoutingKeys,
			PrefetchCount: cfg.Consumer.PrefetchCount,
			Auth:          rmqAuth,
		}, consumer)
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("failed to create rabbitmq consumer: %w", err), publisher.Close())
		}
		return publisher, c, nil
	}

	// The in-memory log projects synchronously on publish.
	if !cfg.Consumer.Enabled {
		return stream.NewMemoryLog(nil), nil, nil
	}
	return stream.NewMemoryLog(consumer), nil, nil
}
