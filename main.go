package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"example.com/conduit/cmd/server"
	"example.com/conduit/cmd/worker"
	"example.com/conduit/internal/auth"
	appkafka "example.com/conduit/internal/broker"
	"example.com/conduit/internal/cache"
	"example.com/conduit/internal/docstore"
	config "example.com/conduit/internal/init"
	"example.com/conduit/internal/logger"
	"example.com/conduit/internal/monitoring"
	"example.com/conduit/internal/tags"
	"example.com/conduit/internal/users"
	"github.com/redis/go-redis/v9"
)

var logg = logger.New()

// indexed lists the fields Query filters on.
var indexed = map[string][]string{
	users.Bucket: {"email"},
}

// openStore connects the configured document store backend.
func openStore(ctx context.Context, cfg *config.Config) (docstore.Client, error) {
	switch cfg.StoreBackend {
	case "cassandra":
		st, err := docstore.NewCassandra(docstore.CassandraConfig{
			Host:           cfg.CassandraHost,
			Keyspace:       cfg.CassandraKeyspace,
			Username:       cfg.CassandraUsername,
			Password:       cfg.CassandraPassword,
			Timeout:        cfg.CassandraTimeout,
			DC:             cfg.CassandraDC,
			MigrationsPath: cfg.MigrationsPath,
			Indexed:        indexed,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "mongo":
		st, err := docstore.NewMongo(ctx, docstore.MongoConfig{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
			Timeout:  cfg.MongoTimeout,
			Indexed:  indexed,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory":
		return docstore.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.StoreBackend)
	}
}

// openTagCache returns a Redis tag cache when REDIS_ADDR is set, nil otherwise.
func openTagCache(ctx context.Context, cfg *config.Config) *cache.RedisTagCache {
	if cfg.RedisAddr == "" {
		return nil
	}
	c := cache.NewRedisTagCache(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.TagsCacheTTL)
	if err := c.Ping(ctx); err != nil {
		// tags are still served from the store
		logg.Error("main", "Redis unreachable at startup", err)
	}
	return c
}

func main() {
	// Initialize application configuration
	cfg := config.Init()
	logger.SetLevel(cfg.LogLevel)
	mode := cfg.Mode

	if cfg.JWTSecret == "" && mode == "server" {
		logg.Fatal("main", "JWT_SECRET must be set", nil)
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize document store connection
	raw, err := openStore(ctx, cfg)
	if err != nil {
		logg.Fatal("main", "Document store connection failed", err)
	}
	st := docstore.Instrument(raw, cfg.StoreBackend)
	defer st.Close()

	usersRepo := users.New(st, cfg.BcryptCost)

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Run application depending on selected mode
	switch mode {
	case "server":
		var kafkaWriter appkafka.KafkaWriter = appkafka.NopWriter{}
		if cfg.KafkaBroker != "" {
			kafkaWriter, err = appkafka.NewKafkaWriter(kafkaCfg)
			if err != nil {
				logg.Fatal("main", "Kafka writer init failed", err)
			}
		} else {
			logg.Info("main", "KAFKA_BROKER is empty, events are discarded")
		}
		defer kafkaWriter.Close()

		var tagCache cache.TagCache
		if c := openTagCache(ctx, cfg); c != nil {
			defer c.Close()
			tagCache = c
		}

		s := server.New(
			usersRepo,
			tags.New(st, tagCache),
			auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL),
			kafkaWriter,
		)
		server.Run(ctx, s, server.Options{
			Addr:        cfg.ServerAddr,
			TLSCertFile: cfg.TLSCertFile,
			TLSKeyFile:  cfg.TLSKeyFile,
		})
	case "worker":
		monitoring.Register()
		w := worker.New(usersRepo, appkafka.NewKafkaReader(kafkaCfg), 0, 0)
		defer w.Close()
		w.Run(ctx)
	default:
		logg.Fatal("main", "Unknown mode: "+mode, nil)
	}

	logg.Info("main", "Shutdown completed")
}
