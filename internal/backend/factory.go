package backend

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"kasbook/internal/amqp"
	"kasbook/internal/events"
	"kasbook/internal/kafka"
	"kasbook/internal/storage"
	"kasbook/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// Create opens the store and the event publisher. A publisher that cannot
// connect is replaced by a no-op one: the ledger works without events.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(config)
	if err != nil {
		return nil, err
	}

	res := &Result{Store: store, Publisher: events.Nop{}}
	switch config.Events {
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, config.AMQPEventsRoutingKey)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			break
		}
		res.Publisher = client
		res.AMQP = client
		f.logger.Info("Initialized AMQP client",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
	case KafkaEvents:
		res.Publisher = kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic)
		f.logger.Info("Initialized Kafka publisher",
			"brokers", config.KafkaBrokers,
			"topic", config.KafkaTopic)
	}

	res.Cleanup = func() error {
		return multierr.Append(res.Publisher.Close(), res.Store.Close())
	}
	return res, nil
}

func (f *DefaultFactory) createStore(config Config) (storage.Store, error) {
	switch config.Data {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil

	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return repo, nil

	case FileBackend:
		store, err := memory.Open(config.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		f.logger.Info("Initialized file backend", "snapshot_path", config.SnapshotPath)
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported data backend: %s", config.Data)
	}
}
