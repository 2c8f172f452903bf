package backend

import (
	"context"

	"kasbook/internal/amqp"
	"kasbook/internal/events"
	"kasbook/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds the wired store and event publisher. AMQP is set only when
// the amqp events backend connected; the worker consumes recompute
// requests through it.
type Result struct {
	Store     storage.Store
	Publisher events.Publisher
	AMQP      *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Data   DataType
	Events EventsType

	SQLiteDBPath string
	PostgresDSN  string
	SnapshotPath string

	AMQPURL              string
	AMQPExchange         string
	AMQPQueue            string
	AMQPEventsRoutingKey string

	KafkaBrokers []string
	KafkaTopic   string
}

// DataType selects where the cash book is stored.
type DataType string

const (
	SQLiteBackend   DataType = "sqlite"
	PostgresBackend DataType = "postgres"
	FileBackend     DataType = "file"
)

// EventsType selects where recompute events are published.
type EventsType string

const (
	NoEvents    EventsType = "none"
	AMQPEvents  EventsType = "amqp"
	KafkaEvents EventsType = "kafka"
)

// String implements fmt.Stringer
func (t DataType) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t DataType) IsValid() bool {
	switch t {
	case SQLiteBackend, PostgresBackend, FileBackend:
		return true
	default:
		return false
	}
}

func (t EventsType) String() string {
	return string(t)
}

func (t EventsType) IsValid() bool {
	switch t {
	case NoEvents, AMQPEvents, KafkaEvents:
		return true
	default:
		return false
	}
}
