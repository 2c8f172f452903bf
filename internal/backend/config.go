package backend

import (
	"fmt"

	"kasbook/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	dataType := DataType(appConfig.DataBackend)
	if !dataType.IsValid() {
		return Config{}, fmt.Errorf("invalid data backend in config: %s", appConfig.DataBackend)
	}
	eventsType := EventsType(appConfig.EventsBackend)
	if !eventsType.IsValid() {
		return Config{}, fmt.Errorf("invalid events backend in config: %s", appConfig.EventsBackend)
	}

	return Config{
		Data:   dataType,
		Events: eventsType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		PostgresDSN:  appConfig.PostgresDSN,
		SnapshotPath: appConfig.SnapshotPath,

		AMQPURL:              appConfig.AMQPURL,
		AMQPExchange:         appConfig.AMQPExchange,
		AMQPQueue:            appConfig.AMQPQueue,
		AMQPEventsRoutingKey: appConfig.AMQPEventsRoutingKey,

		KafkaBrokers: appConfig.KafkaBrokers,
		KafkaTopic:   appConfig.KafkaTopic,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Data.IsValid() {
		return fmt.Errorf("invalid data backend: %s", c.Data)
	}
	if !c.Events.IsValid() {
		return fmt.Errorf("invalid events backend: %s", c.Events)
	}

	switch c.Data {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresDSN == "" {
			return fmt.Errorf("Postgres DSN is required for postgres backend")
		}
	case FileBackend:
		if c.SnapshotPath == "" {
			return fmt.Errorf("snapshot path is required for file backend")
		}
	}

	switch c.Events {
	case AMQPEvents:
		if c.AMQPURL == "" || c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP URL, exchange and queue are required for amqp events")
		}
	case KafkaEvents:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("Kafka brokers and topic are required for kafka events")
		}
	}

	return nil
}

// GetDataTypes returns all valid data backend types
func GetDataTypes() []DataType {
	return []DataType{SQLiteBackend, PostgresBackend, FileBackend}
}

// GetEventsTypes returns all valid events backend types
func GetEventsTypes() []EventsType {
	return []EventsType{NoEvents, AMQPEvents, KafkaEvents}
}
