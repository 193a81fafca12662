package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swiftbridge/message-registry/pkg/registry"
	"github.com/swiftbridge/message-registry/pkg/registry/events/mqtt"
	"github.com/swiftbridge/message-registry/pkg/registry/repo/bolt"
	"github.com/swiftbridge/message-registry/pkg/registry/repo/memory"
	repopg "github.com/swiftbridge/message-registry/pkg/registry/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                "8080",
		Environment:         "development",
		DatabaseType:        "memory",
		DBSchema:            "registry",
		BoltPath:            "./data/registry.db",
		MessageSizeEstimate: registry.DefaultMessageSizeEstimate,
		DefaultStorageQuota: registry.DefaultStorageQuota,
		MinimumStoreFee:     registry.DefaultMinimumStoreFee,
		EventSink:           "log",
		MQTTClientID:        "message-registry",
		MQTTTopicPrefix:     "registry/events",
	}
}

// ServerConfig represents server configuration for the message-registry service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "bolt", "postgres"
	DBSchema     string // Postgres schema to use (default: registry)
	BoltPath     string // bbolt database file (database type "bolt")

	// Registry parameters
	AdminAddress        string
	MessageSizeEstimate int64
	DefaultStorageQuota int64
	MinimumStoreFee     int64

	// Event sink configuration
	EventSink       string // "noop", "log", "mqtt"
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTUsername    string
	MQTTPassword    string
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "bolt":
		if c.BoltPath == "" {
			return errors.New("bolt_path is required when using bolt")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return errors.New("database_type must be 'memory', 'bolt' or 'postgres'")
	}

	if c.AdminAddress == "" {
		return errors.New("admin_address is required")
	}
	if c.MessageSizeEstimate <= 0 {
		return errors.New("message_size_estimate must be positive")
	}
	if c.DefaultStorageQuota <= 0 {
		return errors.New("default_storage_quota must be positive")
	}
	if c.MinimumStoreFee < 0 {
		return errors.New("minimum_store_fee must not be negative")
	}

	switch c.EventSink {
	case "noop", "log":
	case "mqtt":
		if c.MQTTBrokerURL == "" {
			return errors.New("mqtt_broker_url is required when using the mqtt event sink")
		}
	default:
		return errors.New("event_sink must be 'noop', 'log' or 'mqtt'")
	}

	return nil
}

// RegistryParams returns the registry parameters carried by this configuration.
func (c *ServerConfig) RegistryParams() registry.Params {
	return registry.Params{
		Admin:               c.AdminAddress,
		MessageSizeEstimate: c.MessageSizeEstimate,
		DefaultStorageQuota: c.DefaultStorageQuota,
		MinimumStoreFee:     c.MinimumStoreFee,
	}
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService() (registry.Service, error) {
	var options []registry.Option

	repo, err := c.buildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, registry.WithRepository(repo))

	sink, err := c.buildEventSink()
	if err != nil {
		return nil, fmt.Errorf("failed to build event sink: %w", err)
	}
	options = append(options, registry.WithEventSink(sink))

	return registry.New(options...)
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository() (registry.Repository, error) {
	params := c.RegistryParams()

	switch c.DatabaseType {
	case "memory":
		return memory.New(params)
	case "bolt":
		return bolt.Open(c.BoltPath, params)
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		// Optionally set search_path for the connection
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		repo, err := repopg.NewWithPool(pool, params)
		if err != nil {
			return nil, err
		}
		if err := repo.InitSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to init schema: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildEventSink creates an EventSink based on the configuration
func (c *ServerConfig) buildEventSink() (registry.EventSink, error) {
	switch c.EventSink {
	case "noop":
		return registry.NewNoopEventSink(), nil
	case "log":
		return registry.NewLoggingEventSink(nil), nil
	case "mqtt":
		return mqtt.New(mqtt.Config{
			BrokerURL:   c.MQTTBrokerURL,
			ClientID:    c.MQTTClientID,
			TopicPrefix: c.MQTTTopicPrefix,
			Username:    c.MQTTUsername,
			Password:    c.MQTTPassword,
		})
	default:
		return nil, fmt.Errorf("unsupported event sink: %s", c.EventSink)
	}
}
