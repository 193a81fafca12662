package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend.
// For "postgres" the url is the connection string; for "bolt" it is the
// database file path; for "memory" it is ignored.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory":
			c.DatabaseType = dbType
			c.DatabaseURL = ""
		case "bolt":
			if url == "" {
				return fmt.Errorf("bolt database path is required")
			}
			c.DatabaseType = dbType
			c.BoltPath = url
		case "postgres":
			if url == "" {
				return fmt.Errorf("database URL is required for postgres")
			}
			c.DatabaseType = dbType
			c.DatabaseURL = url
		default:
			return fmt.Errorf("database type must be 'memory', 'bolt' or 'postgres', got: %s", dbType)
		}
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAdminAddress sets the registry admin address
func WithAdminAddress(addr string) Option {
	return func(c *ServerConfig) error {
		if addr == "" {
			return fmt.Errorf("admin address cannot be empty")
		}
		c.AdminAddress = addr
		return nil
	}
}

// WithStoreFee sets the minimum fee a store operation must pay
func WithStoreFee(fee int64) Option {
	return func(c *ServerConfig) error {
		if fee < 0 {
			return fmt.Errorf("store fee must not be negative, got: %d", fee)
		}
		c.MinimumStoreFee = fee
		return nil
	}
}

// WithQuotaDefaults sets the per-message size estimate and the storage
// quota granted to newly initialized accounts
func WithQuotaDefaults(sizeEstimate, quota int64) Option {
	return func(c *ServerConfig) error {
		if sizeEstimate <= 0 {
			return fmt.Errorf("message size estimate must be positive, got: %d", sizeEstimate)
		}
		if quota <= 0 {
			return fmt.Errorf("storage quota must be positive, got: %d", quota)
		}
		c.MessageSizeEstimate = sizeEstimate
		c.DefaultStorageQuota = quota
		return nil
	}
}

// WithEventSink selects the event sink ("noop", "log" or "mqtt")
func WithEventSink(kind string) Option {
	return func(c *ServerConfig) error {
		switch kind {
		case "noop", "log", "mqtt":
			c.EventSink = kind
			return nil
		default:
			return fmt.Errorf("event sink must be 'noop', 'log' or 'mqtt', got: %s", kind)
		}
	}
}

// WithMQTT configures the MQTT event sink connection
func WithMQTT(brokerURL, clientID, topicPrefix string) Option {
	return func(c *ServerConfig) error {
		if brokerURL == "" {
			return fmt.Errorf("MQTT broker URL cannot be empty")
		}
		c.MQTTBrokerURL = brokerURL
		if clientID != "" {
			c.MQTTClientID = clientID
		}
		if topicPrefix != "" {
			c.MQTTTopicPrefix = topicPrefix
		}
		return nil
	}
}

// WithMQTTCredentials sets the MQTT broker credentials
func WithMQTTCredentials(username, password string) Option {
	return func(c *ServerConfig) error {
		c.MQTTUsername = username
		c.MQTTPassword = password
		return nil
	}
}
