package config

import (
	"time"

	"github.com/cockroachdb/errors"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return errors.New("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case DatabaseMemory:
		case DatabasePostgres, DatabaseMongoDB:
			if url == "" {
				return errors.Newf("database URL is required for %s", dbType)
			}
		default:
			return errors.Newf("database type must be 'memory', 'postgres' or 'mongodb', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
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

// WithMongoDatabase sets the MongoDB database name
func WithMongoDatabase(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return errors.New("mongodb database name cannot be empty")
		}
		c.MongoDatabase = name
		return nil
	}
}

// WithCollection overrides the table or collection name
func WithCollection(name string) Option {
	return func(c *ServerConfig) error {
		c.Collection = name
		return nil
	}
}

// WithSchemaFile sets the YAML file schemas are loaded from
func WithSchemaFile(path string) Option {
	return func(c *ServerConfig) error {
		c.SchemaFile = path
		return nil
	}
}

// WithSchemaCache configures the schema registry cache
func WithSchemaCache(size int, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if size < 0 {
			return errors.Newf("schema cache size must not be negative, got: %d", size)
		}
		c.SchemaCacheSize = size
		c.SchemaCacheTTL = ttl
		return nil
	}
}

// WithIndexRetry configures how index setup retries while storage is unavailable
func WithIndexRetry(maxRetries int, minInterval, maxInterval time.Duration) Option {
	return func(c *ServerConfig) error {
		if maxRetries < 0 {
			return errors.Newf("max retries must not be negative, got: %d", maxRetries)
		}
		c.IndexMaxRetries = maxRetries
		c.IndexMinInterval = minInterval
		c.IndexMaxInterval = maxInterval
		return nil
	}
}

// WithEventLogging enables or disables lifecycle event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
