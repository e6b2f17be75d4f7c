package config

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/repo/memory"
	"github.com/tendant/schema-content/pkg/schemacontent/repo/mongodb"
	repopg "github.com/tendant/schema-content/pkg/schemacontent/repo/postgres"
	"github.com/tendant/schema-content/pkg/schemacontent/schema"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Database types
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseMongoDB  = "mongodb"
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
	policy := schemacontent.DefaultIndexPolicy()
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       DatabaseMemory,
		DBSchema:           "content",
		MongoDatabase:      "schema_content",
		SchemaCacheSize:    256,
		SchemaCacheTTL:     5 * time.Minute,
		IndexMaxRetries:    policy.MaxRetries,
		IndexMinInterval:   policy.MinInterval,
		IndexMaxInterval:   policy.MaxInterval,
		EnableEventLogging: true,
	}
}

// ServerConfig represents the configuration of a schema-content process.
// Field tags name the environment variables read by WithEnv.
type ServerConfig struct {
	Port        string `env:"PORT" env-description:"HTTP listen port"`
	Environment string `env:"ENVIRONMENT" env-description:"development, production or testing"`

	// Database configuration
	DatabaseURL   string `env:"DATABASE_URL" env-description:"postgres:// or mongodb:// URL; empty or memory selects the in-memory store"`
	DatabaseType  string `env:"DATABASE_TYPE" env-description:"memory, postgres or mongodb (detected from DATABASE_URL when unset)"`
	DBSchema      string `env:"DB_SCHEMA" env-description:"Postgres schema set as search_path"`
	MongoDatabase string `env:"MONGODB_DATABASE" env-description:"MongoDB database name"`
	Collection    string `env:"CONTENT_COLLECTION" env-description:"table or collection name override"`

	// Schema registry
	SchemaFile      string        `env:"SCHEMA_FILE" env-description:"YAML schema definitions"`
	SchemaCacheSize int           `env:"SCHEMA_CACHE_SIZE" env-description:"cached schema count"`
	SchemaCacheTTL  time.Duration `env:"SCHEMA_CACHE_TTL" env-description:"cached schema lifetime"`

	// Index setup
	IndexMaxRetries  int           `env:"INDEX_MAX_RETRIES" env-description:"retries while storage is unavailable"`
	IndexMinInterval time.Duration `env:"INDEX_MIN_INTERVAL" env-description:"first retry delay"`
	IndexMaxInterval time.Duration `env:"INDEX_MAX_INTERVAL" env-description:"retry delay cap"`

	EnableEventLogging bool `env:"ENABLE_EVENT_LOGGING" env-description:"log lifecycle events"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseMongoDB:
		if c.DatabaseURL == "" {
			return errors.Newf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'mongodb'")
	}

	if c.DatabaseType == DatabaseMongoDB && c.MongoDatabase == "" {
		return errors.New("mongodb database name is required")
	}
	if c.SchemaCacheSize < 0 {
		return errors.Newf("schema cache size must not be negative, got: %d", c.SchemaCacheSize)
	}
	if c.IndexMaxRetries < 0 {
		return errors.Newf("index max retries must not be negative, got: %d", c.IndexMaxRetries)
	}
	if c.IndexMinInterval > c.IndexMaxInterval {
		return errors.Newf("index min interval %s exceeds max interval %s", c.IndexMinInterval, c.IndexMaxInterval)
	}

	return nil
}

// IndexPolicy returns the configured index retry policy.
func (c *ServerConfig) IndexPolicy() schemacontent.IndexPolicy {
	return schemacontent.IndexPolicy{
		MaxRetries:  c.IndexMaxRetries,
		MinInterval: c.IndexMinInterval,
		MaxInterval: c.IndexMaxInterval,
	}
}

// BuildRepository creates a Repository from the configuration. The returned
// close function releases database connections.
func (c *ServerConfig) BuildRepository(ctx context.Context, logger *zap.Logger) (schemacontent.Repository, func(), error) {
	registry, err := c.BuildRegistry()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build schema registry")
	}
	return c.BuildRepositoryWithRegistry(ctx, logger, registry)
}

// BuildRepositoryWithRegistry is BuildRepository with a caller-supplied
// schema registry, for processes that also resolve schemas themselves.
func (c *ServerConfig) BuildRepositoryWithRegistry(ctx context.Context, logger *zap.Logger, registry schema.Registry) (schemacontent.Repository, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, closeStore, err := c.buildStore(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build store")
	}

	options := []schemacontent.Option{
		schemacontent.WithStore(store),
		schemacontent.WithRegistry(registry),
		schemacontent.WithLogger(logger),
		schemacontent.WithIndexPolicy(c.IndexPolicy()),
	}
	if c.EnableEventLogging {
		options = append(options, schemacontent.WithEventSink(schemacontent.NewLoggingEventSink(logger)))
	}

	repo, err := schemacontent.New(options...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return repo, closeStore, nil
}

// BuildRegistry loads the schema file, if any, behind an expiring cache.
func (c *ServerConfig) BuildRegistry() (schema.Registry, error) {
	var source schema.Registry = schema.NewStaticRegistry()
	if c.SchemaFile != "" {
		static, err := schema.LoadFile(c.SchemaFile)
		if err != nil {
			return nil, err
		}
		source = static
	}
	return schema.NewCachedRegistry(source, schema.CacheOptions{
		Size: c.SchemaCacheSize,
		TTL:  c.SchemaCacheTTL,
	}), nil
}

// buildStore creates a Store based on the configuration
func (c *ServerConfig) buildStore(ctx context.Context) (schemacontent.Store, func(), error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), func() {}, nil

	case DatabasePostgres:
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to parse DATABASE_URL")
		}
		// Optionally set search_path for the connection
		dbSchema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if dbSchema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{dbSchema}.Sanitize()))
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to create pgx pool")
		}
		store := repopg.NewWithPool(pool)
		if c.Collection != "" {
			store = store.WithTable(c.Collection)
		}
		return store, pool.Close, nil

	case DatabaseMongoDB:
		client, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(c.DatabaseURL))
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect to mongodb")
		}
		closeClient := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		return mongodb.New(client.Database(c.MongoDatabase), c.Collection), closeClient, nil

	default:
		return nil, nil, errors.Newf("unsupported database type: %s", c.DatabaseType)
	}
}
