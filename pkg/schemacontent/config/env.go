package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv applies environment variable overrides. Variables that are unset
// keep the value configured so far; see the env tags of ServerConfig.
//
// Database:
//
//	DATABASE_URL - "postgresql://..." or "postgres://..." selects postgres,
//	               "mongodb://..." or "mongodb+srv://..." selects mongodb,
//	               empty or "memory" uses the in-memory store.
//	DATABASE_TYPE - explicit override of the detected type
func WithEnv() Option {
	return func(c *ServerConfig) error {
		_, explicitType := os.LookupEnv("DATABASE_TYPE")

		if err := cleanenv.ReadEnv(c); err != nil {
			return errors.Wrap(err, "read environment")
		}

		if explicitType {
			return nil
		}
		return applyDatabaseURL(c)
	}
}

// applyDatabaseURL auto-detects the database type from the URL
func applyDatabaseURL(c *ServerConfig) error {
	url := c.DatabaseURL
	switch {
	case url == "" || url == DatabaseMemory:
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
	case strings.HasPrefix(url, "postgresql://"), strings.HasPrefix(url, "postgres://"):
		c.DatabaseType = DatabasePostgres
	case strings.HasPrefix(url, "mongodb://"), strings.HasPrefix(url, "mongodb+srv://"):
		c.DatabaseType = DatabaseMongoDB
	default:
		return errors.Newf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'mongodb://...')", url)
	}
	return nil
}

// Usage describes the environment variables WithEnv reads.
func Usage() string {
	var cfg ServerConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
