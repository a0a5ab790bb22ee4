// Package config provides centralized configuration management for the loader.
// Values come from struct tag defaults, an optional YAML file and environment
// variables, in increasing order of precedence, and are validated before use.
package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Supported storage backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongodb"
	BackendMemory   = "memory"
)

// Config holds all loader configuration.
type Config struct {
	// Backend selects the store: postgres, sqlite, mongodb or memory (default: postgres)
	Backend string `yaml:"backend" env:"SHOPLOAD_BACKEND" default:"postgres"`

	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	// URL is a full connection string. When set it wins over the discrete fields.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL"`

	Host     string `yaml:"host" env:"PG_HOST" default:"localhost"`
	Port     int    `yaml:"port" env:"PG_PORT" default:"5432"`
	User     string `yaml:"user" env:"PG_USER" default:"postgres"`
	Password string `yaml:"password" env:"PG_PASSWORD" default:"password"`
	Database string `yaml:"database" env:"PG_DATABASE" default:"chatbot_ecommerce"`
	SSLMode  string `yaml:"sslmode" env:"PG_SSLMODE" default:"disable"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" default:"4"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:" (default: shopload.db)
	Path string `yaml:"path" env:"SQLITE_PATH" default:"shopload.db"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	// URI is a full connection string. When set it wins over host and port.
	URI string `yaml:"uri" env:"MONGO_URI"`

	Host     string `yaml:"host" env:"MONGO_HOST" default:"localhost"`
	Port     int    `yaml:"port" env:"MONGO_PORT" default:"27017"`
	Database string `yaml:"database" env:"MONGO_DATABASE" default:"chatbot_ecommerce"`
	Username string `yaml:"username" env:"MONGO_USERNAME"`
	Password string `yaml:"password" env:"MONGO_PASSWORD"`

	// ConnectTimeout bounds server selection and dialing (default: 10s)
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"MONGO_CONNECT_TIMEOUT" default:"10s"`
}

// IngestConfig holds ingestion run settings.
type IngestConfig struct {
	// DataDir holds one <entity>.csv file per entity type (default: data)
	DataDir string `yaml:"data_dir" env:"INGEST_DATA_DIR" default:"data"`

	// Files overrides the path of individual sources, keyed by entity type.
	Files map[string]string `yaml:"files"`

	// Entities restricts the run to a subset, comma-separated (default: all)
	Entities []string `yaml:"entities" env:"INGEST_ENTITIES"`

	// ChunkSize is the number of records written per transaction or InsertMany (default: 500)
	ChunkSize int `yaml:"chunk_size" env:"INGEST_CHUNK_SIZE" default:"500"`

	// Timeout bounds a whole run (default: 30m)
	Timeout time.Duration `yaml:"timeout" env:"INGEST_TIMEOUT" default:"30m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`

	// File additionally receives every log line when set
	File string `yaml:"file" env:"LOG_FILE"`
}

// DSN returns the connection string for pgxpool.
func (c *PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// ConnectionURI returns the MongoDB connection string. With credentials the
// database is part of the path, which makes it the authentication source.
func (c *MongoConfig) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme: "mongodb",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
		u.Path = "/" + c.Database
	}
	return u.String()
}
