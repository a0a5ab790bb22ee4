package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/shopload/internal/ingest"
)

// FileEnv names the environment variable that points at a YAML config file.
const FileEnv = "SHOPLOAD_CONFIG"

// Load builds the configuration: tag defaults, then the YAML file at path
// (or $SHOPLOAD_CONFIG when path is empty), then environment variables.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	v := reflect.ValueOf(cfg).Elem()

	if err := loadStruct(v, defaultsPass); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
	}

	if err := loadStruct(v, envPass); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadFile merges a YAML document over cfg. Keys absent from the file keep
// their current values; unknown keys are an error.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

type pass int

const (
	defaultsPass pass = iota // apply `default` tags
	envPass                  // override with set environment variables
)

// loadStruct recursively walks struct fields and applies one pass.
func loadStruct(v reflect.Value, p pass) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, p); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		var value string
		switch p {
		case defaultsPass:
			value = field.Tag.Get("default")
		case envPass:
			// Try primary env var, then alternate
			value = os.Getenv(envName)
			if alt := field.Tag.Get("envAlt"); value == "" && alt != "" {
				value = os.Getenv(alt)
			}
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int32, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Split comma-separated values, trim whitespace
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	switch c.Backend {
	case BackendPostgres:
		if c.Postgres.URL == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "PG_HOST is required when DATABASE_URL is not set")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("PG_PORT (%d) must be 1-65535", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "PG_DATABASE is required when DATABASE_URL is not set")
			}
		}
		if c.Postgres.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, "SQLITE_PATH is required for the sqlite backend")
		}
	case BackendMongo:
		if c.Mongo.URI == "" && (c.Mongo.Port <= 0 || c.Mongo.Port > 65535) {
			errs = append(errs, fmt.Sprintf("MONGO_PORT (%d) must be 1-65535", c.Mongo.Port))
		}
		if c.Mongo.Database == "" {
			errs = append(errs, "MONGO_DATABASE is required for the mongodb backend")
		}
		if c.Mongo.ConnectTimeout <= 0 {
			errs = append(errs, "MONGO_CONNECT_TIMEOUT must be positive")
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("SHOPLOAD_BACKEND (%q) must be one of: postgres, sqlite, mongodb, memory", c.Backend))
	}

	// Ingest validation
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, "INGEST_CHUNK_SIZE must be positive")
	}
	if c.Ingest.Timeout <= 0 {
		errs = append(errs, "INGEST_TIMEOUT must be positive")
	}
	for _, name := range c.Ingest.Entities {
		if _, err := ingest.ParseEntityType(name); err != nil {
			errs = append(errs, fmt.Sprintf("INGEST_ENTITIES: %v", err))
		}
	}
	for name := range c.Ingest.Files {
		if _, err := ingest.ParseEntityType(name); err != nil {
			errs = append(errs, fmt.Sprintf("ingest.files: %v", err))
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// EntityTypes returns the configured entity subset, or nil for all of them.
// Names must already have passed Validate.
func (c *IngestConfig) EntityTypes() []ingest.EntityType {
	if len(c.Entities) == 0 {
		return nil
	}
	out := make([]ingest.EntityType, 0, len(c.Entities))
	for _, name := range c.Entities {
		if e, err := ingest.ParseEntityType(name); err == nil {
			out = append(out, e)
		}
	}
	return out
}

// Sources returns the CSV sources described by the ingest settings.
func (c *IngestConfig) Sources() ingest.DirSources {
	src := ingest.DirSources{Dir: c.DataDir}
	if len(c.Files) > 0 {
		src.Overrides = make(map[ingest.EntityType]string, len(c.Files))
		for name, path := range c.Files {
			src.Overrides[ingest.EntityType(name)] = path
		}
	}
	return src
}

// String returns a safe string representation of the config for logging.
// Passwords and connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Backend: %q, ", c.Backend))
	b.WriteString(fmt.Sprintf("Postgres: {URL: %s, Host: %q, Port: %d, User: %q, Password: %s, Database: %q, MaxConns: %d}, ",
		mask(c.Postgres.URL), c.Postgres.Host, c.Postgres.Port, c.Postgres.User, mask(c.Postgres.Password),
		c.Postgres.Database, c.Postgres.MaxConns))
	b.WriteString(fmt.Sprintf("SQLite: {Path: %q}, ", c.SQLite.Path))
	b.WriteString(fmt.Sprintf("Mongo: {URI: %s, Host: %q, Port: %d, Database: %q, Username: %q, Password: %s}, ",
		mask(c.Mongo.URI), c.Mongo.Host, c.Mongo.Port, c.Mongo.Database, c.Mongo.Username, mask(c.Mongo.Password)))
	b.WriteString(fmt.Sprintf("Ingest: {DataDir: %q, Entities: %v, ChunkSize: %d, Timeout: %s}, ",
		c.Ingest.DataDir, c.Ingest.Entities, c.Ingest.ChunkSize, c.Ingest.Timeout))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q, File: %q}",
		c.Logging.Level, c.Logging.Format, c.Logging.File))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "[MASKED]"
}
