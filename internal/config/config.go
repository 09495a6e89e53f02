// Package config provides centralized configuration management for the notes API.
// It loads configuration from CLI flags and environment variables (optionally
// pre-loaded from a .env file), validates it, and provides sensible defaults.
//
// CLI flags pick the listen address and store backend (--addr, --store, --test).
// Environment variables provide connection strings and tuning.
package config

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kuitang/notes-api/internal/logutil"
	"github.com/kuitang/notes-api/internal/ratelimit"
)

// Store backends.
const (
	BackendMongo   = "mongo"
	BackendSurreal = "surreal"
	BackendSQLite  = "sqlite"
)

const (
	defaultListenAddr     = ":8080"
	defaultStoreTimeout   = 5 * time.Second
	defaultShutdown       = 10 * time.Second
	defaultMaxBodyBytes   = 1 << 20
	defaultMongoURI       = "mongodb://localhost:27017"
	defaultMongoDatabase  = "notes"
	defaultSurrealURL     = "ws://localhost:8000/rpc"
	defaultSurrealNS      = "notes"
	defaultSurrealDB      = "notes"
	defaultSQLitePath     = "./data/notes.db"
	sqliteMemoryPath      = ":memory:"
	sqliteKeyHexCharCount = 64
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr      string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration

	// Store
	Backend      string        // mongo | surreal | sqlite
	StoreTimeout time.Duration // bound on a single store call
	TestMode     bool          // --test: in-memory SQLite, nothing external

	MongoURI      string
	MongoDatabase string

	SurrealURL       string
	SurrealNamespace string
	SurrealDatabase  string
	SurrealUser      string
	SurrealPass      string

	SQLitePath string // file path or ":memory:"
	SQLiteKey  string // optional 64 hex characters (32 bytes)

	// Rate limiting
	RateLimitConfig ratelimit.Config
}

// Flags are the command-line overrides.
type Flags struct {
	Addr    string
	Store   string
	Test    bool
	EnvFile string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses --addr, --store, --test and --env-file from args
// (normally os.Args[1:]).
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	set := flag.NewFlagSet("notes-api", flag.ContinueOnError)
	set.SetOutput(io.Discard)
	set.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	set.StringVar(&f.Store, "store", "", "Store backend: mongo, surreal or sqlite (overrides STORE_BACKEND)")
	set.BoolVar(&f.Test, "test", false, "Use an in-memory SQLite store; no external services")
	set.StringVar(&f.EnvFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	if err := set.Parse(args); err != nil {
		return Flags{}, err
	}
	if set.NArg() > 0 {
		return Flags{}, fmt.Errorf("unexpected arguments: %s", strings.Join(set.Args(), " "))
	}
	return f, nil
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", defaultListenAddr)
	if f.Addr != "" {
		cfg.ListenAddr = f.Addr
	}
	cfg.MaxBodyBytes = int64(parseIntOrDefault("MAX_BODY_BYTES", defaultMaxBodyBytes))
	cfg.ShutdownTimeout = parseDurationOrDefault("SHUTDOWN_TIMEOUT", defaultShutdown)

	// Store
	cfg.Backend = strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendMongo))
	if f.Store != "" {
		cfg.Backend = strings.ToLower(f.Store)
	}
	cfg.StoreTimeout = parseDurationOrDefault("STORE_TIMEOUT", defaultStoreTimeout)

	cfg.MongoURI = getEnvOrDefault("MONGODB_URI", defaultMongoURI)
	cfg.MongoDatabase = getEnvOrDefault("MONGODB_DATABASE", defaultMongoDatabase)

	cfg.SurrealURL = getEnvOrDefault("SURREALDB_URL", defaultSurrealURL)
	cfg.SurrealNamespace = getEnvOrDefault("SURREALDB_NAMESPACE", defaultSurrealNS)
	cfg.SurrealDatabase = getEnvOrDefault("SURREALDB_DATABASE", defaultSurrealDB)
	cfg.SurrealUser = getEnvOrDefault("SURREALDB_USER", "")
	cfg.SurrealPass = getEnvOrDefault("SURREALDB_PASS", "")

	cfg.SQLitePath = getEnvOrDefault("SQLITE_PATH", defaultSQLitePath)
	cfg.SQLiteKey = getEnvOrDefault("SQLITE_KEY", "")

	if f.Test {
		cfg.TestMode = true
		cfg.Backend = BackendSQLite
		cfg.SQLitePath = sqliteMemoryPath
	}

	// Rate limiting
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, "MAX_BODY_BYTES must be positive")
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, "STORE_TIMEOUT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}

	switch c.Backend {
	case BackendMongo:
		if c.MongoURI == "" {
			errs = append(errs, "MONGODB_URI is required for the mongo backend")
		} else if !strings.HasPrefix(c.MongoURI, "mongodb://") && !strings.HasPrefix(c.MongoURI, "mongodb+srv://") {
			errs = append(errs, "MONGODB_URI must start with mongodb:// or mongodb+srv://")
		}
	case BackendSurreal:
		if c.SurrealURL == "" {
			errs = append(errs, "SURREALDB_URL is required for the surreal backend")
		}
		if c.SurrealNamespace == "" || c.SurrealDatabase == "" {
			errs = append(errs, "SURREALDB_NAMESPACE and SURREALDB_DATABASE are required for the surreal backend")
		}
		if (c.SurrealUser == "") != (c.SurrealPass == "") {
			errs = append(errs, "SURREALDB_USER and SURREALDB_PASS must be set together")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required for the sqlite backend")
		}
		if c.SQLiteKey != "" {
			if _, err := hex.DecodeString(c.SQLiteKey); err != nil || len(c.SQLiteKey) != sqliteKeyHexCharCount {
				errs = append(errs, "SQLITE_KEY must be 64 hex characters (32 bytes)")
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND %q is not one of mongo, surreal, sqlite", c.Backend))
	}

	// A zero rate disables limiting; negative values are mistakes.
	if c.RateLimitConfig.RPS < 0 {
		errs = append(errs, "RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitConfig.RPS > 0 && c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive when RATE_LIMIT_RPS is set")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "notes-api server starting...")

	switch c.Backend {
	case BackendMongo:
		fmt.Fprintf(w, "  Store:   MongoDB (%s, db: %s)\n", logutil.RedactURI(c.MongoURI), c.MongoDatabase)
	case BackendSurreal:
		fmt.Fprintf(w, "  Store:   SurrealDB (%s, ns: %s, db: %s)\n", c.SurrealURL, c.SurrealNamespace, c.SurrealDatabase)
	case BackendSQLite:
		if c.TestMode || c.SQLitePath == sqliteMemoryPath {
			fmt.Fprintln(w, "  Store:   SQLite in-memory (--test)")
		} else {
			encrypted := "plain"
			if c.SQLiteKey != "" {
				encrypted = "encrypted"
			}
			fmt.Fprintf(w, "  Store:   SQLite (%s, %s)\n", c.SQLitePath, encrypted)
		}
	}
	fmt.Fprintf(w, "  Timeout: %s per store call\n", c.StoreTimeout)

	if c.RateLimitConfig.Enabled() {
		fmt.Fprintf(w, "  Limits:  %.0f rps, burst %d per client\n", c.RateLimitConfig.RPS, c.RateLimitConfig.Burst)
	} else {
		fmt.Fprintln(w, "  Limits:  disabled")
	}

	fmt.Fprintf(w, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := getEnvOrDefault(key, "")
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
