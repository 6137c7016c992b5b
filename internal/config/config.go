package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	GRPC     GRPCConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Auth     AuthConfig
	NATS     NATSConfig
	Log      LogConfig
}

// ServiceConfig identifies the running service
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	CORSOrigins     []string
}

// GRPCConfig holds gRPC server configuration
type GRPCConfig struct {
	Port int
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
	Migrate     bool
}

// StorageConfig selects the storage backend
type StorageConfig struct {
	Driver string // postgres | memory

	// SeedUsers are user ids registered in the memory store at startup.
	SeedUsers []string
}

// AuthConfig holds bearer-token verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NATSConfig holds event publishing settings. An empty URL disables publishing.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		Service: ServiceConfig{
			Name:        l.str("SERVICE_NAME", "erp-approvals"),
			Version:     l.str("SERVICE_VERSION", "dev"),
			Environment: l.str("ENVIRONMENT", "development"),
		},
		Server: ServerConfig{
			Port:            l.int("HTTP_PORT", 8080),
			ReadTimeout:     l.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    l.duration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     l.duration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: l.duration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  l.duration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
			CORSOrigins:     l.list("CORS_ALLOWED_ORIGINS", "*"),
		},
		GRPC: GRPCConfig{
			Port: l.int("GRPC_PORT", 9090),
		},
		Database: DatabaseConfig{
			Host:        l.str("DB_HOST", "localhost"),
			Port:        l.int("DB_PORT", 5432),
			User:        l.str("DB_USER", "postgres"),
			Password:    l.str("DB_PASSWORD", ""),
			Database:    l.str("DB_NAME", "erp"),
			SSLMode:     l.str("DB_SSLMODE", "disable"),
			MaxConns:    int32(l.int("DB_MAX_CONNS", 20)),
			MinConns:    int32(l.int("DB_MIN_CONNS", 2)),
			MaxConnTime: l.duration("DB_MAX_CONN_LIFETIME", time.Hour),
			MaxIdleTime: l.duration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
			HealthCheck: l.duration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			Migrate:     l.bool("DB_MIGRATE", true),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(l.str("STORAGE_DRIVER", "postgres")),
			SeedUsers: l.list("MEMORY_SEED_USERS", ""),
		},
		Auth: AuthConfig{
			JWTSecret: l.str("JWT_SECRET", ""),
			Issuer:    l.str("JWT_ISSUER", ""),
		},
		NATS: NATSConfig{
			URL:           l.str("NATS_URL", ""),
			SubjectPrefix: l.str("NATS_SUBJECT_PREFIX", "notifications.erp"),
		},
		Log: LogConfig{
			Level: l.str("LOG_LEVEL", "info"),
		},
	}

	if len(l.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(l.errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid configuration: STORAGE_DRIVER must be postgres or memory, got %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("invalid configuration: JWT_SECRET is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("invalid configuration: DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// loader collects parse errors so Load can report all of them at once.
type loader struct {
	errs []string
}

func (l *loader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// list splits a comma-separated value, dropping empty items.
func (l *loader) list(key, def string) []string {
	var out []string
	for _, item := range strings.Split(l.str(key, def), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (l *loader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (l *loader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
