package config

import (
	"os"
	"strings"
	"time"

	platstrings "rollbook/pkg/platform/strings"
)

// Backend selects which store implementation the process runs against.
type Backend string

const (
	BackendNotion   Backend = "notion"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendMemory   Backend = "memory"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
	// JWTSigningKey enables bearer auth on mutating routes. When empty the
	// server runs in dev mode and attributes writes to "dev".
	JWTSigningKey string
}

// Notion holds credentials for the remote page-store backend.
type Notion struct {
	Token        string
	ParentPageID string
}

// RedisConfig holds connection settings for the roster cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RosterTTL    time.Duration
}

// Kafka holds change-event publishing settings. Empty brokers disable it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full process configuration assembled from the environment.
type Config struct {
	Server        Server
	Backend       Backend
	Notion        Notion
	DatabaseURL   string
	SQLitePath    string
	RegisterTitle string
	WeekEncoding  string
	Redis         RedisConfig
	Kafka         Kafka
}

// FromEnv builds the configuration from environment variables so main stays
// lean. The backend is chosen explicitly via ROLLBOOK_BACKEND, or inferred
// from which credentials are present.
func FromEnv() Config {
	cfg := Config{
		Server: Server{
			Addr:          envOr("ROLLBOOK_ADDR", ":8080"),
			JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		},
		Notion: Notion{
			Token:        os.Getenv("NOTION_TOKEN"),
			ParentPageID: os.Getenv("NOTION_PARENT_PAGE_ID"),
		},
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    os.Getenv("SQLITE_PATH"),
		RegisterTitle: envOr("REGISTER_TITLE", "Attendance Register"),
		WeekEncoding:  envOr("CSV_WEEK_ENCODING", "numeric"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			RosterTTL:    30 * time.Second,
		},
		Kafka: Kafka{
			Topic: envOr("KAFKA_TOPIC", "rollbook.attendance"),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = platstrings.DedupeAndTrim(strings.Split(brokers, ","))
	}

	cfg.Backend = resolveBackend(cfg)
	return cfg
}

func resolveBackend(cfg Config) Backend {
	switch Backend(strings.ToLower(os.Getenv("ROLLBOOK_BACKEND"))) {
	case BackendNotion:
		return BackendNotion
	case BackendPostgres:
		return BackendPostgres
	case BackendSQLite:
		return BackendSQLite
	case BackendMemory:
		return BackendMemory
	}
	switch {
	case cfg.Notion.Token != "":
		return BackendNotion
	case strings.HasPrefix(cfg.DatabaseURL, "sqlite:"):
		return BackendSQLite
	case cfg.DatabaseURL != "":
		return BackendPostgres
	case cfg.SQLitePath != "":
		return BackendSQLite
	default:
		return BackendMemory
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
