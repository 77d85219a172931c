package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP     HTTPConfig
	Graph    GraphConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Matching MatchingConfig
	Logging  LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MetricsEnabled    bool
	AllowedOriginsCSV string
}

// GraphConfig describes connectivity to the Neo4j graph database.
type GraphConfig struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

// RedisConfig points at the reservation store. An empty Addr keeps
// reservations in process memory.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// PostgresConfig points at the hosted profile database used as an
// alternative donor and inventory source.
type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// Candidate sources.
const (
	SourceGraph    = "graph"
	SourcePostgres = "postgres"
)

// MatchingConfig holds matching policy.
type MatchingConfig struct {
	DefaultRadiusKm    float64
	ReservationTTL     time.Duration
	EnforceEligibility bool
	CompatibilityFile  string
	CandidateSource    string
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
	defaultGraphMaxSessions = 10
	defaultRedisKeyPrefix   = "reddrop:"
	defaultPostgresMaxConns = 4
	defaultRadiusKm         = 20.0
	defaultReservationTTL   = 30 * time.Minute
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Host: valueOrDefault("SERVER_HOST", defaultHost),
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
		Graph: GraphConfig{
			URI:            os.Getenv("GRAPH_URI"),
			Database:       valueOrDefault("GRAPH_DATABASE", ""),
			Username:       os.Getenv("GRAPH_USERNAME"),
			Password:       os.Getenv("GRAPH_PASSWORD"),
			MaxConnections: parseIntWithDefault("GRAPH_MAX_CONNECTIONS", defaultGraphMaxSessions),
		},
		Redis: RedisConfig{
			Addr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        parseIntWithDefault("REDIS_DB", 0),
			KeyPrefix: valueOrDefault("REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
		},
		Postgres: PostgresConfig{
			DSN:      os.Getenv("POSTGRES_DSN"),
			MaxConns: parseIntWithDefault("POSTGRES_MAX_CONNS", defaultPostgresMaxConns),
		},
		Matching: MatchingConfig{
			EnforceEligibility: parseBoolWithDefault("MATCH_ENFORCE_ELIGIBILITY", true),
			CompatibilityFile:  os.Getenv("MATCH_COMPATIBILITY_FILE"),
			CandidateSource:    strings.ToLower(valueOrDefault("CANDIDATE_SOURCE", SourceGraph)),
		},
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", defaultReadTimeout, &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", defaultWriteTimeout, &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", defaultIdleTimeout, &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.HTTP.ShutdownTimeout},
		{"MATCH_RESERVATION_TTL", defaultReservationTTL, &cfg.Matching.ReservationTTL},
	}
	for _, d := range durations {
		val, err := parseDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.dst = val
	}
	if cfg.Matching.ReservationTTL <= 0 {
		return Config{}, fmt.Errorf("MATCH_RESERVATION_TTL must be positive, got %s", cfg.Matching.ReservationTTL)
	}

	radius, err := parseRadius("MATCH_DEFAULT_RADIUS_KM", defaultRadiusKm)
	if err != nil {
		return Config{}, err
	}
	cfg.Matching.DefaultRadiusKm = radius

	switch cfg.Matching.CandidateSource {
	case SourceGraph:
	case SourcePostgres:
		if cfg.Postgres.DSN == "" {
			return Config{}, fmt.Errorf("CANDIDATE_SOURCE=postgres requires POSTGRES_DSN")
		}
	default:
		return Config{}, fmt.Errorf("invalid CANDIDATE_SOURCE %q (want %s or %s)", cfg.Matching.CandidateSource, SourceGraph, SourcePostgres)
	}

	cfg.HTTP.MetricsEnabled = parseBoolWithDefault("SERVER_METRICS_ENABLED", false)
	cfg.HTTP.AllowedOriginsCSV = os.Getenv("SERVER_ALLOWED_ORIGINS")

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

// parseRadius accepts any non-negative number, including "+Inf" for an
// unbounded search.
func parseRadius(key string, fallback float64) (float64, error) {
	if v := os.Getenv(key); v != "" {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if math.IsNaN(radius) || radius < 0 {
			return 0, fmt.Errorf("%s must be a non-negative number, got %q", key, v)
		}
		return radius, nil
	}
	return fallback, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
