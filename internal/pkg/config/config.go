package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	Username string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	// Addr is host:port. Empty keeps challenge pools in process memory.
	Addr     string
	Password string
	DB       int
}

type RepositoriesConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

type ServicesConfig struct {
	OverpassURL        string
	OverpassTimeout    time.Duration
	POIMemoTTL         time.Duration
	GeminiAPIKey       string
	DescriptionTimeout time.Duration
	DescriptionMemoTTL time.Duration
	// NATSURL enables cross-instance completion events. Empty dispatches in-process.
	NATSURL string
}

type ChallengeConfig struct {
	TargetCount                  int
	SearchRadiusMeters           float64
	MinDistanceMeters            float64
	ReplacementMinDistanceMeters float64
	PoolTTL                      time.Duration
	CompletedWindow              time.Duration
	MaxParticipants              int
	EnrichConcurrency            int
	ReconcileEphemeral           bool
	RefreshTimeout               time.Duration
	RestaurantCap                int
	DefaultCategoryCap           int
	TopUpMinMeters               float64
	TopUpMaxMeters               float64
	StaticMinMeters              float64
	StaticMaxMeters              float64
	// CreatorID owns generated challenges. Empty uses the built-in system creator.
	CreatorID                    string
}

type ObservabilityConfig struct {
	ServiceName       string
	MetricsAddr       string
	CollectorEndpoint string
	PprofEnabled      bool
	LogLevel          string
	LogEncoding       string
}

type Config struct {
	Repositories  RepositoriesConfig
	Services      ServicesConfig
	Challenges    ChallengeConfig
	Observability ObservabilityConfig
	ServerPort    string
	Mode          string
}

func Load() (*Config, error) {
	cfg := &Config{
		Repositories: RepositoriesConfig{
			Postgres: PostgresConfig{
				Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:     getEnvOrDefault("POSTGRES_PORT", "5454"),
				DB:       getEnvOrDefault("POSTGRES_DB", "loci_challenges"),
				Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
				Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
				SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
				MaxConns: 30,
				MinConns: 5,
			},
			Redis: RedisConfig{
				Addr:     getEnvOrDefault("REDIS_ADDR", ""),
				Password: getEnvOrDefault("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
			},
		},
		Services: ServicesConfig{
			OverpassURL:        getEnvOrDefault("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
			OverpassTimeout:    getEnvDuration("OVERPASS_TIMEOUT", 25*time.Second),
			POIMemoTTL:         getEnvDuration("POI_MEMO_TTL", 2*time.Minute),
			GeminiAPIKey:       getEnvOrDefault("GEMINI_API_KEY", ""),
			DescriptionTimeout: getEnvDuration("DESCRIPTION_TIMEOUT", 10*time.Second),
			DescriptionMemoTTL: getEnvDuration("DESCRIPTION_MEMO_TTL", 30*time.Minute),
			NATSURL:            getEnvOrDefault("NATS_URL", ""),
		},
		Challenges: ChallengeConfig{
			TargetCount:                  getEnvInt("CHALLENGE_TARGET_COUNT", 10),
			SearchRadiusMeters:           getEnvFloat("CHALLENGE_SEARCH_RADIUS_METERS", 3000),
			MinDistanceMeters:            getEnvFloat("CHALLENGE_MIN_DISTANCE_METERS", 100),
			ReplacementMinDistanceMeters: getEnvFloat("CHALLENGE_REPLACEMENT_MIN_DISTANCE_METERS", 200),
			PoolTTL:                      getEnvDuration("CHALLENGE_POOL_TTL", time.Hour),
			CompletedWindow:              getEnvDuration("CHALLENGE_COMPLETED_WINDOW", 7*24*time.Hour),
			MaxParticipants:              getEnvInt("CHALLENGE_MAX_PARTICIPANTS", 50),
			EnrichConcurrency:            getEnvInt("CHALLENGE_ENRICH_CONCURRENCY", 4),
			ReconcileEphemeral:           getEnvBool("CHALLENGE_RECONCILE_EPHEMERAL", true),
			RefreshTimeout:               getEnvDuration("CHALLENGE_REFRESH_TIMEOUT", 90*time.Second),
			RestaurantCap:                getEnvInt("CHALLENGE_RESTAURANT_CAP", 1),
			DefaultCategoryCap:           getEnvInt("CHALLENGE_DEFAULT_CATEGORY_CAP", 2),
			TopUpMinMeters:               getEnvFloat("CHALLENGE_TOPUP_MIN_METERS", 200),
			TopUpMaxMeters:               getEnvFloat("CHALLENGE_TOPUP_MAX_METERS", 1200),
			StaticMinMeters:              getEnvFloat("CHALLENGE_STATIC_MIN_METERS", 100),
			StaticMaxMeters:              getEnvFloat("CHALLENGE_STATIC_MAX_METERS", 1600),
			CreatorID:                    getEnvOrDefault("CHALLENGE_CREATOR_ID", ""),
		},
		Observability: ObservabilityConfig{
			ServiceName:       getEnvOrDefault("OTEL_SERVICE_NAME", "loci-challenges"),
			MetricsAddr:       getEnvOrDefault("METRICS_ADDR", ":9091"),
			CollectorEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			PprofEnabled:      getEnvBool("PPROF_ENABLED", false),
			LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
			LogEncoding:       getEnvOrDefault("LOG_ENCODING", "json"),
		},
		ServerPort: getEnvOrDefault("SERVER_PORT", "8091"),
		Mode:       getEnvOrDefault("GIN_MODE", "release"),
	}

	if cfg.Repositories.Postgres.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable is required")
	}
	if cfg.Challenges.TargetCount <= 0 {
		return nil, fmt.Errorf("CHALLENGE_TARGET_COUNT must be positive, got %d", cfg.Challenges.TargetCount)
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
