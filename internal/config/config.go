package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains application configuration.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	APIToken      string
	LogLevel      slog.Level
	MigrationsDir string

	WeatherTTL       time.Duration
	LocationCacheTTL time.Duration

	ProviderRPS        float64
	RateLimitPerMinute int

	Keys APIKeys
}

// APIKeys holds one key per third-party provider.
type APIKeys struct {
	Geocode string
	Weather string
	Yelp    string
	TMDB    string
	Meetup  string
	Trail   string
}

// Load reads configuration from environment variables and .env.
// Every missing required variable is reported in a single error.
func Load() (Config, error) {
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (Config, error) {
	var errs []error

	required := func(key string) string {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return v
	}
	optional := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}
	duration := func(key string, fallback time.Duration) time.Duration {
		raw := optional(key, "")
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return fallback
		}
		return d
	}

	cfg := Config{
		Port:          optional("PORT", "3000"),
		DatabaseURL:   required("DATABASE_URL"),
		RedisURL:      required("REDIS_URL"),
		APIToken:      optional("API_TOKEN", ""),
		MigrationsDir: optional("MIGRATIONS_DIR", ""),

		WeatherTTL:       duration("WEATHER_TTL", time.Minute),
		LocationCacheTTL: duration("LOCATION_CACHE_TTL", 24*time.Hour),

		Keys: APIKeys{
			Geocode: required("GEOCODE_API_KEY"),
			Weather: required("WEATHER_API_KEY"),
			Yelp:    required("YELP_API_KEY"),
			TMDB:    required("TMDB_API_KEY"),
			Meetup:  required("MEETUP_API_KEY"),
			Trail:   required("TRAIL_API_KEY"),
		},
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(optional("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	rps, err := strconv.ParseFloat(optional("PROVIDER_RPS", "5"), 64)
	if err != nil || rps <= 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_RPS must be a positive number"))
	}
	cfg.ProviderRPS = rps

	perMinute, err := strconv.Atoi(optional("RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil || perMinute <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be a positive integer"))
	}
	cfg.RateLimitPerMinute = perMinute

	if cfg.WeatherTTL < 0 {
		errs = append(errs, fmt.Errorf("WEATHER_TTL must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}

	return cfg, nil
}
