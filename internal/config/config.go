package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

const defaultPort = "3000"
const defaultCacheTTL = 20 * time.Second

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type Config struct {
	port             string
	cacheTTL         time.Duration
	connectionString string
	redisAddr        string
	sentryDSN        string
	env              environment
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) CacheTTL() time.Duration {
	return c.cacheTTL
}

// PostgresConnectionString is empty when the local default instance should be used.
func (c *Config) PostgresConnectionString() string {
	return c.connectionString
}

// RedisAddr is empty when the in-memory presence cache should be used.
func (c *Config) RedisAddr() string {
	return c.redisAddr
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf("Config{env: %s, port: %s, cacheTTL: %s, redis: %t, ...}", string(c.env), c.port, c.cacheTTL, c.redisAddr != "")
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("LANTERN_ENVIRONMENT")
	if !ok {
		return missingKey("LANTERN_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: LANTERN_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	cacheTTL := defaultCacheTTL
	if rawTTL := os.Getenv("CACHE_TTL_SECONDS"); rawTTL != "" {
		seconds, err := strconv.Atoi(rawTTL)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("%w: CACHE_TTL_SECONDS (%s)", ErrInvalidValue, rawTTL)
		}
		cacheTTL = time.Duration(seconds) * time.Second
	}

	connectionString := os.Getenv("POSTGRES_CONNECTION_STRING")
	redisAddr := os.Getenv("REDIS_ADDR")
	sentryDSN := os.Getenv("SENTRY_DSN")

	if env == production || env == staging {
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
		if connectionString == "" {
			return missingKey("POSTGRES_CONNECTION_STRING")
		}
	}

	return Config{
		port:             port,
		cacheTTL:         cacheTTL,
		connectionString: connectionString,
		redisAddr:        redisAddr,
		sentryDSN:        sentryDSN,
		env:              env,
	}, nil
}
