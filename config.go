package searchpool

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/searchpool/core/config"
	"github.com/dmitrymomot/searchpool/integration/database/opensearch"
)

// Config holds client configuration. Fields map to environment variables so
// the struct can be filled with NewFromEnv.
type Config struct {
	Endpoint       string        `env:"SEARCH_ENDPOINT" envDefault:"http://127.0.0.1:9200/"`
	MaxConnections int           `env:"SEARCH_MAX_CONNECTIONS" envDefault:"10"`
	RequestTimeout time.Duration `env:"SEARCH_REQUEST_TIMEOUT" envDefault:"0s"` // 0 means bounded only by ctx
	DialTimeout    time.Duration `env:"SEARCH_DIAL_TIMEOUT" envDefault:"5s"`
	MaxIdleTime    time.Duration `env:"SEARCH_MAX_IDLE_TIME" envDefault:"0s"` // 0 keeps idle connections forever

	// Lazy indexing. LazyThreshold 0 makes Index send every document at once.
	LazyThreshold int           `env:"SEARCH_LAZY_THRESHOLD" envDefault:"1000"`
	LazyPeriod    time.Duration `env:"SEARCH_LAZY_PERIOD" envDefault:"5s"`
	IDField       string        `env:"SEARCH_ID_FIELD" envDefault:"_id"` // empty falls back to _id
}

// DefaultConfig returns the configuration used when no environment overrides
// are present.
func DefaultConfig() Config {
	return Config{
		Endpoint:       "http://127.0.0.1:9200/",
		MaxConnections: 10,
		DialTimeout:    5 * time.Second,
		LazyThreshold:  1000,
		LazyPeriod:     5 * time.Second,
		IDField:        defaultIDField,
	}
}

// LoadConfig reads Config from the environment (and a .env file, if any).
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}
	return cfg, nil
}

// validate checks cfg and returns the parsed endpoint.
func (cfg Config) validate() (opensearch.Endpoint, error) {
	endpoint, err := opensearch.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		return opensearch.Endpoint{}, errors.Join(ErrInvalidConfig, err)
	}

	switch {
	case cfg.MaxConnections <= 0:
		return opensearch.Endpoint{}, fmt.Errorf("%w: max connections must be positive, got %d", ErrInvalidConfig, cfg.MaxConnections)
	case cfg.RequestTimeout < 0:
		return opensearch.Endpoint{}, fmt.Errorf("%w: request timeout must not be negative", ErrInvalidConfig)
	case cfg.DialTimeout < 0:
		return opensearch.Endpoint{}, fmt.Errorf("%w: dial timeout must not be negative", ErrInvalidConfig)
	case cfg.MaxIdleTime < 0:
		return opensearch.Endpoint{}, fmt.Errorf("%w: max idle time must not be negative", ErrInvalidConfig)
	case cfg.LazyThreshold < 0:
		return opensearch.Endpoint{}, fmt.Errorf("%w: lazy threshold must not be negative", ErrInvalidConfig)
	case cfg.LazyPeriod < 0:
		return opensearch.Endpoint{}, fmt.Errorf("%w: lazy period must not be negative", ErrInvalidConfig)
	}

	return endpoint, nil
}
