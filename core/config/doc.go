// Package config provides type-safe environment variable loading with caching
// using Go generics. Each configuration type is loaded once and cached for
// subsequent calls.
//
// The package loads a .env file from the working directory on first use (a
// missing file is not an error) and uses the caarlos0/env library for parsing
// environment variables into struct fields.
//
// Basic usage:
//
//	import "github.com/dmitrymomot/searchpool/core/config"
//
//	type SearchConfig struct {
//		Endpoint       string `env:"SEARCH_ENDPOINT" envDefault:"http://127.0.0.1:9200/"`
//		MaxConnections int    `env:"SEARCH_MAX_CONNECTIONS" envDefault:"10"`
//	}
//
//	func main() {
//		var cfg SearchConfig
//
//		// Load with error handling
//		if err := config.Load(&cfg); err != nil {
//			log.Fatal(err)
//		}
//
//		// Or panic on failure (useful for startup)
//		config.MustLoad(&cfg)
//	}
//
// # Caching Behavior
//
// Each configuration type is loaded only once per process. Later calls for the
// same type return the cached value even if the environment changed; different
// types are cached independently.
package config
