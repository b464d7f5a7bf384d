// Package config loads configuration structs from environment variables.
//
// It wraps github.com/caarlos0/env/v11 for tag-based parsing and
// github.com/joho/godotenv for reading .env files:
//
//	type Settings struct {
//	    APIKey    string `env:"API_KEY,required"`
//	    Subdomain string `env:"SUBDOMAIN,required"`
//	    PageSize  int    `env:"PAGE_SIZE" envDefault:"50"`
//	}
//
//	var s Settings
//	err := config.Load(&s,
//	    config.WithPrefix("BILLING_"),
//	    config.WithEnvFiles(".env"),
//	)
//
// Values from .env files are overridden by real environment variables. Tests
// pass WithEnvironment to parse from an explicit map instead of the process
// environment.
//
// There is no global cache: each Load call parses again, so a test can load a
// different page size mid-run and apply it to a fresh client.
//
// Errors wrap the sentinels ErrParsingConfig, ErrEnvFile and ErrNilPointer
// and can be matched with errors.Is.
package config
