package config

import (
	"errors"
	"fmt"
	"maps"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option configures a single Load call.
type Option func(*options)

type options struct {
	prefix      string
	files       []string
	environment map[string]string
}

// WithPrefix only considers variables starting with prefix, e.g. "BILLING_".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithEnvFiles reads the given .env files. Files are read, not exported into
// the process environment, and real environment variables take precedence.
// Missing files are reported as ErrEnvFile.
func WithEnvFiles(files ...string) Option {
	return func(o *options) {
		o.files = append(o.files, files...)
	}
}

// WithEnvironment replaces the process environment with vars.
// Intended for tests that must not depend on the machine they run on.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) {
		o.environment = vars
	}
}

// Load parses environment variables into the provided configuration struct.
//
// Unlike a process-wide cache, every call parses again, so configuration can
// be re-applied after the environment changes.
//
// Example:
//
//	type Settings struct {
//		APIKey   string `env:"API_KEY,required"`
//		PageSize int    `env:"PAGE_SIZE" envDefault:"50"`
//	}
//
//	var s Settings
//	err := config.Load(&s, config.WithPrefix("BILLING_"))
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	vars := make(map[string]string)
	if len(o.files) > 0 {
		fileVars, err := godotenv.Read(o.files...)
		if err != nil {
			return errors.Join(ErrEnvFile, err)
		}
		maps.Copy(vars, fileVars)
	}

	if o.environment != nil {
		maps.Copy(vars, o.environment)
	} else {
		maps.Copy(vars, env.ToMap(os.Environ()))
	}

	if err := env.ParseWithOptions(v, env.Options{
		Prefix:      o.prefix,
		Environment: vars,
	}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
