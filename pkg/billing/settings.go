package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrymomot/billing/pkg/config"
	"github.com/dmitrymomot/billing/pkg/validator"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	DefaultHost     = "recurly.com"
	DefaultTimeout  = 30 * time.Second

	// EnvPrefix is prepended to every variable read by LoadSettings.
	EnvPrefix = "BILLING_"
)

// Settings holds the credentials and routing used for remote calls and the
// default page size of listings.
type Settings struct {
	APIKey     string        `env:"API_KEY"`
	Subdomain  string        `env:"SUBDOMAIN"`
	PrivateKey string        `env:"PRIVATE_KEY"`
	PageSize   int           `env:"PAGE_SIZE" envDefault:"50"`
	Host       string        `env:"HOST" envDefault:"recurly.com"`
	BaseURL    string        `env:"BASE_URL"` // overrides Subdomain and Host when set
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// LoadSettings reads BILLING_* environment variables and validates them as
// given: BILLING_PAGE_SIZE outside 1..MaxPageSize is an error, not clamped.
// Extra options, such as config.WithEnvFiles, are applied after the prefix.
func LoadSettings(opts ...config.Option) (Settings, error) {
	var s Settings
	if err := config.Load(&s, append([]config.Option{config.WithPrefix(EnvPrefix)}, opts...)...); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s.withDefaults(), nil
}

// Validate checks the settings needed to reach the service.
func (s Settings) Validate() error {
	err := validator.Apply(
		validator.Required("api_key", s.APIKey),
		validator.When(s.BaseURL == "", validator.Required("subdomain", s.Subdomain)),
		validator.AmountRange("page_size", s.PageSize, 1, MaxPageSize),
	)
	if err != nil {
		return invalid(err, ErrInvalidSettings)
	}
	return nil
}

// Endpoint returns the API root URL without a trailing slash.
func (s Settings) Endpoint() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	host := s.Host
	if host == "" {
		host = DefaultHost
	}
	return fmt.Sprintf("https://%s.%s/v2", s.Subdomain, host)
}

func (s Settings) withDefaults() Settings {
	if s.PageSize <= 0 {
		s.PageSize = DefaultPageSize
	}
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}
