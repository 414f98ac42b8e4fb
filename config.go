package rolecalc

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/rolecalc/internal/logging"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override read by LoadConfig,
// for example ROLECALC_PROVIDER_ENDPOINT.
const EnvPrefix = "ROLECALC"

// Config holds every engine setting. Build copies it; later changes to the
// caller's value have no effect.
type Config struct {
	Provider    ProviderConfig    `yaml:"provider" split_words:"true"`
	API         APIConfig         `yaml:"api" split_words:"true"`
	Session     SessionConfig     `yaml:"session" split_words:"true"`
	Calculation CalculationConfig `yaml:"calculation" split_words:"true"`
	Phone       PhoneConfig       `yaml:"phone" split_words:"true"`
	Audit       AuditConfig       `yaml:"audit" split_words:"true"`
	Metrics     MetricsConfig     `yaml:"metrics" split_words:"true"`
	Logging     LoggingConfig     `yaml:"logging" split_words:"true"`
}

/*
====================================
PROVIDER CONFIG
====================================
*/

// ProviderConfig points the engine at the identity provider.
type ProviderConfig struct {
	Endpoint string        `yaml:"endpoint" split_words:"true"`
	ClientID string        `yaml:"client_id" split_words:"true"`
	Timeout  time.Duration `yaml:"timeout" split_words:"true"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig points the engine at the calculation and admin service.
type APIConfig struct {
	Endpoint string `yaml:"endpoint" split_words:"true"`
	// AuthScheme prefixes the token in the Authorization header. Empty sends
	// the raw token.
	AuthScheme string `yaml:"auth_scheme" split_words:"true"`
	// LoadRolesOnAuth fetches the role catalog whenever a principal is
	// established.
	LoadRolesOnAuth bool `yaml:"load_roles_on_auth" split_words:"true"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// Session backends accepted by SessionConfig.Backend.
const (
	SessionBackendMemory = "memory"
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
)

// SessionConfig selects where the principal's token is persisted.
type SessionConfig struct {
	Backend string `yaml:"backend" split_words:"true"`
	// Key names the single stored principal.
	Key string `yaml:"key" split_words:"true"`
	// Dir is the file backend directory.
	Dir         string        `yaml:"dir" split_words:"true"`
	RedisAddr   string        `yaml:"redis_addr" split_words:"true"`
	RedisDB     int           `yaml:"redis_db" split_words:"true"`
	RedisPrefix string        `yaml:"redis_prefix" split_words:"true"`
	FallbackTTL time.Duration `yaml:"fallback_ttl" split_words:"true"` // used when the token carries no exp
}

/*
====================================
CALCULATION CONFIG
====================================
*/

// CalculationConfig controls the calculation path.
type CalculationConfig struct {
	// OfflineFallback computes locally when the service is unreachable. The
	// local policy check still applies.
	OfflineFallback bool `yaml:"offline_fallback" split_words:"true"`
}

/*
====================================
PHONE CONFIG
====================================
*/

type PhoneConfig struct {
	IdentityPrefix string `yaml:"identity_prefix" split_words:"true"`
}

/*
====================================
AUDIT / METRICS / LOGGING
====================================
*/

type AuditConfig struct {
	Enabled    bool `yaml:"enabled" split_words:"true"`
	BufferSize int  `yaml:"buffer_size" split_words:"true"`
	DropIfFull bool `yaml:"drop_if_full" split_words:"true"`
}

type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" split_words:"true"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms" split_words:"true"`
}

// LoggingConfig is the logger configuration (level, format, output).
type LoggingConfig = logging.Config

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			LoadRolesOnAuth: true,
		},
		Session: SessionConfig{
			Backend:     SessionBackendMemory,
			Key:         "current",
			RedisPrefix: "rolecalc",
			FallbackTTL: time.Hour,
		},
		Calculation: CalculationConfig{
			OfflineFallback: false,
		},
		Phone: PhoneConfig{
			IdentityPrefix: "phone_",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "discard",
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
LOADING
====================================
*/

// LoadConfig starts from DefaultConfig, overlays the YAML file at path when
// path is not empty, then applies ROLECALC_* environment overrides.
func LoadConfig(path string) (Config, error) {
	return LoadConfigOver(defaultConfig(), path)
}

// LoadConfigOver is LoadConfig starting from base instead of DefaultConfig.
func LoadConfigOver(base Config, path string) (Config, error) {
	cfg := cloneConfig(base)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Provider
	if err := validateEndpoint("Provider Endpoint", c.Provider.Endpoint); err != nil {
		return err
	}
	if strings.TrimSpace(c.Provider.ClientID) == "" {
		return errors.New("Provider ClientID must be set")
	}
	if c.Provider.Timeout < 0 {
		return errors.New("Provider Timeout must be >= 0")
	}

	// API
	if err := validateEndpoint("API Endpoint", c.API.Endpoint); err != nil {
		return err
	}

	// Session
	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendFile:
		if c.Session.Dir == "" {
			return errors.New("Session Dir must be set for the file backend")
		}
	case SessionBackendRedis:
		if c.Session.RedisPrefix == "" {
			return errors.New("Session RedisPrefix must be set for the redis backend")
		}
		if c.Session.RedisDB < 0 {
			return errors.New("Session RedisDB must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported session backend %q", c.Session.Backend)
	}
	if c.Session.Key == "" {
		return errors.New("Session Key must be set")
	}
	if c.Session.FallbackTTL <= 0 {
		return errors.New("Session FallbackTTL must be > 0")
	}

	// Phone
	if c.Phone.IdentityPrefix == "" {
		return errors.New("Phone IdentityPrefix must be set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Logging
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.Logging.Format)
	}

	return nil
}

func validateEndpoint(name, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must be set", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
