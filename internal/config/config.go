// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Journal database
	DatabaseURL string `koanf:"database_url"`

	// Session store. When empty, sessions are held in process memory
	// (single-instance deployments and tests only).
	RedisURL string `koanf:"redis_url"`

	// JWT Authentication
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`

	// Storefront backend (design/order/shipping/wallet services)
	BackendBaseURL string `koanf:"backend_base_url"`

	// Notification service
	NotifyBaseURL string `koanf:"notify_base_url"`

	// VNPay gateway
	VNPayTmnCode    string `koanf:"vnpay_tmn_code"`
	VNPayHashSecret string `koanf:"vnpay_hash_secret"`
	VNPayPayURL     string `koanf:"vnpay_pay_url"`
	VNPayReturnURL  string `koanf:"vnpay_return_url"`

	// Stripe (international-card wallet top-ups)
	StripeAPIKey     string `koanf:"stripe_api_key"`
	StripeSuccessURL string `koanf:"stripe_success_url"`
	StripeCancelURL  string `koanf:"stripe_cancel_url"`

	// Revision pipeline settling delay in milliseconds
	SettleDelayMS int `koanf:"settle_delay_ms"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporterType string  `koanf:"tracing_exporter_type"`
	TracingOTLPEndpoint string  `koanf:"tracing_otlp_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL     = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret       = errors.New("JWT_SECRET is required")
	ErrMissingBackendBaseURL  = errors.New("BACKEND_BASE_URL is required")
	ErrMissingNotifyBaseURL   = errors.New("NOTIFY_BASE_URL is required")
	ErrMissingVNPayTmnCode    = errors.New("VNPAY_TMN_CODE is required")
	ErrMissingVNPayHashSecret = errors.New("VNPAY_HASH_SECRET is required")
	ErrMissingVNPayPayURL     = errors.New("VNPAY_PAY_URL is required")
	ErrMissingVNPayReturnURL  = errors.New("VNPAY_RETURN_URL is required")
	ErrMissingStripeAPIKey    = errors.New("STRIPE_API_KEY is required")
	ErrInvalidPort            = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort          = 8080
	DefaultEnv           = "development"
	DefaultSettleDelayMS = 2000
	DefaultSamplingRate  = 0.1
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	settleDelay, settleErr := getEnvIntOrDefault("SETTLE_DELAY_MS", k.Int("settle_delay_ms"), DefaultSettleDelayMS)
	if settleErr != nil {
		loadErrs = append(loadErrs, settleErr)
	}

	samplingRate, samplingErr := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultSamplingRate)
	if samplingErr != nil {
		loadErrs = append(loadErrs, samplingErr)
	}

	cfg := &Config{
		Port:              port,
		Env:               getEnvOrDefault("ENV", k.String("env"), DefaultEnv),
		DatabaseURL:       getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:          getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		JWTSecret:         getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret: getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		BackendBaseURL:    getEnvOrKoanf("BACKEND_BASE_URL", k, "backend_base_url"),
		NotifyBaseURL:     getEnvOrKoanf("NOTIFY_BASE_URL", k, "notify_base_url"),
		VNPayTmnCode:      getEnvOrKoanf("VNPAY_TMN_CODE", k, "vnpay_tmn_code"),
		VNPayHashSecret:   getEnvOrKoanf("VNPAY_HASH_SECRET", k, "vnpay_hash_secret"),
		VNPayPayURL:       getEnvOrKoanf("VNPAY_PAY_URL", k, "vnpay_pay_url"),
		VNPayReturnURL:    getEnvOrKoanf("VNPAY_RETURN_URL", k, "vnpay_return_url"),
		StripeAPIKey:      getEnvOrKoanf("STRIPE_API_KEY", k, "stripe_api_key"),
		StripeSuccessURL:  getEnvOrKoanf("STRIPE_SUCCESS_URL", k, "stripe_success_url"),
		StripeCancelURL:   getEnvOrKoanf("STRIPE_CANCEL_URL", k, "stripe_cancel_url"),
		SettleDelayMS:     settleDelay,

		TracingEnabled:      getEnvBool("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporterType: getEnvOrKoanf("TRACING_EXPORTER_TYPE", k, "tracing_exporter_type"),
		TracingOTLPEndpoint: getEnvOrKoanf("TRACING_OTLP_ENDPOINT", k, "tracing_otlp_endpoint"),
		TracingSamplingRate: samplingRate,
		TracingInsecure:     getEnvBool("TRACING_INSECURE", k, "tracing_insecure"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool if set, otherwise the koanf value.
func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return k.Bool(koanfKey)
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.BackendBaseURL == "" {
		errs = append(errs, ErrMissingBackendBaseURL)
	}
	if c.NotifyBaseURL == "" {
		errs = append(errs, ErrMissingNotifyBaseURL)
	}

	// VNPay configuration stands or falls together.
	if c.VNPayTmnCode != "" || c.VNPayHashSecret != "" || c.VNPayPayURL != "" || c.VNPayReturnURL != "" {
		if c.VNPayTmnCode == "" {
			errs = append(errs, ErrMissingVNPayTmnCode)
		}
		if c.VNPayHashSecret == "" {
			errs = append(errs, ErrMissingVNPayHashSecret)
		}
		if c.VNPayPayURL == "" {
			errs = append(errs, ErrMissingVNPayPayURL)
		}
		if c.VNPayReturnURL == "" {
			errs = append(errs, ErrMissingVNPayReturnURL)
		}
	}

	// Stripe is optional; top-up checkout is disabled without it, but when
	// success/cancel URLs are set the key must be too.
	if (c.StripeSuccessURL != "" || c.StripeCancelURL != "") && c.StripeAPIKey == "" {
		errs = append(errs, ErrMissingStripeAPIKey)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":              fmt.Sprintf("%d", c.Port),
		"env":               c.Env,
		"database_url":      maskDatabaseURL(c.DatabaseURL),
		"redis_url":         maskDatabaseURL(c.RedisURL),
		"jwt_secret":        maskSecret(c.JWTSecret),
		"backend_base_url":  c.BackendBaseURL,
		"notify_base_url":   c.NotifyBaseURL,
		"vnpay_tmn_code":    c.VNPayTmnCode,
		"vnpay_hash_secret": maskSecret(c.VNPayHashSecret),
		"vnpay_pay_url":     c.VNPayPayURL,
		"vnpay_return_url":  c.VNPayReturnURL,
		"stripe_api_key":    maskStripeKey(c.StripeAPIKey),
		"settle_delay_ms":   fmt.Sprintf("%d", c.SettleDelayMS),
		"tracing_enabled":   fmt.Sprintf("%t", c.TracingEnabled),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskStripeKey masks a Stripe API key, preserving the prefix (sk_live_, sk_test_, etc.)
func maskStripeKey(s string) string {
	if s == "" {
		return "<not set>"
	}

	parts := strings.SplitN(s, "_", 3)
	if len(parts) == 3 {
		return parts[0] + "_" + parts[1] + "_****"
	}

	return maskSecret(s)
}

// maskDatabaseURL masks the password in a connection URL.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
