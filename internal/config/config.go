package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	RunModeHTTP   = "http"
	RunModeLambda = "lambda"

	defaultAPIVersion      = "2024-10-21"
	defaultPort            = "8000"
	defaultUpstreamTimeout = 60 * time.Second
)

// Config is the process configuration, read once at startup.
type Config struct {
	Endpoint       string
	DeploymentName string
	APIKey         string
	APIKeyParam    string
	APIVersion     string

	Port    string
	RunMode string

	UpstreamTimeout    time.Duration
	UpstreamMaxRetries int
	SystemPrompt       string
	MaxMessageLength   int

	LogLevel  string
	LogFormat string
	LogFile   string

	MetricsEnabled bool
}

// Load builds a Config from getenv. Every missing or malformed variable is
// reported in the returned error; secret values never appear in it.
func Load(getenv func(string) string) (Config, error) {
	var errs []error
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		Endpoint:       env("AZURE_OPENAI_ENDPOINT"),
		DeploymentName: env("AZURE_OPENAI_DEPLOYMENT_NAME"),
		APIKey:         env("AZURE_OPENAI_API_KEY"),
		APIKeyParam:    env("AZURE_OPENAI_API_KEY_PARAM"),
		APIVersion:     withDefault(env("AZURE_OPENAI_API_VERSION"), defaultAPIVersion),
		Port:           withDefault(env("PORT"), defaultPort),
		RunMode:        strings.ToLower(withDefault(env("RUN_MODE"), RunModeHTTP)),
		SystemPrompt:   env("SYSTEM_PROMPT"),
		LogLevel:       env("LOG_LEVEL"),
		LogFormat:      env("LOG_FORMAT"),
		LogFile:        env("LOG_FILE"),
	}

	if cfg.Endpoint == "" {
		errs = append(errs, missing("AZURE_OPENAI_ENDPOINT"))
	} else if err := validateEndpoint(cfg.Endpoint); err != nil {
		errs = append(errs, err)
	}
	if cfg.DeploymentName == "" {
		errs = append(errs, missing("AZURE_OPENAI_DEPLOYMENT_NAME"))
	}
	switch {
	case cfg.APIKey == "" && cfg.APIKeyParam == "":
		errs = append(errs, errors.New("config: one of AZURE_OPENAI_API_KEY or AZURE_OPENAI_API_KEY_PARAM must be set"))
	case cfg.APIKey != "" && cfg.APIKeyParam != "":
		errs = append(errs, errors.New("config: AZURE_OPENAI_API_KEY and AZURE_OPENAI_API_KEY_PARAM are mutually exclusive"))
	}

	if cfg.RunMode != RunModeHTTP && cfg.RunMode != RunModeLambda {
		errs = append(errs, fmt.Errorf("config: RUN_MODE must be %q or %q, got %q", RunModeHTTP, RunModeLambda, cfg.RunMode))
	}
	if n, err := strconv.Atoi(cfg.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT must be a valid TCP port, got %q", cfg.Port))
	}

	var err error
	if cfg.UpstreamTimeout, err = envDuration(env("UPSTREAM_TIMEOUT"), defaultUpstreamTimeout); err != nil {
		errs = append(errs, fmt.Errorf("config: UPSTREAM_TIMEOUT: %w", err))
	}
	if cfg.UpstreamMaxRetries, err = envInt(env("UPSTREAM_MAX_RETRIES"), 0); err != nil {
		errs = append(errs, fmt.Errorf("config: UPSTREAM_MAX_RETRIES: %w", err))
	}
	if cfg.MaxMessageLength, err = envInt(env("MAX_MESSAGE_LENGTH"), 0); err != nil {
		errs = append(errs, fmt.Errorf("config: MAX_MESSAGE_LENGTH: %w", err))
	}
	if cfg.MetricsEnabled, err = envBool(env("METRICS_ENABLED"), true); err != nil {
		errs = append(errs, fmt.Errorf("config: METRICS_ENABLED: %w", err))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Addr is the listen address; the server binds all interfaces.
func (c Config) Addr() string {
	return ":" + c.Port
}

func missing(key string) error {
	return fmt.Errorf("config: required environment variable %s is not set", key)
}

func validateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("config: AZURE_OPENAI_ENDPOINT must be an absolute http(s) URL, got %q", raw)
	}
	return nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func envInt(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", v, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative, got %d", n)
	}
	return n, nil
}

func envDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func envBool(v string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %q: %w", v, err)
	}
	return b, nil
}
