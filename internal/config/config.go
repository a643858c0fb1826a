package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	EvaluationRPM int

	ProviderTimeoutMS int
	FetchRPS          float64
	MaxFetchBytes     int64
	NOTAMURL          string

	MaxEvidenceBytes int64

	SlackTimeoutMS int
	SessionDays    int

	SuperAdminEmails []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("SS_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("SS_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("SS_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("SS_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("SS_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("SS_BASE_URL is required")
	}

	// Without a DSN development runs on the in-memory store.
	cfg.DBDSN = strings.TrimSpace(os.Getenv("SS_DB_DSN"))
	if cfg.DBDSN == "" && cfg.Env == "prod" {
		return nil, fmt.Errorf("SS_DB_DSN is required in prod")
	}

	cfg.JWTSecret = os.Getenv("SS_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SS_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("SS_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("SS_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("SS_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.EvaluationRPM, err = getEnvIntOrDefault("SS_EVALUATION_RPM", 30)
	if err != nil {
		return nil, err
	}
	if cfg.EvaluationRPM <= 0 {
		return nil, fmt.Errorf("SS_EVALUATION_RPM must be positive (got: %d)", cfg.EvaluationRPM)
	}

	cfg.ProviderTimeoutMS, err = getEnvIntOrDefault("SS_PROVIDER_TIMEOUT_MS", 8000)
	if err != nil {
		return nil, err
	}
	if cfg.ProviderTimeoutMS <= 0 || cfg.ProviderTimeoutMS > 60000 {
		return nil, fmt.Errorf("SS_PROVIDER_TIMEOUT_MS must be between 1 and 60000 (got: %d)", cfg.ProviderTimeoutMS)
	}

	cfg.FetchRPS, err = getEnvFloatOrDefault("SS_FETCH_RPS", 5)
	if err != nil {
		return nil, err
	}
	if cfg.FetchRPS <= 0 {
		return nil, fmt.Errorf("SS_FETCH_RPS must be positive (got: %g)", cfg.FetchRPS)
	}

	cfg.MaxFetchBytes, err = getEnvInt64OrDefault("SS_MAX_FETCH_BYTES", 2*1024*1024)
	if err != nil {
		return nil, err
	}

	cfg.NOTAMURL = strings.TrimSpace(os.Getenv("SS_NOTAM_URL"))

	cfg.MaxEvidenceBytes, err = getEnvInt64OrDefault("SS_MAX_EVIDENCE_BYTES", 10*1024*1024)
	if err != nil {
		return nil, err
	}
	if cfg.MaxEvidenceBytes <= 0 {
		return nil, fmt.Errorf("SS_MAX_EVIDENCE_BYTES must be positive (got: %d)", cfg.MaxEvidenceBytes)
	}

	cfg.SlackTimeoutMS, err = getEnvIntOrDefault("SS_SLACK_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.SlackTimeoutMS <= 0 || cfg.SlackTimeoutMS > 30000 {
		return nil, fmt.Errorf("SS_SLACK_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.SlackTimeoutMS)
	}

	cfg.SessionDays, err = getEnvIntOrDefault("SS_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.SuperAdminEmails = splitList(os.Getenv("SS_SUPER_ADMIN_EMAILS"))

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"SS_ENV":                 c.Env,
		"SS_HTTP_ADDR":           c.HTTPAddr,
		"SS_BASE_URL":            c.BaseURL,
		"SS_DB_DSN":              redactDSN(c.DBDSN),
		"SS_JWT_SECRET":          "[REDACTED]",
		"SS_LOG_LEVEL":           c.LogLevel,
		"SS_EVALUATION_RPM":      fmt.Sprintf("%d", c.EvaluationRPM),
		"SS_PROVIDER_TIMEOUT_MS": fmt.Sprintf("%d", c.ProviderTimeoutMS),
		"SS_FETCH_RPS":           fmt.Sprintf("%g", c.FetchRPS),
		"SS_MAX_FETCH_BYTES":     fmt.Sprintf("%d", c.MaxFetchBytes),
		"SS_NOTAM_URL":           c.NOTAMURL,
		"SS_MAX_EVIDENCE_BYTES":  fmt.Sprintf("%d", c.MaxEvidenceBytes),
		"SS_SLACK_TIMEOUT_MS":    fmt.Sprintf("%d", c.SlackTimeoutMS),
		"SS_SESSION_DAYS":        fmt.Sprintf("%d", c.SessionDays),
		"SS_SUPER_ADMIN_EMAILS":  strings.Join(c.SuperAdminEmails, ","),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvInt64OrDefault(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number (got: %q)", key, value)
	}
	return parsed, nil
}
