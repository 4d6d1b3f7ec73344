package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gitlab.ozon.dev/pupkingeorgij/wmsexport/internal/wms"
)

const (
	AuthNone   = "none"
	AuthStatic = "static"
	AuthDB     = "db"
)

type Config struct {
	ClientID       string
	ClientSecret   string
	PartnerKey     string
	UserLoginID    string
	AuthURL        string
	BaseURL        string
	AddressingMode string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration

	AccountCode string
	Warehouse   string

	HTTPPort string
	LogLevel string

	DSN string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	AuthMode      string
	BasicAuthUser string
	BasicAuthHash string

	// BasicAuthPassword seeds the operator in db mode and is never kept
	// in plain form anywhere else.
	BasicAuthPassword string
}

// LoadEnv loads the first .env found in the working directory or its two
// parents. A missing file is not an error: the process environment is used.
func LoadEnv() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}

	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}

	for _, envPath := range possiblePaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			return "", fmt.Errorf("loading %s: %w", envPath, err)
		}
		return envPath, nil
	}
	return "", nil
}

func Load() (*Config, error) {
	timeout, err := getDuration("WMS_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	retryDelay, err := getDuration("WMS_RETRY_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getInt("WMS_MAX_RETRIES", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ClientID:       getEnv("WMS_CLIENT_ID", ""),
		ClientSecret:   getEnv("WMS_CLIENT_SECRET", ""),
		PartnerKey:     getEnv("WMS_TPL_KEY", ""),
		UserLoginID:    getEnv("WMS_USER_LOGIN_ID", "4"),
		AuthURL:        getEnv("WMS_AUTH_URL", "https://secure-wms.com/AuthServer/api/Token"),
		BaseURL:        getEnv("WMS_BASE_URL", "https://secure-wms.com"),
		AddressingMode: getEnv("WMS_ADDRESSING_MODE", wms.ModePath),
		RequestTimeout: timeout,
		MaxRetries:     maxRetries,
		RetryDelay:     retryDelay,
		AccountCode:    getEnv("NORTHLINE_ACCOUNT_CODE", "8UNI48"),
		Warehouse:      getEnv("NORTHLINE_WAREHOUSE", "PERTH"),
		HTTPPort:       getEnv("APP_PORT", "9000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DSN:            getEnv("DB_DSN", ""),
		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "export_audit"),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "export-audit-consumer-group"),
		BasicAuthUser:  getEnv("APP_USER", ""),
		BasicAuthHash:  getEnv("APP_PASSWORD_HASH", ""),

		BasicAuthPassword: getEnv("APP_PASSWORD", ""),
	}

	cfg.AuthMode = getEnv("APP_AUTH", "")
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthNone
		if cfg.BasicAuthUser != "" {
			cfg.AuthMode = AuthStatic
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would make every request fail. Missing WMS
// credentials are reported per request by the token cache instead.
func (c *Config) Validate() error {
	if c.AddressingMode != wms.ModePath && c.AddressingMode != wms.ModeQuery {
		return fmt.Errorf("unknown addressing mode %q, want %q or %q", c.AddressingMode, wms.ModePath, wms.ModeQuery)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if c.BaseURL == "" || c.AuthURL == "" {
		return errors.New("WMS base and auth URLs are required")
	}
	if c.BasicAuthUser == "" && (c.BasicAuthHash != "" || c.BasicAuthPassword != "") {
		return errors.New("APP_PASSWORD and APP_PASSWORD_HASH require APP_USER")
	}
	switch c.AuthMode {
	case AuthNone:
	case AuthStatic:
		if c.BasicAuthUser == "" || c.BasicAuthHash == "" {
			return errors.New("static auth requires APP_USER and APP_PASSWORD_HASH")
		}
	case AuthDB:
		if c.DSN == "" {
			return errors.New("db auth requires DB_DSN")
		}
		// APP_USER is optional here: it only seeds an operator account.
		if c.BasicAuthUser != "" && c.BasicAuthPassword == "" && c.BasicAuthHash == "" {
			return errors.New("db auth seeding APP_USER requires APP_PASSWORD or APP_PASSWORD_HASH")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.AuthMode)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}

// getDuration accepts Go duration strings and plain seconds.
func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return defaultVal, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
