// Package config loads and validates server configuration from environment
// variables. A .env file, when present, is loaded by main before this runs.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP listen port
	Port int
	// Postgres DSN, required
	DatabaseURL string
	// HMAC secret for bearer tokens, required
	JWTSecret string
	// Bearer token lifetime
	TokenTTL time.Duration
	// Directory holding encrypted file blobs
	UploadDir string
	// Per-request multipart upload cap in bytes
	MaxUploadSize int64
	// Base URL embedded into share links
	ShareBaseURL string
	// Log level (debug, info, warn, error)
	LogLevel slog.Level
	// Log format (json, text)
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:          8080,
		DatabaseURL:   os.Getenv("WIZ_DATABASE_URL"),
		JWTSecret:     os.Getenv("WIZ_JWT_SECRET"),
		TokenTTL:      7 * 24 * time.Hour,
		UploadDir:     "uploads",
		MaxUploadSize: 10 << 20,
		ShareBaseURL:  "http://localhost:8080",
		LogLevel:      slog.LevelInfo,
		LogFormat:     "text",
	}

	if v := os.Getenv("WIZ_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WIZ_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("WIZ_TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WIZ_TOKEN_TTL %q: %w", v, err)
		}
		cfg.TokenTTL = ttl
	}
	if v := os.Getenv("WIZ_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("WIZ_MAX_UPLOAD_SIZE"); v != "" {
		size, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid WIZ_MAX_UPLOAD_SIZE %q: %w", v, err)
		}
		cfg.MaxUploadSize = size
	}
	if v := os.Getenv("WIZ_SHARE_BASE_URL"); v != "" {
		cfg.ShareBaseURL = strings.TrimSuffix(v, "/")
	}
	if v := os.Getenv("WIZ_LOG_LEVEL"); v != "" {
		level, err := parseLevel(v)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if v := os.Getenv("WIZ_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("WIZ_PORT out of range: %d", c.Port)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("WIZ_DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("WIZ_JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("WIZ_TOKEN_TTL must be positive")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("WIZ_MAX_UPLOAD_SIZE must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("WIZ_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// Logger builds the process-wide slog logger per LogLevel and LogFormat.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	var handler slog.Handler
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid WIZ_LOG_LEVEL %q", s)
}
