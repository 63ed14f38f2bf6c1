package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Settings backends selectable with SETTINGS_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// DefaultAllowedOrigins admits browser extensions only.
const DefaultAllowedOrigins = "chrome-extension://*,moz-extension://*"

type Config struct {
	Port            int
	SettingsBackend string
	SQLitePath      string
	DatabaseURL     string
	AllowedOrigins  []string
	LogLevel        slog.Level
}

func Load() *Config {
	return &Config{
		Port:            getEnvAsInt("PORT", 8081),
		SettingsBackend: strings.ToLower(getEnv("SETTINGS_BACKEND", BackendSQLite)),
		SQLitePath:      getEnv("SQLITE_PATH", "luma.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", DefaultAllowedOrigins)),
		LogLevel:        parseLevel(getEnv("LOG_LEVEL", "info")),
	}
}

// Validate reports settings that cannot be served.
func (c *Config) Validate() error {
	switch c.SettingsBackend {
	case BackendMemory, BackendSQLite, BackendNone:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("unknown settings backend %q", c.SettingsBackend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
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

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
