// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Storage StorageConfig
	Rules   RulesConfig
	Import  ImportConfig
	Avatar  AvatarConfig
	Metrics MetricsConfig
	Export  ExportConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// StorageConfig holds on-disk locations. Everything lives under DataPath.
type StorageConfig struct {
	DataPath   string
	DBPath     string // Badger document store (default: {data}/db)
	LedgerPath string // Run history (default: {data}/runs.sqlite)
	AvatarPath string // Avatar files (default: {data}/avatars)
}

// RulesConfig holds the curation rule tables location.
type RulesConfig struct {
	// Path overrides the embedded rules when set.
	Path string
}

// ImportConfig holds import run settings.
type ImportConfig struct {
	Workers int
}

// AvatarConfig holds avatar download limits.
type AvatarConfig struct {
	Timeout  time.Duration
	Rate     float64 // Requests per second per host (0 = unlimited)
	MaxBytes int64
}

// MetricsConfig holds metrics output settings.
type MetricsConfig struct {
	// Textfile, when set, receives a Prometheus text dump after every run.
	Textfile string
}

// ExportConfig holds artifact output settings.
type ExportConfig struct {
	Path string // Default: {data}/testimonials.json
}

// Overrides carries command-line values. Empty fields fall through to the environment.
type Overrides struct {
	Env             string
	LogLevel        string
	DataPath        string
	RulesPath       string
	ImportWorkers   string
	AvatarTimeout   string
	AvatarRate      string
	AvatarMaxBytes  string
	MetricsTextfile string
	ExportPath      string
	EnvFile         string
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(o Overrides) (*Config, error) {
	envFile := o.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// Load .env file if it exists (silently ignore if not found).
	if err := loadEnvFile(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(o.Env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(o.LogLevel, "LOG_LEVEL", "info"),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(o.DataPath, "DATA_PATH", ""),
		},
		Rules: RulesConfig{
			Path: getConfigValue(o.RulesPath, "RULES_PATH", ""),
		},
		Import: ImportConfig{
			Workers: getIntConfigValue(o.ImportWorkers, "IMPORT_WORKERS", 4),
		},
		Metrics: MetricsConfig{
			Textfile: getConfigValue(o.MetricsTextfile, "METRICS_TEXTFILE", ""),
		},
		Export: ExportConfig{
			Path: getConfigValue(o.ExportPath, "EXPORT_PATH", ""),
		},
	}

	timeoutStr := getConfigValue(o.AvatarTimeout, "AVATAR_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid avatar timeout %q: %w", timeoutStr, err)
	}
	cfg.Avatar.Timeout = timeout

	rate, err := getFloatConfigValue(o.AvatarRate, "AVATAR_RATE", 5)
	if err != nil {
		return nil, err
	}
	cfg.Avatar.Rate = rate

	maxBytesStr := getConfigValue(o.AvatarMaxBytes, "AVATAR_MAX_BYTES", "5MB")
	maxBytes, err := humanize.ParseBytes(maxBytesStr)
	if err != nil {
		return nil, fmt.Errorf("invalid avatar max bytes %q: %w", maxBytesStr, err)
	}
	cfg.Avatar.MaxBytes = int64(maxBytes)

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}
	if c.Import.Workers < 1 {
		return fmt.Errorf("invalid import workers: %d (must be at least 1)", c.Import.Workers)
	}
	if c.Avatar.Timeout <= 0 {
		return fmt.Errorf("invalid avatar timeout: %s (must be positive)", c.Avatar.Timeout)
	}
	if c.Avatar.Rate < 0 {
		return fmt.Errorf("invalid avatar rate: %g (must not be negative)", c.Avatar.Rate)
	}
	if c.Avatar.MaxBytes < 1 {
		return errors.New("avatar max bytes must be positive")
	}

	return nil
}

// IsProduction reports whether the app runs in production, which selects JSON logs.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// expandPaths expands ~, makes every path absolute and fills defaults under the data path.
func (c *Config) expandPaths() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	data, err := expandPath(c.Storage.DataPath, filepath.Join(homeDir, "Curator", "data"))
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	c.Storage.DataPath = data
	c.Storage.DBPath = filepath.Join(data, "db")
	c.Storage.LedgerPath = filepath.Join(data, "runs.sqlite")
	c.Storage.AvatarPath = filepath.Join(data, "avatars")

	if c.Export.Path, err = expandPath(c.Export.Path, filepath.Join(data, "testimonials.json")); err != nil {
		return fmt.Errorf("invalid export path: %w", err)
	}
	if c.Rules.Path, err = expandPath(c.Rules.Path, ""); err != nil {
		return fmt.Errorf("invalid rules path: %w", err)
	}
	if c.Metrics.Textfile, err = expandPath(c.Metrics.Textfile, ""); err != nil {
		return fmt.Errorf("invalid metrics textfile: %w", err)
	}
	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
// A malformed value is an error.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) (float64, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return result, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
