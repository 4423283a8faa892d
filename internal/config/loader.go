package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
	envPrefix         = "COACHD_"
	systemConfigDir   = "/etc/coachd"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (COACHD_SERVER_HTTP_PORT, COACHD_STORE_PROVIDER, etc.)
//  2. YAML config file (~/.config/coachd/config.yaml)
//  3. Hardcoded defaults
//
// If configPath is empty the default path is used. A missing file is not an error.
//
// # Security Considerations
//
// The file must have 0600 or 0400 permissions, must live under ~/.config/coachd/
// or /etc/coachd/ and must not exceed 1MB.
//
// # Environment Variable Mapping
//
// The COACHD_ prefix is stripped and the remainder is split on the first
// underscore into section and field:
//
//	COACHD_SERVER_HTTP_PORT      -> server.http_port
//	COACHD_GATEWAY_API_KEY       -> gateway.api_key
//	COACHD_ANALYSIS_LUNCH_CARB_LIMIT -> analysis.lunch_carb_limit
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		dir, err := userConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps COACHD_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens the file once and validates it through the open
// descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// EnsureConfigDir creates ~/.config/coachd with 0700 permissions.
func EnsureConfigDir() error {
	dir, err := userConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

func userConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "coachd"), nil
}

// validateConfigPath checks that path resolves inside an allowed directory.
// It runs even if the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	userDir, err := userConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{userDir, systemConfigDir} {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/coachd/ or %s/", systemConfigDir)
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for fields left at their zero value.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "coachd"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}

	if cfg.Store.Provider == "" {
		cfg.Store.Provider = "memory"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "coachd.db"
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if cfg.Store.MaxRetries == 0 {
		cfg.Store.MaxRetries = 5
	}
	if cfg.Store.RetryBackoff == 0 {
		cfg.Store.RetryBackoff = 10 * time.Millisecond
	}

	if cfg.Gateway.Provider == "" {
		cfg.Gateway.Provider = "disabled"
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 30 * time.Second
	}
	if cfg.Gateway.RateLimit == 0 {
		cfg.Gateway.RateLimit = 5
	}
	if cfg.Gateway.Burst == 0 {
		cfg.Gateway.Burst = 5
	}
	if cfg.Gateway.MaxRetries == 0 {
		cfg.Gateway.MaxRetries = 3
	}
	if len(cfg.Gateway.Tiers) == 0 {
		cfg.Gateway.Tiers = map[string]TierConfig{
			"fast":    {Model: "gpt-4o-mini", CostPerToken: 0.0000006},
			"quality": {Model: "gpt-4o", CostPerToken: 0.00001},
		}
	}

	if cfg.Insights.WindowDays == 0 {
		cfg.Insights.WindowDays = 14
	}
	if cfg.Insights.MaxInsights == 0 {
		cfg.Insights.MaxInsights = 5
	}
	if cfg.Insights.Retention == 0 {
		cfg.Insights.Retention = 7 * 24 * time.Hour
	}
	if cfg.Insights.RerankTimeout == 0 {
		cfg.Insights.RerankTimeout = 8 * time.Second
	}
	if cfg.Insights.RerankTier == "" {
		cfg.Insights.RerankTier = "fast"
	}

	if cfg.Analysis == (AnalysisConfig{}) {
		cfg.Analysis = DefaultAnalysis()
	}
	if cfg.Feedback == (FeedbackConfig{}) {
		cfg.Feedback = DefaultFeedback()
	}

	if cfg.Alerts.Subject == "" {
		cfg.Alerts.Subject = "coachd.alerts.opportunities"
	}

	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 24 * time.Hour
	}
	if len(cfg.Scheduler.Periods) == 0 {
		cfg.Scheduler.Periods = []string{"daily"}
	}
}
