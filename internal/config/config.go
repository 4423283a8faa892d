// Package config provides configuration loading for coachd.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file and
// environment variables (see LoadWithFile). Analyzer and feedback thresholds live
// here so they can be tuned without touching analyzer logic.
package config

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Config holds the complete coachd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Store         StoreConfig         `koanf:"store"`
	Gateway       GatewayConfig       `koanf:"gateway"`
	Insights      InsightsConfig      `koanf:"insights"`
	Analysis      AnalysisConfig      `koanf:"analysis"`
	Feedback      FeedbackConfig      `koanf:"feedback"`
	Alerts        AlertsConfig        `koanf:"alerts"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ObservabilityConfig holds logging and OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	TLSSkipVerify   bool    `koanf:"tls_skip_verify"`
	SampleRate      float64 `koanf:"sample_rate"`
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
}

// StoreConfig selects and configures the document store backend.
type StoreConfig struct {
	// Provider is one of "memory", "sqlite" or "redis".
	Provider     string        `koanf:"provider"`
	SQLitePath   string        `koanf:"sqlite_path"`
	RedisAddr    string        `koanf:"redis_addr"`
	RedisPass    Secret        `koanf:"redis_password"`
	RedisDB      int           `koanf:"redis_db"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// TierConfig maps a gateway tier to a concrete model and its token rate.
type TierConfig struct {
	Model        string  `koanf:"model"`
	CostPerToken float64 `koanf:"cost_per_token"`
}

// GatewayConfig configures the LLM gateway.
type GatewayConfig struct {
	// Provider is one of "http", "langchain" or "disabled".
	Provider   string                `koanf:"provider"`
	BaseURL    string                `koanf:"base_url"`
	APIKey     Secret                `koanf:"api_key"`
	Timeout    time.Duration         `koanf:"timeout"`
	RateLimit  float64               `koanf:"rate_limit"`
	Burst      int                   `koanf:"burst"`
	MaxRetries int                   `koanf:"max_retries"`
	Tiers      map[string]TierConfig `koanf:"tiers"`
}

// TierNames returns the configured tier names in sorted order.
func (g GatewayConfig) TierNames() []string {
	names := make([]string, 0, len(g.Tiers))
	for name := range g.Tiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InsightsConfig configures insight generation and retention.
type InsightsConfig struct {
	WindowDays    int           `koanf:"window_days"`
	MaxInsights   int           `koanf:"max_insights"`
	Retention     time.Duration `koanf:"retention"`
	RerankTimeout time.Duration `koanf:"rerank_timeout"`
	RerankTier    string        `koanf:"rerank_tier"`
}

// AnalysisConfig holds every numeric threshold used by the pattern analyzers.
// The defaults are placeholders pending product validation.
type AnalysisConfig struct {
	MorningStartHour       int     `koanf:"morning_start_hour"`
	AfternoonStartHour     int     `koanf:"afternoon_start_hour"`
	AfternoonEndHour       int     `koanf:"afternoon_end_hour"`
	EnergyCrashDrop        float64 `koanf:"energy_crash_drop"`
	RecentLunches          int     `koanf:"recent_lunches"`
	LunchCarbLimit         float64 `koanf:"lunch_carb_limit"`
	RecommendedLunchCarbs  float64 `koanf:"recommended_lunch_carbs"`
	MorningEnergyFloor     float64 `koanf:"morning_energy_floor"`
	BreakfastProteinTarget float64 `koanf:"breakfast_protein_target"`

	LateDinnerHours    float64 `koanf:"late_dinner_hours"`
	SleepQualityGap    float64 `koanf:"sleep_quality_gap"`
	CaffeineCutoffHour int     `koanf:"caffeine_cutoff_hour"`

	ProteinGapPoints   float64 `koanf:"protein_gap_points"`
	BreakfastCarbShare float64 `koanf:"breakfast_carb_share"`

	BreakfastShiftHours   float64 `koanf:"breakfast_shift_hours"`
	OvernightGapHours     float64 `koanf:"overnight_gap_hours"`
	FastingShortfallHours float64 `koanf:"fasting_shortfall_hours"`

	AdherenceCheckPoints  int     `koanf:"adherence_check_points"`
	AdherenceWarnBelow    int     `koanf:"adherence_warn_below"`
	AdherenceAchieveAbove int     `koanf:"adherence_achieve_above"`
	CalorieTolerance      float64 `koanf:"calorie_tolerance"`
	MacroTolerancePoints  float64 `koanf:"macro_tolerance_points"`
	TimingToleranceHours  float64 `koanf:"timing_tolerance_hours"`
	SleepMinRecords       int     `koanf:"sleep_min_records"`
	SleepMaxStdDevHours   float64 `koanf:"sleep_max_stddev_hours"`
	MinMealsForAdherence  int     `koanf:"min_meals_for_adherence"`
	DeficitDaysPerWeek    int     `koanf:"deficit_days_per_week"`
	StrengthSessions      int     `koanf:"strength_sessions"`
	HighProteinMealGrams  float64 `koanf:"high_protein_meal_grams"`
	HighProteinDays       int     `koanf:"high_protein_days"`
	EnergyStdDevLimit     float64 `koanf:"energy_stddev_limit"`
}

// FeedbackConfig holds anomaly, retirement and partition thresholds for the
// feedback learning loop.
type FeedbackConfig struct {
	SlowResponseMs      int64   `koanf:"slow_response_ms"`
	HighTokenUsage      int     `koanf:"high_token_usage"`
	MaxRetries          int     `koanf:"max_retries"`
	LowConfidence       float64 `koanf:"low_confidence"`
	RetireThumbsDown    float64 `koanf:"retire_thumbs_down"`
	RetireMinAsked      int     `koanf:"retire_min_asked"`
	RetireThumbsUp      float64 `koanf:"retire_thumbs_up"`
	EffectiveThumbsUp   float64 `koanf:"effective_thumbs_up"`
	IneffectiveThumbsDn float64 `koanf:"ineffective_thumbs_down"`
	TopIssues           int     `koanf:"top_issues"`
}

// AlertsConfig configures alert delivery for high priority opportunities.
type AlertsConfig struct {
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
}

// SchedulerConfig configures the periodic performance report task.
type SchedulerConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	Periods  []string      `koanf:"periods"`
}

// Default returns a Config populated with production defaults.
func Default() *Config {
	cfg := &Config{
		// Zero-valued bools cannot be defaulted after decoding.
		Observability: ObservabilityConfig{Insecure: true},
	}
	applyDefaults(cfg)
	return cfg
}

// DefaultAnalysis returns the default analyzer thresholds.
func DefaultAnalysis() AnalysisConfig {
	return AnalysisConfig{
		MorningStartHour:       6,
		AfternoonStartHour:     12,
		AfternoonEndHour:       17,
		EnergyCrashDrop:        2,
		RecentLunches:          7,
		LunchCarbLimit:         60,
		RecommendedLunchCarbs:  45,
		MorningEnergyFloor:     7,
		BreakfastProteinTarget: 30,

		LateDinnerHours:    3,
		SleepQualityGap:    1,
		CaffeineCutoffHour: 14,

		ProteinGapPoints:   5,
		BreakfastCarbShare: 0.6,

		BreakfastShiftHours:   2,
		OvernightGapHours:     8,
		FastingShortfallHours: 1,

		AdherenceCheckPoints:  25,
		AdherenceWarnBelow:    70,
		AdherenceAchieveAbove: 85,
		CalorieTolerance:      0.10,
		MacroTolerancePoints:  5,
		TimingToleranceHours:  2,
		SleepMinRecords:       3,
		SleepMaxStdDevHours:   1,
		MinMealsForAdherence:  3,
		DeficitDaysPerWeek:    5,
		StrengthSessions:      3,
		HighProteinMealGrams:  25,
		HighProteinDays:       6,
		EnergyStdDevLimit:     2,
	}
}

// DefaultFeedback returns the default feedback loop thresholds.
func DefaultFeedback() FeedbackConfig {
	return FeedbackConfig{
		SlowResponseMs:      10000,
		HighTokenUsage:      5000,
		MaxRetries:          2,
		LowConfidence:       0.5,
		RetireThumbsDown:    0.5,
		RetireMinAsked:      100,
		RetireThumbsUp:      0.3,
		EffectiveThumbsUp:   0.7,
		IneffectiveThumbsDn: 0.3,
		TopIssues:           5,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	switch c.Store.Provider {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite provider")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis provider")
		}
	default:
		return fmt.Errorf("unknown store provider %q (want memory, sqlite or redis)", c.Store.Provider)
	}
	if c.Store.MaxRetries < 1 {
		return fmt.Errorf("store.max_retries must be >= 1, got %d", c.Store.MaxRetries)
	}

	switch c.Gateway.Provider {
	case "disabled":
	case "http", "langchain":
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("gateway.base_url is required for the %s provider", c.Gateway.Provider)
		}
		if len(c.Gateway.Tiers) == 0 {
			return errors.New("gateway.tiers must define at least one tier")
		}
	default:
		return fmt.Errorf("unknown gateway provider %q", c.Gateway.Provider)
	}
	for name, tier := range c.Gateway.Tiers {
		if tier.Model == "" {
			return fmt.Errorf("gateway tier %q has no model", name)
		}
		if tier.CostPerToken < 0 {
			return fmt.Errorf("gateway tier %q has negative cost_per_token", name)
		}
	}

	if c.Insights.MaxInsights < 1 {
		return fmt.Errorf("insights.max_insights must be >= 1, got %d", c.Insights.MaxInsights)
	}
	if c.Insights.WindowDays < 1 {
		return fmt.Errorf("insights.window_days must be >= 1, got %d", c.Insights.WindowDays)
	}
	if c.Insights.RerankTimeout <= 0 {
		return errors.New("insights.rerank_timeout must be positive")
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	if err := c.Feedback.Validate(); err != nil {
		return fmt.Errorf("feedback: %w", err)
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.New("scheduler.interval must be positive when the scheduler is enabled")
	}
	for _, p := range c.Scheduler.Periods {
		switch p {
		case "daily", "weekly", "monthly":
		default:
			return fmt.Errorf("scheduler.periods: unknown period %q", p)
		}
	}
	return nil
}

// Validate checks analyzer thresholds for values that would make the
// analyzers meaningless.
func (a AnalysisConfig) Validate() error {
	if a.MorningStartHour < 0 || a.AfternoonStartHour <= a.MorningStartHour || a.AfternoonEndHour <= a.AfternoonStartHour || a.AfternoonEndHour > 24 {
		return fmt.Errorf("energy windows must satisfy 0 <= morning < afternoon < end <= 24, got %d/%d/%d",
			a.MorningStartHour, a.AfternoonStartHour, a.AfternoonEndHour)
	}
	if a.AdherenceCheckPoints <= 0 || a.AdherenceCheckPoints*4 > 100 {
		return fmt.Errorf("adherence_check_points must be in (0, 25], got %d", a.AdherenceCheckPoints)
	}
	if a.BreakfastCarbShare <= 0 || a.BreakfastCarbShare > 1 {
		return fmt.Errorf("breakfast_carb_share must be in (0, 1], got %f", a.BreakfastCarbShare)
	}
	if a.CaffeineCutoffHour < 0 || a.CaffeineCutoffHour > 23 {
		return fmt.Errorf("caffeine_cutoff_hour must be 0-23, got %d", a.CaffeineCutoffHour)
	}
	if a.MinMealsForAdherence < 1 {
		return fmt.Errorf("min_meals_for_adherence must be at least 1, got %d", a.MinMealsForAdherence)
	}
	return nil
}

// Validate checks feedback thresholds.
func (f FeedbackConfig) Validate() error {
	for name, v := range map[string]float64{
		"retire_thumbs_down":      f.RetireThumbsDown,
		"retire_thumbs_up":        f.RetireThumbsUp,
		"effective_thumbs_up":     f.EffectiveThumbsUp,
		"ineffective_thumbs_down": f.IneffectiveThumbsDn,
		"low_confidence":          f.LowConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %f", name, v)
		}
	}
	if f.TopIssues < 1 {
		return fmt.Errorf("top_issues must be >= 1, got %d", f.TopIssues)
	}
	return nil
}
