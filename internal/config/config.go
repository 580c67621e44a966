package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/veilchess/veilchess-server/internal/game"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	DatabaseURL string

	EngineBaseURL string
	EngineTimeout time.Duration

	DisconnectGrace time.Duration

	DefaultTimeBudget time.Duration
	TimeBudgetsFile   string
	TimeBudgets       map[game.Variant]time.Duration

	MaxRooms int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8980",
		EngineTimeout:     8 * time.Second,
		DisconnectGrace:   2 * time.Minute,
		DefaultTimeBudget: 10 * time.Minute,
		MaxRooms:          500,
		TimeBudgets:       map[game.Variant]time.Duration{},
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.EngineBaseURL = strings.TrimSpace(os.Getenv("ENGINE_BASE_URL"))

	if v := strings.TrimSpace(os.Getenv("ENGINE_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid ENGINE_TIMEOUT %q", v)
		}
		cfg.EngineTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("DISCONNECT_GRACE")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid DISCONNECT_GRACE %q", v)
		}
		cfg.DisconnectGrace = d
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_TIME_BUDGET")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid DEFAULT_TIME_BUDGET %q", v)
		}
		cfg.DefaultTimeBudget = d
	}
	if v := strings.TrimSpace(os.Getenv("MAX_ROOMS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRooms = n
		}
	}

	cfg.TimeBudgetsFile = strings.TrimSpace(os.Getenv("TIME_BUDGETS_FILE"))
	if cfg.TimeBudgetsFile != "" {
		budgets, err := loadBudgets(cfg.TimeBudgetsFile)
		if err != nil {
			return nil, err
		}
		cfg.TimeBudgets = budgets
	}

	return cfg, nil
}

// BudgetFor resolves the starting time budget for a variant.
func (c *AppConfig) BudgetFor(v game.Variant) time.Duration {
	if d, ok := c.TimeBudgets[v]; ok {
		return d
	}
	return c.DefaultTimeBudget
}

// loadBudgets reads a YAML map of variant name to Go duration string,
// e.g. "hidden-queen: 5m".
func loadBudgets(path string) (map[game.Variant]time.Duration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read time budgets: %w", err)
	}
	var entries map[string]string
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse time budgets: %w", err)
	}
	out := make(map[game.Variant]time.Duration, len(entries))
	for name, val := range entries {
		variant, ok := game.ParseVariant(name)
		if !ok {
			return nil, fmt.Errorf("unknown variant %q in %s", name, path)
		}
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid budget %q for variant %q", val, name)
		}
		out[variant] = d
	}
	return out, nil
}
