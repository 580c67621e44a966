package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veilchess/veilchess-server/internal/game"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"LISTEN_ADDR", "REDIS_URL", "DATABASE_URL", "ENGINE_BASE_URL",
		"ENGINE_TIMEOUT", "DISCONNECT_GRACE", "DEFAULT_TIME_BUDGET",
		"MAX_ROOMS", "TIME_BUDGETS_FILE",
	} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8980" {
		t.Fatalf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.DisconnectGrace != 2*time.Minute {
		t.Fatalf("DisconnectGrace = %v", cfg.DisconnectGrace)
	}
	if cfg.BudgetFor(game.VariantStandard) != 10*time.Minute {
		t.Fatalf("default budget = %v", cfg.BudgetFor(game.VariantStandard))
	}
}

func TestLoadBudgetsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budgets.yaml")
	if err := os.WriteFile(path, []byte("hidden-queen: 5m\nhill-race: 3m\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TIME_BUDGETS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BudgetFor(game.VariantHiddenQueen) != 5*time.Minute {
		t.Fatalf("hidden-queen budget = %v", cfg.BudgetFor(game.VariantHiddenQueen))
	}
	if cfg.BudgetFor(game.VariantHillRace) != 3*time.Minute {
		t.Fatalf("hill-race budget = %v", cfg.BudgetFor(game.VariantHillRace))
	}
	// unlisted variants fall back to the default
	if cfg.BudgetFor(game.VariantRegicide) != 10*time.Minute {
		t.Fatalf("fallback budget = %v", cfg.BudgetFor(game.VariantRegicide))
	}
}

func TestLoadRejectsBadBudgetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budgets.yaml")
	if err := os.WriteFile(path, []byte("no-such-variant: 5m\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TIME_BUDGETS_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("unknown variant accepted")
	}
}

func TestLoadRejectsInvalidDurations(t *testing.T) {
	t.Setenv("TIME_BUDGETS_FILE", "")
	t.Setenv("DISCONNECT_GRACE", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("invalid DISCONNECT_GRACE accepted")
	}
}
