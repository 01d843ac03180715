package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Fatalf("port = %d, want 3000", cfg.Port)
	}
	if cfg.TopK != 4 {
		t.Fatalf("top-k = %d, want 4", cfg.TopK)
	}
	if cfg.MinScore != 0.45 {
		t.Fatalf("min-score = %f, want 0.45", cfg.MinScore)
	}
	if cfg.ChunkSize != 900 || cfg.ChunkOverlap != 150 {
		t.Fatalf("chunking = %d/%d, want 900/150", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.MinuteBudgetEUR != 0.50 || cfg.MonthBudgetEUR != 10.00 {
		t.Fatalf("budgets = %f/%f, want 0.50/10.00", cfg.MinuteBudgetEUR, cfg.MonthBudgetEUR)
	}
	if cfg.Addr() != "0.0.0.0:3000" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("RAG_TOP_K", "6")
	t.Setenv("BUDGET_DAY_EUR", "5.5")
	t.Setenv("UPSTREAM_TIMEOUT", "7s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.TopK != 6 {
		t.Fatalf("top-k = %d, want 6", cfg.TopK)
	}
	if cfg.DayBudgetEUR != 5.5 {
		t.Fatalf("day budget = %f, want 5.5", cfg.DayBudgetEUR)
	}
	if cfg.UpstreamTimeout.Seconds() != 7 {
		t.Fatalf("timeout = %v, want 7s", cfg.UpstreamTimeout)
	}
}

func TestLoadRejectsInvalidChunking(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	if _, err := Load(); err == nil {
		t.Fatal("expected overlap >= size to be rejected")
	}
}

func TestLoadRejectsNegativeBudget(t *testing.T) {
	t.Setenv("BUDGET_HOUR_EUR", "-1")

	if _, err := Load(); err == nil {
		t.Fatal("expected negative budget to be rejected")
	}
}

func TestRemoteConfigured(t *testing.T) {
	cfg := &Config{}
	if cfg.RemoteConfigured() {
		t.Fatal("empty settings must not report a remote")
	}
	cfg.PineconeHost = "https://idx.example.io"
	if cfg.RemoteConfigured() {
		t.Fatal("host without key must not report a remote")
	}
	cfg.PineconeKey = "k"
	if !cfg.RemoteConfigured() {
		t.Fatal("host and key must report a remote")
	}
}
