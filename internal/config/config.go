package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable of the relay and the index builder. Each key is
// overridable through the environment; .env and .env.local are loaded first so
// local runs behave like the deployed service.
type Config struct {
	Host string
	Port int

	DataDir   string
	CachePath string

	OpenAIKey       string
	ChatModel       string
	EmbeddingModel  string
	UpstreamTimeout time.Duration
	MaxRetries      int

	PineconeHost      string
	PineconeKey       string
	PineconeNamespace string

	TopK     int
	MinScore float64

	ChunkSize    int
	ChunkOverlap int

	MinuteBudgetEUR float64
	HourBudgetEUR   float64
	DayBudgetEUR    float64
	MonthBudgetEUR  float64
}

var envKeys = map[string]string{
	"host":               "HOST",
	"port":               "PORT",
	"data-dir":           "DATA_DIR",
	"cache-path":         "CACHE_PATH",
	"openai-key":         "OPENAI_API_KEY",
	"chat-model":         "OPENAI_MODEL",
	"embedding-model":    "OPENAI_EMBEDDING_MODEL",
	"upstream-timeout":   "UPSTREAM_TIMEOUT",
	"max-retries":        "UPSTREAM_MAX_RETRIES",
	"pinecone-host":      "PINECONE_HOST",
	"pinecone-key":       "PINECONE_API_KEY",
	"pinecone-namespace": "PINECONE_NAMESPACE",
	"top-k":              "RAG_TOP_K",
	"min-score":          "RAG_MIN_SCORE",
	"chunk-size":         "CHUNK_SIZE",
	"chunk-overlap":      "CHUNK_OVERLAP",
	"budget-minute":      "BUDGET_MINUTE_EUR",
	"budget-hour":        "BUDGET_HOUR_EUR",
	"budget-day":         "BUDGET_DAY_EUR",
	"budget-month":       "BUDGET_MONTH_EUR",
}

// Load reads .env files, binds environment variables, and returns the
// resolved configuration.
func Load() (*Config, error) {
	// Missing .env files are fine; the environment may carry everything.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	v := viper.New()
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3000)
	v.SetDefault("data-dir", "static/data")
	v.SetDefault("cache-path", "static/data/rag_chunks.db")
	v.SetDefault("chat-model", "gpt-4o-mini")
	v.SetDefault("embedding-model", "text-embedding-3-small")
	v.SetDefault("upstream-timeout", "20s")
	v.SetDefault("max-retries", 2)
	v.SetDefault("top-k", 4)
	v.SetDefault("min-score", 0.45)
	v.SetDefault("chunk-size", 900)
	v.SetDefault("chunk-overlap", 150)
	v.SetDefault("budget-minute", 0.50)
	v.SetDefault("budget-hour", 2.00)
	v.SetDefault("budget-day", 2.00)
	v.SetDefault("budget-month", 10.00)

	cfg := &Config{
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		DataDir:           v.GetString("data-dir"),
		CachePath:         v.GetString("cache-path"),
		OpenAIKey:         v.GetString("openai-key"),
		ChatModel:         v.GetString("chat-model"),
		EmbeddingModel:    v.GetString("embedding-model"),
		UpstreamTimeout:   v.GetDuration("upstream-timeout"),
		MaxRetries:        v.GetInt("max-retries"),
		PineconeHost:      v.GetString("pinecone-host"),
		PineconeKey:       v.GetString("pinecone-key"),
		PineconeNamespace: v.GetString("pinecone-namespace"),
		TopK:              v.GetInt("top-k"),
		MinScore:          v.GetFloat64("min-score"),
		ChunkSize:         v.GetInt("chunk-size"),
		ChunkOverlap:      v.GetInt("chunk-overlap"),
		MinuteBudgetEUR:   v.GetFloat64("budget-minute"),
		HourBudgetEUR:     v.GetFloat64("budget-hour"),
		DayBudgetEUR:      v.GetFloat64("budget-day"),
		MonthBudgetEUR:    v.GetFloat64("budget-month"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("RAG_TOP_K must be positive, got %d", c.TopK)
	}
	for _, b := range []struct {
		name string
		val  float64
	}{
		{"BUDGET_MINUTE_EUR", c.MinuteBudgetEUR},
		{"BUDGET_HOUR_EUR", c.HourBudgetEUR},
		{"BUDGET_DAY_EUR", c.DayBudgetEUR},
		{"BUDGET_MONTH_EUR", c.MonthBudgetEUR},
	} {
		if b.val < 0 {
			return fmt.Errorf("%s must not be negative, got %f", b.name, b.val)
		}
	}
	return nil
}

// RemoteConfigured reports whether the remote vector index can be reached
// with the current settings.
func (c *Config) RemoteConfigured() bool {
	return c.PineconeHost != "" && c.PineconeKey != ""
}

// Addr returns the listen address for the relay server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
