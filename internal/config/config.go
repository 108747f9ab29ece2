package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string

	Workers      int
	PollInterval time.Duration

	// Staleness window and retry budget for the reclaim sweep.
	JobStaleness  time.Duration
	RetryBudget   int
	SweepInterval time.Duration

	RetrievalTopK int

	GeminiAPIKey    string
	GeminiModelName string
	SynthTimeout    time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		if _, err := fmt.Sscanf(v, "%d", &out); err == nil {
			return out
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Env:             getenv("APP_ENV", "development"),
		ListenAddr:      getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		Workers:         getenvInt("ANALYSIS_WORKERS", 2),
		PollInterval:    getenvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		JobStaleness:    getenvDuration("JOB_STALENESS", 5*time.Minute),
		RetryBudget:     getenvInt("JOB_RETRY_BUDGET", 2),
		SweepInterval:   getenvDuration("SWEEP_INTERVAL", 30*time.Second),
		RetrievalTopK:   getenvInt("RETRIEVAL_TOP_K", 4),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		GeminiModelName: getenv("GEMINI_MODEL_NAME", "gemini-1.5-flash-latest"),
		SynthTimeout:    getenvDuration("SYNTH_TIMEOUT", 90*time.Second),
	}
	if cfg.DatabaseURL == "" {
		// Not fatal: the engine falls back to the in-memory store for
		// local runs. Warn via error value so callers can decide.
		return cfg, fmt.Errorf("DATABASE_URL not set")
	}
	return cfg, nil
}
