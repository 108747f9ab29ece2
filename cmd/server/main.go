package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/adapters/gemini"
	httpadapter "github.com/andycungkrinx91/nginx-ai-security-suite/internal/adapters/http"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/adapters/memory"
	pg "github.com/andycungkrinx91/nginx-ai-security-suite/internal/adapters/postgres"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/collectors"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/config"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/knowledge"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/patterns"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/ports"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/progress"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/analyzer"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/retriever"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/services/synthesizer"
	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/workers/analysisrunner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("warning: %v", err)
	}

	// A malformed detection rule fails the process before any job runs.
	if err := patterns.Warm(); err != nil {
		log.Fatalf("pattern library error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store ports.JobStore
	var uploads ports.UploadStore
	if cfg.DatabaseURL != "" {
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		defer db.Close()
		store, uploads = db, db
	} else {
		log.Printf("warning: using in-memory job store; submissions are lost on restart")
		mem := memory.New()
		store, uploads = mem, mem
	}

	var gen ports.Generator
	generatorReady := cfg.GeminiAPIKey != ""
	if generatorReady {
		gen = gemini.New(gemini.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModelName})
	} else {
		log.Printf("warning: GEMINI_API_KEY not set; reports will use the static narrative")
		gen = synthesizer.StaticNarrative{}
	}

	index := knowledge.NewIndex(knowledge.DefaultKnowledgeBase())
	hub := progress.NewHub()

	pipeline := analysisrunner.NewPipeline(
		store,
		collectors.NewRegistry(uploads),
		retriever.New(index, cfg.RetrievalTopK),
		synthesizer.New(gen, cfg.SynthTimeout),
		hub,
	)

	analysisrunner.Run(ctx, pipeline, cfg.Workers, cfg.PollInterval)
	analysisrunner.RunSweeper(ctx, pipeline, cfg.SweepInterval, cfg.JobStaleness, cfg.RetryBudget)
	log.Printf("analysis workers started: %d (staleness=%s retry_budget=%d)",
		cfg.Workers, cfg.JobStaleness, cfg.RetryBudget)

	svc := analyzer.New(store, uploads, hub)
	srv := httpadapter.New(svc, hub, generatorReady)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	log.Printf("listening on %s", cfg.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("shutting down on %s", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	case err := <-errCh:
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
