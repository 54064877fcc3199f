package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/patchnotes/internal/config"
	"github.com/jonathan/patchnotes/internal/fetch"
	"github.com/jonathan/patchnotes/internal/llm"
	"github.com/jonathan/patchnotes/internal/pipeline"
	"github.com/jonathan/patchnotes/internal/server"
	"github.com/jonathan/patchnotes/internal/server/ratelimit"
	"github.com/jonathan/patchnotes/internal/summarize"
)

var (
	servePort         int
	serveSyncInterval time.Duration
	serveMemory       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes the aggregated publications, accounts, bookmarks,
summaries and sync status. Reads bring the store up to date when it is stale; --sync-interval
adds a background check.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from PORT or 8080)")
	serveCmd.Flags().DurationVar(&serveSyncInterval, "sync-interval", 0, "Run a staleness check this often (0 disables)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Keep everything in memory instead of PostgreSQL")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, serveMemory)
	if err != nil {
		return err
	}
	defer a.close()

	passwordConfig, err := config.NewPasswordConfig()
	if err != nil {
		return fmt.Errorf("failed to create password config: %w", err)
	}
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}

	port := a.cfg.Port
	if servePort != 0 {
		port = servePort
	}

	deps := server.Deps{
		Users: a.store,
		Query: a.query,
		Sync:  a.scheduler,
	}
	if a.cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), a.cfg.GeminiAPIKey)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		deps.Summarizer = summarize.New(client, a.query, fetch.NewClient(nil))
	} else {
		log.Printf("[serve] warning: GEMINI_API_KEY not set, /summarize is disabled")
	}

	srv, err := server.New(server.Config{
		Port:      port,
		Password:  passwordConfig,
		JWT:       jwtConfig,
		RateLimit: ratelimit.LoadConfig(),
	}, deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	interval := serveSyncInterval
	if interval == 0 {
		interval = time.Duration(a.cfg.SyncInterval)
	}
	if interval > 0 {
		go syncPeriodically(ctx, a.scheduler, interval)
	}

	return srv.Start(ctx)
}

// syncPeriodically checks staleness every interval until ctx ends.
func syncPeriodically(ctx context.Context, scheduler *pipeline.Scheduler, interval time.Duration) {
	log.Printf("[sync] background check every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := scheduler.SyncIfStale(ctx); err != nil {
				log.Printf("[sync] background check failed: %v", err)
			}
		}
	}
}
