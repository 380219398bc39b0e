// Command graphrag-api wires the GraphRAG service container and reports it
// ready to serve. The HTTP/SSE transport itself is an external collaborator
// (spec.md §1); this binary is deliberately minimal — it loads configuration,
// constructs the container, and blocks until told to shut down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smlht2005/care-rag-api/internal/app"
	"github.com/smlht2005/care-rag-api/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "graphrag-api: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "graphrag-api: %v\n", err)
		}
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("graphrag-api starting",
		"config", *configPath,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Container wiring ─────────────────────────────────────────────────────
	container, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise container", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Wait for shutdown signal ─────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("graphrag-api ready — transport attaches to container.Orchestrator() and container.Builder(); press Ctrl+C to shut down")
	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	if err := container.Shutdown(15 * time.Second); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ─────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       graphrag-api — startup summary  ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("LLM provider", providerSummary(cfg.LLM.Name, cfg.LLM.Model))
	printField("Graph store", graphStoreSummary(cfg.Graph.DBPath))
	printField("Top-K default", fmt.Sprintf("%d", cfg.Retrieval.TopKDefault))
	printField("Cache sweep batch", fmt.Sprintf("%d", cfg.Cache.SweepBatch))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerSummary(name, model string) string {
	if name == "" {
		return "(not configured — stub mode)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func graphStoreSummary(dbPath string) string {
	if dbPath == "" {
		return "in-memory"
	}
	return dbPath
}

func printField(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-16s : %-19s ║\n", label, value)
}

// ── Logger ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
