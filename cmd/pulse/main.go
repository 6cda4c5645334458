// Pulse is the behavioral learning service: it ingests agent interactions,
// derives user profiles and behavioral feedback from them via an LLM
// adapter, and serves the result back over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/beaconlabs/pulse/pkg/aggregator"
	"github.com/beaconlabs/pulse/pkg/api"
	"github.com/beaconlabs/pulse/pkg/config"
	"github.com/beaconlabs/pulse/pkg/coordinator"
	"github.com/beaconlabs/pulse/pkg/database"
	"github.com/beaconlabs/pulse/pkg/extractor/feedback"
	"github.com/beaconlabs/pulse/pkg/extractor/profile"
	"github.com/beaconlabs/pulse/pkg/extractor/success"
	"github.com/beaconlabs/pulse/pkg/llmadapter"
	"github.com/beaconlabs/pulse/pkg/store"
	"github.com/beaconlabs/pulse/pkg/window"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := config.LoadDotEnv(envPath); err != nil {
		log.Fatalf("Failed to load %s: %v", envPath, err)
	}

	systemCfg, err := config.LoadSystemConfig(filepath.Join(*configDir, "pulse.yaml"))
	if err != nil {
		log.Fatalf("Failed to load system config: %v", err)
	}

	ctx := context.Background()

	dbClient, err := database.NewClientFromDSN(ctx, systemCfg.Database.DSN, systemCfg.Database.MaxOpenConn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database", "addr", systemCfg.HTTP.Addr)

	s := store.New(dbClient)

	adapter := llmadapter.NewThrottledAdapter(llmadapter.NewHTTPAdapter(llmadapter.Config{
		BaseURL:        systemCfg.LLMAdapter.BaseURL,
		APIKey:         systemCfg.LLMAdapter.APIKey,
		RequestTimeout: systemCfg.LLMAdapter.Timeout,
	}), systemCfg.Coordinator.LLMConcurrencyCap)

	assembler := window.New(s)
	profileExtractor := profile.New(s, adapter)
	feedbackExtractor := feedback.New(s, adapter)
	successEvaluator := success.New(s, adapter)
	agg := aggregator.New(s, adapter)

	coord := coordinator.New(s, systemCfg.Coordinator.WorkerPoolSize)
	pipeline := coordinator.NewPipeline(s, coord, assembler, profileExtractor, feedbackExtractor, agg, successEvaluator,
		systemCfg.Window.Size, systemCfg.Window.Stride)

	server := api.NewServer(systemCfg, dbClient, s, coord, pipeline, adapter)

	go func() {
		slog.Info("http server listening", "addr", systemCfg.HTTP.Addr)
		if err := server.Start(systemCfg.HTTP.Addr); err != nil {
			slog.Error("http server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}
