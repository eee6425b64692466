// Command copilot-server starts the n8n co-pilot MCP (Model Context Protocol)
// server.
//
// The server runs over stdio, making it compatible with any MCP-capable AI
// client. It exposes the coordinator's tools (validate, deploy, manage
// workflows and executions, search the node catalog) and documentation
// resources.
//
// Usage:
//
//	copilot-server [options]
//
// Options:
//
//	-config string   Path to the configuration YAML file (env vars still apply)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	copilot "github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/config"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/mcp"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/observability"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to the configuration YAML file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("copilot-server %s\n", mcp.Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// stdout carries the MCP stream; every log line goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	ctx := context.Background()

	var traces *observability.TraceProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		traces, err = observability.NewTraceProvider(ctx, observability.TraceConfig{
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    "n8n-copilot",
			ServiceVersion: mcp.Version,
			Insecure:       cfg.Telemetry.Insecure,
			SampleRate:     cfg.Telemetry.SampleRate,
		})
		if err != nil {
			log.Fatalf("Failed to set up tracing: %v", err)
		}
		logger.Info("exporting traces", "endpoint", cfg.Telemetry.OTLPEndpoint)
	}

	collector := observability.NewCollector()

	coordinator, err := copilot.New(ctx, *cfg,
		copilot.WithLogger(logger),
		copilot.WithCollector(collector),
	)
	if err != nil {
		log.Fatalf("Failed to build coordinator: %v", err)
	}

	// The initial sync gets a bounded deadline. A degraded catalog is not
	// fatal: engine and memory tools keep working, catalog reads report
	// CatalogUnavailable until a resync_catalog succeeds.
	connectCtx, cancelConnect := context.WithTimeout(ctx, 30*time.Second)
	if err := coordinator.Connect(connectCtx); err != nil {
		logger.Warn("starting with a degraded catalog", "error", err)
	}
	cancelConnect()

	var metricsSrv *http.Server
	if cfg.Telemetry.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		metricsSrv = &http.Server{Addr: cfg.Telemetry.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("serving metrics", "addr", cfg.Telemetry.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("serving MCP over stdio",
		"version", mcp.Version,
		"engine", cfg.Engine.BaseURL,
	)
	serveErr := mcp.NewServer(coordinator).ServeStdio()

	logger.Info("shutting down")
	if err := coordinator.Close(); err != nil {
		logger.Warn("coordinator shutdown", "error", err)
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
		cancel()
	}
	if traces != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := traces.Shutdown(shutdownCtx); err != nil {
			logger.Warn("trace provider shutdown", "error", err)
		}
		cancel()
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		log.Fatalf("MCP server error: %v", serveErr)
	}
}
