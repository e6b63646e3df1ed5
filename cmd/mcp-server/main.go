package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "net/http/pprof"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/bq"
	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/logger"
	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/mcp/server"
	"github.com/daniel-kwapien-dvt/bigquery-agent/internal/mcp/server/metrics"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = "0.0.0.0:8010"
	defaultMetricsAddr = "0.0.0.0:0"

	projectIDEnvVar = "DEFAULT_PROJECT_ID"
	datasetIDEnvVar = "DEFAULT_DATASET_ID"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "enable pprof server")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP server listen address")

	// BigQuery binding configuration
	projectIDFlag := flag.String("project-id", "", "Google Cloud project ID (or set DEFAULT_PROJECT_ID env var)")
	datasetIDFlag := flag.String("dataset-id", "", "BigQuery dataset ID (or set DEFAULT_DATASET_ID env var)")

	flag.Parse()

	// Best effort; the binding env vars are commonly kept in a .env file
	_ = godotenv.Load()

	// Override flags with environment variables if unset
	if *projectIDFlag == "" {
		*projectIDFlag = os.Getenv(projectIDEnvVar)
	}
	if *datasetIDFlag == "" {
		*datasetIDFlag = os.Getenv(datasetIDEnvVar)
	}

	log := logger.New(*verboseFlag)

	binding := bq.Binding{
		ProjectID: *projectIDFlag,
		DatasetID: *datasetIDFlag,
	}
	if err := binding.Validate(); err != nil {
		return fmt.Errorf("invalid store binding (set --project-id/--dataset-id or %s/%s env vars): %w",
			projectIDEnvVar, datasetIDEnvVar, err)
	}

	// Set up signal handling with detailed logging
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Log which signal was received
	go func() {
		sig := <-sigCh
		log.Info("server: received signal", "signal", sig.String())
		cancel()
	}()

	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			err := http.ListenAndServe("localhost:6060", nil)
			if err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	var metricsServerErrCh = make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	// Parse allowed tokens from environment variable (comma-separated)
	// Auth can be explicitly disabled with MCP_AUTH_DISABLED=true
	var allowedTokens []string
	authDisabled := os.Getenv("MCP_AUTH_DISABLED") == "true"

	if authDisabled {
		log.Info("mcp server: authentication explicitly disabled")
	} else if tokensEnv := os.Getenv("MCP_ALLOWED_TOKENS"); tokensEnv != "" {
		for token := range strings.SplitSeq(tokensEnv, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				allowedTokens = append(allowedTokens, token)
			}
		}
		if len(allowedTokens) > 0 {
			log.Info("mcp server: token authentication enabled", "token_count", len(allowedTokens))
		}
	} else {
		log.Info("mcp server: authentication disabled (no tokens configured)")
	}

	// Initialize BigQuery store and toolkit
	store, err := bq.NewStore(ctx, binding)
	if err != nil {
		return fmt.Errorf("failed to create BigQuery store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close BigQuery store", "error", err)
		}
	}()
	log.Info("using BigQuery dataset", "binding", binding.String())

	toolkit, err := bq.NewToolkit(bq.ToolkitConfig{
		Logger:  log,
		Binding: binding,
		Store:   store,
	})
	if err != nil {
		return fmt.Errorf("failed to create toolkit: %w", err)
	}

	// Initialize MCP server
	server, err := server.New(ctx, server.Config{
		Version:       version,
		ListenAddr:    *listenAddrFlag,
		Logger:        log,
		Binding:       binding,
		Toolkit:       toolkit,
		AllowedTokens: allowedTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		err := server.Run(ctx)
		if err != nil {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
		return nil
	case err := <-serverErrCh:
		log.Error("server: server error causing shutdown", "error", err)
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}
