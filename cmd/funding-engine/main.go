// Package main is the entry point for the funding-rate arbitrage-signal engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding"
	fundingDI "github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/business/funding/di"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/apm"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/config"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/health"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/logger"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/memmonitor"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/metrics"
	"github.com/shingo0620/cross-exchange-arbitrage-bot-sub000/internal/monolith"

	_ "go.uber.org/automaxprocs"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("funding-engine %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	log := logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
	log.Info(ctx, "starting funding-rate arbitrage-signal engine",
		"version", version,
		"environment", cfg.App.Environment,
		"exchanges", cfg.Funding.MonitoredExchanges,
	)

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthServer := health.NewServer(8081, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", 8081)
	}
	defer healthServer.Stop(ctx)

	memMon := memmonitor.New(cfg.Funding.MemoryMonitorInterval(), log)
	memMon.Observe(func(s memmonitor.Sample) {
		log.Debug(ctx, "memory sample", "rssBytes", s.RSSBytes, "heapAllocBytes", s.HeapAllocBytes, "goroutines", s.Goroutines)
	})
	go memMon.Run(ctx)

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	modules := []monolith.Module{
		&funding.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	hub := fundingDI.GetHub(mono.Services())
	reporter := newLogReporter(os.Stdout, hub)
	if err := reporter.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reporter: %w", err)
	}

	log.Info(ctx, "all modules started, ingesting funding rates")
	<-ctx.Done()

	log.Info(ctx, "shutting down")
	reporter.Stop()

	monitor := fundingDI.GetMonitor(mono.Services())
	monitor.Shutdown(context.Background())
	fundingDI.GetBroadcaster(mono.Services()).Stop()

	return nil
}
