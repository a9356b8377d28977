// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ticksched/internal/collectors/schedstats"
	"ticksched/internal/config"
	"ticksched/internal/logger"
	"ticksched/internal/sim"
)

var (
	version = "0.1.0"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		// generate-config mode already ran
		return
	}

	if err := logger.ConfigureLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", version).
		Int("cpus", cfg.Sched.CPUs).
		Int64("slice_ticks", cfg.Sched.SliceTicks).
		Int32("ceiling_priority", cfg.Sched.CeilingPriority).
		Str("scenario", cfg.Sim.Scenario).
		Str("listen_address", cfg.Server.ListenAddress).
		Msg("Starting ticksched")

	if cfg.Server.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof HTTP server on localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Error().Err(err).Msg("pprof server stopped")
			}
		}()
	}

	stats := schedstats.NewSliceCollector(cfg.Sched.CPUs)
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		stats,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	simulator := sim.New(&cfg.Sched, &cfg.Sim, stats)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: mux,
	}

	go func() {
		log.Info().
			Str("address", cfg.Server.ListenAddress).
			Str("path", cfg.Server.MetricsPath).
			Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Metrics server failed")
		}
	}()

	simDone := make(chan error, 1)
	go func() {
		simDone <- simulator.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
		<-simDone
	case err := <-simDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Simulation stopped with error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Metrics server shutdown failed")
	}

	log.Info().Msg("ticksched stopped")
}
