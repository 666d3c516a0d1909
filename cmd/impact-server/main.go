package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/impact-simulator/internal/config"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/observability"
	"github.com/signalsfoundry/impact-simulator/internal/server"
	"github.com/signalsfoundry/impact-simulator/internal/sim"
	"github.com/signalsfoundry/impact-simulator/timectrl"
)

func main() {
	configDir := flag.String("config", ".", "Directory holding "+config.FileName)
	addr := flag.String("addr", "", "HTTP listen address (overrides http.addr)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides metrics.addr, \"off\" disables)")
	flag.Parse()

	settings, cfgErr := config.Load(*configDir)
	if cfgErr != nil && !config.IsNotFound(cfgErr) {
		fmt.Fprintf(os.Stderr, "impact-server: %v\n", cfgErr)
		os.Exit(1)
	}
	if *addr != "" {
		settings.HTTP.Addr = *addr
	}
	if *metricsAddr != "" {
		settings.Metrics.Addr = *metricsAddr
	}

	log, closeLog, err := logging.NewWithFile(logging.Config{
		Level:     settings.Log.Level,
		Format:    settings.Log.Format,
		AddSource: true,
	}, settings.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "impact-server: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfgErr != nil {
		log.Info(ctx, "no config file found, using defaults", logging.String("dir", *configDir))
	}

	lis, err := net.Listen("tcp", settings.HTTP.Addr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", settings.HTTP.Addr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, settings, log, lis); err != nil {
		log.Error(ctx, "impact server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the API on lis until ctx is cancelled, then shuts down
// gracefully.
func run(ctx context.Context, settings config.Settings, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromSettings(settings.Tracing), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewImpactCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics collector: %w", err)
	}
	metricsSrv := serveMetrics(settings.Metrics.Addr, collector, log)

	assembly, err := sim.Assemble(ctx, settings,
		sim.WithLogger(log),
		sim.WithRecorder(collector),
	)
	if err != nil {
		return err
	}
	defer assembly.Close()

	if assembly.Influx != nil {
		if err := assembly.Influx.Ping(ctx); err != nil {
			log.Warn(ctx, "influx not reachable at startup", logging.Err(err))
		}
	}

	res := assembly.Loader.Load(ctx, 0)
	collector.CatalogLoaded(res.Fallback, res.Total)

	srv := server.New(assembly.Controller, assembly.Catalog,
		server.WithLogger(log),
		server.WithCollector(collector),
		server.WithCatalogLoader(assembly.Loader),
		server.WithHistory(assembly.History),
		server.WithTick(settings.Sim.Tick, timectrl.RealTime),
		server.WithPopulationDensity(settings.Sim.PopulationDensity),
	)

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(lis)
	}()
	log.Info(ctx, "starting impact server",
		logging.String("addr", lis.Addr().String()),
		logging.Int("catalog_objects", res.Total),
		logging.String("storage", settings.Storage.Type),
	)

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	log.Info(context.Background(), "shutting down impact server")
	// Hijacked websocket connections are not tracked by Shutdown.
	srv.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("http shutdown: %w", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return serveErr
}

func serveMetrics(addr string, collector *observability.ImpactCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" || addr == "off" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
