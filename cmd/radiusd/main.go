// GoRADIUS daemon -- RADIUS AAA protocol implementation (RFCs 2865, 2866,
// 2868, 2869, 5176).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/openradius/goradius/internal/config"
	radiusmetrics "github.com/openradius/goradius/internal/metrics"
	"github.com/openradius/goradius/internal/netio"
	"github.com/openradius/goradius/internal/radius"
	appversion "github.com/openradius/goradius/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("radiusd starting",
		slog.String("version", appversion.Version),
		slog.String("auth_addr", cfg.Server.AuthAddr),
		slog.String("acct_addr", cfg.Server.AcctAddr),
		slog.String("coa_addr", cfg.Server.CoAAddr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := radiusmetrics.NewCollector(reg)

	dict, err := radius.LoadDictionaryWithExtras(cfg.Dictionary.Paths)
	if err != nil {
		logger.Error("failed to load dictionary", slog.String("error", err.Error()))
		return 1
	}

	if err := runServers(cfg, dict, collector, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("radiusd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("radiusd stopped")
	return 0
}

// runServers sets up and runs the RADIUS listeners and the metrics HTTP
// server using an errgroup with signal-aware context for graceful
// shutdown.
func runServers(
	cfg *config.Config,
	dict *radius.Dictionary,
	collector *radiusmetrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	secrets, err := newClientSecretProvider(cfg.Clients)
	if err != nil {
		return fmt.Errorf("build client secret provider: %w", err)
	}

	authLn, err := netio.NewListener(gCtx, cfg.Server.AuthAddr)
	if err != nil {
		return fmt.Errorf("listen auth %s: %w", cfg.Server.AuthAddr, err)
	}
	defer closeListener(authLn, logger, "auth")

	acctLn, err := netio.NewListener(gCtx, cfg.Server.AcctAddr)
	if err != nil {
		return fmt.Errorf("listen acct %s: %w", cfg.Server.AcctAddr, err)
	}
	defer closeListener(acctLn, logger, "acct")

	coaLn, err := netio.NewListener(gCtx, cfg.Server.CoAAddr)
	if err != nil {
		return fmt.Errorf("listen coa %s: %w", cfg.Server.CoAAddr, err)
	}
	defer closeListener(coaLn, logger, "coa")

	dedup := radius.NewDeduplicator(cfg.Auth.DedupTTL)

	proxyClient, proxyLn, err := buildProxyClient(gCtx, cfg, dict, collector, logger)
	if err != nil {
		return fmt.Errorf("build proxy client: %w", err)
	}
	if proxyLn != nil {
		defer closeListener(proxyLn, logger, "proxy")
	}

	authServer := radius.NewServer(dict, secrets, authLn,
		radius.WithHandlerBudget(cfg.Server.HandlerBudget),
		radius.WithServerMetrics(collector),
		radius.WithDedup(dedup),
	)
	if proxyClient != nil {
		authServer.Handle(radius.CodeAccessRequest, radius.NewProxyHandler(proxyClient, firstUpstreamPolicy(cfg.Proxy.Upstreams)))
	} else {
		authServer.Handle(radius.CodeAccessRequest, newAccessHandler(dict, logger))
	}

	acctServer := radius.NewServer(dict, secrets, acctLn,
		radius.WithHandlerBudget(cfg.Server.HandlerBudget),
		radius.WithServerMetrics(collector),
	)
	acctServer.Handle(radius.CodeAccountingRequest, newAccountingHandler(dict))

	coaServer := radius.NewServer(dict, secrets, coaLn,
		radius.WithHandlerBudget(cfg.Server.HandlerBudget),
		radius.WithServerMetrics(collector),
	)
	coaHandler := newCoAHandler(dict)
	coaServer.Handle(radius.CodeCoARequest, coaHandler)
	coaServer.Handle(radius.CodeDisconnectRequest, coaHandler)

	g.Go(func() error { return netio.NewReceiver(authServer, logger).Run(gCtx, authLn) })
	g.Go(func() error { return netio.NewReceiver(acctServer, logger).Run(gCtx, acctLn) })
	g.Go(func() error { return netio.NewReceiver(coaServer, logger).Run(gCtx, coaLn) })
	g.Go(func() error {
		dedup.Run(gCtx.Done(), cfg.Auth.DedupTTL)
		return nil
	})

	if proxyClient != nil && proxyLn != nil {
		g.Go(func() error { return runProxyReceiveLoop(gCtx, proxyLn, proxyClient, logger) })
	}

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	startHTTPServers(gCtx, g, cfg, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, fr, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startHTTPServers registers the metrics HTTP server goroutine.
func startHTTPServers(ctx context.Context, g *errgroup.Group, cfg *config.Config, metricsSrv *http.Server, logger *slog.Logger) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the SIGHUP config-reload goroutine.
// This daemon carries no systemd watchdog integration; it has no
// long-running session state that a watchdog would need to guard.
func startDaemonGoroutines(ctx context.Context, g *errgroup.Group, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// handleSIGHUP reloads the dynamic log level on each SIGHUP. Dictionary
// and client-list changes require a process restart; only the log
// level is hot-reloadable.
func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// gracefulShutdown stops the flight recorder and shuts down the HTTP
// servers with a bounded drain timeout.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, fr *trace.FlightRecorder, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// startFlightRecorder initializes and starts the Go 1.26 FlightRecorder
// for post-mortem debugging of request-pipeline failures.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// listenAndServe creates a TCP listener via ListenConfig and serves HTTP
// requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func closeListener(ln *netio.Listener, logger *slog.Logger, name string) {
	if err := ln.Close(); err != nil {
		logger.Warn("failed to close listener", slog.String("listener", name), slog.String("error", err.Error()))
	}
}
