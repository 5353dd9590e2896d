package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RowanDark/magiccipher/internal/config"
	"github.com/RowanDark/magiccipher/internal/keystore"
	"github.com/RowanDark/magiccipher/internal/logging"
	"github.com/RowanDark/magiccipher/internal/metrics"
	"github.com/RowanDark/magiccipher/internal/rpc"
)

func runServe(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", "", "listen address (overrides rpc.addr)")
	maxConns := fs.Int("max-conns", -1, "maximum concurrent connections (overrides rpc.max_conns; 0 = unlimited)")
	dbPath := fs.String("db", "", "key store path (overrides keystore_path)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address (overrides rpc.metrics_addr)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.RPC.Addr = *addr
	}
	if *maxConns >= 0 {
		cfg.RPC.MaxConns = *maxConns
	}
	if *dbPath != "" {
		cfg.KeystorePath = *dbPath
	}
	if *metricsAddr != "" {
		cfg.RPC.MetricsAddr = *metricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.RPC.Addr)
	if err != nil {
		fmt.Fprintf(stderr, "listen on %s: %v\n", cfg.RPC.Addr, err)
		return 1
	}
	if err := serve(ctx, lis, cfg, stderr); err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "magiccipher rpc stopped")
	return 0
}

// serve wires the configured engine defaults, key store and audit log into an
// rpc.Server and runs it on lis until ctx is done.
func serve(ctx context.Context, lis net.Listener, cfg config.Config, logOut io.Writer) error {
	logger := slog.New(slog.NewJSONHandler(logOut, nil))

	defaults, err := cfg.EngineOptions(nil)
	if err != nil {
		return err
	}
	opts := []rpc.ServerOption{rpc.WithLogger(logger)}

	if cfg.KeystorePath != "" {
		store, err := keystore.Open(cfg.KeystorePath, logger)
		if err != nil {
			return fmt.Errorf("open key store: %w", err)
		}
		defer store.Close()
		opts = append(opts, rpc.WithKeystore(store))
	}

	auditOpts := []logging.Option{}
	if cfg.AuditLog != "" {
		auditOpts = append(auditOpts, logging.WithoutStdout(), logging.WithFile(cfg.AuditLog))
	}
	audit, err := logging.NewAuditLogger("magiccipher_rpc", auditOpts...)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer audit.Close()
	opts = append(opts, rpc.WithAuditLogger(audit))

	if cfg.RPC.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv := &http.Server{Addr: cfg.RPC.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", cfg.RPC.MetricsAddr, "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", cfg.RPC.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics shutdown", "error", err)
			}
		}()
	}

	return rpc.Serve(ctx, lis, rpc.NewServer(defaults, opts...), cfg.RPC.MaxConns)
}
