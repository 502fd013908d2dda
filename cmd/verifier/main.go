package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/credrelay/internal/adapter/driven/memcache"
	sqliteadapter "github.com/ericfisherdev/credrelay/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/credrelay/internal/adapter/driving/http"
	"github.com/ericfisherdev/credrelay/internal/application"
	"github.com/ericfisherdev/credrelay/internal/config"
	"github.com/ericfisherdev/credrelay/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadVerifier()
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Common, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("config loaded", "listen_addr", cfg.ListenAddr, "db_path", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer, sqliteadapter.SchemaVerifier); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// The replica is rebuilt from its last snapshot; an unreadable snapshot
	// only means starting empty until the issuer pushes again.
	cache := memcache.New(sqliteadapter.NewSnapshotRepo(db), logger)
	cache.Load(ctx)
	m.CacheSize.Set(float64(cache.Len()))

	verification := application.NewVerificationService(cache, m, logger)

	handler := httphandler.NewVerifierMux(
		httphandler.NewVerifierHandler(verification, logger),
		httphandler.MuxConfig{
			Logger:         logger,
			Metrics:        m,
			Gatherer:       reg,
			AllowedOrigins: cfg.AllowedOrigins,
			Version:        version,
		},
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("verifier starting", "addr", cfg.ListenAddr, "version", version, "credentials", cache.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
