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

	sqliteadapter "github.com/ericfisherdev/credrelay/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/credrelay/internal/adapter/driven/verifierclient"
	httphandler "github.com/ericfisherdev/credrelay/internal/adapter/driving/http"
	"github.com/ericfisherdev/credrelay/internal/application"
	"github.com/ericfisherdev/credrelay/internal/config"
	"github.com/ericfisherdev/credrelay/internal/domain/port/driven"
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
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.LoadIssuer()
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Common, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"peer_url", cfg.PeerURL,
		"replication_mode", cfg.ReplicationMode,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database and apply the issuer schema.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer, sqliteadapter.SchemaIssuer); err != nil {
		return err
	}
	logger.Info("migrations complete", "path", cfg.DBPath)

	// 4. Metrics registry.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	g, gctx := errgroup.WithContext(ctx)

	// 5. Wire replication. Without a peer the issuer still issues; it just
	// never replicates.
	useOutbox := cfg.HasPeer() && cfg.ReplicationMode == config.ReplicationOutbox
	store := sqliteadapter.NewCredentialRepo(db, useOutbox)

	var (
		replicator application.Replicator
		pusher     driven.CredentialPusher
		direct     *application.DirectReplicator
	)
	if cfg.HasPeer() {
		client, err := verifierclient.New(cfg.PeerURL, cfg.SyncTimeout)
		if err != nil {
			return fmt.Errorf("configure verifier client: %w", err)
		}
		pusher = client

		switch cfg.ReplicationMode {
		case config.ReplicationDirect:
			direct = application.NewDirectReplicator(client, cfg.SyncTimeout, m, logger)
			replicator = direct
		default:
			drainer := application.NewReplicationService(
				sqliteadapter.NewOutboxRepo(db),
				client,
				application.WithInterval(cfg.OutboxInterval),
				application.WithBatchSize(cfg.OutboxBatch),
				application.WithPushTimeout(cfg.SyncTimeout),
				application.WithMetrics(m),
				application.WithLogger(logger),
			)
			replicator = drainer
			g.Go(func() error {
				drainer.Start(gctx)
				return nil
			})
		}
	} else {
		logger.Warn("no verifier configured, replication disabled")
	}

	issuance := application.NewIssuanceService(store, replicator, pusher, m, logger)

	// 6. HTTP server.
	handler := httphandler.NewIssuerMux(
		httphandler.NewIssuerHandler(issuance, logger),
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

	g.Go(func() error {
		logger.Info("issuer starting", "addr", cfg.ListenAddr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// 7. Wait for shutdown signal, then drain.
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

	// In-flight direct pushes are bounded by the sync timeout.
	if direct != nil {
		direct.Wait()
	}

	logger.Info("shutdown complete")
	return err
}
