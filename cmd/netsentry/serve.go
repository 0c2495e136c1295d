package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/netsentry/netsentry/internal/aggregate"
	"github.com/netsentry/netsentry/internal/geo"
	"github.com/netsentry/netsentry/internal/ingest"
	"github.com/netsentry/netsentry/internal/logging"
	"github.com/netsentry/netsentry/internal/rollup"
	"github.com/netsentry/netsentry/internal/server"
	"github.com/netsentry/netsentry/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion pipeline and dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	log := logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	logging.SetDefault(log)
	log = log.With(logging.FieldService, "netsentry")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.Store.MaxEvents)
	engine := aggregate.NewEngine()

	source, err := buildSource(log)
	if err != nil {
		return err
	}

	ingestor := ingest.New(source, st, engine, log, ingest.Options{
		ReconnectDelay: cfg.Ingest.ReconnectDelay,
		LivenessWindow: cfg.Ingest.LivenessWindow,
	})
	defer ingestor.Close()

	handler := server.NewHandler(st, engine, ingestor, buildEnricher(log), log)

	// The initial bulk load is the one blocking, user-visible failure: the
	// API still comes up so the operator sees the error and can retry, but
	// streaming does not start until a retry succeeds.
	var retryMu sync.Mutex
	startIngest := func() error {
		retryMu.Lock()
		defer retryMu.Unlock()
		return ingestor.Start(ctx)
	}
	if err := startIngest(); err != nil {
		var terr *ingest.TransportError
		if !errors.As(err, &terr) {
			return err
		}
		log.Error("initial event load failed", logging.FieldError, terr.Error())
		handler.RetryStart = startIngest
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("dashboard API listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildSource selects the upstream feed implementation from config.
func buildSource(log *logging.Logger) (ingest.Source, error) {
	switch cfg.Upstream.Source {
	case "nats":
		conn, err := nats.Connect(cfg.Upstream.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return nil, err
		}
		log.Info("using NATS event feed", "url", cfg.Upstream.NATS.URL)
		return ingest.NewNATSSource(conn, cfg.Upstream.NATS.EventSubject, cfg.Upstream.NATS.SnapshotSubject), nil
	default:
		return ingest.NewHTTPSource(cfg.Upstream.ThreatsURL, cfg.Upstream.StreamURL), nil
	}
}

// buildEnricher assembles the geolocation client, backed by Redis when
// configured, or nil when enrichment is disabled.
func buildEnricher(log *logging.Logger) rollup.Enricher {
	if !cfg.Geo.Enabled {
		return nil
	}
	var cache geo.Cache
	if cfg.Geo.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Geo.RedisAddr})
		cache = geo.NewRedisCache(client, cfg.Geo.CacheTTL)
		log.Info("geolocation cache backed by redis", "addr", cfg.Geo.RedisAddr)
	}
	return geo.NewClient(cfg.Geo.ProviderURL, cache, log)
}
