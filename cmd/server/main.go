package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"veritrail/internal/ledger/announce"
	"veritrail/internal/ledger/handler"
	"veritrail/internal/ledger/metrics"
	"veritrail/internal/ledger/service"
	"veritrail/internal/ledger/store"
	"veritrail/internal/platform/config"
	"veritrail/internal/platform/httpserver"
	"veritrail/internal/platform/logger"
	"veritrail/internal/platform/postgres"
	"veritrail/internal/platform/redis"
	txpkg "veritrail/pkg/platform/tx"
)

// main wires dependencies and manages the process lifecycle. Ledger
// semantics live in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.EnsureSchema(ctx, db); err != nil {
		log.Error("failed to ensure ledger schema", "error", err)
		os.Exit(1)
	}

	ledgerMetrics := metrics.New()
	ledgerStore := store.NewPostgres(db)

	serviceOpts := []service.Option{
		service.WithTx(txpkg.NewRunner(db)),
		service.WithMetrics(ledgerMetrics),
	}

	var announcer *announce.Announcer
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := announce.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("failed to create kafka publisher", "error", err)
			os.Exit(1)
		}
		announcer = announce.New(publisher, log, announce.WithMetrics(ledgerMetrics))
		serviceOpts = append(serviceOpts, service.WithAnnouncer(announcer))
	}

	ledger := service.New(ledgerStore, log, serviceOpts...)

	handlerOpts := []handler.Option{}
	redisClient, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		handlerOpts = append(handlerOpts, handler.WithIdempotencyStore(
			handler.NewRedisIdempotencyStore(redisClient.Client),
		))
	}

	router := chi.NewRouter()
	handler.New(ledger, log, handlerOpts...).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting veritrail", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if announcer != nil {
		g.Go(func() error {
			if err := announcer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("veritrail stopped")
}
