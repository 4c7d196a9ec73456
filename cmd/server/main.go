// Command server runs the parcel delivery API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	app "github.com/parcellink/backend/internal/app"
	"github.com/parcellink/backend/internal/app/httpapi"
	"github.com/parcellink/backend/internal/app/storage/postgres"
	"github.com/parcellink/backend/internal/cache"
	"github.com/parcellink/backend/internal/config"
	"github.com/parcellink/backend/internal/logging"
	"github.com/parcellink/backend/internal/metrics"
	"github.com/parcellink/backend/internal/middleware"
	"github.com/parcellink/backend/internal/platform/migrations"
	"github.com/parcellink/backend/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("server", cfg.Logging.Level)

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime.Std())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := migrations.Apply(ctx, db.DB); err != nil {
		cancel()
		log.WithError(err).Fatal("migrations failed")
	}
	cancel()
	log.Info("database schema up to date")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.WithError(err).Fatal("invalid redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		log.WithError(err).Fatal("redis connection failed")
	}
	pingCancel()

	store := postgres.New(db)
	application, err := app.New(cfg, app.Stores{
		Users:   store,
		Parcels: store,
		Ledger:  store,
		Stats:   store,
	}, session.NewRedisStore(redisClient), log)
	if err != nil {
		log.WithError(err).Fatal("application wiring failed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(registry)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateLimitBurst, log)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 10m", func() { limiter.Cleanup(30 * time.Minute) }); err != nil {
		log.WithError(err).Fatal("scheduler setup failed")
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := httpapi.NewRouter(httpapi.Deps{
		App:         application,
		Cache:       cache.New(redisClient, log),
		Config:      cfg,
		Metrics:     httpMetrics,
		RateLimiter: limiter,
		Logger:      log,
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("server listening")
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}
}
