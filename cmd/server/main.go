package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"vigil/internal/alert"
	alerthandler "vigil/internal/alert/handler"
	"vigil/internal/fanout"
	"vigil/internal/geo"
	"vigil/internal/identity"
	"vigil/internal/jwttoken"
	"vigil/internal/notification"
	notificationhandler "vigil/internal/notification/handler"
	"vigil/internal/platform/config"
	"vigil/internal/platform/httpserver"
	"vigil/internal/platform/logger"
	"vigil/internal/platform/metrics"
	platformredis "vigil/internal/platform/redis"
	"vigil/internal/registry"
	httptransport "vigil/internal/transport/http"
	"vigil/internal/ws"
	"vigil/internal/zone"
	zonehandler "vigil/internal/zone/handler"
	"vigil/pkg/eventlog"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the domain packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httptransport.HealthCheck{}

	// Stores: postgres when configured, in-memory otherwise.
	var (
		userStore         identity.Store
		zoneStore         zone.Store
		alertStore        alert.Store
		notificationStore notification.Store
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("failed to create postgres pool", "error", err.Error())
			os.Exit(1)
		}
		defer pool.Close()
		checks["postgres"] = pool.Ping

		userStore = identity.NewPostgres(pool)
		zoneStore = zone.NewPostgres(pool)
		alertStore = alert.NewPostgres(pool)
		notificationStore = notification.NewPostgres(pool)
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		userStore = identity.NewInMemoryStore()
		zoneStore = zone.NewInMemoryStore()
		alertStore = alert.NewInMemoryStore()
		notificationStore = notification.NewInMemoryStore()
	}

	// Event log: Kafka when brokers are configured, in-memory otherwise.
	var sink eventlog.Sink = eventlog.NewMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := eventlog.NewKafkaSink(cfg.KafkaBrokers, "")
		if err != nil {
			log.Error("failed to create kafka sink", "error", err.Error())
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	events := eventlog.NewPublisher(128, log)
	go func() {
		_ = eventlog.NewWorker(sink, events.Events(), log).Run(ctx)
	}()

	resolver := identity.NewResolver(userStore)
	presence := registry.New(registry.WithLogger(log), registry.WithMetrics(m))
	zones := zone.New(zoneStore, zone.WithLogger(log))
	notifications := notification.New(notificationStore,
		notification.WithLogger(log),
		notification.WithMetrics(m),
		notification.WithEventLog(events),
	)

	engineOpts := []fanout.Option{
		fanout.WithLogger(log),
		fanout.WithMetrics(m),
	}

	// Presence bridge: relays live pushes across instances when Redis is
	// configured.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health

		bridge := fanout.NewBridge(redisClient.Client, presence, log)
		engineOpts = append(engineOpts, fanout.WithPublisher(bridge))
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("presence bridge stopped", "error", err.Error())
			}
		}()
	}

	engine := fanout.New(zones, geo.NewMatcher(geo.WithLogger(log)), notifications, presence, engineOpts...)
	alerts := alert.New(alertStore, engine, resolver,
		alert.WithLogger(log),
		alert.WithEventLog(events),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "vigil")

	router := httptransport.NewRouter(checks,
		alerthandler.New(alerts, log, jwtService),
		zonehandler.New(zones, log, jwtService),
		notificationhandler.New(notifications, log, m, jwtService),
		ws.New(resolver, presence, log, ws.WithMetrics(m), ws.WithEventLog(events)),
	)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
}
