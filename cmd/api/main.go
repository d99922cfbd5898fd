package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-identity/internal/bootstrap"
	"github.com/jwalitptl/clinic-identity/internal/config"
	"github.com/jwalitptl/clinic-identity/internal/featureflag"
	appointmentHandler "github.com/jwalitptl/clinic-identity/internal/handler/appointment"
	"github.com/jwalitptl/clinic-identity/internal/handler/health"
	identityHandler "github.com/jwalitptl/clinic-identity/internal/handler/identity"
	promhandler "github.com/jwalitptl/clinic-identity/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-identity/internal/middleware"
	"github.com/jwalitptl/clinic-identity/internal/repository/postgres"
	"github.com/jwalitptl/clinic-identity/internal/router"
	appointmentService "github.com/jwalitptl/clinic-identity/internal/service/appointment"
	clinicService "github.com/jwalitptl/clinic-identity/internal/service/clinic"
	eventService "github.com/jwalitptl/clinic-identity/internal/service/event"
	"github.com/jwalitptl/clinic-identity/internal/service/resolution"
	"github.com/jwalitptl/clinic-identity/pkg/logger"
	"github.com/jwalitptl/clinic-identity/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-identity/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := bootstrap.Logger(cfg.Logging, "api")

	flags, err := config.LoadFlags()
	if err != nil {
		log.Fatal(err, "failed to load feature flags")
	}
	flagRouter := featureflag.New(flags)
	if err := flagRouter.Validate(log); err != nil {
		log.Fatal(err, "refusing to start")
	}
	log.WithFields(flagRouter.Fields()).Info("feature flags loaded")

	if cfg.Session.Secret == "" {
		log.Fatal(errors.New("session.secret is empty"), "refusing to start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New("clinic", registry)

	checks := map[string]health.Pinger{"database": db}
	notifier, closeNotifier := newNotifier(cfg.Redis, appMetrics, log, checks)
	defer closeNotifier()

	core := bootstrap.NewCore(db, cfg, log)
	strategy := resolution.Select(flagRouter, core.Identities, core.Legacy)
	policies := clinicService.NewPolicyService(postgres.NewClinicRepository(db), cfg.Appointments.PolicyCacheTTL)
	appointments := appointmentService.NewService(
		postgres.NewAppointmentRepository(db),
		strategy,
		core.Identities,
		policies,
		notifier,
		appMetrics,
		appointmentService.Options{DefaultDurationMinutes: cfg.Appointments.DefaultDurationMinutes},
		log,
	)

	r := router.NewRouter(
		middleware.NewSessionAuth(cfg.Session.Secret),
		health.NewHandler(checks),
		promhandler.New(registry, "clinic"),
		log,
		router.RouterConfig{
			RateLimit: rate.Limit(cfg.Server.RateLimitRPS),
			RateBurst: cfg.Server.RateLimitBurst,
		},
		identityHandler.NewHandler(core.Identities),
		appointmentHandler.NewHandler(appointments),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}
}

// newNotifier connects the redis publisher, or drops events when no redis
// URL is configured.
func newNotifier(cfg config.RedisConfig, m *metrics.Metrics, log *logger.Logger, checks map[string]health.Pinger) (eventService.Notifier, func()) {
	if cfg.URL == "" {
		log.Warn("redis.url not set; lifecycle events will not be published")
		return eventService.NopNotifier{}, func() {}
	}

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.URL,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
	}, log.Zerolog())
	if err != nil {
		log.Fatal(err, "failed to connect to Redis")
	}
	checks["redis"] = broker
	return eventService.NewBrokerNotifier(broker, cfg.Channel, m, log), func() {
		if err := broker.Close(); err != nil {
			log.Error(err, "failed to close redis broker")
		}
	}
}
