package cmd

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

	"event-registration/config"
	"event-registration/internal/handlers"
	"event-registration/internal/lib/logger/sl"
	"event-registration/internal/services"
	"event-registration/internal/services/gateway"
	"event-registration/internal/store"
	_ "event-registration/migrations"
	"event-registration/monitoring"
	"event-registration/security"
	"event-registration/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
)

const (
	envDevelopment = "development"
	envProduction  = "production"
)

func Start() error {
	cfg := config.LoadConfig()

	log := setupLogger(cfg.Environment)
	slog.SetDefault(log)

	app := pocketbase.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	registry, err := newGatewayRegistry(cfg, log)
	if err != nil {
		return err
	}

	st := store.New(app)
	payments := services.NewPaymentService(
		st,
		services.NewCorrelationCache(redisClient),
		registry,
		newStatusPublisher(cfg, log),
		services.PaymentConfig{
			PublicURL:       cfg.PublicURL,
			Currency:        cfg.Currency,
			ReferencePrefix: cfg.ReferencePrefix,
			CorrelationTTL:  cfg.CorrelationTTL,
		},
		log,
	)
	reaper := services.NewReaper(st, cfg.StaleAfter, log)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == envDevelopment,
	})
	app.RootCmd.AddCommand(newReapCommand(reaper, cfg.StaleAfter))

	app.Cron().MustAdd("stale-payer-reaper", cfg.ReaperSchedule, func() {
		if _, err := reaper.Sweep(context.Background()); err != nil {
			log.Error("scheduled reaper run failed", sl.Err(err))
		}
	})

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort, log)
		monitoring.NewMonitor(st, log).Start(ctx)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel, log)

	paymentHandler := handlers.NewPaymentHandler(payments, registry, cfg.FrontendURL, log)
	webhookHandler := handlers.NewWebhookHandler(payments, log)
	registrationHandler := handlers.NewRegistrationHandler(st, log)
	adminHandler := handlers.NewAdminHandler(payments, reaper, log)

	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, log)
	adminGuard := security.NewAdminGuard(cfg.AdminTokenHash)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		v1 := e.Router.Group("/api/v1")

		// Payment endpoints
		v1.POST("/payments/initiate", paymentHandler.Initiate).BindFunc(limiter.Middleware("initiate"))
		v1.GET("/payments/{reference}/verify", paymentHandler.Verify)
		v1.GET("/payments/{provider}/callback", paymentHandler.Callback)
		v1.POST("/payments/{reference}/cancel", paymentHandler.Cancel).BindFunc(limiter.Middleware("cancel"))

		// Gateway webhooks
		v1.POST("/webhooks/{provider}", webhookHandler.Receive)

		// Registration endpoints
		v1.GET("/registrations/ref/{reference}", registrationHandler.ByReference)
		v1.POST("/registrations/{id}/check-in", registrationHandler.CheckIn).BindFunc(adminGuard.Middleware())

		// Admin endpoints
		admin := v1.Group("/admin")
		admin.BindFunc(adminGuard.Middleware())
		admin.POST("/payers/{payerId}/reconcile", adminHandler.Reconcile)
		admin.POST("/reaper/run", adminHandler.RunReaper)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Info("server routes registered", slog.Any("gateways", registry.Providers()))

		return e.Next()
	})

	return app.Start()
}

// newGatewayRegistry registers every gateway that has credentials and makes
// the configured default the primary one.
func newGatewayRegistry(cfg *config.Config, log *slog.Logger) (*gateway.Registry, error) {
	registry := gateway.NewRegistry(gateway.NewFactory(),
		utils.WithTimeouts(time.Minute, 30*time.Second),
	)

	configured := []struct {
		provider gateway.Provider
		enabled  bool
		config   any
	}{
		{gateway.Paystack, cfg.Paystack.SecretKey != "", &cfg.Paystack},
		{gateway.Flutterwave, cfg.Flutterwave.SecretKey != "", &cfg.Flutterwave},
		{gateway.Credo, cfg.Credo.SecretKey != "" && cfg.Credo.PublicKey != "", &cfg.Credo},
	}
	for _, c := range configured {
		if !c.enabled {
			continue
		}
		if err := registry.RegisterGateway(c.provider, c.config); err != nil {
			return nil, err
		}
	}

	if len(registry.Providers()) == 0 {
		log.Warn("no payment gateway configured, payments are disabled")
		return registry, nil
	}

	def, err := gateway.ParseProvider(cfg.DefaultGateway)
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_GATEWAY: %w", err)
	}
	if err := registry.SetPrimary(def); err != nil {
		log.Warn("default gateway not configured, using first registered",
			slog.String("default", cfg.DefaultGateway),
			sl.Err(err),
		)
	}
	return registry, nil
}

func newStatusPublisher(cfg *config.Config, log *slog.Logger) services.StatusPublisher {
	if cfg.PubNubPublishKey == "" || cfg.PubNubSubscribeKey == "" {
		log.Info("pubnub not configured, live status updates disabled")
		return services.NopPublisher{}
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	return services.NewPubNubPublisher(pubnub.NewPubNub(pnConfig))
}

func serveMetrics(port string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("metrics server listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", sl.Err(err))
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envProduction:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case envDevelopment:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc, log *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Info("shutdown signal received, cleaning up")
	cancel()
}
