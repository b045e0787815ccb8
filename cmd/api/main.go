// Package main is the entry point for the reconciliation API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/unisew/reconciler/internal/api"
	"github.com/unisew/reconciler/internal/auth"
	"github.com/unisew/reconciler/internal/backend"
	"github.com/unisew/reconciler/internal/config"
	"github.com/unisew/reconciler/internal/gateway"
	"github.com/unisew/reconciler/internal/health"
	"github.com/unisew/reconciler/internal/journal"
	"github.com/unisew/reconciler/internal/middleware"
	"github.com/unisew/reconciler/internal/notify"
	"github.com/unisew/reconciler/internal/quotation"
	"github.com/unisew/reconciler/internal/reconcile"
	"github.com/unisew/reconciler/internal/session"
	"github.com/unisew/reconciler/internal/tracing"
)

const serviceName = "reconciler-api"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Reconciler API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		fmt.Fprintln(os.Stderr, "configuration errors:")
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "  - %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, len(summary)*2)
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)

	// Distributed tracing
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporterType,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	// Metrics
	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
	pipelineMetrics := reconcile.NewMetrics()
	if err := pipelineMetrics.Register(registry); err != nil {
		logger.Error("failed to register pipeline metrics", "error", err)
		os.Exit(1)
	}

	// Settlement journal
	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := journal.Open(dbCtx, cfg.DatabaseURL)
	dbCancel()
	if err != nil {
		logger.Error("failed to connect to journal database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	journalRepo := journal.NewPostgresRepository(db)

	// Payment sessions: Redis when configured, process memory otherwise.
	// Redis expires both transient state and processed markers via TTL;
	// the in-memory manager needs a periodic janitor.
	var (
		sessions     session.Manager
		redisClient  *redis.Client
		cleanupStop  chan struct{}
		redisChecker api.HealthChecker
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		sessions = session.NewRedisManager(redisClient, 30*time.Minute, 24*time.Hour)
		redisChecker = health.NewRedisChecker(redisClient)
	} else {
		logger.Warn("REDIS_URL not set; using in-memory session store")
		mem := session.NewInMemoryManager()
		sessions = mem
		cleanupStop = make(chan struct{})
		go session.RunPeriodicCleanup(mem, time.Hour, 24*time.Hour, cleanupStop)
		defer close(cleanupStop)
	}

	// Downstream clients
	backendClient := backend.NewHTTPClient(cfg.BackendBaseURL, nil)
	mailer := notify.NewHTTPMailer(cfg.NotifyBaseURL, nil)

	controller := reconcile.New(reconcile.Deps{
		Backend:     backendClient,
		Mailer:      mailer,
		Journal:     journalRepo,
		Metrics:     pipelineMetrics,
		Logger:      logger,
		SettleDelay: time.Duration(cfg.SettleDelayMS) * time.Millisecond,
	})

	quotationService := quotation.NewService(backendClient, backendClient, logger)

	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	var stripeClient gateway.StripeClient
	if cfg.StripeAPIKey != "" {
		stripeClient = gateway.NewStripeClient(cfg.StripeAPIKey)
	}

	paymentHandlers := api.NewPaymentHandlers(api.PaymentHandlersConfig{
		Sessions:   sessions,
		Controller: controller,
		VNPay: gateway.Config{
			TmnCode:    cfg.VNPayTmnCode,
			HashSecret: cfg.VNPayHashSecret,
			PayURL:     cfg.VNPayPayURL,
			ReturnURL:  cfg.VNPayReturnURL,
		},
		Stripe:           stripeClient,
		StripeSuccessURL: cfg.StripeSuccessURL,
		StripeCancelURL:  cfg.StripeCancelURL,
		Logger:           logger,
	})
	quotationHandlers := api.NewQuotationHandlers(quotationService, logger)
	journalHandlers := api.NewJournalHandlers(journalRepo, logger)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:      health.NewDBChecker(db),
		RedisChecker:   redisChecker,
		BackendChecker: health.NewBackendChecker(cfg.BackendBaseURL),
	})

	authn := middleware.Auth(jwtService, httpMetrics)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandlers.Health)
	mux.HandleFunc("GET /health/ready", healthHandlers.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /payments/checkout", authn(http.HandlerFunc(paymentHandlers.Checkout)))
	mux.Handle("GET /payments/return", authn(http.HandlerFunc(paymentHandlers.Return)))
	mux.Handle("POST /payments/wallet/complete", authn(http.HandlerFunc(paymentHandlers.WalletComplete)))
	mux.Handle("POST /payments/wallet/topup", authn(http.HandlerFunc(paymentHandlers.TopUp)))
	mux.Handle("DELETE /payments/session", authn(http.HandlerFunc(paymentHandlers.DismissSession)))

	mux.Handle("POST /quotations/validate", authn(http.HandlerFunc(quotationHandlers.Validate)))
	mux.Handle("POST /quotations", authn(http.HandlerFunc(quotationHandlers.Submit)))

	mux.Handle("GET /journal", authn(http.HandlerFunc(journalHandlers.List)))

	// Apply middleware: RequestID -> Tracing -> Logging -> HTTPMetrics
	handler := middleware.RequestID(
		middleware.Tracing(serviceName)(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
