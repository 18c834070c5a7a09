package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/smartfuturesg/telehealth-platform/cmd/mainconfig"
	"github.com/smartfuturesg/telehealth-platform/internal/api/router"
	"github.com/smartfuturesg/telehealth-platform/internal/archive"
	"github.com/smartfuturesg/telehealth-platform/internal/availability"
	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/careteam"
	appconfig "github.com/smartfuturesg/telehealth-platform/internal/config"
	"github.com/smartfuturesg/telehealth-platform/internal/http/handlers"
	"github.com/smartfuturesg/telehealth-platform/internal/locks"
	"github.com/smartfuturesg/telehealth-platform/internal/notify"
	"github.com/smartfuturesg/telehealth-platform/internal/observability/metrics"
	"github.com/smartfuturesg/telehealth-platform/internal/payments"
	"github.com/smartfuturesg/telehealth-platform/internal/queue"
	"github.com/smartfuturesg/telehealth-platform/internal/scheduler"
	"github.com/smartfuturesg/telehealth-platform/internal/search"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/video"
	telehealthworker "github.com/smartfuturesg/telehealth-platform/internal/worker/telehealth"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting telehealth API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	locker := locks.NewRedisSlotLocker(redisClient, cfg.SlotLockTTL)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(reg)

	// Stores
	bookingStore := bookings.NewStore(pool)
	staffStore := staff.NewStore(pool)
	availStore := availability.NewStore(pool)
	grantStore := careteam.NewStore(pool)

	// External collaborators
	paymentClient := payments.NewInstaMedClient(cfg.InstaMedBaseURL, cfg.InstaMedAPIKey, cfg.InstaMedSecretKey, logger)
	videoClient := video.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAPIKey, cfg.TwilioAPISecret, cfg.TwilioBaseURL, logger)
	archiveStore := archive.NewStore(s3.NewFromConfig(awsCfg), videoClient, cfg.TranscriptBucket, logger)

	var emailSender notify.EmailSender
	if cfg.EmailFromAddress != "" {
		emailSender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
	} else {
		logger.Warn("EMAIL_FROM_ADDRESS not set, email notifications are stubbed")
		emailSender = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewService(emailSender, notify.NewContactStore(pool), logger)

	lifecycle := bookings.NewLifecycle(bookings.LifecycleDeps{
		Store:    bookingStore,
		Staff:    staffStore,
		Locker:   locker,
		Payments: paymentClient,
		Rooms:    videoClient,
		Archiver: archiveStore,
		Notifier: notifier,
		CareTeam: grantStore,
		Policy: bookings.Policy{
			LeadTime:       cfg.LeadTime,
			StartEndBuffer: cfg.StartEndBuffer,
			ReviewWindow:   cfg.ReviewWindow,
		},
		Metrics: bookingMetrics,
		Logger:  logger,
	})

	engine := search.NewEngine(staffStore, availStore, bookingStore, search.Policy{
		LeadTime:       cfg.LeadTime,
		StartEndBuffer: cfg.StartEndBuffer,
	}, bookingMetrics, logger)

	// In memory-queue mode the scheduler and the task worker run inside this
	// process; the queue never leaves it.
	var inlineWorker *telehealthworker.Worker
	if cfg.UseMemoryQueue {
		logger.Info("using in-memory task queue, running scheduler and worker inline")
		memQueue := queue.NewMemoryQueue(64)
		sched := scheduler.New(bookingStore, grantStore, queue.NewPublisher(memQueue), scheduler.Policy{
			ReminderHorizon:     cfg.ReminderHorizon,
			ChargeHorizon:       cfg.ChargeHorizon,
			CareTeamGrantLead:   cfg.CareTeamGrantLead,
			PendingAbandonAfter: cfg.PendingAbandonAfter,
			OverdueCallGrace:    cfg.OverdueCallGrace,
			ReviewWindow:        cfg.ReviewWindow,
		}, bookingMetrics, logger)
		go sched.Run(ctx, cfg.ScanInterval)

		inlineWorker = telehealthworker.NewWorker(lifecycle, memQueue, bookingMetrics, logger,
			telehealthworker.WithWorkerCount(cfg.WorkerCount),
		)
		inlineWorker.Start(ctx)
	}

	// Handlers and router
	routerCfg := &router.Config{
		Logger:              logger,
		SearchHandler:       handlers.NewSearchHandler(engine, logger),
		BookingsHandler:     handlers.NewBookingsHandler(lifecycle, bookingStore, logger),
		AvailabilityHandler: handlers.NewAvailabilityHandler(availStore, staffStore, logger),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		JWTSecret:           cfg.JWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	cancel()
	if inlineWorker != nil {
		inlineWorker.Wait()
	}

	logger.Info("server stopped")
}
