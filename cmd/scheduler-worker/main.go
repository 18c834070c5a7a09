package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smartfuturesg/telehealth-platform/cmd/mainconfig"
	"github.com/smartfuturesg/telehealth-platform/internal/archive"
	"github.com/smartfuturesg/telehealth-platform/internal/bookings"
	"github.com/smartfuturesg/telehealth-platform/internal/careteam"
	appconfig "github.com/smartfuturesg/telehealth-platform/internal/config"
	"github.com/smartfuturesg/telehealth-platform/internal/notify"
	"github.com/smartfuturesg/telehealth-platform/internal/observability/metrics"
	"github.com/smartfuturesg/telehealth-platform/internal/payments"
	"github.com/smartfuturesg/telehealth-platform/internal/queue"
	"github.com/smartfuturesg/telehealth-platform/internal/scheduler"
	"github.com/smartfuturesg/telehealth-platform/internal/staff"
	"github.com/smartfuturesg/telehealth-platform/internal/video"
	telehealthworker "github.com/smartfuturesg/telehealth-platform/internal/worker/telehealth"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting telehealth scheduler worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	bookingStore := bookings.NewStore(pool)
	staffStore := staff.NewStore(pool)
	grantStore := careteam.NewStore(pool)

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

	taskQueue := queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TaskQueueURL)

	sched := scheduler.New(bookingStore, grantStore, queue.NewPublisher(taskQueue), scheduler.Policy{
		ReminderHorizon:     cfg.ReminderHorizon,
		ChargeHorizon:       cfg.ChargeHorizon,
		CareTeamGrantLead:   cfg.CareTeamGrantLead,
		PendingAbandonAfter: cfg.PendingAbandonAfter,
		OverdueCallGrace:    cfg.OverdueCallGrace,
		ReviewWindow:        cfg.ReviewWindow,
	}, bookingMetrics, logger)
	go sched.Run(ctx, cfg.ScanInterval)

	worker := telehealthworker.NewWorker(lifecycle, taskQueue, bookingMetrics, logger,
		telehealthworker.WithWorkerCount(cfg.WorkerCount),
		telehealthworker.WithReceiveWaitSeconds(10),
	)
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down scheduler worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("scheduler worker stopped")
	case <-doneCtx.Done():
		logger.Error("scheduler worker shutdown timed out", "error", doneCtx.Err())
	}
}
