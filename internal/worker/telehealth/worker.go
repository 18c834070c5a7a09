package telehealthworker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartfuturesg/telehealth-platform/internal/observability/metrics"
	"github.com/smartfuturesg/telehealth-platform/internal/queue"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

// BookingTasks is the slice of the booking lifecycle the worker drives. Every
// method re-checks booking state, so redelivered tasks are safe.
type BookingTasks interface {
	Remind(ctx context.Context, bookingID uuid.UUID) error
	Charge(ctx context.Context, bookingID uuid.UUID) error
	NotifyUpcomingCharge(ctx context.Context, bookingID uuid.UUID) error
	GrantCareTeamAccess(ctx context.Context, bookingID uuid.UUID) error
	CompleteOverdue(ctx context.Context, bookingID uuid.UUID) error
	Abandon(ctx context.Context, bookingID uuid.UUID) error
	ArchiveTranscript(ctx context.Context, bookingID uuid.UUID) error
}

const (
	defaultWorkerCount = 2
	defaultWaitSeconds = 2
	defaultBatchSize   = 5
	maxWaitSeconds     = 20
	maxBatchSize       = 10
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxBatchSize {
			size = maxBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Worker consumes booking tasks from the queue and drives the lifecycle.
type Worker struct {
	tasks   BookingTasks
	queue   queue.Client
	metrics *metrics.BookingMetrics
	logger  *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

func NewWorker(tasks BookingTasks, q queue.Client, m *metrics.BookingMetrics, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		tasks:   tasks,
		queue:   q,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start launches the consumer goroutines. They exit when ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("telehealth worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("telehealth worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive booking tasks", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) {
	task, err := queue.DecodeTask(msg.Body)
	if err != nil {
		// Malformed payloads never succeed on redelivery; drop them.
		w.logger.Error("failed to decode booking task", "error", err, "message_id", msg.ID)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	if err := w.dispatch(ctx, task); err != nil {
		// Leave the message for redelivery. The lifecycle re-checks booking
		// state, so a retry after partial progress is safe.
		w.metrics.ObserveTask(string(task.Kind), "failed")
		w.logger.Error("booking task failed",
			"kind", string(task.Kind), "booking_id", task.BookingID, "error", err)
		return
	}

	w.metrics.ObserveTask(string(task.Kind), "ok")
	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) dispatch(ctx context.Context, task queue.Task) error {
	switch task.Kind {
	case queue.KindRemind:
		return w.tasks.Remind(ctx, task.BookingID)
	case queue.KindCharge:
		return w.tasks.Charge(ctx, task.BookingID)
	case queue.KindPaymentNotice:
		return w.tasks.NotifyUpcomingCharge(ctx, task.BookingID)
	case queue.KindCareTeamGrant:
		return w.tasks.GrantCareTeamAccess(ctx, task.BookingID)
	case queue.KindCompleteOverdue:
		return w.tasks.CompleteOverdue(ctx, task.BookingID)
	case queue.KindAbandon:
		return w.tasks.Abandon(ctx, task.BookingID)
	case queue.KindArchiveTranscript:
		return w.tasks.ArchiveTranscript(ctx, task.BookingID)
	default:
		w.logger.Error("unknown booking task kind", "kind", string(task.Kind))
		return nil // delete: redelivery cannot help
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete booking task message", "error", err)
	}
}
