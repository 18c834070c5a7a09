package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Client is the transport a task queue rides on. Both the SQS-backed and the
// in-memory implementations satisfy it.
type Client interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one raw queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Kind identifies what a scheduled task should do to its booking.
type Kind string

const (
	KindRemind            Kind = "remind"
	KindCharge            Kind = "charge"
	KindPaymentNotice     Kind = "payment_notice"
	KindCareTeamGrant     Kind = "care_team_grant"
	KindCompleteOverdue   Kind = "complete_overdue"
	KindAbandon           Kind = "abandon"
	KindArchiveTranscript Kind = "archive_transcript"
)

// Task is a one-shot unit of work targeting a single booking. Delivery is
// at-least-once; consumers re-check booking state before acting.
type Task struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	BookingID  uuid.UUID `json:"booking_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Publisher enqueues tasks for the telehealth worker.
type Publisher struct {
	client Client
	now    func() time.Time
}

func NewPublisher(client Client) *Publisher {
	return &Publisher{client: client, now: time.Now}
}

// Enqueue serializes and sends a task. A missing ID is filled in so retries by
// the caller produce distinct messages.
func (p *Publisher) Enqueue(ctx context.Context, task Task) error {
	if task.Kind == "" {
		return fmt.Errorf("queue: task kind is required")
	}
	if task.BookingID == uuid.Nil {
		return fmt.Errorf("queue: task booking id is required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = p.now().UTC()
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: failed to encode task: %w", err)
	}
	if err := p.client.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("queue: failed to enqueue %s task for booking %s: %w", task.Kind, task.BookingID, err)
	}
	return nil
}

// DecodeTask parses a message body produced by Enqueue.
func DecodeTask(body string) (Task, error) {
	var task Task
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return Task{}, fmt.Errorf("queue: failed to decode task: %w", err)
	}
	if task.Kind == "" || task.BookingID == uuid.Nil {
		return Task{}, fmt.Errorf("queue: task missing kind or booking id")
	}
	return task, nil
}
