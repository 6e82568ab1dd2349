package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bookhub-api/pkg/broker"
	"github.com/noah-isme/bookhub-api/pkg/jobs"
)

// Auth event types published to the broker.
const (
	EventEmailVerificationRequested = "auth.email_verification_requested"
	EventPasswordResetRequested     = "auth.password_reset_requested"
	EventPasswordChanged            = "auth.password_changed"
)

// AuthEvent is the payload delivered to mail workers. Token is the raw
// one-time token and only travels over the broker.
type AuthEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Token      string    `json:"token,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type eventPublisher interface {
	Publish(ctx context.Context, msg broker.Message) error
}

// Notifier is what auth flows use to emit events.
type Notifier interface {
	Notify(ctx context.Context, event AuthEvent)
}

// NotificationService hands auth events to a worker pool that publishes them.
// Notify never blocks; a full queue or a disabled broker drops the event.
type NotificationService struct {
	publisher eventPublisher
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
}

// NotificationConfig sizes the delivery worker pool.
type NotificationConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// NewNotificationService builds the service. A nil publisher logs events and
// drops them.
func NewNotificationService(publisher eventPublisher, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{publisher: publisher, metrics: metrics, logger: logger}
	if publisher != nil {
		s.queue = jobs.NewQueue("auth-events", s.deliver, jobs.QueueConfig{
			Workers:    cfg.Workers,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			Logger:     logger,
			OnDrop: func(job jobs.Job, err error) {
				metrics.RecordEvent(job.Type, "dropped")
			},
		})
	}
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s.queue != nil {
		s.queue.Start(ctx)
	}
}

// Stop drains and stops the workers.
func (s *NotificationService) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// Notify enqueues event for delivery.
func (s *NotificationService) Notify(ctx context.Context, event AuthEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if s.queue == nil {
		s.logger.Info("auth event not published, broker disabled",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.String("user_id", event.UserID),
		)
		s.metrics.RecordEvent(event.Type, "disabled")
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: event.Type, Payload: event}); err != nil {
		s.logger.Warn("auth event dropped", zap.String("type", event.Type), zap.Error(err))
		s.metrics.RecordEvent(event.Type, "dropped")
		return
	}
	s.metrics.RecordEvent(event.Type, "queued")
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, broker.Message{ID: job.ID, Type: job.Type, Payload: job.Payload}); err != nil {
		return err
	}
	s.metrics.RecordEvent(job.Type, "published")
	return nil
}
