package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushub/events-api/pkg/jobs"
)

// Notification types dispatched to the background queue.
const (
	NotificationEventSubmitted   = "event.submitted"
	NotificationEventDecided     = "event.decided"
	NotificationRegistrationMade = "registration.created"
	NotificationAttendanceMarked = "attendance.marked"
)

// Notification is the payload delivered to recipients.
type Notification struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id"`
	EventTitle string `json:"event_title,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Message    string `json:"message"`
}

// Sender delivers a notification to its recipient. Implementations may send
// email, push, or just log in development.
type Sender interface {
	Send(ctx context.Context, notification Notification) error
}

// LogSender writes notifications to the application log. Used when no real
// delivery channel is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		zap.String("type", n.Type),
		zap.String("eventId", n.EventID),
		zap.String("userId", n.UserID),
		zap.String("message", n.Message))
	return nil
}

// NotificationService dispatches notifications asynchronously so request
// handlers never block on delivery.
type NotificationService struct {
	queue   *jobs.Queue
	enabled bool
	logger  *zap.Logger
}

// NewNotificationService builds the service around a worker queue.
func NewNotificationService(sender Sender, cfg jobs.QueueConfig, enabled bool) *NotificationService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		notification, ok := job.Payload.(Notification)
		if !ok {
			logger.Warn("dropping notification job with unexpected payload", zap.String("job_id", job.ID))
			return nil
		}
		return sender.Send(ctx, notification)
	}
	return &NotificationService{
		queue:   jobs.NewQueue("notifications", handler, cfg),
		enabled: enabled,
		logger:  logger,
	}
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	if !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	if !s.enabled {
		return
	}
	s.queue.Stop()
}

// Notify enqueues a notification. Failures are logged, never surfaced to the
// caller: a dropped notification must not fail the request that produced it.
func (s *NotificationService) Notify(_ context.Context, notification Notification) {
	if !s.enabled {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    notification.Type,
		Payload: notification,
	}); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.Error(err))
	}
}
