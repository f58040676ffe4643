package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/config"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/jobs"
)

// SessionFinalizedPayload is carried on the notification queue when a
// session reaches a terminal state.
type SessionFinalizedPayload struct {
	SessionID string                    `json:"session_id"`
	AcademyID string                    `json:"academy_id"`
	Status    models.SessionStatus      `json:"status"`
	EndedAt   *time.Time                `json:"ended_at,omitempty"`
	Verdicts  []models.AttendanceVerdict `json:"verdicts"`
}

// NotifierService fans finalization events out to interested parties
// (parents, academy dashboards) via the background queue. Delivery is
// fire-and-forget from the state machine's perspective.
type NotifierService struct {
	queue   *jobs.Queue
	enabled bool
	logger  *zap.Logger
}

func NewNotifierService(cfg config.NotifierConfig, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotifierService{enabled: cfg.Enabled, logger: logger}
	s.queue = jobs.NewQueue("session-notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the queue workers.
func (s *NotifierService) Start(ctx context.Context) {
	if s.enabled {
		s.queue.Start(ctx)
	}
}

// Stop drains and shuts down the queue.
func (s *NotifierService) Stop() {
	if s.enabled {
		s.queue.Stop()
	}
}

// SessionFinalized enqueues a finalization notification. A full queue is
// logged and dropped rather than blocking the state machine.
func (s *NotifierService) SessionFinalized(ctx context.Context, session *models.Session, verdicts []models.AttendanceVerdict) {
	if !s.enabled {
		return
	}
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: "session.finalized",
		Payload: SessionFinalizedPayload{
			SessionID: session.ID,
			AcademyID: session.AcademyID,
			Status:    session.Status,
			EndedAt:   session.EndedAt,
			Verdicts:  verdicts,
		},
		Enqueued: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Sugar().Warnw("notification dropped, queue full",
			"session_id", session.ID, "error", err)
	}
}

func (s *NotifierService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(SessionFinalizedPayload)
	if !ok {
		s.logger.Sugar().Errorw("unexpected notification payload", "job_id", job.ID)
		return nil
	}
	// Delivery currently stops at structured logs; downstream channels
	// (push, email) subscribe to these via the log pipeline.
	s.logger.Sugar().Infow("session finalized notification",
		"session_id", payload.SessionID,
		"academy_id", payload.AcademyID,
		"status", payload.Status,
		"verdicts", len(payload.Verdicts))
	return nil
}
