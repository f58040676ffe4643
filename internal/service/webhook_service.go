package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
)

// RecordingStarter starts a meeting recording. Implementations are
// best-effort; failures never fail the surrounding handler.
type RecordingStarter interface {
	StartRecording(ctx context.Context, session *models.Session) error
}

// roomStateStore is the expiring soft state kept in Redis: webhook dedup
// keys and the "room should survive a disconnect" mark. It is an
// optimization only; the state-machine guards and the timeout fallback
// remain the correctness backstop when Redis is unavailable.
type roomStateStore interface {
	SeenEvent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	MarkRoomPersistent(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRoomPersistent(ctx context.Context, sessionID string) (bool, error)
	ClearRoomPersistent(ctx context.Context, sessionID string) error
}

type webhookHandler func(ctx context.Context, event models.MeetingEvent, now time.Time) error

// WebhookService routes inbound meeting lifecycle events to per-type
// handlers. Dispatch never lets an internal fault escape: webhook retry
// storms must not be triggered by transient errors.
type WebhookService struct {
	sessions   *SessionService
	attendance *AttendanceService
	recorder   RecordingStarter
	roomState  roomStateStore
	metrics    *MetricsService
	logger     *zap.Logger
	validator  *validator.Validate

	dedupTTL   time.Duration
	persistTTL time.Duration
	now        func() time.Time

	handlers map[string]webhookHandler
}

// NewWebhookService builds the dispatcher with its handler table.
func NewWebhookService(
	sessions *SessionService,
	attendance *AttendanceService,
	recorder RecordingStarter,
	roomState roomStateStore,
	dedupTTL, persistTTL time.Duration,
	metrics *MetricsService,
	logger *zap.Logger,
) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dedupTTL <= 0 {
		dedupTTL = 10 * time.Minute
	}
	if persistTTL <= 0 {
		persistTTL = 2 * time.Minute
	}
	s := &WebhookService{
		sessions:   sessions,
		attendance: attendance,
		recorder:   recorder,
		roomState:  roomState,
		metrics:    metrics,
		logger:     logger,
		validator:  validator.New(),
		dedupTTL:   dedupTTL,
		persistTTL: persistTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.handlers = map[string]webhookHandler{
		models.EventRoomStarted:       s.handleRoomStarted,
		models.EventRoomFinished:      s.handleRoomFinished,
		models.EventParticipantJoined: s.handleParticipantJoined,
		models.EventParticipantLeft:   s.handleParticipantLeft,
	}
	return s
}

// Dispatch routes one event to its handler. It returns whether the event
// was handled successfully; unknown event types and internal faults both
// report false without surfacing an error to the transport.
func (s *WebhookService) Dispatch(ctx context.Context, event models.MeetingEvent) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Sugar().Errorw("panic in webhook handler",
				"event_type", event.EventType, "room", event.Room.Name, "panic", r)
			s.metrics.ObserveWebhookEvent(event.EventType, "panic")
			handled = false
		}
	}()

	if err := s.validator.Struct(event); err != nil {
		s.logger.Sugar().Debugw("rejecting incomplete webhook event", "error", err)
		s.metrics.ObserveWebhookEvent(event.EventType, "invalid")
		return false
	}

	handler, ok := s.handlers[event.EventType]
	if !ok {
		s.logger.Sugar().Debugw("ignoring unknown webhook event type", "event_type", event.EventType)
		s.metrics.ObserveWebhookEvent(event.EventType, "unknown")
		return false
	}

	now := s.now()

	if duplicate, err := s.alreadySeen(ctx, event); err != nil {
		s.logger.Sugar().Warnw("event dedup check failed, proceeding", "error", err)
	} else if duplicate {
		s.logger.Sugar().Infow("duplicate webhook event ignored",
			"event_type", event.EventType, "room", event.Room.Name)
		s.metrics.ObserveWebhookEvent(event.EventType, "duplicate")
		return true
	}

	if err := handler(ctx, event, now); err != nil {
		s.logger.Sugar().Warnw("webhook event not handled",
			"event_type", event.EventType, "room", event.Room.Name, "error", err)
		s.metrics.ObserveWebhookEvent(event.EventType, "error")
		return false
	}

	s.metrics.ObserveWebhookEvent(event.EventType, "handled")
	return true
}

func (s *WebhookService) handleRoomStarted(ctx context.Context, event models.MeetingEvent, now time.Time) error {
	session, err := s.resolveSession(ctx, event.Room.Name)
	if err != nil {
		return err
	}

	if _, err := s.sessions.BeginMeeting(ctx, session.ID, event.Room.SID, now, "webhook"); err != nil {
		return err
	}

	if s.roomState != nil {
		if err := s.roomState.ClearRoomPersistent(ctx, session.ID); err != nil {
			s.logger.Sugar().Debugw("failed to clear room persistence mark", "session_id", session.ID, "error", err)
		}
	}

	if session.RecordingEnabled && s.recorder != nil {
		if err := s.recorder.StartRecording(ctx, session); err != nil {
			s.logger.Sugar().Warnw("auto recording start failed",
				"session_id", session.ID, "error", err)
		}
	}
	return nil
}

func (s *WebhookService) handleRoomFinished(ctx context.Context, event models.MeetingEvent, now time.Time) error {
	session, err := s.resolveSession(ctx, event.Room.Name)
	if err != nil {
		return err
	}

	if s.shouldKeepRoomAlive(ctx, session, now) {
		s.logger.Sugar().Infow("room marked persistent, skipping completion", "session_id", session.ID)
		return nil
	}

	closed, err := s.attendance.CloseOpenCycles(ctx, session.ID, now)
	if err != nil {
		return err
	}
	s.metrics.ObserveCyclesClosed("room_finished", closed)

	_, err = s.sessions.Finalize(ctx, session, now, "webhook")
	return err
}

func (s *WebhookService) handleParticipantJoined(ctx context.Context, event models.MeetingEvent, now time.Time) error {
	session, participant, err := s.resolveParticipant(ctx, event)
	if err != nil {
		return err
	}

	if err := s.attendance.RecordJoin(ctx, session.ID, participant.UserID, now); err != nil {
		return err
	}

	if err := s.sessions.SetParticipantCount(ctx, session.ID, event.Room.NumParticipants); err != nil {
		s.logger.Sugar().Warnw("failed to update participant count", "session_id", session.ID, "error", err)
	}
	return nil
}

func (s *WebhookService) handleParticipantLeft(ctx context.Context, event models.MeetingEvent, now time.Time) error {
	session, participant, err := s.resolveParticipant(ctx, event)
	if err != nil {
		return err
	}

	if err := s.attendance.RecordLeave(ctx, session.ID, participant.UserID, now); err != nil {
		return err
	}

	if err := s.sessions.SetParticipantCount(ctx, session.ID, event.Room.NumParticipants); err != nil {
		s.logger.Sugar().Warnw("failed to update participant count", "session_id", session.ID, "error", err)
	}

	// The teacher dropping out of an active meeting usually means a network
	// blip; mark the room so a provider room_finished fired by the dropout
	// does not complete the session while it can still resume.
	if participant.Role == models.RoleTeacher && s.roomState != nil {
		window, werr := s.windowFor(ctx, session, now)
		if werr == nil && window.Phase == PhaseActive {
			if err := s.roomState.MarkRoomPersistent(ctx, session.ID, s.persistTTL); err != nil {
				s.logger.Sugar().Debugw("failed to mark room persistent", "session_id", session.ID, "error", err)
			}
		}
	}
	return nil
}

func (s *WebhookService) resolveSession(ctx context.Context, roomName string) (*models.Session, error) {
	ref, err := models.ParseRoomName(roomName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnresolvableRoom.Code,
			appErrors.ErrUnresolvableRoom.Status, appErrors.ErrUnresolvableRoom.Message)
	}
	session, err := s.sessions.Get(ctx, ref.SessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnresolvableRoom.Code,
			appErrors.ErrUnresolvableRoom.Status, fmt.Sprintf("room %q does not resolve to a session", roomName))
	}
	return session, nil
}

func (s *WebhookService) resolveParticipant(ctx context.Context, event models.MeetingEvent) (*models.Session, models.ParticipantRef, error) {
	session, err := s.resolveSession(ctx, event.Room.Name)
	if err != nil {
		return nil, models.ParticipantRef{}, err
	}
	participant, err := models.ParseParticipantIdentity(event.Participant.Identity)
	if err != nil {
		return nil, models.ParticipantRef{}, appErrors.Wrap(err, appErrors.ErrUnresolvableIdent.Code,
			appErrors.ErrUnresolvableIdent.Status, appErrors.ErrUnresolvableIdent.Message)
	}
	return session, participant, nil
}

func (s *WebhookService) alreadySeen(ctx context.Context, event models.MeetingEvent) (bool, error) {
	if s.roomState == nil {
		return false, nil
	}
	key := fmt.Sprintf("%s:%s:%s", event.EventType, event.Room.SID, event.Participant.SID)
	return s.roomState.SeenEvent(ctx, key, s.dedupTTL)
}

// shouldKeepRoomAlive honors the persistence mark only while the room has
// not passed its expiry; the timeout fallback stays authoritative.
func (s *WebhookService) shouldKeepRoomAlive(ctx context.Context, session *models.Session, now time.Time) bool {
	if s.roomState == nil {
		return false
	}
	persistent, err := s.roomState.IsRoomPersistent(ctx, session.ID)
	if err != nil || !persistent {
		return false
	}
	window, err := s.windowFor(ctx, session, now)
	if err != nil {
		return false
	}
	return window.Phase != PhaseExpired
}

func (s *WebhookService) windowFor(ctx context.Context, session *models.Session, now time.Time) (TimingWindow, error) {
	settings, err := s.sessions.resolveSettings(ctx, session.AcademyID)
	if err != nil {
		return TimingWindow{}, err
	}
	return ComputeTimingWindow(session.ScheduledAt, session.DurationMinutes, settings, now), nil
}
