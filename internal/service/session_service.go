package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/config"
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
)

type sessionRepository interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	Transition(ctx context.Context, id string, from []models.SessionStatus, to models.SessionStatus, stamps models.TransitionStamps) (bool, error)
	UpdateParticipantCount(ctx context.Context, id string, count int) error
}

type settingsProvider interface {
	SettingsFor(ctx context.Context, academyID string) (models.MeetingSettings, error)
}

type finalizationNotifier interface {
	SessionFinalized(ctx context.Context, session *models.Session, verdicts []models.AttendanceVerdict)
}

// SessionService owns the authoritative session lifecycle. Every mutation
// goes through a guarded transition: the repository only applies the write
// when the current status is a legal pre-state, so a scheduler tick racing
// a webhook resolves to exactly one winner and one no-op.
type SessionService struct {
	repo       sessionRepository
	attendance *AttendanceService
	settings   settingsProvider
	defaults   config.MeetingsConfig
	policy     AttendancePolicy
	notifier   finalizationNotifier
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewSessionService constructs the state machine service. The policy is the
// one used at finalization; nil defaults to the historical policy.
func NewSessionService(
	repo sessionRepository,
	attendance *AttendanceService,
	settings settingsProvider,
	defaults config.MeetingsConfig,
	policy AttendancePolicy,
	notifier finalizationNotifier,
	metrics *MetricsService,
	logger *zap.Logger,
) *SessionService {
	if policy == nil {
		policy = HistoricalAttendancePolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		repo:       repo,
		attendance: attendance,
		settings:   settings,
		defaults:   defaults,
		policy:     policy,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
	}
}

// Get loads a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, appErrors.ErrSessionNotFound
	}
	return session, nil
}

// List returns sessions matching the filter.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Window computes the timing window of the session at `now`.
func (s *SessionService) Window(ctx context.Context, sessionID string, now time.Time) (*models.Session, TimingWindow, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, TimingWindow{}, err
	}
	settings, err := s.resolveSettings(ctx, session.AcademyID)
	if err != nil {
		return nil, TimingWindow{}, err
	}
	return session, ComputeTimingWindow(session.ScheduledAt, session.DurationMinutes, settings, now), nil
}

// MarkReady moves a scheduled session into the ready state, stamping
// preparation completion. Returns false when the session was not in the
// scheduled state (already advanced, or cancelled).
func (s *SessionService) MarkReady(ctx context.Context, sessionID string, now time.Time, trigger string) (bool, error) {
	applied, err := s.repo.Transition(ctx, sessionID,
		[]models.SessionStatus{models.SessionStatusScheduled},
		models.SessionStatusReady,
		models.TransitionStamps{PreparationCompletedAt: &now})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark session ready")
	}
	s.observe(applied, sessionID, models.SessionStatusScheduled, models.SessionStatusReady, trigger)
	return applied, nil
}

// BeginMeeting moves a ready session into the ongoing state when the room
// starts, stamping the start time and the provider room identifier.
func (s *SessionService) BeginMeeting(ctx context.Context, sessionID, roomSID string, now time.Time, trigger string) (bool, error) {
	stamps := models.TransitionStamps{StartedAt: &now}
	if roomSID != "" {
		stamps.RoomSID = &roomSID
	}
	applied, err := s.repo.Transition(ctx, sessionID,
		[]models.SessionStatus{models.SessionStatusReady},
		models.SessionStatusOngoing, stamps)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin meeting")
	}
	s.observe(applied, sessionID, models.SessionStatusReady, models.SessionStatusOngoing, trigger)
	return applied, nil
}

// Finalize closes the session and persists verdicts. Individual sessions
// end COMPLETED only when the single student's verdict is attended; any
// other verdict ends the session ABSENT even though the room ran. The
// verdict itself still records what happened (late, leaved). Verdicts are
// only persisted when the transition applies, so re-delivered events
// cannot rewrite them.
func (s *SessionService) Finalize(ctx context.Context, session *models.Session, endedAt time.Time, trigger string) (bool, error) {
	verdicts, err := s.computeVerdicts(ctx, session)
	if err != nil {
		return false, err
	}

	final := models.SessionStatusCompleted
	if session.Individual() {
		if v := findVerdict(verdicts, *session.StudentID); v == nil || v.Verdict != models.VerdictAttended {
			final = models.SessionStatusAbsent
		}
	}

	applied, err := s.repo.Transition(ctx, session.ID,
		[]models.SessionStatus{models.SessionStatusOngoing, models.SessionStatusReady},
		final,
		models.TransitionStamps{EndedAt: &endedAt})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize session")
	}
	if !applied {
		s.logger.Sugar().Debugw("finalize skipped, session not in a closable state", "session_id", session.ID)
		return false, nil
	}
	s.observe(true, session.ID, session.Status, final, trigger)

	for i := range verdicts {
		if err := s.attendance.SaveVerdict(ctx, &verdicts[i]); err != nil {
			s.logger.Sugar().Errorw("failed to persist verdict",
				"session_id", session.ID, "user_id", verdicts[i].UserID, "error", err)
		}
	}

	if s.notifier != nil {
		s.notifier.SessionFinalized(ctx, session, verdicts)
	}
	return true, nil
}

// MarkAbsentNoShow terminates a ready individual session whose student never
// joined within the grace period.
func (s *SessionService) MarkAbsentNoShow(ctx context.Context, session *models.Session, now time.Time, trigger string) (bool, error) {
	applied, err := s.repo.Transition(ctx, session.ID,
		[]models.SessionStatus{models.SessionStatusReady},
		models.SessionStatusAbsent,
		models.TransitionStamps{EndedAt: &now})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark session absent")
	}
	if !applied {
		return false, nil
	}
	s.observe(true, session.ID, models.SessionStatusReady, models.SessionStatusAbsent, trigger)

	if session.Individual() {
		verdict := models.AttendanceVerdict{
			SessionID:  session.ID,
			UserID:     *session.StudentID,
			Verdict:    models.VerdictAbsent,
			Policy:     s.policy.Name(),
			ComputedAt: now,
		}
		if err := s.attendance.SaveVerdict(ctx, &verdict); err != nil {
			s.logger.Sugar().Errorw("failed to persist absent verdict", "session_id", session.ID, "error", err)
		}
	}
	return true, nil
}

// Cancel terminates a session that has not started. Cancellation is an
// external action; terminal sessions reject it.
func (s *SessionService) Cancel(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	applied, err := s.repo.Transition(ctx, sessionID,
		[]models.SessionStatus{models.SessionStatusScheduled, models.SessionStatusReady},
		models.SessionStatusCancelled,
		models.TransitionStamps{EndedAt: &now})
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	s.observe(applied, sessionID, "", models.SessionStatusCancelled, "cancel")
	return applied, nil
}

// SetParticipantCount stores the provider-reported live participant count.
func (s *SessionService) SetParticipantCount(ctx context.Context, sessionID string, count int) error {
	if count < 0 {
		count = 0
	}
	return s.repo.UpdateParticipantCount(ctx, sessionID, count)
}

// Reprocess recomputes and re-persists verdicts for a finalized session.
func (s *SessionService) Reprocess(ctx context.Context, sessionID string) ([]models.AttendanceVerdict, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is not finalized yet")
	}
	verdicts, err := s.computeVerdicts(ctx, session)
	if err != nil {
		return nil, err
	}
	for i := range verdicts {
		if err := s.attendance.SaveVerdict(ctx, &verdicts[i]); err != nil {
			return nil, err
		}
	}
	return verdicts, nil
}

func (s *SessionService) computeVerdicts(ctx context.Context, session *models.Session) ([]models.AttendanceVerdict, error) {
	settings, err := s.resolveSettings(ctx, session.AcademyID)
	if err != nil {
		return nil, err
	}

	participants, err := s.attendance.Participants(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if session.Individual() && !containsString(participants, *session.StudentID) {
		participants = append(participants, *session.StudentID)
	}

	start := sessionStartFor(session)
	now := time.Now().UTC()
	verdicts := make([]models.AttendanceVerdict, 0, len(participants))
	for _, userID := range participants {
		attended, err := s.attendance.TotalAttendedMinutes(ctx, session.ID, userID, nil)
		if err != nil {
			return nil, err
		}
		firstJoin, err := s.attendance.FirstJoinedAt(ctx, session.ID, userID)
		if err != nil {
			return nil, err
		}

		in := ClassifyInput{
			FirstJoinedAt:   firstJoin,
			SessionStart:    start,
			DurationMinutes: session.DurationMinutes,
			AttendedMinutes: attended,
			GraceMinutes:    settings.LateJoinMinutes,
		}
		verdict := models.AttendanceVerdict{
			SessionID:       session.ID,
			UserID:          userID,
			Verdict:         s.policy.Classify(in),
			AttendedMinutes: attended,
			FirstJoinedAt:   firstJoin,
			Policy:          s.policy.Name(),
			ComputedAt:      now,
		}
		if firstJoin != nil {
			verdict.LateMinutes = LateMinutes(*firstJoin, start, settings.LateJoinMinutes)
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts, nil
}

func (s *SessionService) resolveSettings(ctx context.Context, academyID string) (models.MeetingSettings, error) {
	var settings models.MeetingSettings
	if s.settings != nil {
		loaded, err := s.settings.SettingsFor(ctx, academyID)
		if err != nil {
			return models.MeetingSettings{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academy settings")
		}
		settings = loaded
	}
	return settings.Normalize(
		s.defaults.DefaultPreparationMinutes,
		s.defaults.DefaultLateJoinMinutes,
		s.defaults.DefaultBufferMinutes,
	), nil
}

func (s *SessionService) observe(applied bool, sessionID string, from, to models.SessionStatus, trigger string) {
	if !applied {
		return
	}
	s.metrics.ObserveTransition(from, to, trigger)
	s.logger.Sugar().Infow("session transition",
		"session_id", sessionID, "from", from, "to", to, "trigger", trigger)
}

// sessionStartFor picks the lateness reference point: the scheduled start
// when one exists, otherwise the actual meeting start.
func sessionStartFor(session *models.Session) time.Time {
	if session.ScheduledAt != nil {
		return *session.ScheduledAt
	}
	if session.StartedAt != nil {
		return *session.StartedAt
	}
	return session.CreatedAt
}

func findVerdict(verdicts []models.AttendanceVerdict, userID string) *models.AttendanceVerdict {
	for i := range verdicts {
		if verdicts[i].UserID == userID {
			return &verdicts[i]
		}
	}
	return nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
