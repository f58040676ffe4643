package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
)

type attendanceRepository interface {
	InsertEvent(ctx context.Context, event *models.AttendanceEvent) (*models.AttendanceEvent, error)
	OpenJoin(ctx context.Context, sessionID, userID string) (*models.AttendanceEvent, error)
	OpenJoinsBySession(ctx context.Context, sessionID string) ([]models.AttendanceEvent, error)
	StaleOpenJoins(ctx context.Context, now time.Time, graceMinutes int) ([]models.StaleOpenJoin, error)
	ListCycles(ctx context.Context, sessionID, userID string) ([]models.AttendanceCycle, error)
	Participants(ctx context.Context, sessionID string) ([]string, error)
	UpsertVerdict(ctx context.Context, verdict *models.AttendanceVerdict) (*models.AttendanceVerdict, error)
	ListVerdicts(ctx context.Context, sessionID string) ([]models.AttendanceVerdict, error)
}

// AttendanceService tracks join/leave cycles per (session, user) pair and
// derives cumulative attended minutes.
type AttendanceService struct {
	repo              attendanceRepository
	staleGraceMinutes int
	logger            *zap.Logger
}

// NewAttendanceService constructs the accumulator.
func NewAttendanceService(repo attendanceRepository, staleGraceMinutes int, logger *zap.Logger) *AttendanceService {
	if staleGraceMinutes <= 0 {
		staleGraceMinutes = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, staleGraceMinutes: staleGraceMinutes, logger: logger}
}

// RecordJoin opens a new cycle for the pair unless one is already open.
// A duplicate join for an open cycle is a no-op; webhooks are delivered
// at-least-once.
func (s *AttendanceService) RecordJoin(ctx context.Context, sessionID, userID string, at time.Time) error {
	if sessionID == "" || userID == "" || at.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "join event missing identity or timestamp")
	}

	open, err := s.repo.OpenJoin(ctx, sessionID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up open cycle")
	}
	if open != nil {
		s.logger.Sugar().Warnw("duplicate join for open cycle ignored",
			"session_id", sessionID, "user_id", userID, "open_since", open.OccurredAt)
		return nil
	}

	event := &models.AttendanceEvent{
		SessionID:  sessionID,
		UserID:     userID,
		Type:       models.AttendanceEventJoined,
		OccurredAt: at,
	}
	if _, err := s.repo.InsertEvent(ctx, event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record join")
	}
	return nil
}

// RecordLeave closes the most recent open cycle for the pair. A leave with
// no matching open join is logged and ignored; out-of-order delivery is
// expected from the transport.
func (s *AttendanceService) RecordLeave(ctx context.Context, sessionID, userID string, at time.Time) error {
	if sessionID == "" || userID == "" || at.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "leave event missing identity or timestamp")
	}

	open, err := s.repo.OpenJoin(ctx, sessionID, userID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up open cycle")
	}
	if open == nil {
		s.logger.Sugar().Infow("orphan leave event ignored", "session_id", sessionID, "user_id", userID, "at", at)
		return nil
	}

	return s.closeCycle(ctx, open, at, false)
}

// CloseOpenCycles closes every unclosed cycle of the session at the given
// instant. Used as defensive cleanup when the room finishes.
func (s *AttendanceService) CloseOpenCycles(ctx context.Context, sessionID string, at time.Time) (int, error) {
	opens, err := s.repo.OpenJoinsBySession(ctx, sessionID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list open cycles")
	}
	closed := 0
	for i := range opens {
		if err := s.closeCycle(ctx, &opens[i], at, false); err != nil {
			s.logger.Sugar().Errorw("failed to close cycle", "session_id", sessionID, "user_id", opens[i].UserID, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

// CloseStaleCycles force-closes open cycles whose join happened longer ago
// than the session duration plus the stale grace. The cycle is capped at
// the session duration so crashed clients never accumulate unbounded time.
func (s *AttendanceService) CloseStaleCycles(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.repo.StaleOpenJoins(ctx, now, s.staleGraceMinutes)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list stale cycles")
	}
	closed := 0
	for i := range stale {
		closeAt := stale[i].OccurredAt.Add(time.Duration(stale[i].SessionDurationMinutes) * time.Minute)
		if err := s.closeStale(ctx, &stale[i].AttendanceEvent, closeAt); err != nil {
			s.logger.Sugar().Errorw("failed to close stale cycle",
				"session_id", stale[i].SessionID, "user_id", stale[i].UserID, "error", err)
			continue
		}
		closed++
	}
	if closed > 0 {
		s.logger.Sugar().Infow("stale cycles closed", "count", closed)
	}
	return closed, nil
}

// TotalAttendedMinutes sums all closed cycles for the pair. When `now` is
// non-nil (real-time mode) an open cycle contributes its elapsed time;
// historical mode counts it as zero.
func (s *AttendanceService) TotalAttendedMinutes(ctx context.Context, sessionID, userID string, now *time.Time) (int, error) {
	cycles, err := s.repo.ListCycles(ctx, sessionID, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cycles")
	}
	total := 0
	for _, c := range cycles {
		if c.Open() {
			if now != nil && now.After(c.JoinedAt) {
				total += int(now.Sub(c.JoinedAt) / time.Minute)
			}
			continue
		}
		total += c.Minutes
	}
	return total, nil
}

// FirstJoinedAt returns the earliest join time for the pair, nil when the
// participant never joined.
func (s *AttendanceService) FirstJoinedAt(ctx context.Context, sessionID, userID string) (*time.Time, error) {
	cycles, err := s.repo.ListCycles(ctx, sessionID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cycles")
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	first := cycles[0].JoinedAt
	for _, c := range cycles[1:] {
		if c.JoinedAt.Before(first) {
			first = c.JoinedAt
		}
	}
	return &first, nil
}

// Cycles returns the ordered cycle list for the pair.
func (s *AttendanceService) Cycles(ctx context.Context, sessionID, userID string) ([]models.AttendanceCycle, error) {
	cycles, err := s.repo.ListCycles(ctx, sessionID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cycles")
	}
	return cycles, nil
}

// Participants returns every user with at least one event in the session.
func (s *AttendanceService) Participants(ctx context.Context, sessionID string) ([]string, error) {
	users, err := s.repo.Participants(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list participants")
	}
	return users, nil
}

// SaveVerdict upserts a computed verdict for the pair.
func (s *AttendanceService) SaveVerdict(ctx context.Context, verdict *models.AttendanceVerdict) error {
	if _, err := s.repo.UpsertVerdict(ctx, verdict); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist verdict")
	}
	return nil
}

// Verdicts returns the persisted verdicts for the session.
func (s *AttendanceService) Verdicts(ctx context.Context, sessionID string) ([]models.AttendanceVerdict, error) {
	verdicts, err := s.repo.ListVerdicts(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list verdicts")
	}
	return verdicts, nil
}

func (s *AttendanceService) closeCycle(ctx context.Context, join *models.AttendanceEvent, at time.Time, stale bool) error {
	minutes := 0
	if at.After(join.OccurredAt) {
		minutes = int(at.Sub(join.OccurredAt) / time.Minute)
	} else {
		s.logger.Sugar().Infow("leave before join, clamping cycle to zero",
			"session_id", join.SessionID, "user_id", join.UserID, "joined_at", join.OccurredAt, "left_at", at)
		at = join.OccurredAt
	}

	leave := &models.AttendanceEvent{
		SessionID:       join.SessionID,
		UserID:          join.UserID,
		Type:            models.AttendanceEventLeft,
		OccurredAt:      at,
		ClosesEventID:   &join.ID,
		DurationMinutes: &minutes,
		Stale:           stale,
	}
	if _, err := s.repo.InsertEvent(ctx, leave); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record leave")
	}
	return nil
}

func (s *AttendanceService) closeStale(ctx context.Context, join *models.AttendanceEvent, at time.Time) error {
	return s.closeCycle(ctx, join, at, true)
}
