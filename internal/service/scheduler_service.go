package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/config"
)

// schedulerRepository exposes the sweep queries the tick runs over. Each
// query already applies the per-academy timing settings inside SQL so the
// sweep touches only sessions that are actually due.
type schedulerRepository interface {
	DueForReady(ctx context.Context, academyID string, now time.Time) ([]models.Session, error)
	OverdueReadyIndividual(ctx context.Context, academyID string, now time.Time) ([]models.Session, error)
	ExpiredOngoing(ctx context.Context, academyID string, now time.Time) ([]models.Session, error)
	NeedingRoom(ctx context.Context, academyID string, now time.Time, hoursBefore int) ([]models.Session, error)
	SetRoomName(ctx context.Context, id, roomName string) error
}

// TickOptions scopes a single scheduler pass.
type TickOptions struct {
	// AcademyID restricts the sweep to one tenant; empty sweeps all.
	AcademyID string
	// DryRun reports what the sweep would do without mutating anything.
	DryRun bool
}

// TickSummary reports the outcome of one scheduler pass.
type TickSummary struct {
	Created      int `json:"created"`
	Transitioned int `json:"transitioned"`
	Terminated   int `json:"terminated"`
	Errors       int `json:"errors"`
}

// SchedulerService is the time-driven half of the lifecycle: it promotes
// sessions whose preparation window opened, terminates no-shows and
// timed-out meetings, and closes attendance cycles left dangling by lost
// leave events. Every mutation rides the same guarded transitions the
// webhook path uses, so a tick racing a webhook is harmless.
type SchedulerService struct {
	repo       schedulerRepository
	sessions   *SessionService
	attendance *AttendanceService
	cfg        config.MeetingsConfig
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

func NewSchedulerService(
	repo schedulerRepository,
	sessions *SessionService,
	attendance *AttendanceService,
	cfg config.MeetingsConfig,
	metrics *MetricsService,
	logger *zap.Logger,
) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerService{
		repo:       repo,
		sessions:   sessions,
		attendance: attendance,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Tick runs one full sweep. Per-session failures are counted and logged
// but never abort the pass; one broken row must not starve the rest of
// the tenant's sessions.
func (s *SchedulerService) Tick(ctx context.Context, opts TickOptions) (TickSummary, error) {
	started := s.now()
	var summary TickSummary

	if s.cfg.AutoCreateMeetings {
		s.sweepRoomCreation(ctx, opts, started, &summary)
	}
	s.sweepDueForReady(ctx, opts, started, &summary)
	s.sweepNoShows(ctx, opts, started, &summary)
	s.sweepExpired(ctx, opts, started, &summary)

	if !opts.DryRun {
		closed, err := s.attendance.CloseStaleCycles(ctx, started)
		if err != nil {
			s.logger.Sugar().Warnw("stale cycle sweep failed", "error", err)
			summary.Errors++
		} else if closed > 0 {
			s.metrics.ObserveCyclesClosed("stale", closed)
		}
	}

	s.metrics.ObserveTick(summary, s.now().Sub(started))
	s.logger.Sugar().Infow("scheduler tick finished",
		"academy_id", opts.AcademyID,
		"dry_run", opts.DryRun,
		"created", summary.Created,
		"transitioned", summary.Transitioned,
		"terminated", summary.Terminated,
		"errors", summary.Errors,
		"duration", s.now().Sub(started))
	return summary, nil
}

// sweepRoomCreation assigns room names to soon-to-start sessions that do
// not have one yet, so clients can render join links ahead of time.
func (s *SchedulerService) sweepRoomCreation(ctx context.Context, opts TickOptions, now time.Time, summary *TickSummary) {
	hoursBefore := s.cfg.MeetingCreationHoursBefore
	if hoursBefore <= 0 {
		hoursBefore = 24
	}
	due, err := s.repo.NeedingRoom(ctx, opts.AcademyID, now, hoursBefore)
	if err != nil {
		s.logger.Sugar().Warnw("room creation sweep query failed", "error", err)
		summary.Errors++
		return
	}
	for i := range due {
		session := &due[i]
		if opts.DryRun {
			summary.Created++
			continue
		}
		if err := s.repo.SetRoomName(ctx, session.ID, session.EncodedRoomName()); err != nil {
			s.logger.Sugar().Warnw("room name assignment failed", "session_id", session.ID, "error", err)
			summary.Errors++
			continue
		}
		summary.Created++
	}
}

func (s *SchedulerService) sweepDueForReady(ctx context.Context, opts TickOptions, now time.Time, summary *TickSummary) {
	due, err := s.repo.DueForReady(ctx, opts.AcademyID, now)
	if err != nil {
		s.logger.Sugar().Warnw("ready sweep query failed", "error", err)
		summary.Errors++
		return
	}
	for i := range due {
		if opts.DryRun {
			summary.Transitioned++
			continue
		}
		applied, err := s.sessions.MarkReady(ctx, due[i].ID, now, "scheduler")
		if err != nil {
			s.logger.Sugar().Warnw("ready promotion failed", "session_id", due[i].ID, "error", err)
			summary.Errors++
			continue
		}
		if applied {
			summary.Transitioned++
		}
	}
}

// sweepNoShows terminates individual sessions still READY once the
// late-join grace has passed. Group sessions are never auto-terminated
// this way: a whole group failing to join is an operator problem, not an
// attendance fact.
func (s *SchedulerService) sweepNoShows(ctx context.Context, opts TickOptions, now time.Time, summary *TickSummary) {
	overdue, err := s.repo.OverdueReadyIndividual(ctx, opts.AcademyID, now)
	if err != nil {
		s.logger.Sugar().Warnw("no-show sweep query failed", "error", err)
		summary.Errors++
		return
	}
	for i := range overdue {
		if opts.DryRun {
			summary.Terminated++
			continue
		}
		applied, err := s.sessions.MarkAbsentNoShow(ctx, &overdue[i], now, "scheduler")
		if err != nil {
			s.logger.Sugar().Warnw("no-show termination failed", "session_id", overdue[i].ID, "error", err)
			summary.Errors++
			continue
		}
		if applied {
			summary.Terminated++
		}
	}
}

// sweepExpired is the timeout fallback for meetings whose room_finished
// webhook never arrived: any ONGOING session past its room expiry gets
// finalized as if the room had closed.
func (s *SchedulerService) sweepExpired(ctx context.Context, opts TickOptions, now time.Time, summary *TickSummary) {
	expired, err := s.repo.ExpiredOngoing(ctx, opts.AcademyID, now)
	if err != nil {
		s.logger.Sugar().Warnw("expiry sweep query failed", "error", err)
		summary.Errors++
		return
	}
	for i := range expired {
		session := &expired[i]
		if opts.DryRun {
			summary.Terminated++
			continue
		}
		endedAt := s.deemedEnd(session, now)
		if closed, err := s.attendance.CloseOpenCycles(ctx, session.ID, endedAt); err != nil {
			s.logger.Sugar().Warnw("cycle close on timeout failed", "session_id", session.ID, "error", err)
			summary.Errors++
			continue
		} else if closed > 0 {
			s.metrics.ObserveCyclesClosed("timeout", closed)
		}
		applied, err := s.sessions.Finalize(ctx, session, endedAt, "timeout")
		if err != nil {
			s.logger.Sugar().Warnw("timeout finalization failed", "session_id", session.ID, "error", err)
			summary.Errors++
			continue
		}
		if applied {
			summary.Terminated++
		}
	}
}

// deemedEnd picks the timestamp a timed-out meeting is considered to have
// ended: the scheduled end when known, otherwise the sweep time.
func (s *SchedulerService) deemedEnd(session *models.Session, now time.Time) time.Time {
	if session.ScheduledAt == nil {
		return now
	}
	end := session.ScheduledAt.Add(time.Duration(session.DurationMinutes) * time.Minute)
	if end.After(now) {
		return now
	}
	return end
}

// Run drives Tick on a fixed interval until the context is cancelled.
// Intended to be launched as a goroutine from main when the scheduler is
// enabled.
func (s *SchedulerService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Sugar().Infow("scheduler loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Sugar().Info("scheduler loop stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx, TickOptions{}); err != nil {
				s.logger.Sugar().Errorw("scheduler tick failed", "error", err)
			}
		}
	}
}
