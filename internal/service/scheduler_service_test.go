package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
)

// schedulerRepoStub layers the sweep queries over the session repo stub.
type schedulerRepoStub struct {
	*sessionRepoStub
	roomNames map[string]string
	sweepErr  error
}

func newSchedulerRepoStub() *schedulerRepoStub {
	return &schedulerRepoStub{sessionRepoStub: newSessionRepoStub(), roomNames: map[string]string{}}
}

func (s *schedulerRepoStub) settingsOf() models.MeetingSettings {
	return models.MeetingSettings{PreparationMinutes: 10, LateJoinMinutes: 15, BufferMinutes: 5}
}

func (s *schedulerRepoStub) matches(session *models.Session, academyID string) bool {
	return academyID == "" || session.AcademyID == academyID
}

func (s *schedulerRepoStub) DueForReady(ctx context.Context, academyID string, now time.Time) ([]models.Session, error) {
	if s.sweepErr != nil {
		return nil, s.sweepErr
	}
	cfg := s.settingsOf()
	var due []models.Session
	for _, session := range s.sessions {
		if session.Status != models.SessionStatusScheduled || session.ScheduledAt == nil || !s.matches(session, academyID) {
			continue
		}
		if !now.Before(session.ScheduledAt.Add(-time.Duration(cfg.PreparationMinutes) * time.Minute)) {
			due = append(due, *session)
		}
	}
	return due, nil
}

func (s *schedulerRepoStub) OverdueReadyIndividual(ctx context.Context, academyID string, now time.Time) ([]models.Session, error) {
	if s.sweepErr != nil {
		return nil, s.sweepErr
	}
	cfg := s.settingsOf()
	var overdue []models.Session
	for _, session := range s.sessions {
		if session.Status != models.SessionStatusReady || session.ScheduledAt == nil || !s.matches(session, academyID) {
			continue
		}
		if session.StudentID == nil || session.GroupID != nil {
			continue
		}
		if !now.Before(session.ScheduledAt.Add(time.Duration(cfg.LateJoinMinutes) * time.Minute)) {
			overdue = append(overdue, *session)
		}
	}
	return overdue, nil
}

func (s *schedulerRepoStub) ExpiredOngoing(ctx context.Context, academyID string, now time.Time) ([]models.Session, error) {
	if s.sweepErr != nil {
		return nil, s.sweepErr
	}
	cfg := s.settingsOf()
	var expired []models.Session
	for _, session := range s.sessions {
		if session.Status != models.SessionStatusOngoing || session.ScheduledAt == nil || !s.matches(session, academyID) {
			continue
		}
		deadline := session.ScheduledAt.
			Add(time.Duration(session.DurationMinutes) * time.Minute).
			Add(time.Duration(cfg.BufferMinutes) * time.Minute)
		if !now.Before(deadline) {
			expired = append(expired, *session)
		}
	}
	return expired, nil
}

func (s *schedulerRepoStub) NeedingRoom(ctx context.Context, academyID string, now time.Time, hoursBefore int) ([]models.Session, error) {
	if s.sweepErr != nil {
		return nil, s.sweepErr
	}
	var due []models.Session
	for _, session := range s.sessions {
		if session.Status != models.SessionStatusScheduled || session.ScheduledAt == nil || !s.matches(session, academyID) {
			continue
		}
		if session.RoomName != nil || s.roomNames[session.ID] != "" {
			continue
		}
		if session.ScheduledAt.After(now) && !session.ScheduledAt.After(now.Add(time.Duration(hoursBefore)*time.Hour)) {
			due = append(due, *session)
		}
	}
	return due, nil
}

func (s *schedulerRepoStub) SetRoomName(ctx context.Context, id, roomName string) error {
	if s.sweepErr != nil {
		return s.sweepErr
	}
	s.roomNames[id] = roomName
	return nil
}

type schedulerFixture struct {
	svc  *SchedulerService
	repo *schedulerRepoStub
	att  *attendanceRepoStub
	now  time.Time
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	repo := newSchedulerRepoStub()
	attRepo := newAttendanceRepoStub()
	attSvc := NewAttendanceService(attRepo, 30, zap.NewNop())
	sessionSvc := NewSessionService(
		repo.sessionRepoStub, attSvc, &settingsStub{}, testDefaults(),
		HistoricalAttendancePolicy{}, nil, nil, zap.NewNop(),
	)
	cfg := testDefaults()
	cfg.AutoCreateMeetings = true
	cfg.MeetingCreationHoursBefore = 24
	svc := NewSchedulerService(repo, sessionSvc, attSvc, cfg, nil, zap.NewNop())

	f := &schedulerFixture{svc: svc, repo: repo, att: attRepo, now: testStart}
	svc.now = func() time.Time { return f.now }
	return f
}

func scheduledSession(id string, startOffsetMinutes int, status models.SessionStatus) *models.Session {
	start := testStart.Add(time.Duration(startOffsetMinutes) * time.Minute)
	return &models.Session{
		ID:              id,
		AcademyID:       "acad-1",
		Kind:            models.SessionKindQuran,
		TeacherID:       "tch-1",
		StudentID:       strp("stu-" + id),
		ScheduledAt:     &start,
		DurationMinutes: 60,
		Status:          status,
	}
}

func TestTickPromotesDueSessions(t *testing.T) {
	f := newSchedulerFixture(t)
	f.repo.sessions["due"] = scheduledSession("due", 8, models.SessionStatusScheduled)
	f.repo.sessions["later"] = scheduledSession("later", 45, models.SessionStatusScheduled)

	summary, err := f.svc.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Transitioned)
	assert.Equal(t, models.SessionStatusReady, f.repo.sessions["due"].Status)
	assert.Equal(t, models.SessionStatusScheduled, f.repo.sessions["later"].Status)
}

func TestTickTerminatesNoShows(t *testing.T) {
	f := newSchedulerFixture(t)
	// Ready since before the session; now 16 minutes past start, one past
	// the 15-minute grace.
	f.now = testStart.Add(16 * time.Minute)
	f.repo.sessions["noshow"] = scheduledSession("noshow", 0, models.SessionStatusReady)

	summary, err := f.svc.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Terminated)
	assert.Equal(t, models.SessionStatusAbsent, f.repo.sessions["noshow"].Status)
	assert.Contains(t, f.att.verdicts, "noshow/stu-noshow")
}

func TestTickLeavesGroupNoShowsAlone(t *testing.T) {
	f := newSchedulerFixture(t)
	f.now = testStart.Add(30 * time.Minute)
	group := scheduledSession("grp", 0, models.SessionStatusReady)
	group.StudentID = nil
	group.GroupID = strp("grp-1")
	f.repo.sessions["grp"] = group

	summary, err := f.svc.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Terminated)
	assert.Equal(t, models.SessionStatusReady, f.repo.sessions["grp"].Status)
}

func TestTickTimeoutFallbackFinalizesOngoing(t *testing.T) {
	f := newSchedulerFixture(t)
	// Duration 60 plus buffer 5: past 65 minutes the room is presumed
	// dead even though no room_finished arrived.
	f.now = testStart.Add(66 * time.Minute)
	f.repo.sessions["stuck"] = scheduledSession("stuck", 0, models.SessionStatusOngoing)

	joinAt := testStart.Add(2 * time.Minute)
	f.att.events = []models.AttendanceEvent{
		{ID: "evt-1", SessionID: "stuck", UserID: "stu-stuck", Type: models.AttendanceEventJoined, OccurredAt: joinAt},
	}
	f.att.cycles["stuck/stu-stuck"] = []models.AttendanceCycle{
		{JoinedAt: joinAt, LeftAt: timePtr(testStart.Add(60 * time.Minute)), Minutes: 58},
	}

	summary, err := f.svc.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Terminated)
	assert.Equal(t, models.SessionStatusCompleted, f.repo.sessions["stuck"].Status)

	// The dangling open cycle was closed at the deemed end, not at tick time.
	leave := f.att.events[len(f.att.events)-1]
	assert.Equal(t, models.AttendanceEventLeft, leave.Type)
	assert.Equal(t, testStart.Add(60*time.Minute), leave.OccurredAt)
}

func TestTickLeavesOngoingAloneBeforeRoomExpiry(t *testing.T) {
	f := newSchedulerFixture(t)
	f.now = testStart.Add(64 * time.Minute)
	f.repo.sessions["live"] = scheduledSession("live", 0, models.SessionStatusOngoing)

	summary, err := f.svc.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Terminated)
	assert.Equal(t, models.SessionStatusOngoing, f.repo.sessions["live"].Status)
}

func TestTickAssignsRoomNames(t *testing.T) {
	f := newSchedulerFixture(t)
	f.repo.sessions["soon"] = scheduledSession("soon", 120, models.SessionStatusScheduled)
	f.repo.sessions["faraway"] = scheduledSession("faraway", 48*60, models.SessionStatusScheduled)

	summary, err := f.svc.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, "quran_soon", f.repo.roomNames["soon"])
	assert.Empty(t, f.repo.roomNames["faraway"])
}

func TestTickDryRunCountsWithoutMutating(t *testing.T) {
	f := newSchedulerFixture(t)
	f.now = testStart.Add(16 * time.Minute)
	f.repo.sessions["due"] = scheduledSession("due", 20, models.SessionStatusScheduled)
	f.repo.sessions["noshow"] = scheduledSession("noshow", 0, models.SessionStatusReady)

	summary, err := f.svc.Tick(context.Background(), TickOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Transitioned)
	assert.Equal(t, 1, summary.Terminated)

	assert.Equal(t, models.SessionStatusScheduled, f.repo.sessions["due"].Status)
	assert.Equal(t, models.SessionStatusReady, f.repo.sessions["noshow"].Status)
	assert.Empty(t, f.att.verdicts)
}

func TestTickScopedToAcademy(t *testing.T) {
	f := newSchedulerFixture(t)
	f.repo.sessions["mine"] = scheduledSession("mine", 5, models.SessionStatusScheduled)
	other := scheduledSession("other", 5, models.SessionStatusScheduled)
	other.AcademyID = "acad-2"
	f.repo.sessions["other"] = other

	summary, err := f.svc.Tick(context.Background(), TickOptions{AcademyID: "acad-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Transitioned)
	assert.Equal(t, models.SessionStatusScheduled, f.repo.sessions["other"].Status)
}

func TestTickAggregatesSweepErrors(t *testing.T) {
	f := newSchedulerFixture(t)
	f.repo.sweepErr = errors.New("db down")

	summary, err := f.svc.Tick(context.Background(), TickOptions{})
	require.NoError(t, err)
	// Four sweeps fail (room creation, ready, no-show, expiry); the stale
	// cycle sweep runs on the attendance repo and still succeeds.
	assert.Equal(t, 4, summary.Errors)
}
