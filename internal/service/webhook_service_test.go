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
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
)

type roomStateStub struct {
	seen       map[string]bool
	persistent map[string]bool
	err        error
}

func newRoomStateStub() *roomStateStub {
	return &roomStateStub{seen: map[string]bool{}, persistent: map[string]bool{}}
}

func (s *roomStateStub) SeenEvent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.seen[key] {
		return true, nil
	}
	s.seen[key] = true
	return false, nil
}

func (s *roomStateStub) MarkRoomPersistent(ctx context.Context, sessionID string, ttl time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.persistent[sessionID] = true
	return nil
}

func (s *roomStateStub) IsRoomPersistent(ctx context.Context, sessionID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.persistent[sessionID], nil
}

func (s *roomStateStub) ClearRoomPersistent(ctx context.Context, sessionID string) error {
	if s.err != nil {
		return s.err
	}
	delete(s.persistent, sessionID)
	return nil
}

type recorderStub struct {
	started int
	err     error
}

func (r *recorderStub) StartRecording(ctx context.Context, session *models.Session) error {
	if r.err != nil {
		return r.err
	}
	r.started++
	return nil
}

type webhookFixture struct {
	svc       *WebhookService
	sessions  *sessionRepoStub
	att       *attendanceRepoStub
	roomState *roomStateStub
	recorder  *recorderStub
	now       time.Time
}

func newWebhookFixture(t *testing.T, status models.SessionStatus) *webhookFixture {
	t.Helper()
	sessionSvc, repo, attRepo, _ := newSessionFixture(status)
	roomState := newRoomStateStub()
	recorder := &recorderStub{}

	attSvc := NewAttendanceService(attRepo, 30, zap.NewNop())
	svc := NewWebhookService(sessionSvc, attSvc, recorder, roomState,
		10*time.Minute, 2*time.Minute, nil, zap.NewNop())

	f := &webhookFixture{
		svc:       svc,
		sessions:  repo,
		att:       attRepo,
		roomState: roomState,
		recorder:  recorder,
		now:       testStart,
	}
	svc.now = func() time.Time { return f.now }
	return f
}

func roomEvent(eventType, roomName string) models.MeetingEvent {
	return models.MeetingEvent{
		EventType: eventType,
		Room:      models.RoomPayload{Name: roomName, SID: "RM_abc"},
	}
}

func participantEvent(eventType, roomName, identity string, count int) models.MeetingEvent {
	e := roomEvent(eventType, roomName)
	e.Room.NumParticipants = count
	e.Participant = models.ParticipantPayload{Identity: identity, SID: "PA_" + identity}
	return e
}

func TestDispatchUnknownEventType(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)
	assert.False(t, f.svc.Dispatch(context.Background(), roomEvent("recording_started", "quran_sess-1")))
}

func TestDispatchIncompleteEventRejected(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)

	missingRoom := models.MeetingEvent{EventType: models.EventRoomStarted}
	assert.False(t, f.svc.Dispatch(context.Background(), missingRoom))

	missingType := models.MeetingEvent{Room: models.RoomPayload{Name: "quran_sess-1", SID: "RM_0"}}
	assert.False(t, f.svc.Dispatch(context.Background(), missingType))
}

func TestDispatchMalformedRoomName(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)

	noSeparator := roomEvent(models.EventRoomStarted, "garbage")
	noSeparator.Room.SID = "RM_1"
	assert.False(t, f.svc.Dispatch(context.Background(), noSeparator))

	unknownKind := roomEvent(models.EventRoomStarted, "webinar_sess-1")
	unknownKind.Room.SID = "RM_2"
	assert.False(t, f.svc.Dispatch(context.Background(), unknownKind))
}

func TestResolveErrorsCarryTypedCodes(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)

	_, err := f.svc.resolveSession(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnresolvableRoom.Code, appErrors.FromError(err).Code)

	_, err = f.svc.resolveSession(context.Background(), "quran_missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnresolvableRoom.Code, appErrors.FromError(err).Code)

	event := participantEvent(models.EventParticipantJoined, "quran_sess-1", "janitor_u1", 1)
	_, _, err = f.svc.resolveParticipant(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnresolvableIdent.Code, appErrors.FromError(err).Code)
}

func TestDispatchUnknownSession(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)
	assert.False(t, f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomStarted, "quran_missing")))
}

func TestDispatchMalformedParticipantIdentity(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusOngoing)
	event := participantEvent(models.EventParticipantJoined, "quran_sess-1", "janitor_u1", 1)
	assert.False(t, f.svc.Dispatch(context.Background(), event))
	assert.Empty(t, f.att.events)
}

func TestRoomStartedBeginsMeetingAndRecords(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)
	f.sessions.sessions["sess-1"].RecordingEnabled = true

	handled := f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomStarted, "quran_sess-1"))
	assert.True(t, handled)

	session := f.sessions.sessions["sess-1"]
	assert.Equal(t, models.SessionStatusOngoing, session.Status)
	require.NotNil(t, session.RoomSID)
	assert.Equal(t, "RM_abc", *session.RoomSID)
	assert.Equal(t, 1, f.recorder.started)
}

func TestRoomStartedRecordingFailureStillHandled(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)
	f.sessions.sessions["sess-1"].RecordingEnabled = true
	f.recorder.err = errors.New("egress down")

	handled := f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomStarted, "quran_sess-1"))
	assert.True(t, handled)
	assert.Equal(t, models.SessionStatusOngoing, f.sessions.sessions["sess-1"].Status)
}

func TestRoomStartedClearsPersistenceMark(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)
	f.roomState.persistent["sess-1"] = true

	f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomStarted, "quran_sess-1"))
	assert.False(t, f.roomState.persistent["sess-1"])
}

func TestParticipantJoinedRecordsCycleAndCount(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusOngoing)

	event := participantEvent(models.EventParticipantJoined, "quran_sess-1", "student_stu-1", 2)
	assert.True(t, f.svc.Dispatch(context.Background(), event))

	require.Len(t, f.att.events, 1)
	assert.Equal(t, "stu-1", f.att.events[0].UserID)
	assert.Equal(t, 2, f.sessions.sessions["sess-1"].ParticipantCount)
}

func TestParticipantLeftClosesCycle(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusOngoing)

	join := participantEvent(models.EventParticipantJoined, "quran_sess-1", "student_stu-1", 1)
	require.True(t, f.svc.Dispatch(context.Background(), join))

	f.now = testStart.Add(25 * time.Minute)
	leave := participantEvent(models.EventParticipantLeft, "quran_sess-1", "student_stu-1", 0)
	require.True(t, f.svc.Dispatch(context.Background(), leave))

	require.Len(t, f.att.events, 2)
	require.NotNil(t, f.att.events[1].DurationMinutes)
	assert.Equal(t, 25, *f.att.events[1].DurationMinutes)
	assert.Equal(t, 0, f.sessions.sessions["sess-1"].ParticipantCount)
}

func TestTeacherLeftDuringActivePhaseMarksRoomPersistent(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusOngoing)
	f.now = testStart.Add(20 * time.Minute)

	leave := participantEvent(models.EventParticipantLeft, "quran_sess-1", "teacher_tch-1", 1)
	require.True(t, f.svc.Dispatch(context.Background(), leave))
	assert.True(t, f.roomState.persistent["sess-1"])
}

func TestStudentLeftDoesNotMarkRoomPersistent(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusOngoing)
	f.now = testStart.Add(20 * time.Minute)

	leave := participantEvent(models.EventParticipantLeft, "quran_sess-1", "student_stu-1", 1)
	require.True(t, f.svc.Dispatch(context.Background(), leave))
	assert.False(t, f.roomState.persistent["sess-1"])
}

func TestRoomFinishedSkippedWhilePersistent(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusOngoing)
	f.roomState.persistent["sess-1"] = true
	f.now = testStart.Add(30 * time.Minute)

	handled := f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomFinished, "quran_sess-1"))
	assert.True(t, handled)
	assert.Equal(t, models.SessionStatusOngoing, f.sessions.sessions["sess-1"].Status)
}

func TestRoomFinishedPersistenceIgnoredAfterExpiry(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusOngoing)
	f.roomState.persistent["sess-1"] = true
	f.now = testStart.Add(70 * time.Minute)

	handled := f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomFinished, "quran_sess-1"))
	assert.True(t, handled)
	assert.Equal(t, models.SessionStatusAbsent, f.sessions.sessions["sess-1"].Status)
}

func TestDuplicateEventIsAcknowledgedOnce(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)

	event := roomEvent(models.EventRoomStarted, "quran_sess-1")
	assert.True(t, f.svc.Dispatch(context.Background(), event))
	// Redelivery dedups but still acks.
	assert.True(t, f.svc.Dispatch(context.Background(), event))
	assert.Len(t, f.sessions.transitions, 1)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)
	f.svc.handlers[models.EventRoomStarted] = func(ctx context.Context, event models.MeetingEvent, now time.Time) error {
		panic("boom")
	}

	assert.NotPanics(t, func() {
		assert.False(t, f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomStarted, "quran_sess-1")))
	})
}

// Full meeting lifecycle: room starts, student joins and leaves, room
// finishes, and the session completes with an attended verdict.
func TestWebhookEndToEndLifecycle(t *testing.T) {
	f := newWebhookFixture(t, models.SessionStatusReady)

	require.True(t, f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomStarted, "quran_sess-1")))

	f.now = testStart.Add(2 * time.Minute)
	require.True(t, f.svc.Dispatch(context.Background(),
		participantEvent(models.EventParticipantJoined, "quran_sess-1", "student_stu-1", 2)))

	f.now = testStart.Add(58 * time.Minute)
	require.True(t, f.svc.Dispatch(context.Background(),
		participantEvent(models.EventParticipantLeft, "quran_sess-1", "student_stu-1", 1)))

	f.att.cycles["sess-1/stu-1"] = []models.AttendanceCycle{
		{JoinedAt: testStart.Add(2 * time.Minute), LeftAt: timePtr(f.now), Minutes: 56},
	}

	f.now = testStart.Add(60 * time.Minute)
	require.True(t, f.svc.Dispatch(context.Background(), roomEvent(models.EventRoomFinished, "quran_sess-1")))

	assert.Equal(t, models.SessionStatusCompleted, f.sessions.sessions["sess-1"].Status)
	verdict, ok := f.att.verdicts["sess-1/stu-1"]
	require.True(t, ok)
	assert.Equal(t, models.VerdictAttended, verdict.Verdict)
}

func timePtr(t time.Time) *time.Time { return &t }
