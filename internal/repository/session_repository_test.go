package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
)

func newSessionRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionRows(id string, status models.SessionStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "academy_id", "kind", "teacher_id", "student_id", "group_id", "scheduled_at",
		"duration_minutes", "status", "preparation_completed_at", "started_at", "ended_at",
		"room_name", "room_sid", "participant_count", "recording_enabled", "deleted_at", "created_at", "updated_at",
	}).AddRow(id, "acad-1", "quran", "tch-1", "stu-1", nil, now,
		60, status, nil, nil, nil, nil, nil, 0, false, nil, now, now)
}

func TestSessionRepositoryGet(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("sess-1").
		WillReturnRows(sessionRows("sess-1", models.SessionStatusScheduled))

	session, err := repo.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", session.ID)
	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryGetNotFound(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryTransitionApplied(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now()
	mock.ExpectExec("UPDATE sessions SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.Transition(context.Background(), "sess-1",
		[]models.SessionStatus{models.SessionStatusScheduled},
		models.SessionStatusReady,
		models.TransitionStamps{PreparationCompletedAt: &now})
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryTransitionNoOpWhenGuardFails(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("UPDATE sessions SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := repo.Transition(context.Background(), "sess-1",
		[]models.SessionStatus{models.SessionStatusReady},
		models.SessionStatusOngoing,
		models.TransitionStamps{})
	require.NoError(t, err)
	assert.False(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	status := models.SessionStatusReady
	mock.ExpectQuery("SELECT .+ FROM sessions WHERE deleted_at IS NULL AND academy_id = \\$1 AND status = \\$2").
		WithArgs("acad-1", status).
		WillReturnRows(sessionRows("sess-1", status))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM sessions WHERE").
		WithArgs("acad-1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.List(context.Background(), models.SessionFilter{
		AcademyID: "acad-1",
		Status:    &status,
	})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateParticipantCountClampsNegative(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("UPDATE sessions SET participant_count = \\$1").
		WithArgs(0, "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateParticipantCount(context.Background(), "sess-1", -3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDueForReadyScoped(t *testing.T) {
	db, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT .+ FROM sessions s").
		WillReturnRows(sessionRows("sess-1", models.SessionStatusScheduled))

	sessions, err := repo.DueForReady(context.Background(), "acad-1", time.Now())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
