package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	appErrors "github.com/abdelrahman-hamdy/itqan-platform-sub042/pkg/errors"
)

const sessionColumns = `id, academy_id, kind, teacher_id, student_id, group_id, scheduled_at,
	duration_minutes, status, preparation_completed_at, started_at, ended_at,
	room_name, room_sid, participant_count, recording_enabled, deleted_at, created_at, updated_at`

// SessionRepository manages persistence for sessions. All lifecycle writes
// go through Transition, which enforces the state graph at the SQL level.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get fetches a session by ID, excluding soft-deleted rows.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions WHERE id = $1 AND deleted_at IS NULL", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// List returns sessions matching the provided filters plus the total count.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := []interface{}{}

	if filter.AcademyID != "" {
		conditions = append(conditions, fmt.Sprintf("academy_id = $%d", len(args)+1))
		args = append(args, filter.AcademyID)
	}
	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, *filter.Kind)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("scheduled_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	where := strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"scheduled_at": "scheduled_at",
		"created_at":   "created_at",
		"status":       "status",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "scheduled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM sessions WHERE %s ORDER BY %s %s NULLS LAST LIMIT %d OFFSET %d",
		sessionColumns, where, column, order, size, offset)

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sessions WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// Transition atomically moves a session to a new status, but only when its
// current status is one of the allowed pre-states. It reports whether the
// write applied; a false result with nil error means another actor already
// moved the session, which callers treat as an idempotent no-op.
//
// Timestamp stamps use COALESCE so a transition never overwrites a stamp
// that is already set.
func (r *SessionRepository) Transition(ctx context.Context, id string, from []models.SessionStatus, to models.SessionStatus, stamps models.TransitionStamps) (bool, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	query := `UPDATE sessions SET
			status = $1,
			preparation_completed_at = COALESCE(preparation_completed_at, $2),
			started_at = COALESCE(started_at, $3),
			ended_at = COALESCE(ended_at, $4),
			room_sid = COALESCE($5, room_sid),
			updated_at = NOW()
		WHERE id = $6 AND status = ANY($7) AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query,
		to,
		stamps.PreparationCompletedAt,
		stamps.StartedAt,
		stamps.EndedAt,
		stamps.RoomSID,
		id,
		pq.Array(fromStrs),
	)
	if err != nil {
		return false, fmt.Errorf("transition session to %s: %w", to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetRoomName assigns the meeting room name ahead of the session start.
func (r *SessionRepository) SetRoomName(ctx context.Context, id, roomName string) error {
	query := "UPDATE sessions SET room_name = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL"
	if _, err := r.db.ExecContext(ctx, query, roomName, id); err != nil {
		return fmt.Errorf("set room name: %w", err)
	}
	return nil
}

// UpdateParticipantCount stores the live participant count reported by the
// meeting provider.
func (r *SessionRepository) UpdateParticipantCount(ctx context.Context, id string, count int) error {
	if count < 0 {
		count = 0
	}
	query := "UPDATE sessions SET participant_count = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL"
	if _, err := r.db.ExecContext(ctx, query, count, id); err != nil {
		return fmt.Errorf("update participant count: %w", err)
	}
	return nil
}

// academyTimingJoin resolves effective timing minutes per session: the
// academy override when set and positive, else the platform default bound
// at query time.
const academyTimingJoin = `FROM sessions s
	LEFT JOIN academy_meeting_settings a ON a.academy_id = s.academy_id`

// DueForReady returns scheduled sessions whose preparation window has
// opened: now >= scheduled_at - preparation minutes.
func (r *SessionRepository) DueForReady(ctx context.Context, academyID string, now time.Time) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s %s
		WHERE s.status = $1 AND s.deleted_at IS NULL AND s.scheduled_at IS NOT NULL
		AND $2 >= s.scheduled_at - make_interval(mins => COALESCE(NULLIF(a.preparation_minutes, 0), $3))`,
		prefixedSessionColumns("s"), academyTimingJoin)
	args := []interface{}{models.SessionStatusScheduled, now, defaultPreparationMinutes}

	if academyID != "" {
		query += fmt.Sprintf(" AND s.academy_id = $%d", len(args)+1)
		args = append(args, academyID)
	}

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("due-for-ready sweep: %w", err)
	}
	return sessions, nil
}

// OverdueReadyIndividual returns one-on-one sessions still READY after the
// late-join grace elapsed. Group sessions are excluded.
func (r *SessionRepository) OverdueReadyIndividual(ctx context.Context, academyID string, now time.Time) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s %s
		WHERE s.status = $1 AND s.deleted_at IS NULL AND s.scheduled_at IS NOT NULL
		AND s.student_id IS NOT NULL AND s.group_id IS NULL
		AND $2 >= s.scheduled_at + make_interval(mins => COALESCE(NULLIF(a.late_join_minutes, 0), $3))`,
		prefixedSessionColumns("s"), academyTimingJoin)
	args := []interface{}{models.SessionStatusReady, now, defaultLateJoinMinutes}

	if academyID != "" {
		query += fmt.Sprintf(" AND s.academy_id = $%d", len(args)+1)
		args = append(args, academyID)
	}

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("no-show sweep: %w", err)
	}
	return sessions, nil
}

// ExpiredOngoing returns ongoing sessions whose room expiry has passed
// without a closing webhook.
func (r *SessionRepository) ExpiredOngoing(ctx context.Context, academyID string, now time.Time) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s %s
		WHERE s.status = $1 AND s.deleted_at IS NULL AND s.scheduled_at IS NOT NULL
		AND $2 >= s.scheduled_at
			+ make_interval(mins => s.duration_minutes)
			+ make_interval(mins => COALESCE(NULLIF(a.buffer_minutes, 0), $3))`,
		prefixedSessionColumns("s"), academyTimingJoin)
	args := []interface{}{models.SessionStatusOngoing, now, defaultBufferMinutes}

	if academyID != "" {
		query += fmt.Sprintf(" AND s.academy_id = $%d", len(args)+1)
		args = append(args, academyID)
	}

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("expiry sweep: %w", err)
	}
	return sessions, nil
}

// NeedingRoom returns upcoming sessions without an assigned room name that
// start within the next hoursBefore hours.
func (r *SessionRepository) NeedingRoom(ctx context.Context, academyID string, now time.Time, hoursBefore int) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions s
		WHERE s.status = $1 AND s.deleted_at IS NULL AND s.room_name IS NULL
		AND s.scheduled_at IS NOT NULL
		AND s.scheduled_at > $2
		AND s.scheduled_at <= $2 + make_interval(hours => $3)`,
		prefixedSessionColumns("s"))
	args := []interface{}{models.SessionStatusScheduled, now, hoursBefore}

	if academyID != "" {
		query += fmt.Sprintf(" AND s.academy_id = $%d", len(args)+1)
		args = append(args, academyID)
	}

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("room creation sweep: %w", err)
	}
	return sessions, nil
}

// prefixedSessionColumns qualifies the session column list with a table
// alias for joined queries.
func prefixedSessionColumns(alias string) string {
	cols := strings.Split(sessionColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// Platform fallbacks applied inside SQL when an academy carries no
// override. Kept in sync with the configuration defaults.
const (
	defaultPreparationMinutes = 10
	defaultLateJoinMinutes    = 15
	defaultBufferMinutes      = 5
)
