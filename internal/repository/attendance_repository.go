package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
)

// AttendanceRepository persists the append-only attendance event log and
// the computed verdicts. Events are never updated or deleted; a leave
// closes a join by reference.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// InsertEvent appends one attendance event and returns it with generated
// fields populated.
func (r *AttendanceRepository) InsertEvent(ctx context.Context, event *models.AttendanceEvent) (*models.AttendanceEvent, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	query := `INSERT INTO attendance_events
			(id, session_id, user_id, type, occurred_at, closes_event_id, duration_minutes, stale)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	if err := r.db.GetContext(ctx, &event.CreatedAt, query,
		event.ID, event.SessionID, event.UserID, event.Type, event.OccurredAt,
		event.ClosesEventID, event.DurationMinutes, event.Stale,
	); err != nil {
		return nil, fmt.Errorf("insert attendance event: %w", err)
	}
	return event, nil
}

// OpenJoin returns the participant's unclosed join event for the session,
// or nil when every join has a matching leave.
func (r *AttendanceRepository) OpenJoin(ctx context.Context, sessionID, userID string) (*models.AttendanceEvent, error) {
	query := `SELECT j.id, j.session_id, j.user_id, j.type, j.occurred_at,
			j.closes_event_id, j.duration_minutes, j.stale, j.created_at
		FROM attendance_events j
		WHERE j.session_id = $1 AND j.user_id = $2 AND j.type = $3
		AND NOT EXISTS (
			SELECT 1 FROM attendance_events l
			WHERE l.closes_event_id = j.id
		)
		ORDER BY j.occurred_at DESC
		LIMIT 1`
	var event models.AttendanceEvent
	if err := r.db.GetContext(ctx, &event, query, sessionID, userID, models.AttendanceEventJoined); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open join: %w", err)
	}
	return &event, nil
}

// OpenJoinsBySession returns every unclosed join event for one session.
func (r *AttendanceRepository) OpenJoinsBySession(ctx context.Context, sessionID string) ([]models.AttendanceEvent, error) {
	query := `SELECT j.id, j.session_id, j.user_id, j.type, j.occurred_at,
			j.closes_event_id, j.duration_minutes, j.stale, j.created_at
		FROM attendance_events j
		WHERE j.session_id = $1 AND j.type = $2
		AND NOT EXISTS (
			SELECT 1 FROM attendance_events l
			WHERE l.closes_event_id = j.id
		)
		ORDER BY j.occurred_at ASC`
	var events []models.AttendanceEvent
	if err := r.db.SelectContext(ctx, &events, query, sessionID, models.AttendanceEventJoined); err != nil {
		return nil, fmt.Errorf("list open joins: %w", err)
	}
	return events, nil
}

// StaleOpenJoins returns unclosed joins whose session duration plus the
// grace has elapsed since the join, paired with each session's duration
// for bounding the forced close.
func (r *AttendanceRepository) StaleOpenJoins(ctx context.Context, now time.Time, graceMinutes int) ([]models.StaleOpenJoin, error) {
	query := `SELECT j.id, j.session_id, j.user_id, j.type, j.occurred_at,
			j.closes_event_id, j.duration_minutes, j.stale, j.created_at,
			s.duration_minutes AS session_duration_minutes
		FROM attendance_events j
		JOIN sessions s ON s.id = j.session_id
		WHERE j.type = $1
		AND j.occurred_at + make_interval(mins => s.duration_minutes + $2) < $3
		AND NOT EXISTS (
			SELECT 1 FROM attendance_events l
			WHERE l.closes_event_id = j.id
		)
		ORDER BY j.occurred_at ASC`
	var joins []models.StaleOpenJoin
	if err := r.db.SelectContext(ctx, &joins, query, models.AttendanceEventJoined, graceMinutes, now); err != nil {
		return nil, fmt.Errorf("list stale open joins: %w", err)
	}
	return joins, nil
}

// ListCycles reconstructs the join/leave cycles for a participant from the
// event log, most recent last. Open cycles carry a nil LeftAt.
func (r *AttendanceRepository) ListCycles(ctx context.Context, sessionID, userID string) ([]models.AttendanceCycle, error) {
	query := `SELECT j.id AS join_event_id, j.session_id, j.user_id,
			j.occurred_at AS joined_at,
			l.occurred_at AS left_at,
			COALESCE(l.duration_minutes, 0) AS minutes,
			COALESCE(l.stale, FALSE) AS stale
		FROM attendance_events j
		LEFT JOIN attendance_events l ON l.closes_event_id = j.id
		WHERE j.session_id = $1 AND j.user_id = $2 AND j.type = $3
		ORDER BY j.occurred_at ASC`
	var cycles []models.AttendanceCycle
	if err := r.db.SelectContext(ctx, &cycles, query, sessionID, userID, models.AttendanceEventJoined); err != nil {
		return nil, fmt.Errorf("list attendance cycles: %w", err)
	}
	return cycles, nil
}

// Participants returns every user that produced at least one attendance
// event for the session.
func (r *AttendanceRepository) Participants(ctx context.Context, sessionID string) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM attendance_events WHERE session_id = $1 ORDER BY user_id`
	var users []string
	if err := r.db.SelectContext(ctx, &users, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session participants: %w", err)
	}
	return users, nil
}

// UpsertVerdict stores the final classification for a (session, user)
// pair, replacing a previous verdict on reprocess.
func (r *AttendanceRepository) UpsertVerdict(ctx context.Context, verdict *models.AttendanceVerdict) (*models.AttendanceVerdict, error) {
	if verdict.ID == "" {
		verdict.ID = uuid.NewString()
	}
	query := `INSERT INTO attendance_verdicts
			(id, session_id, user_id, verdict, attended_minutes, late_minutes, first_joined_at, policy, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, user_id) DO UPDATE SET
			verdict = EXCLUDED.verdict,
			attended_minutes = EXCLUDED.attended_minutes,
			late_minutes = EXCLUDED.late_minutes,
			first_joined_at = EXCLUDED.first_joined_at,
			policy = EXCLUDED.policy,
			computed_at = EXCLUDED.computed_at`
	if _, err := r.db.ExecContext(ctx, query,
		verdict.ID, verdict.SessionID, verdict.UserID, verdict.Verdict,
		verdict.AttendedMinutes, verdict.LateMinutes, verdict.FirstJoinedAt,
		verdict.Policy, verdict.ComputedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert attendance verdict: %w", err)
	}
	return verdict, nil
}

// ListVerdicts returns the stored verdicts for a session.
func (r *AttendanceRepository) ListVerdicts(ctx context.Context, sessionID string) ([]models.AttendanceVerdict, error) {
	query := `SELECT id, session_id, user_id, verdict, attended_minutes, late_minutes,
			first_joined_at, policy, computed_at
		FROM attendance_verdicts
		WHERE session_id = $1
		ORDER BY user_id`
	var verdicts []models.AttendanceVerdict
	if err := r.db.SelectContext(ctx, &verdicts, query, sessionID); err != nil {
		return nil, fmt.Errorf("list attendance verdicts: %w", err)
	}
	return verdicts, nil
}
