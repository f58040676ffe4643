package models

import "time"

// AttendanceEventType distinguishes join and leave occurrences.
type AttendanceEventType string

const (
	AttendanceEventJoined AttendanceEventType = "joined"
	AttendanceEventLeft   AttendanceEventType = "left"
)

// AttendanceEvent is an immutable record of a single join or leave for a
// (session, user) pair. A leave event closes at most one join event through
// ClosesEventID.
type AttendanceEvent struct {
	ID              string              `db:"id" json:"id"`
	SessionID       string              `db:"session_id" json:"session_id"`
	UserID          string              `db:"user_id" json:"user_id"`
	Type            AttendanceEventType `db:"type" json:"type"`
	OccurredAt      time.Time           `db:"occurred_at" json:"occurred_at"`
	ClosesEventID   *string             `db:"closes_event_id" json:"closes_event_id,omitempty"`
	DurationMinutes *int                `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Stale           bool                `db:"stale" json:"stale"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
}

// AttendanceCycle is one contiguous join-to-leave span for a participant.
// LeftAt is nil while the participant is still connected.
type AttendanceCycle struct {
	JoinEventID string     `db:"join_event_id" json:"join_event_id"`
	SessionID   string     `db:"session_id" json:"session_id"`
	UserID      string     `db:"user_id" json:"user_id"`
	JoinedAt    time.Time  `db:"joined_at" json:"joined_at"`
	LeftAt      *time.Time `db:"left_at" json:"left_at,omitempty"`
	Minutes     int        `db:"minutes" json:"minutes"`
	Stale       bool       `db:"stale" json:"stale"`
}

// Open reports whether the cycle has not been closed yet.
func (c AttendanceCycle) Open() bool {
	return c.LeftAt == nil
}

// StaleOpenJoin pairs an unclosed join event with the duration of its
// session, for the reconciliation sweep.
type StaleOpenJoin struct {
	AttendanceEvent
	SessionDurationMinutes int `db:"session_duration_minutes"`
}

// Verdict is the final attendance classification for a participant.
type Verdict string

const (
	VerdictAttended Verdict = "attended"
	VerdictLate     Verdict = "late"
	VerdictLeaved   Verdict = "leaved"
	VerdictAbsent   Verdict = "absent"
)

// Valid returns true when the verdict is a supported value.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAttended, VerdictLate, VerdictLeaved, VerdictAbsent:
		return true
	default:
		return false
	}
}

// AttendanceVerdict is the persisted classification computed at session
// finalization. Immutable once stored, replaced only by explicit
// reprocessing.
type AttendanceVerdict struct {
	ID              string     `db:"id" json:"id"`
	SessionID       string     `db:"session_id" json:"session_id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Verdict         Verdict    `db:"verdict" json:"verdict"`
	AttendedMinutes int        `db:"attended_minutes" json:"attended_minutes"`
	LateMinutes     int        `db:"late_minutes" json:"late_minutes"`
	FirstJoinedAt   *time.Time `db:"first_joined_at" json:"first_joined_at,omitempty"`
	Policy          string     `db:"policy" json:"policy"`
	ComputedAt      time.Time  `db:"computed_at" json:"computed_at"`
}
