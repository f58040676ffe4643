package models

import (
	"fmt"
	"time"
)

// SessionKind distinguishes the teaching formats the platform offers.
type SessionKind string

const (
	SessionKindQuran       SessionKind = "quran"
	SessionKindAcademic    SessionKind = "academic"
	SessionKindInteractive SessionKind = "interactive"
)

// Valid returns true when the kind is a supported value.
func (k SessionKind) Valid() bool {
	switch k {
	case SessionKindQuran, SessionKindAcademic, SessionKindInteractive:
		return true
	default:
		return false
	}
}

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusReady     SessionStatus = "ready"
	SessionStatusOngoing   SessionStatus = "ongoing"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbsent    SessionStatus = "absent"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Valid returns true when the status is a supported value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusReady, SessionStatusOngoing,
		SessionStatusCompleted, SessionStatusAbsent, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusAbsent, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// sessionTransitions is the authoritative lifecycle graph. Statuses never
// regress; cancellation is only possible before the meeting starts.
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusScheduled: {SessionStatusReady, SessionStatusCancelled},
	SessionStatusReady:     {SessionStatusOngoing, SessionStatusAbsent, SessionStatusCompleted, SessionStatusCancelled},
	SessionStatusOngoing:   {SessionStatusCompleted, SessionStatusAbsent},
}

// CanTransitionTo reports whether the lifecycle graph permits moving from s
// to the target status.
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Session represents one scheduled teaching occurrence. It is created by the
// booking flow and then mutated exclusively through guarded transitions.
type Session struct {
	ID                     string        `db:"id" json:"id"`
	AcademyID              string        `db:"academy_id" json:"academy_id"`
	Kind                   SessionKind   `db:"kind" json:"kind"`
	TeacherID              string        `db:"teacher_id" json:"teacher_id"`
	StudentID              *string       `db:"student_id" json:"student_id,omitempty"`
	GroupID                *string       `db:"group_id" json:"group_id,omitempty"`
	ScheduledAt            *time.Time    `db:"scheduled_at" json:"scheduled_at,omitempty"`
	DurationMinutes        int           `db:"duration_minutes" json:"duration_minutes"`
	Status                 SessionStatus `db:"status" json:"status"`
	PreparationCompletedAt *time.Time    `db:"preparation_completed_at" json:"preparation_completed_at,omitempty"`
	StartedAt              *time.Time    `db:"started_at" json:"started_at,omitempty"`
	EndedAt                *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	RoomName               *string       `db:"room_name" json:"room_name,omitempty"`
	RoomSID                *string       `db:"room_sid" json:"room_sid,omitempty"`
	ParticipantCount       int           `db:"participant_count" json:"participant_count"`
	RecordingEnabled       bool          `db:"recording_enabled" json:"recording_enabled"`
	DeletedAt              *time.Time    `db:"deleted_at" json:"-"`
	CreatedAt              time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time     `db:"updated_at" json:"updated_at"`
}

// Individual reports whether the session is a one-on-one lesson. Group
// circles and interactive courses carry a group reference instead of a
// single student.
func (s *Session) Individual() bool {
	return s.StudentID != nil && s.GroupID == nil
}

// EncodedRoomName returns the wire room name binding this session to its
// meeting room.
func (s *Session) EncodedRoomName() string {
	return fmt.Sprintf("%s_%s", s.Kind, s.ID)
}

// SessionEnd returns the nominal end instant, when the session is scheduled.
func (s *Session) SessionEnd() *time.Time {
	if s.ScheduledAt == nil {
		return nil
	}
	end := s.ScheduledAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
	return &end
}

// TransitionStamps are the side-effect timestamps a transition may set.
// Nil fields leave the stored value untouched, which keeps re-applied
// transitions from double-stamping.
type TransitionStamps struct {
	PreparationCompletedAt *time.Time
	StartedAt              *time.Time
	EndedAt                *time.Time
	RoomSID                *string
}

// SessionFilter captures filtering criteria for listing sessions.
type SessionFilter struct {
	AcademyID string
	Kind      *SessionKind
	Status    *SessionStatus
	TeacherID string
	StudentID string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
