package dto

import (
	"time"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/service"
)

// TimingWindowResponse is the client-facing view of a session's timing
// window at a point in time.
type TimingWindowResponse struct {
	Phase              string     `json:"phase"`
	Joinable           bool       `json:"joinable"`
	Unscheduled        bool       `json:"unscheduled"`
	JoinableAt         *time.Time `json:"joinable_at,omitempty"`
	SessionEnd         *time.Time `json:"session_end,omitempty"`
	RoomExpiry         *time.Time `json:"room_expiry,omitempty"`
	MinutesToJoinable  int        `json:"minutes_to_joinable,omitempty"`
	MinutesToStart     int        `json:"minutes_to_start,omitempty"`
	MinutesRemaining   int        `json:"minutes_remaining,omitempty"`
	MinutesSinceExpiry int        `json:"minutes_since_expiry,omitempty"`
}

// NewTimingWindowResponse maps a computed window to its wire form.
func NewTimingWindowResponse(w service.TimingWindow) TimingWindowResponse {
	resp := TimingWindowResponse{
		Phase:              string(w.Phase),
		Joinable:           w.Joinable(),
		Unscheduled:        w.Unscheduled,
		MinutesToJoinable:  w.MinutesToJoinable,
		MinutesToStart:     w.MinutesToStart,
		MinutesRemaining:   w.MinutesRemaining,
		MinutesSinceExpiry: w.MinutesSinceExpiry,
	}
	if !w.Unscheduled {
		joinableAt, sessionEnd, roomExpiry := w.JoinableAt, w.SessionEnd, w.RoomExpiry
		resp.JoinableAt = &joinableAt
		resp.SessionEnd = &sessionEnd
		resp.RoomExpiry = &roomExpiry
	}
	return resp
}

// SessionWindowResponse pairs a session with its current timing window.
type SessionWindowResponse struct {
	Session *models.Session      `json:"session"`
	Window  TimingWindowResponse `json:"window"`
}

// SessionAttendanceResponse is the attendance detail for one session.
type SessionAttendanceResponse struct {
	SessionID string                     `json:"session_id"`
	Verdicts  []models.AttendanceVerdict `json:"verdicts"`
}

// ParticipantCyclesResponse lists one participant's join/leave cycles.
type ParticipantCyclesResponse struct {
	SessionID string                   `json:"session_id"`
	UserID    string                   `json:"user_id"`
	Cycles    []models.AttendanceCycle `json:"cycles"`
}

// WebhookAckResponse is the dispatcher acknowledgement. The transport
// always returns 200 so the provider never retries.
type WebhookAckResponse struct {
	Handled bool `json:"handled"`
}
