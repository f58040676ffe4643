package service

import (
	"time"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
)

// TimingPhase tags where "now" falls relative to a session's schedule.
type TimingPhase string

const (
	PhaseTooEarly    TimingPhase = "too_early"
	PhasePreSession  TimingPhase = "pre_session"
	PhaseActive      TimingPhase = "active"
	PhasePostSession TimingPhase = "post_session"
	PhaseExpired     TimingPhase = "expired"
)

// TimingWindow is the computed join-eligibility window for a session at a
// given instant. It is a value object, never persisted.
type TimingWindow struct {
	Phase       TimingPhase `json:"phase"`
	Unscheduled bool        `json:"unscheduled"`

	JoinableAt time.Time `json:"joinable_at,omitempty"`
	SessionEnd time.Time `json:"session_end,omitempty"`
	RoomExpiry time.Time `json:"room_expiry,omitempty"`

	// MinutesToJoinable is set in the too_early phase, MinutesToStart in
	// pre_session, MinutesRemaining in active and post_session (time left
	// until room expiry), MinutesSinceExpiry once expired.
	MinutesToJoinable  int `json:"minutes_to_joinable,omitempty"`
	MinutesToStart     int `json:"minutes_to_start,omitempty"`
	MinutesRemaining   int `json:"minutes_remaining,omitempty"`
	MinutesSinceExpiry int `json:"minutes_since_expiry,omitempty"`
}

// Joinable reports whether a participant may enter the room in this phase.
func (w TimingWindow) Joinable() bool {
	switch w.Phase {
	case PhasePreSession, PhaseActive, PhasePostSession:
		return true
	default:
		return false
	}
}

// ComputeTimingWindow determines the timing phase of a session at `now`.
// The five intervals are half-open and partition the timeline:
//
//	(-inf, joinableAt) (joinableAt, start) [start, end) [end, expiry) [expiry, inf)
//
// A session with no scheduled time is treated as always available.
func ComputeTimingWindow(scheduledAt *time.Time, durationMinutes int, settings models.MeetingSettings, now time.Time) TimingWindow {
	if scheduledAt == nil {
		return TimingWindow{Phase: PhaseActive, Unscheduled: true}
	}

	start := *scheduledAt
	joinableAt := start.Add(-time.Duration(settings.PreparationMinutes) * time.Minute)
	sessionEnd := start.Add(time.Duration(durationMinutes) * time.Minute)
	roomExpiry := sessionEnd.Add(time.Duration(settings.BufferMinutes) * time.Minute)

	w := TimingWindow{
		JoinableAt: joinableAt,
		SessionEnd: sessionEnd,
		RoomExpiry: roomExpiry,
	}

	switch {
	case now.Before(joinableAt):
		w.Phase = PhaseTooEarly
		w.MinutesToJoinable = minutesBetween(now, joinableAt)
	case now.Before(start):
		w.Phase = PhasePreSession
		w.MinutesToStart = minutesBetween(now, start)
	case now.Before(sessionEnd):
		w.Phase = PhaseActive
		w.MinutesRemaining = minutesBetween(now, roomExpiry)
	case now.Before(roomExpiry):
		w.Phase = PhasePostSession
		w.MinutesRemaining = minutesBetween(now, roomExpiry)
	default:
		w.Phase = PhaseExpired
		w.MinutesSinceExpiry = minutesBetween(roomExpiry, now)
	}

	return w
}

// minutesBetween returns the whole minutes from a to b, never negative.
func minutesBetween(a, b time.Time) int {
	if b.Before(a) {
		return 0
	}
	return int(b.Sub(a) / time.Minute)
}
