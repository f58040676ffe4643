package models

import "time"

// Academy is a tenant of the platform. Provisioning lives outside this
// service; only the meeting settings are consumed here.
type Academy struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MeetingSettings are the academy-level knobs driving the timing window and
// scheduler sweeps. Zero values mean "use the platform default".
type MeetingSettings struct {
	AcademyID                  string `db:"academy_id" json:"academy_id"`
	PreparationMinutes         int    `db:"preparation_minutes" json:"preparation_minutes"`
	LateJoinMinutes            int    `db:"late_join_minutes" json:"late_join_minutes"`
	BufferMinutes              int    `db:"buffer_minutes" json:"buffer_minutes"`
	AutoCreateMeetings         bool   `db:"auto_create_meetings" json:"auto_create_meetings"`
	MeetingCreationHoursBefore int    `db:"meeting_creation_hours_before" json:"meeting_creation_hours_before"`
	RecordingEnabled           bool   `db:"recording_enabled" json:"recording_enabled"`
}

// Normalize fills unset values with the provided platform defaults.
func (m MeetingSettings) Normalize(prep, lateJoin, buffer int) MeetingSettings {
	if m.PreparationMinutes <= 0 {
		m.PreparationMinutes = prep
	}
	if m.LateJoinMinutes <= 0 {
		m.LateJoinMinutes = lateJoin
	}
	if m.BufferMinutes <= 0 {
		m.BufferMinutes = buffer
	}
	return m
}
