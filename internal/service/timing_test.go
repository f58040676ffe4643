package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
)

var testSettings = models.MeetingSettings{
	PreparationMinutes: 10,
	LateJoinMinutes:    15,
	BufferMinutes:      5,
}

func windowAt(t *testing.T, offsetMinutes int) TimingWindow {
	t.Helper()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(time.Duration(offsetMinutes) * time.Minute)
	return ComputeTimingWindow(&start, 60, testSettings, now)
}

func TestComputeTimingWindowPhases(t *testing.T) {
	tests := []struct {
		name          string
		offsetMinutes int
		phase         TimingPhase
		joinable      bool
	}{
		{"well before preparation", -120, PhaseTooEarly, false},
		{"one minute before joinable", -11, PhaseTooEarly, false},
		{"preparation opens", -10, PhasePreSession, true},
		{"one minute before start", -1, PhasePreSession, true},
		{"exact start", 0, PhaseActive, true},
		{"mid session", 30, PhaseActive, true},
		{"last active minute", 59, PhaseActive, true},
		{"nominal end", 60, PhasePostSession, true},
		{"inside buffer", 64, PhasePostSession, true},
		{"room expiry", 65, PhaseExpired, false},
		{"long after expiry", 600, PhaseExpired, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := windowAt(t, tc.offsetMinutes)
			assert.Equal(t, tc.phase, w.Phase)
			assert.Equal(t, tc.joinable, w.Joinable())
			assert.False(t, w.Unscheduled)
		})
	}
}

func TestComputeTimingWindowBoundaryInstants(t *testing.T) {
	// Each boundary belongs to the later phase: the intervals are half-open.
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	joinable := ComputeTimingWindow(&start, 60, testSettings, start.Add(-10*time.Minute))
	assert.Equal(t, PhasePreSession, joinable.Phase)

	atStart := ComputeTimingWindow(&start, 60, testSettings, start)
	assert.Equal(t, PhaseActive, atStart.Phase)

	atEnd := ComputeTimingWindow(&start, 60, testSettings, start.Add(60*time.Minute))
	assert.Equal(t, PhasePostSession, atEnd.Phase)

	atExpiry := ComputeTimingWindow(&start, 60, testSettings, start.Add(65*time.Minute))
	assert.Equal(t, PhaseExpired, atExpiry.Phase)
}

func TestComputeTimingWindowDerivedInstants(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := ComputeTimingWindow(&start, 60, testSettings, start)

	require.Equal(t, start.Add(-10*time.Minute), w.JoinableAt)
	require.Equal(t, start.Add(60*time.Minute), w.SessionEnd)
	require.Equal(t, start.Add(65*time.Minute), w.RoomExpiry)
}

func TestComputeTimingWindowCountdowns(t *testing.T) {
	tooEarly := windowAt(t, -40)
	assert.Equal(t, 30, tooEarly.MinutesToJoinable)

	pre := windowAt(t, -7)
	assert.Equal(t, 7, pre.MinutesToStart)

	active := windowAt(t, 20)
	assert.Equal(t, 45, active.MinutesRemaining)

	post := windowAt(t, 62)
	assert.Equal(t, 3, post.MinutesRemaining)

	expired := windowAt(t, 75)
	assert.Equal(t, 10, expired.MinutesSinceExpiry)
}

func TestComputeTimingWindowUnscheduled(t *testing.T) {
	w := ComputeTimingWindow(nil, 60, testSettings, time.Now().UTC())
	assert.Equal(t, PhaseActive, w.Phase)
	assert.True(t, w.Unscheduled)
	assert.True(t, w.Joinable())
}

func TestComputeTimingWindowZeroDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := ComputeTimingWindow(&start, 0, testSettings, start)
	// A zero-length session is immediately in its buffer.
	assert.Equal(t, PhasePostSession, w.Phase)
}

func TestMinutesBetweenNeverNegative(t *testing.T) {
	a := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, minutesBetween(a, a.Add(-time.Hour)))
	assert.Equal(t, 90, minutesBetween(a, a.Add(90*time.Minute)))
}
