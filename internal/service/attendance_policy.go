package service

import (
	"time"

	"github.com/abdelrahman-hamdy/itqan-platform-sub042/internal/models"
)

// ClassifyInput carries everything a policy needs to produce a verdict.
type ClassifyInput struct {
	FirstJoinedAt   *time.Time
	SessionStart    time.Time
	DurationMinutes int
	AttendedMinutes int
	GraceMinutes    int
}

// AttendancePolicy maps accumulated attendance to a final verdict. The two
// implementations are intentionally distinct rule sets: the historical
// policy backs report generation, the live policy backs in-progress
// monitoring. They must not be unified.
type AttendancePolicy interface {
	Name() string
	Classify(in ClassifyInput) models.Verdict
}

// HistoricalAttendancePolicy is the percentage-threshold rule set used when
// finalizing a session.
type HistoricalAttendancePolicy struct{}

// Name identifies the policy on persisted verdicts.
func (HistoricalAttendancePolicy) Name() string { return "historical" }

// Classify applies the 50%-attendance rule with a lateness grace window.
func (HistoricalAttendancePolicy) Classify(in ClassifyInput) models.Verdict {
	if in.FirstJoinedAt == nil {
		return models.VerdictAbsent
	}
	pct := attendancePercent(in.AttendedMinutes, in.DurationMinutes)
	if pct < 50 {
		return models.VerdictLeaved
	}
	if joinedAfterGrace(*in.FirstJoinedAt, in.SessionStart, in.GraceMinutes) {
		return models.VerdictLate
	}
	return models.VerdictAttended
}

// LiveAttendancePolicy is the stricter rule set used while a session is in
// progress.
type LiveAttendancePolicy struct{}

// Name identifies the policy on persisted verdicts.
func (LiveAttendancePolicy) Name() string { return "live" }

// Classify applies the live-monitoring breakpoints: full attendance always
// counts, late joiners need near-complete presence, on-time joiners are
// held to the 80/30 boundaries.
func (LiveAttendancePolicy) Classify(in ClassifyInput) models.Verdict {
	if in.FirstJoinedAt == nil {
		return models.VerdictAbsent
	}
	pct := attendancePercent(in.AttendedMinutes, in.DurationMinutes)
	if pct >= 100 {
		return models.VerdictAttended
	}
	if joinedAfterGrace(*in.FirstJoinedAt, in.SessionStart, in.GraceMinutes) {
		switch {
		case pct >= 95:
			return models.VerdictLate
		case pct >= 80:
			return models.VerdictLeaved
		default:
			return models.VerdictAbsent
		}
	}
	switch {
	case pct >= 80:
		return models.VerdictAttended
	case pct >= 30:
		return models.VerdictLeaved
	default:
		return models.VerdictAbsent
	}
}

// LateMinutes returns how many minutes past the grace window the join was,
// or 0 when the participant joined on time or early.
func LateMinutes(joinAt, sessionStart time.Time, graceMinutes int) int {
	if !joinedAfterGrace(joinAt, sessionStart, graceMinutes) {
		return 0
	}
	return int(joinAt.Sub(sessionStart) / time.Minute)
}

func joinedAfterGrace(joinAt, sessionStart time.Time, graceMinutes int) bool {
	return joinAt.After(sessionStart.Add(time.Duration(graceMinutes) * time.Minute))
}

func attendancePercent(attended, duration int) float64 {
	if duration <= 0 {
		return 100
	}
	return float64(attended) / float64(duration) * 100
}
