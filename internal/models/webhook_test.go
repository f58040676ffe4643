package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoomName(t *testing.T) {
	ref, err := ParseRoomName("quran_sess-123")
	require.NoError(t, err)
	assert.Equal(t, SessionKindQuran, ref.Kind)
	assert.Equal(t, "sess-123", ref.SessionID)

	// Session ids may themselves contain underscores.
	ref, err = ParseRoomName("academic_ab_cd_ef")
	require.NoError(t, err)
	assert.Equal(t, SessionKindAcademic, ref.Kind)
	assert.Equal(t, "ab_cd_ef", ref.SessionID)
}

func TestParseRoomNameRejectsMalformed(t *testing.T) {
	for _, name := range []string{"", "quran", "quran_", "_sess-1", "webinar_sess-1"} {
		_, err := ParseRoomName(name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestParseParticipantIdentity(t *testing.T) {
	ref, err := ParseParticipantIdentity("student_u-42")
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, ref.Role)
	assert.Equal(t, "u-42", ref.UserID)

	// Role casing is normalized and trailing segments are ignored.
	ref, err = ParseParticipantIdentity("TEACHER_t-9_device2")
	require.NoError(t, err)
	assert.Equal(t, RoleTeacher, ref.Role)
	assert.Equal(t, "t-9", ref.UserID)
}

func TestParseParticipantIdentityRejectsMalformed(t *testing.T) {
	for _, identity := range []string{"", "student", "student_", "_u-1", "janitor_u-1"} {
		_, err := ParseParticipantIdentity(identity)
		assert.Error(t, err, "identity %q", identity)
	}
}

func TestSessionRoomNameRoundTrip(t *testing.T) {
	s := &Session{ID: "sess-7", Kind: SessionKindInteractive}
	ref, err := ParseRoomName(s.EncodedRoomName())
	require.NoError(t, err)
	assert.Equal(t, s.Kind, ref.Kind)
	assert.Equal(t, s.ID, ref.SessionID)
}
