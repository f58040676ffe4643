package models

import (
	"fmt"
	"strings"
)

// Webhook event types emitted by the video provider that this service
// handles. Unknown types are ignored by the dispatcher.
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
)

// MeetingEvent is the vendor-agnostic shape of an inbound meeting lifecycle
// event.
type MeetingEvent struct {
	EventType   string             `json:"eventType" validate:"required"`
	Room        RoomPayload        `json:"room"`
	Participant ParticipantPayload `json:"participant"`
}

// RoomPayload describes the meeting room referenced by an event.
type RoomPayload struct {
	Name            string `json:"name" validate:"required"`
	SID             string `json:"sid"`
	NumParticipants int    `json:"num_participants"`
}

// ParticipantPayload describes the participant referenced by an event.
type ParticipantPayload struct {
	Identity string `json:"identity"`
	SID      string `json:"sid"`
}

// RoomRef is a decoded room name binding an event to a session.
type RoomRef struct {
	Kind      SessionKind
	SessionID string
}

// ParseRoomName decodes the `{kind}_{sessionID}` room-name format.
func ParseRoomName(name string) (RoomRef, error) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RoomRef{}, fmt.Errorf("malformed room name %q", name)
	}
	kind := SessionKind(parts[0])
	if !kind.Valid() {
		return RoomRef{}, fmt.Errorf("unknown session kind %q in room name", parts[0])
	}
	return RoomRef{Kind: kind, SessionID: parts[1]}, nil
}

// ParticipantRef is a decoded participant identity.
type ParticipantRef struct {
	Role   UserRole
	UserID string
}

// ParseParticipantIdentity decodes the `{role}_{userID}[_extra]` identity
// format. Trailing segments beyond the user id are ignored.
func ParseParticipantIdentity(identity string) (ParticipantRef, error) {
	parts := strings.Split(identity, "_")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return ParticipantRef{}, fmt.Errorf("malformed participant identity %q", identity)
	}
	role := UserRole(strings.ToUpper(parts[0]))
	if !role.Valid() {
		return ParticipantRef{}, fmt.Errorf("unknown role %q in participant identity", parts[0])
	}
	return ParticipantRef{Role: role, UserID: parts[1]}, nil
}
