package domain

type (
	RoomID   string
	RoomKind string
)

const (
	RoomChat  RoomKind = "chat"
	RoomVideo RoomKind = "video"
)

// Room identifies an ephemeral membership group scoped to a session or
// conversation. A chat room and a video room for the same session id are
// distinct rooms.
type Room struct {
	ID   RoomID   `json:"id"`
	Kind RoomKind `json:"kind"`
}

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Participant exists only while attached to a room. It is removed on
// disconnect or explicit leave.
type Participant struct {
	UserID       UserID       `json:"user_id"`
	ConnectionID ConnectionID `json:"-"`
	Role         Role         `json:"role"`
	DisplayName  string       `json:"display_name"`
	AvatarRef    string       `json:"avatar_ref,omitempty"`
}
