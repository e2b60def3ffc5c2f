package core

import (
	"context"

	"github.com/mentorgrid/live/internal/domain"
)

// SessionRecord is the slice of a persisted mentoring session this core
// needs: who negotiates, and the currently agreed schedule.
type SessionRecord struct {
	SessionID string          `json:"session_id"`
	MentorID  domain.UserID   `json:"mentor_id"`
	MenteeID  domain.UserID   `json:"mentee_id"`
	Schedule  domain.Proposal `json:"schedule"`
}

// Parties returns both negotiation parties.
func (r SessionRecord) Parties() (domain.UserID, domain.UserID) {
	return r.MentorID, r.MenteeID
}

// IsParty reports whether u belongs to the session.
func (r SessionRecord) IsParty(u domain.UserID) bool {
	return u == r.MentorID || u == r.MenteeID
}

// SessionStore is the external session-persistence collaborator. The
// marketplace owns session records; this core only reads the schedule and
// instructs overwrites on accepted reschedules.
type SessionStore interface {
	GetSchedule(ctx context.Context, sessionID string) (SessionRecord, error)
	ApplySchedule(ctx context.Context, sessionID string, p domain.Proposal) error
}

// NotificationStore is the external notification-persistence collaborator
// used for offline delivery.
type NotificationStore interface {
	Store(ctx context.Context, userID domain.UserID, ev Event) error
}

// IdentityResolver maps a connection's claimed token to a known user.
// Authentication policy itself is external.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (domain.UserID, error)
}
