package domain

import "time"

type JoinRequestStatus string

const (
	JoinPending   JoinRequestStatus = "pending"
	JoinApproved  JoinRequestStatus = "approved"
	JoinRejected  JoinRequestStatus = "rejected"
	JoinWithdrawn JoinRequestStatus = "withdrawn"
)

// Terminal reports whether the request can no longer be decided.
func (s JoinRequestStatus) Terminal() bool {
	return s != JoinPending
}

// JoinRequest is a pending ask to enter a hosted video room. At most one
// pending request may exist per (room, requester) pair.
type JoinRequest struct {
	ID            string            `json:"id"`
	RoomID        RoomID            `json:"room_id"`
	RequesterID   UserID            `json:"requester_id"`
	RequesterConn ConnectionID      `json:"-"`
	RequesterName string            `json:"requester_name"`
	RequestedAt   time.Time         `json:"requested_at"`
	Status        JoinRequestStatus `json:"status"`
}
