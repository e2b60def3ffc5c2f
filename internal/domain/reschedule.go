package domain

import (
	"fmt"
	"time"
)

// Proposal is a candidate date/time for a session. Value type, immutable
// once created.
type Proposal struct {
	Date      string `json:"date"`       // 2006-01-02
	StartTime string `json:"start_time"` // 15:04
	EndTime   string `json:"end_time"`   // 15:04
	Message   string `json:"message,omitempty"`
}

// Starts resolves the proposal's start instant in UTC.
func (p Proposal) Starts() (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04", p.Date+" "+p.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse proposal start: %w", err)
	}
	return t, nil
}

// Valid checks the wire format without resolving a zone.
func (p Proposal) Valid() bool {
	if _, err := p.Starts(); err != nil {
		return false
	}
	_, err := time.Parse("15:04", p.EndTime)
	return err == nil
}

type RescheduleStatus string

const (
	ReschedulePending   RescheduleStatus = "pending"
	RescheduleAccepted  RescheduleStatus = "accepted"
	RescheduleRejected  RescheduleStatus = "rejected"
	RescheduleCountered RescheduleStatus = "countered"
	RescheduleExpired   RescheduleStatus = "expired"
)

// Terminal reports whether the negotiation is closed. A countered request
// is still actionable; "countered" exists for display only.
func (s RescheduleStatus) Terminal() bool {
	switch s {
	case RescheduleAccepted, RescheduleRejected, RescheduleExpired:
		return true
	}
	return false
}

// RescheduleRequest tracks one negotiation over a session's date/time.
// OldProposal is frozen at creation so clients can always show what the
// parties are deviating from. CurrentProposal is the standing offer.
type RescheduleRequest struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	InitiatedBy     UserID           `json:"initiated_by"`
	Counterparty    UserID           `json:"counterparty"`
	OldProposal     Proposal         `json:"old_proposal"`
	CurrentProposal Proposal         `json:"current_proposal"`
	CounterProposal *Proposal        `json:"counter_proposal,omitempty"`
	Status          RescheduleStatus `json:"status"`
	LastActionBy    UserID           `json:"last_action_by"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// OtherParty returns the negotiation party opposite to the given one.
func (r *RescheduleRequest) OtherParty(u UserID) UserID {
	if u == r.InitiatedBy {
		return r.Counterparty
	}
	return r.InitiatedBy
}

// IsParty reports whether the user belongs to this negotiation.
func (r *RescheduleRequest) IsParty(u UserID) bool {
	return u == r.InitiatedBy || u == r.Counterparty
}
