package core

import "errors"

// Protocol violations: rejected locally, surfaced to the offending caller
// only, no state change.
var (
	ErrNotYourTurn        = errors.New("not_your_turn")
	ErrNotHost            = errors.New("not_host")
	ErrNotParty           = errors.New("not_party")
	ErrRequestAlreadyOpen = errors.New("request_already_open")
	ErrAlreadyDecided     = errors.New("already_decided")
	ErrDuplicateRequest   = errors.New("duplicate_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrInvalidProposal    = errors.New("invalid_proposal")
)

// Absence: benign no-ops or informative rejections.
var (
	ErrAlreadyMember     = errors.New("already_member")
	ErrRequestNotOpen    = errors.New("request_not_open")
	ErrUnknownRequest    = errors.New("unknown_request")
	ErrUnknownRoom       = errors.New("unknown_room")
	ErrUnknownSession    = errors.New("unknown_session")
	ErrAdmissionRequired = errors.New("admission_required")
)
