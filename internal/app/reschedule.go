package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

// rescheduleUpdatePayload is the reschedule.updated wire shape sent to
// both negotiation parties.
type rescheduleUpdatePayload struct {
	Type        string                   `json:"type"`
	Request     domain.RescheduleRequest `json:"request"`
	ApplyFailed bool                     `json:"apply_failed,omitempty"`
}

// terminalRetention bounds how long a closed negotiation stays queryable
// before the sweep drops it.
const terminalRetention = 24 * time.Hour

// RescheduleNegotiator runs the proposal/counter-proposal state machine
// for moving a session's date/time. One mutex serializes all commands, so
// concurrent accepts/counters on a stale view resolve to "first command
// wins, the other sees NotYourTurn or RequestNotOpen". At most one
// non-terminal request exists per session. Closed requests are kept for
// terminalRetention, or until the session opens a fresh negotiation.
type RescheduleNegotiator struct {
	mu              sync.Mutex
	byID            map[string]*domain.RescheduleRequest
	openBySession   map[string]string
	closedBySession map[string][]string
	sessions        core.SessionStore
	notify          *NotificationDispatcher
	idGen           func() string
	now             func() time.Time
}

func NewRescheduleNegotiator(sessions core.SessionStore, notify *NotificationDispatcher, idGen func() string, now func() time.Time) *RescheduleNegotiator {
	if idGen == nil {
		idGen = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &RescheduleNegotiator{
		byID:            make(map[string]*domain.RescheduleRequest),
		openBySession:   make(map[string]string),
		closedBySession: make(map[string][]string),
		sessions:        sessions,
		notify:          notify,
		idGen:           idGen,
		now:             now,
	}
}

// Propose opens a negotiation. The session's current schedule is frozen
// as OldProposal so clients can always show what the parties deviate
// from; the counterparty is alerted.
func (n *RescheduleNegotiator) Propose(ctx context.Context, sessionID string, initiatedBy domain.UserID, p domain.Proposal) (domain.RescheduleRequest, error) {
	if !p.Valid() {
		return domain.RescheduleRequest{}, core.ErrInvalidProposal
	}
	rec, err := n.sessions.GetSchedule(ctx, sessionID)
	if err != nil {
		return domain.RescheduleRequest{}, err
	}
	if !rec.IsParty(initiatedBy) {
		return domain.RescheduleRequest{}, core.ErrNotParty
	}

	n.mu.Lock()
	if _, open := n.openBySession[sessionID]; open {
		n.mu.Unlock()
		return domain.RescheduleRequest{}, core.ErrRequestAlreadyOpen
	}
	// A fresh negotiation supersedes the session's closed history.
	for _, staleID := range n.closedBySession[sessionID] {
		delete(n.byID, staleID)
	}
	delete(n.closedBySession, sessionID)
	counterparty := rec.MentorID
	if initiatedBy == rec.MentorID {
		counterparty = rec.MenteeID
	}
	created := n.now()
	req := &domain.RescheduleRequest{
		ID:              n.idGen(),
		SessionID:       sessionID,
		InitiatedBy:     initiatedBy,
		Counterparty:    counterparty,
		OldProposal:     rec.Schedule,
		CurrentProposal: p,
		Status:          domain.ReschedulePending,
		LastActionBy:    initiatedBy,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	n.byID[req.ID] = req
	n.openBySession[sessionID] = req.ID
	snapshot := *req
	n.mu.Unlock()

	log.Info().Str("module", "app.reschedule").Str("session", sessionID).Str("request", snapshot.ID).Str("by", string(initiatedBy)).Msg("reschedule proposed")
	n.sendUpdate(ctx, snapshot, false, counterparty)
	return snapshot, nil
}

// Counter makes the rebuttal the new standing offer and flips whose turn
// it is. The request stays actionable; "countered" is a display status.
func (n *RescheduleNegotiator) Counter(ctx context.Context, requestID string, actor domain.UserID, counter domain.Proposal) (domain.RescheduleRequest, error) {
	if !counter.Valid() {
		return domain.RescheduleRequest{}, core.ErrInvalidProposal
	}
	n.mu.Lock()
	req, err := n.actionableLocked(requestID, actor)
	if err != nil {
		n.mu.Unlock()
		return domain.RescheduleRequest{}, err
	}
	cp := counter
	req.CounterProposal = &cp
	req.CurrentProposal = counter
	req.LastActionBy = actor
	req.Status = domain.RescheduleCountered
	req.UpdatedAt = n.now()
	snapshot := *req
	n.mu.Unlock()

	log.Info().Str("module", "app.reschedule").Str("request", requestID).Str("by", string(actor)).Msg("reschedule countered")
	n.sendUpdate(ctx, snapshot, false, snapshot.OtherParty(actor))
	return snapshot, nil
}

// Accept closes the negotiation and instructs the session collaborator to
// overwrite the schedule with the standing offer. An apply failure is
// reported but never rolls back the committed transition.
func (n *RescheduleNegotiator) Accept(ctx context.Context, requestID string, actor domain.UserID) (domain.RescheduleRequest, error) {
	n.mu.Lock()
	req, err := n.actionableLocked(requestID, actor)
	if err != nil {
		n.mu.Unlock()
		return domain.RescheduleRequest{}, err
	}
	req.LastActionBy = actor
	n.closeLocked(req, domain.RescheduleAccepted)
	snapshot := *req
	n.mu.Unlock()

	applyFailed := false
	if err := n.sessions.ApplySchedule(ctx, snapshot.SessionID, snapshot.CurrentProposal); err != nil {
		applyFailed = true
		log.Error().Err(err).Str("module", "app.reschedule").Str("session", snapshot.SessionID).Str("request", requestID).Msg("apply schedule failed")
	}
	log.Info().Str("module", "app.reschedule").Str("request", requestID).Str("by", string(actor)).Msg("reschedule accepted")
	n.sendUpdate(ctx, snapshot, applyFailed, snapshot.InitiatedBy, snapshot.Counterparty)
	return snapshot, nil
}

// Reject closes the negotiation without touching the session's schedule.
func (n *RescheduleNegotiator) Reject(ctx context.Context, requestID string, actor domain.UserID) (domain.RescheduleRequest, error) {
	n.mu.Lock()
	req, err := n.actionableLocked(requestID, actor)
	if err != nil {
		n.mu.Unlock()
		return domain.RescheduleRequest{}, err
	}
	req.LastActionBy = actor
	n.closeLocked(req, domain.RescheduleRejected)
	snapshot := *req
	n.mu.Unlock()

	log.Info().Str("module", "app.reschedule").Str("request", requestID).Str("by", string(actor)).Msg("reschedule rejected")
	n.sendUpdate(ctx, snapshot, false, snapshot.InitiatedBy, snapshot.Counterparty)
	return snapshot, nil
}

// Expire terminates a still-open negotiation on an external timeout
// signal. No schedule mutation.
func (n *RescheduleNegotiator) Expire(ctx context.Context, requestID string) (domain.RescheduleRequest, error) {
	n.mu.Lock()
	req, ok := n.byID[requestID]
	if !ok {
		n.mu.Unlock()
		return domain.RescheduleRequest{}, core.ErrUnknownRequest
	}
	if req.Status.Terminal() {
		n.mu.Unlock()
		return domain.RescheduleRequest{}, core.ErrRequestNotOpen
	}
	n.closeLocked(req, domain.RescheduleExpired)
	snapshot := *req
	n.mu.Unlock()

	log.Info().Str("module", "app.reschedule").Str("request", requestID).Msg("reschedule expired")
	n.sendUpdate(ctx, snapshot, false, snapshot.InitiatedBy, snapshot.Counterparty)
	return snapshot, nil
}

// ExpireOverdue expires every open negotiation whose original session
// start has passed, and drops closed requests older than the retention
// window. Driven by an external ticker; returns how many requests it
// closed.
func (n *RescheduleNegotiator) ExpireOverdue(ctx context.Context) int {
	cutoff := n.now()
	n.mu.Lock()
	n.pruneClosedLocked(cutoff.Add(-terminalRetention))
	var overdue []string
	for _, reqID := range n.openBySession {
		req := n.byID[reqID]
		starts, err := req.OldProposal.Starts()
		if err != nil {
			continue
		}
		if starts.Before(cutoff) {
			overdue = append(overdue, reqID)
		}
	}
	n.mu.Unlock()

	for _, reqID := range overdue {
		if _, err := n.Expire(ctx, reqID); err != nil {
			log.Debug().Err(err).Str("module", "app.reschedule").Str("request", reqID).Msg("sweep race")
		}
	}
	return len(overdue)
}

// Get returns a request snapshot.
func (n *RescheduleNegotiator) Get(requestID string) (domain.RescheduleRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	req, ok := n.byID[requestID]
	if !ok {
		return domain.RescheduleRequest{}, false
	}
	return *req, true
}

// OpenForSession returns the session's non-terminal request, if any.
func (n *RescheduleNegotiator) OpenForSession(sessionID string) (domain.RescheduleRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	reqID, ok := n.openBySession[sessionID]
	if !ok {
		return domain.RescheduleRequest{}, false
	}
	return *n.byID[reqID], true
}

// closeLocked moves a request to a terminal status and files it in the
// bounded closed history.
func (n *RescheduleNegotiator) closeLocked(req *domain.RescheduleRequest, status domain.RescheduleStatus) {
	req.Status = status
	req.UpdatedAt = n.now()
	delete(n.openBySession, req.SessionID)
	n.closedBySession[req.SessionID] = append(n.closedBySession[req.SessionID], req.ID)
}

// pruneClosedLocked drops closed requests whose last update predates the
// retention cutoff.
func (n *RescheduleNegotiator) pruneClosedLocked(cutoff time.Time) {
	for sessionID, ids := range n.closedBySession {
		kept := ids[:0]
		for _, id := range ids {
			req, ok := n.byID[id]
			if !ok {
				continue
			}
			if req.UpdatedAt.Before(cutoff) {
				delete(n.byID, id)
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(n.closedBySession, sessionID)
		} else {
			n.closedBySession[sessionID] = kept
		}
	}
}

// actionableLocked runs the shared guards: the request must exist, be
// non-terminal, involve the actor, and it must be the actor's turn. A
// party cannot act on their own still-open offer.
func (n *RescheduleNegotiator) actionableLocked(requestID string, actor domain.UserID) (*domain.RescheduleRequest, error) {
	req, ok := n.byID[requestID]
	if !ok {
		return nil, core.ErrUnknownRequest
	}
	if req.Status.Terminal() {
		return nil, core.ErrRequestNotOpen
	}
	if !req.IsParty(actor) {
		return nil, core.ErrNotParty
	}
	if req.LastActionBy == actor {
		return nil, core.ErrNotYourTurn
	}
	return req, nil
}

func (n *RescheduleNegotiator) sendUpdate(ctx context.Context, req domain.RescheduleRequest, applyFailed bool, to ...domain.UserID) {
	payload := rescheduleUpdatePayload{Type: EventRescheduleUpdate, Request: req, ApplyFailed: applyFailed}
	for _, user := range to {
		n.notify.DeliverOrQueue(ctx, user, EventRescheduleUpdate, payload)
	}
}
