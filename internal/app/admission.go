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

// ReasonHostUnavailable marks auto-rejections issued when a hosted room
// loses its host with nobody left to promote.
const ReasonHostUnavailable = "HostUnavailable"

// CallAdmissionController owns the waiting room for hosted video rooms.
// Admission is funneled through a single authority, the current host, and
// degrades gracefully when that authority disappears mid-decision.
type CallAdmissionController struct {
	mu            sync.Mutex
	byID          map[string]*domain.JoinRequest
	pendingByRoom map[domain.RoomID]map[domain.UserID]string
	rooms         *RoomManager
	notify        *NotificationDispatcher
	idGen         func() string
	now           func() time.Time
}

func NewCallAdmissionController(rooms *RoomManager, notify *NotificationDispatcher, idGen func() string, now func() time.Time) *CallAdmissionController {
	if idGen == nil {
		idGen = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &CallAdmissionController{
		byID:          make(map[string]*domain.JoinRequest),
		pendingByRoom: make(map[domain.RoomID]map[domain.UserID]string),
		rooms:         rooms,
		notify:        notify,
		idGen:         idGen,
		now:           now,
	}
}

// RequestJoin files a pending request to enter a hosted video room and
// alerts the current host. At most one pending request per
// (room, requester) pair.
func (c *CallAdmissionController) RequestJoin(ctx context.Context, roomID domain.RoomID, requester domain.Participant) (domain.JoinRequest, error) {
	// Both room checks run under c.mu so a host leaving concurrently
	// cannot slip between the check and the insert: the host-loss
	// cascade serializes behind us and sees the new request.
	c.mu.Lock()
	if c.rooms.IsMember(roomID, domain.RoomVideo, requester.UserID) {
		c.mu.Unlock()
		return domain.JoinRequest{}, core.ErrAlreadyMember
	}
	host, hosted := c.rooms.HostOf(roomID)
	if !hosted {
		c.mu.Unlock()
		return domain.JoinRequest{}, core.ErrUnknownRoom
	}
	pending := c.pendingByRoom[roomID]
	if _, dup := pending[requester.UserID]; dup {
		c.mu.Unlock()
		return domain.JoinRequest{}, core.ErrDuplicateRequest
	}
	req := &domain.JoinRequest{
		ID:            c.idGen(),
		RoomID:        roomID,
		RequesterID:   requester.UserID,
		RequesterConn: requester.ConnectionID,
		RequesterName: requester.DisplayName,
		RequestedAt:   c.now(),
		Status:        domain.JoinPending,
	}
	c.byID[req.ID] = req
	if pending == nil {
		pending = make(map[domain.UserID]string)
		c.pendingByRoom[roomID] = pending
	}
	pending[requester.UserID] = req.ID
	snapshot := *req
	c.mu.Unlock()

	log.Info().Str("module", "app.admission").Str("room", string(roomID)).Str("requester", string(requester.UserID)).Str("request", req.ID).Msg("join requested")
	c.notifyHost(ctx, host, snapshot)
	return snapshot, nil
}

// Decide resolves a pending request. Only the room's current host may
// decide. Approval joins the requester into the room and announces the
// new membership; rejection leaves the room unaffected.
func (c *CallAdmissionController) Decide(ctx context.Context, requestID string, decider domain.UserID, approve bool, reason string) (domain.JoinRequest, error) {
	c.mu.Lock()
	req, ok := c.byID[requestID]
	if !ok {
		c.mu.Unlock()
		return domain.JoinRequest{}, core.ErrUnknownRequest
	}
	if req.Status.Terminal() {
		c.mu.Unlock()
		return domain.JoinRequest{}, core.ErrAlreadyDecided
	}
	host, hosted := c.rooms.HostOf(req.RoomID)
	if !hosted || host != decider {
		c.mu.Unlock()
		return domain.JoinRequest{}, core.ErrNotHost
	}
	if approve {
		req.Status = domain.JoinApproved
	} else {
		req.Status = domain.JoinRejected
	}
	c.removePendingLocked(req)
	snapshot := *req
	c.mu.Unlock()

	if !approve {
		log.Info().Str("module", "app.admission").Str("request", requestID).Str("reason", reason).Msg("join rejected")
		c.notify.DeliverOrQueue(ctx, snapshot.RequesterID, EventRejected, struct {
			Type   string        `json:"type"`
			Room   domain.RoomID `json:"room"`
			Reason string        `json:"reason,omitempty"`
		}{Type: EventRejected, Room: snapshot.RoomID, Reason: reason})
		return snapshot, nil
	}

	view := c.rooms.Join(snapshot.RoomID, domain.RoomVideo, domain.Participant{
		UserID:       snapshot.RequesterID,
		ConnectionID: snapshot.RequesterConn,
		DisplayName:  snapshot.RequesterName,
	})
	log.Info().Str("module", "app.admission").Str("request", requestID).Str("user", string(snapshot.RequesterID)).Msg("join approved")
	c.notify.DeliverOrQueue(ctx, snapshot.RequesterID, EventAdmitted, struct {
		Type string        `json:"type"`
		Room domain.RoomID `json:"room"`
	}{Type: EventAdmitted, Room: snapshot.RoomID})
	c.broadcastView(view)
	return snapshot, nil
}

// WithdrawConn marks the connection's pending requests withdrawn; invoked
// on disconnect before a decision lands. Hosts are told the ask is gone.
func (c *CallAdmissionController) WithdrawConn(ctx context.Context, connID domain.ConnectionID) []domain.JoinRequest {
	c.mu.Lock()
	// Only pending requests can be withdrawn, so walk the pending index
	// rather than every request ever filed.
	var matched []*domain.JoinRequest
	for _, pending := range c.pendingByRoom {
		for _, reqID := range pending {
			if req, ok := c.byID[reqID]; ok && req.RequesterConn == connID {
				matched = append(matched, req)
			}
		}
	}
	var withdrawn []domain.JoinRequest
	for _, req := range matched {
		req.Status = domain.JoinWithdrawn
		c.removePendingLocked(req)
		withdrawn = append(withdrawn, *req)
	}
	c.mu.Unlock()

	for _, req := range withdrawn {
		log.Info().Str("module", "app.admission").Str("request", req.ID).Msg("join withdrawn")
		if host, hosted := c.rooms.HostOf(req.RoomID); hosted {
			c.notify.DeliverOrQueue(ctx, host, EventWithdrawn, struct {
				Type    string        `json:"type"`
				Request string        `json:"request"`
				Room    domain.RoomID `json:"room"`
			}{Type: EventWithdrawn, Request: req.ID, Room: req.RoomID})
		}
	}
	return withdrawn
}

// OnHostChange runs the host-loss cascade for a room. A promoted host
// inherits the pending queue and is re-notified of each request; if no
// host remains, every pending request is auto-rejected with
// ReasonHostUnavailable. Promotion must be attempted before calling with
// an empty newHost. A room that dies takes its request history with it.
func (c *CallAdmissionController) OnHostChange(ctx context.Context, roomID domain.RoomID, newHost domain.UserID) {
	c.mu.Lock()
	ids := c.pendingByRoom[roomID]
	pending := make([]domain.JoinRequest, 0, len(ids))
	for _, reqID := range ids {
		if req, ok := c.byID[reqID]; ok && !req.Status.Terminal() {
			if newHost == "" {
				req.Status = domain.JoinRejected
			}
			pending = append(pending, *req)
		}
	}
	if newHost == "" {
		delete(c.pendingByRoom, roomID)
		c.pruneRoomLocked(roomID)
	}
	c.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	if newHost != "" {
		log.Info().Str("module", "app.admission").Str("room", string(roomID)).Str("host", string(newHost)).Int("pending", len(pending)).Msg("pending queue inherited")
		for _, req := range pending {
			c.notifyHost(ctx, newHost, req)
		}
		return
	}
	log.Info().Str("module", "app.admission").Str("room", string(roomID)).Int("pending", len(pending)).Msg("host lost, auto-rejecting pending")
	for _, req := range pending {
		c.notify.DeliverOrQueue(ctx, req.RequesterID, EventRejected, struct {
			Type   string        `json:"type"`
			Room   domain.RoomID `json:"room"`
			Reason string        `json:"reason"`
		}{Type: EventRejected, Room: req.RoomID, Reason: ReasonHostUnavailable})
	}
}

// PendingFor returns the room's pending queue.
func (c *CallAdmissionController) PendingFor(roomID domain.RoomID) []domain.JoinRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.JoinRequest, 0, len(c.pendingByRoom[roomID]))
	for _, reqID := range c.pendingByRoom[roomID] {
		if req, ok := c.byID[reqID]; ok {
			out = append(out, *req)
		}
	}
	return out
}

// Get returns a request snapshot.
func (c *CallAdmissionController) Get(requestID string) (domain.JoinRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.byID[requestID]
	if !ok {
		return domain.JoinRequest{}, false
	}
	return *req, true
}

// pruneRoomLocked drops the room's terminal requests. Decided requests
// are kept while the room lives so repeat decisions report
// ErrAlreadyDecided, but a dead room keeps nothing.
func (c *CallAdmissionController) pruneRoomLocked(roomID domain.RoomID) {
	for id, req := range c.byID {
		if req.RoomID == roomID && req.Status.Terminal() {
			delete(c.byID, id)
		}
	}
}

func (c *CallAdmissionController) removePendingLocked(req *domain.JoinRequest) {
	if pending, ok := c.pendingByRoom[req.RoomID]; ok {
		delete(pending, req.RequesterID)
		if len(pending) == 0 {
			delete(c.pendingByRoom, req.RoomID)
		}
	}
}

func (c *CallAdmissionController) notifyHost(ctx context.Context, host domain.UserID, req domain.JoinRequest) {
	c.notify.DeliverOrQueue(ctx, host, EventJoinRequested, struct {
		Type    string        `json:"type"`
		Request string        `json:"request"`
		Room    domain.RoomID `json:"room"`
		User    domain.UserID `json:"user"`
		Name    string        `json:"name"`
	}{Type: EventJoinRequested, Request: req.ID, Room: req.RoomID, User: req.RequesterID, Name: req.RequesterName})
}

func (c *CallAdmissionController) broadcastView(view RoomView) {
	ev, err := core.NewEvent(EventMemberUpdate, c.now(), struct {
		Type string `json:"type"`
		RoomView
	}{Type: EventMemberUpdate, RoomView: view})
	if err != nil {
		log.Error().Err(err).Str("module", "app.admission").Msg("encode member update")
		return
	}
	c.rooms.Broadcast(view.Room.ID, view.Room.Kind, ev.Body)
}
