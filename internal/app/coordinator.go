package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

// Coordinator owns the cross-component flows: the connect/disconnect
// cascades and room join/leave with their broadcasts. Adapters go through
// it instead of mutating the registries directly.
type Coordinator struct {
	Presence   *PresenceRegistry
	Rooms      *RoomManager
	Admission  *CallAdmissionController
	Reschedule *RescheduleNegotiator
	Notify     *NotificationDispatcher
	now        func() time.Time
}

func NewCoordinator(presence *PresenceRegistry, rooms *RoomManager, admission *CallAdmissionController, reschedule *RescheduleNegotiator, notify *NotificationDispatcher, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		Presence:   presence,
		Rooms:      rooms,
		Admission:  admission,
		Reschedule: reschedule,
		Notify:     notify,
		now:        now,
	}
}

// Connect attaches a connection. The presence list is broadcast to
// everyone only on the user's offline-to-online transition; additional
// tabs just receive the current snapshot themselves.
func (c *Coordinator) Connect(userID domain.UserID, connID domain.ConnectionID, conn core.SignalConnection) {
	becameOnline := c.Presence.Attach(userID, connID, conn)
	if becameOnline {
		c.Notify.BroadcastPresence(c.Presence.Snapshot())
		return
	}
	c.sendSnapshotTo(conn)
}

// Disconnect runs the drop cascade: withdraw pending join requests, leave
// every room (with host promotion or auto-rejection), detach presence,
// then broadcast the offline transition. A connection drop is a
// first-class event, not an error.
func (c *Coordinator) Disconnect(ctx context.Context, connID domain.ConnectionID) {
	c.Admission.WithdrawConn(ctx, connID)
	for _, res := range c.Rooms.LeaveAll(connID) {
		c.afterLeave(ctx, res)
	}
	userID, wentOffline, ok := c.Presence.Detach(connID)
	if !ok {
		return
	}
	if wentOffline {
		c.Notify.BroadcastPresence(c.Presence.Snapshot())
	}
	log.Info().Str("module", "app.coordinator").Str("user", string(userID)).Str("conn", string(connID)).Msg("disconnect cascade done")
}

// JoinRoom performs a direct join and announces the new membership. A
// video room that already has a host only admits strangers through the
// call admission flow.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID domain.RoomID, kind domain.RoomKind, p domain.Participant) (RoomView, error) {
	if kind == domain.RoomVideo {
		if _, hosted := c.Rooms.HostOf(roomID); hosted && !c.Rooms.IsMember(roomID, kind, p.UserID) {
			return RoomView{}, core.ErrAdmissionRequired
		}
	}
	view := c.Rooms.Join(roomID, kind, p)
	c.broadcastView(view)
	return view, nil
}

// LeaveRoom removes the connection's participant and runs the host-loss
// cascade if needed.
func (c *Coordinator) LeaveRoom(ctx context.Context, roomID domain.RoomID, kind domain.RoomKind, connID domain.ConnectionID) LeaveResult {
	res := c.Rooms.Leave(roomID, kind, connID)
	if res.Left {
		c.afterLeave(ctx, res)
	}
	return res
}

// afterLeave broadcasts membership/host changes and keeps the waiting
// room consistent. Promotion is announced before the admission cascade so
// an inherited queue is never wiped.
func (c *Coordinator) afterLeave(ctx context.Context, res LeaveResult) {
	if res.Deleted {
		if res.Room.Kind == domain.RoomVideo {
			c.Admission.OnHostChange(ctx, res.Room.ID, "")
		}
		return
	}
	c.broadcastView(res.View)
	if res.HostChange != nil {
		c.broadcastHostChange(res.Room, *res.HostChange)
		c.Admission.OnHostChange(ctx, res.Room.ID, res.HostChange.NewHost)
	}
}

func (c *Coordinator) broadcastView(view RoomView) {
	ev, err := core.NewEvent(EventMemberUpdate, c.now(), struct {
		Type string `json:"type"`
		RoomView
	}{Type: EventMemberUpdate, RoomView: view})
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode member update")
		return
	}
	c.Rooms.Broadcast(view.Room.ID, view.Room.Kind, ev.Body)
}

func (c *Coordinator) broadcastHostChange(room domain.Room, change HostChange) {
	ev, err := core.NewEvent(EventHostChanged, c.now(), struct {
		Type string `json:"type"`
		HostChange
	}{Type: EventHostChanged, HostChange: change})
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode host change")
		return
	}
	c.Rooms.Broadcast(room.ID, room.Kind, ev.Body)
}

func (c *Coordinator) sendSnapshotTo(conn core.SignalConnection) {
	snapshot := c.Presence.Snapshot()
	ev, err := core.NewEvent(EventPresenceSnapshot, c.now(), struct {
		Type  string          `json:"type"`
		Users []domain.UserID `json:"users"`
	}{Type: EventPresenceSnapshot, Users: snapshot})
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode presence snapshot")
		return
	}
	_ = conn.TrySend(ev.Body)
}
