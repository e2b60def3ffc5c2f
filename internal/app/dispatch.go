package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

// Outbound event types. Payload shapes are the wire contract.
const (
	EventPresenceSnapshot = "presence.snapshot"
	EventMemberUpdate     = "room.memberUpdate"
	EventHostChanged      = "room.hostChanged"
	EventJoinRequested    = "call.joinRequested"
	EventAdmitted         = "call.admitted"
	EventRejected         = "call.rejected"
	EventWithdrawn        = "call.withdrawn"
	EventRescheduleUpdate = "reschedule.updated"
	EventNotifyPush       = "notify.push"
)

// NotificationDispatcher routes an event to a user's live connections, or
// hands it to the external notification store when the user is offline.
// Pure routing: no state of its own, delivery is fire-and-forget and a
// send failure never rolls anything back.
type NotificationDispatcher struct {
	presence *PresenceRegistry
	store    core.NotificationStore
	now      func() time.Time
}

func NewNotificationDispatcher(presence *PresenceRegistry, store core.NotificationStore, now func() time.Time) *NotificationDispatcher {
	if now == nil {
		now = time.Now
	}
	return &NotificationDispatcher{presence: presence, store: store, now: now}
}

// DeliverOrQueue pushes the event over every live connection of the user,
// or queues it with the notification store if the user is offline.
// v must carry its own "type" field matching typ.
func (d *NotificationDispatcher) DeliverOrQueue(ctx context.Context, userID domain.UserID, typ string, v any) {
	ev, err := core.NewEvent(typ, d.now(), v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatch").Str("event", typ).Msg("encode event")
		return
	}
	conns := d.presence.ConnectionsOf(userID)
	if len(conns) == 0 {
		if err := d.store.Store(ctx, userID, ev); err != nil {
			log.Error().Err(err).Str("module", "app.dispatch").Str("user", string(userID)).Str("event", typ).Msg("queue offline notification")
		}
		return
	}
	for _, conn := range conns {
		if err := conn.TrySend(ev.Body); err != nil {
			// Slow or mid-disconnect socket; the transport owns retries.
			log.Debug().Err(err).Str("module", "app.dispatch").Str("user", string(userID)).Str("event", typ).Msg("dropped delivery")
		}
	}
}

// BroadcastPresence fans the online-user set to every live connection.
// Best effort: drops are silent.
func (d *NotificationDispatcher) BroadcastPresence(snapshot []domain.UserID) {
	payload := struct {
		Type  string          `json:"type"`
		Users []domain.UserID `json:"users"`
	}{Type: EventPresenceSnapshot, Users: snapshot}
	ev, err := core.NewEvent(EventPresenceSnapshot, d.now(), payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.dispatch").Msg("encode presence snapshot")
		return
	}
	for _, conn := range d.presence.AllConnections() {
		_ = conn.TrySend(ev.Body)
	}
	log.Debug().Str("module", "app.dispatch").Int("users", len(snapshot)).Msg("presence broadcast")
}

// Push delivers a generic user-facing notification.
func (d *NotificationDispatcher) Push(ctx context.Context, userID domain.UserID, title, message, link string) {
	payload := struct {
		Type    string `json:"type"`
		Title   string `json:"title"`
		Message string `json:"message"`
		Link    string `json:"link,omitempty"`
	}{Type: EventNotifyPush, Title: title, Message: message, Link: link}
	d.DeliverOrQueue(ctx, userID, EventNotifyPush, payload)
}
