package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

// ConnSink resolves a connection id to its live transport. Satisfied by
// PresenceRegistry; fan-out silently skips connections the sink no longer
// knows (disconnect races are expected, not exceptional).
type ConnSink interface {
	Conn(domain.ConnectionID) (core.SignalConnection, bool)
}

type roomKey struct {
	id   domain.RoomID
	kind domain.RoomKind
}

type memberEntry struct {
	p   domain.Participant
	seq uint64
}

type roomState struct {
	key     roomKey
	host    domain.UserID
	nextSeq uint64
	members map[domain.UserID]*memberEntry
}

// RoomView is the read-only membership snapshot broadcast to clients.
type RoomView struct {
	Room    domain.Room          `json:"room"`
	Members []domain.Participant `json:"members"`
	Host    domain.UserID        `json:"host,omitempty"`
}

// HostChange records a host promotion ("" means the room lost its host
// with nobody left to promote).
type HostChange struct {
	Room    domain.RoomID `json:"room"`
	NewHost domain.UserID `json:"new_host,omitempty"`
}

// LeaveResult reports what a leave did so the caller can broadcast and
// run the admission cascade.
type LeaveResult struct {
	Left       bool
	User       domain.UserID
	Room       domain.Room
	Deleted    bool
	HostChange *HostChange
	View       RoomView
}

type RoomInfo struct {
	Room        domain.Room `json:"room"`
	MemberCount int         `json:"member_count"`
}

// RoomManager owns ephemeral room membership. Rooms are created on first
// join and deleted when membership becomes empty. A video room has at
// most one host; chat rooms have no host concept.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[roomKey]*roomState
	sink  ConnSink
}

func NewRoomManager(sink ConnSink) *RoomManager {
	return &RoomManager{
		rooms: make(map[roomKey]*roomState),
		sink:  sink,
	}
}

// Join adds a participant, creating the room if needed. Idempotent by
// user id: a duplicate join replaces the member's connection reference
// instead of creating a second entry. The first joiner of a video room
// becomes its host.
func (m *RoomManager) Join(roomID domain.RoomID, kind domain.RoomKind, p domain.Participant) RoomView {
	key := roomKey{id: roomID, kind: kind}
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[key]
	if !ok {
		room = &roomState{key: key, members: make(map[domain.UserID]*memberEntry)}
		m.rooms[key] = room
		log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("kind", string(kind)).Msg("room created")
	}
	if existing, dup := room.members[p.UserID]; dup {
		existing.p.ConnectionID = p.ConnectionID
		existing.p.DisplayName = p.DisplayName
		existing.p.AvatarRef = p.AvatarRef
	} else {
		p.Role = domain.RoleGuest
		room.members[p.UserID] = &memberEntry{p: p, seq: room.nextSeq}
		room.nextSeq++
	}
	if kind == domain.RoomVideo && room.host == "" {
		room.host = p.UserID
		room.members[p.UserID].p.Role = domain.RoleHost
		log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("host", string(p.UserID)).Msg("host assigned")
	}
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("user", string(p.UserID)).Msg("member joined")
	return room.viewLocked()
}

// Leave removes the participant owning connID. The last member out
// deletes the room; a departing video host triggers deterministic
// promotion of the earliest-joined remaining member.
func (m *RoomManager) Leave(roomID domain.RoomID, kind domain.RoomKind, connID domain.ConnectionID) LeaveResult {
	key := roomKey{id: roomID, kind: kind}
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[key]
	if !ok {
		return LeaveResult{}
	}
	return m.leaveLocked(room, connID)
}

// LeaveAll removes the connection from every room it occupies; used on
// disconnect.
func (m *RoomManager) LeaveAll(connID domain.ConnectionID) []LeaveResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LeaveResult
	for _, room := range m.rooms {
		if res := m.leaveLocked(room, connID); res.Left {
			out = append(out, res)
		}
	}
	return out
}

func (m *RoomManager) leaveLocked(room *roomState, connID domain.ConnectionID) LeaveResult {
	var leaving domain.UserID
	found := false
	for uid, entry := range room.members {
		if entry.p.ConnectionID == connID {
			leaving, found = uid, true
			break
		}
	}
	if !found {
		return LeaveResult{}
	}
	delete(room.members, leaving)
	res := LeaveResult{
		Left: true,
		User: leaving,
		Room: domain.Room{ID: room.key.id, Kind: room.key.kind},
	}
	if len(room.members) == 0 {
		delete(m.rooms, room.key)
		res.Deleted = true
		log.Info().Str("module", "app.rooms").Str("room", string(room.key.id)).Msg("room deleted")
		return res
	}
	if room.key.kind == domain.RoomVideo && room.host == leaving {
		promoted := room.promoteLocked()
		res.HostChange = &HostChange{Room: room.key.id, NewHost: promoted}
	}
	res.View = room.viewLocked()
	log.Info().Str("module", "app.rooms").Str("room", string(room.key.id)).Str("user", string(leaving)).Msg("member left")
	return res
}

// promoteLocked hands the host role to the earliest-joined remaining
// member. Callers hold the manager lock and know members is non-empty.
func (r *roomState) promoteLocked() domain.UserID {
	var next *memberEntry
	for _, entry := range r.members {
		if next == nil || entry.seq < next.seq {
			next = entry
		}
	}
	r.host = next.p.UserID
	next.p.Role = domain.RoleHost
	log.Info().Str("module", "app.rooms").Str("room", string(r.key.id)).Str("host", string(r.host)).Msg("host promoted")
	return r.host
}

func (r *roomState) viewLocked() RoomView {
	entries := make([]*memberEntry, 0, len(r.members))
	for _, e := range r.members {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	members := make([]domain.Participant, 0, len(entries))
	for _, e := range entries {
		members = append(members, e.p)
	}
	return RoomView{
		Room:    domain.Room{ID: r.key.id, Kind: r.key.kind},
		Members: members,
		Host:    r.host,
	}
}

// MembersOf returns the participant snapshot in join order.
func (m *RoomManager) MembersOf(roomID domain.RoomID, kind domain.RoomKind) []domain.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomKey{id: roomID, kind: kind}]
	if !ok {
		return nil
	}
	return room.viewLocked().Members
}

func (m *RoomManager) View(roomID domain.RoomID, kind domain.RoomKind) (RoomView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomKey{id: roomID, kind: kind}]
	if !ok {
		return RoomView{}, false
	}
	return room.viewLocked(), true
}

// HostOf reports the current host of a video room.
func (m *RoomManager) HostOf(roomID domain.RoomID) (domain.UserID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomKey{id: roomID, kind: domain.RoomVideo}]
	if !ok || room.host == "" {
		return "", false
	}
	return room.host, true
}

func (m *RoomManager) IsMember(roomID domain.RoomID, kind domain.RoomKind, userID domain.UserID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomKey{id: roomID, kind: kind}]
	if !ok {
		return false
	}
	_, member := room.members[userID]
	return member
}

// Broadcast fans a frame to every member's live connection, skipping
// members whose connection is no longer in the sink.
func (m *RoomManager) Broadcast(roomID domain.RoomID, kind domain.RoomKind, frame core.Frame) (sent, skipped int) {
	m.mu.RLock()
	room, ok := m.rooms[roomKey{id: roomID, kind: kind}]
	if !ok {
		m.mu.RUnlock()
		return 0, 0
	}
	connIDs := make([]domain.ConnectionID, 0, len(room.members))
	for _, entry := range room.members {
		connIDs = append(connIDs, entry.p.ConnectionID)
	}
	m.mu.RUnlock()

	for _, id := range connIDs {
		conn, live := m.sink.Conn(id)
		if !live {
			skipped++
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			skipped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.rooms").Str("room", string(roomID)).Int("sent", sent).Int("skipped", skipped).Msg("broadcast result")
	return sent, skipped
}

// Rooms lists current rooms for read-only views.
func (m *RoomManager) Rooms() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for key, room := range m.rooms {
		out = append(out, RoomInfo{
			Room:        domain.Room{ID: key.id, Kind: key.kind},
			MemberCount: len(room.members),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Room.ID != out[j].Room.ID {
			return out[i].Room.ID < out[j].Room.ID
		}
		return out[i].Room.Kind < out[j].Room.Kind
	})
	return out
}
