package app

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

type connEntry struct {
	user        domain.UserID
	conn        core.SignalConnection
	established time.Time
}

// PresenceRegistry indexes live connections by user. It is the source of
// truth for "is user X online" and the only holder of transport refs;
// a user is online iff it has at least one attached connection.
type PresenceRegistry struct {
	mu     sync.RWMutex
	conns  map[domain.ConnectionID]*connEntry
	byUser map[domain.UserID]map[domain.ConnectionID]struct{}
	now    func() time.Time
}

func NewPresenceRegistry(now func() time.Time) *PresenceRegistry {
	if now == nil {
		now = time.Now
	}
	return &PresenceRegistry{
		conns:  make(map[domain.ConnectionID]*connEntry),
		byUser: make(map[domain.UserID]map[domain.ConnectionID]struct{}),
		now:    now,
	}
}

// Attach records a connection. becameOnline is true only on the user's
// zero-to-one connection transition, so callers broadcast presence once
// per online transition rather than once per tab.
func (p *PresenceRegistry) Attach(userID domain.UserID, connID domain.ConnectionID, conn core.SignalConnection) (becameOnline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, had := p.byUser[userID]
	if !had {
		set = make(map[domain.ConnectionID]struct{})
		p.byUser[userID] = set
	}
	set[connID] = struct{}{}
	p.conns[connID] = &connEntry{user: userID, conn: conn, established: p.now()}
	log.Info().Str("module", "app.presence").Str("user", string(userID)).Str("conn", string(connID)).Bool("became_online", !had).Msg("attached connection")
	return !had
}

// Detach removes a connection. Unknown ids are a no-op: sockets can
// disconnect twice during reconnection storms.
func (p *PresenceRegistry) Detach(connID domain.ConnectionID) (userID domain.UserID, wentOffline, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.conns[connID]
	if !ok {
		return "", false, false
	}
	delete(p.conns, connID)
	userID = entry.user
	if set, had := p.byUser[userID]; had {
		delete(set, connID)
		if len(set) == 0 {
			delete(p.byUser, userID)
			wentOffline = true
		}
	}
	log.Info().Str("module", "app.presence").Str("user", string(userID)).Str("conn", string(connID)).Bool("went_offline", wentOffline).Msg("detached connection")
	return userID, wentOffline, true
}

func (p *PresenceRegistry) IsOnline(userID domain.UserID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser[userID]) > 0
}

// UserOf resolves which user owns a connection.
func (p *PresenceRegistry) UserOf(connID domain.ConnectionID) (domain.UserID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.conns[connID]
	if !ok {
		return "", false
	}
	return entry.user, true
}

// Conn returns the live transport for a connection, if any. Implements
// the sink the room manager fans out through.
func (p *PresenceRegistry) Conn(connID domain.ConnectionID) (core.SignalConnection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.conns[connID]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

// ConnectionsOf returns every live transport for a user (multiple tabs).
func (p *PresenceRegistry) ConnectionsOf(userID domain.UserID) []core.SignalConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	set := p.byUser[userID]
	out := make([]core.SignalConnection, 0, len(set))
	for id := range set {
		if entry, ok := p.conns[id]; ok {
			out = append(out, entry.conn)
		}
	}
	return out
}

// AllConnections returns every live transport, for presence broadcasts.
func (p *PresenceRegistry) AllConnections() []core.SignalConnection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]core.SignalConnection, 0, len(p.conns))
	for _, entry := range p.conns {
		out = append(out, entry.conn)
	}
	return out
}

// ConnectionsSnapshot returns the connection metadata for diagnostics
// views, sorted by establishment time.
func (p *PresenceRegistry) ConnectionsSnapshot() []domain.Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Connection, 0, len(p.conns))
	for id, entry := range p.conns {
		out = append(out, domain.Connection{
			ID:            id,
			UserID:        entry.user,
			EstablishedAt: entry.established,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EstablishedAt.Equal(out[j].EstablishedAt) {
			return out[i].EstablishedAt.Before(out[j].EstablishedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot recomputes the online user-id set, sorted for stable payloads.
func (p *PresenceRegistry) Snapshot() []domain.UserID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.UserID, 0, len(p.byUser))
	for id := range p.byUser {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
