package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

// fakeConn captures frames instead of writing to a socket.
type fakeConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	failSend bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("send failed")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

// events decodes every captured frame into a generic map.
func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) countType(t *testing.T, typ string) int {
	t.Helper()
	n := 0
	for _, ev := range c.events(t) {
		if ev["type"] == typ {
			n++
		}
	}
	return n
}

func (c *fakeConn) lastOfType(t *testing.T, typ string) map[string]any {
	t.Helper()
	var last map[string]any
	for _, ev := range c.events(t) {
		if ev["type"] == typ {
			last = ev
		}
	}
	return last
}

// sessionStoreStub is a hand-written SessionStore double.
type sessionStoreStub struct {
	rec      core.SessionRecord
	getErr   error
	applyErr error
	applied  *domain.Proposal
}

func (s *sessionStoreStub) GetSchedule(_ context.Context, sessionID string) (core.SessionRecord, error) {
	if s.getErr != nil {
		return core.SessionRecord{}, s.getErr
	}
	if s.rec.SessionID != sessionID {
		return core.SessionRecord{}, core.ErrUnknownSession
	}
	return s.rec, nil
}

func (s *sessionStoreStub) ApplySchedule(_ context.Context, _ string, p domain.Proposal) error {
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = &p
	return nil
}

func testClock() func() time.Time {
	at := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func seqIDGen(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// fixture wires the full component graph around fakes.
type fixture struct {
	presence   *PresenceRegistry
	rooms      *RoomManager
	notify     *NotificationDispatcher
	admission  *CallAdmissionController
	negotiator *RescheduleNegotiator
	coord      *Coordinator
	queued     *core.MemoryNotificationStore
	sessions   *sessionStoreStub
}

func newFixture(rec core.SessionRecord) *fixture {
	clock := testClock()
	queued := core.NewMemoryNotificationStore()
	sessions := &sessionStoreStub{rec: rec}
	presence := NewPresenceRegistry(clock)
	rooms := NewRoomManager(presence)
	notify := NewNotificationDispatcher(presence, queued, clock)
	admission := NewCallAdmissionController(rooms, notify, seqIDGen("jr"), clock)
	negotiator := NewRescheduleNegotiator(sessions, notify, seqIDGen("rr"), clock)
	coord := NewCoordinator(presence, rooms, admission, negotiator, notify, clock)
	return &fixture{
		presence:   presence,
		rooms:      rooms,
		notify:     notify,
		admission:  admission,
		negotiator: negotiator,
		coord:      coord,
		queued:     queued,
		sessions:   sessions,
	}
}

// connect attaches a fresh fake connection for the user.
func (f *fixture) connect(user domain.UserID, conn domain.ConnectionID) *fakeConn {
	c := &fakeConn{}
	f.coord.Connect(user, conn, c)
	return c
}

func participant(user domain.UserID, conn domain.ConnectionID, name string) domain.Participant {
	return domain.Participant{UserID: user, ConnectionID: conn, DisplayName: name}
}
