package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mentorgrid/live/internal/core"
	"github.com/mentorgrid/live/internal/domain"
)

func sessionFixture() core.SessionRecord {
	return core.SessionRecord{
		SessionID: "sess-1",
		MentorID:  "mentor",
		MenteeID:  "mentee",
		Schedule:  domain.Proposal{Date: "2025-04-25", StartTime: "09:00", EndTime: "10:00"},
	}
}

func mustPropose(t *testing.T, f *fixture, by domain.UserID, p domain.Proposal) domain.RescheduleRequest {
	t.Helper()
	req, err := f.negotiator.Propose(context.Background(), "sess-1", by, p)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return req
}

func TestProposeFreezesOldScheduleAndNotifiesCounterparty(t *testing.T) {
	f := newFixture(sessionFixture())
	menteeConn := f.connect("mentee", "c1")

	offer := domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00", Message: "later works better"}
	req := mustPropose(t, f, "mentor", offer)

	if req.OldProposal != sessionFixture().Schedule {
		t.Fatalf("OldProposal = %+v", req.OldProposal)
	}
	if req.CurrentProposal != offer || req.Status != domain.ReschedulePending || req.LastActionBy != "mentor" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if menteeConn.countType(t, EventRescheduleUpdate) != 1 {
		t.Fatal("counterparty not notified")
	}
}

func TestProposeQueuesForOfflineCounterparty(t *testing.T) {
	f := newFixture(sessionFixture())
	mustPropose(t, f, "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})

	queued := f.queued.Drain("mentee")
	if len(queued) != 1 || queued[0].Type != EventRescheduleUpdate {
		t.Fatalf("offline queue: %v", queued)
	}
}

func TestProposeRejectsWhenRequestAlreadyOpen(t *testing.T) {
	f := newFixture(sessionFixture())
	offer := domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"}
	req := mustPropose(t, f, "mentor", offer)

	if _, err := f.negotiator.Propose(context.Background(), "sess-1", "mentee", offer); !errors.Is(err, core.ErrRequestAlreadyOpen) {
		t.Fatalf("err = %v, want ErrRequestAlreadyOpen", err)
	}

	// A terminal request releases the slot.
	if _, err := f.negotiator.Reject(context.Background(), req.ID, "mentee"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := f.negotiator.Propose(context.Background(), "sess-1", "mentee", offer); err != nil {
		t.Fatalf("re-propose after terminal: %v", err)
	}
}

func TestProposeGuards(t *testing.T) {
	f := newFixture(sessionFixture())
	offer := domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"}

	if _, err := f.negotiator.Propose(context.Background(), "sess-1", "stranger", offer); !errors.Is(err, core.ErrNotParty) {
		t.Fatalf("err = %v, want ErrNotParty", err)
	}
	if _, err := f.negotiator.Propose(context.Background(), "missing", "mentor", offer); !errors.Is(err, core.ErrUnknownSession) {
		t.Fatalf("err = %v, want ErrUnknownSession", err)
	}
	if _, err := f.negotiator.Propose(context.Background(), "sess-1", "mentor", domain.Proposal{Date: "soon"}); !errors.Is(err, core.ErrInvalidProposal) {
		t.Fatalf("err = %v, want ErrInvalidProposal", err)
	}
}

func TestTurnGuardIsStatePreserving(t *testing.T) {
	f := newFixture(sessionFixture())
	offer := domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"}
	req := mustPropose(t, f, "mentor", offer)
	counter := domain.Proposal{Date: "2025-05-02", StartTime: "10:00", EndTime: "11:00"}

	cases := []struct {
		name string
		call func() error
	}{
		{"counter own offer", func() error {
			_, err := f.negotiator.Counter(context.Background(), req.ID, "mentor", counter)
			return err
		}},
		{"accept own offer", func() error {
			_, err := f.negotiator.Accept(context.Background(), req.ID, "mentor")
			return err
		}},
		{"reject own offer", func() error {
			_, err := f.negotiator.Reject(context.Background(), req.ID, "mentor")
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, core.ErrNotYourTurn) {
				t.Fatalf("err = %v, want ErrNotYourTurn", err)
			}
			got, _ := f.negotiator.Get(req.ID)
			if got.Status != domain.ReschedulePending || got.CurrentProposal != offer || got.LastActionBy != "mentor" {
				t.Fatalf("state changed by rejected command: %+v", got)
			}
		})
	}
}

func TestCounterFlipsTurnAndStandingOffer(t *testing.T) {
	f := newFixture(sessionFixture())
	offer := domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"}
	req := mustPropose(t, f, "mentor", offer)
	counter := domain.Proposal{Date: "2025-05-02", StartTime: "10:00", EndTime: "11:00"}

	got, err := f.negotiator.Counter(context.Background(), req.ID, "mentee", counter)
	if err != nil {
		t.Fatalf("counter: %v", err)
	}
	if got.CurrentProposal != counter || got.CounterProposal == nil || *got.CounterProposal != counter {
		t.Fatalf("standing offer not replaced: %+v", got)
	}
	if got.Status != domain.RescheduleCountered || got.LastActionBy != "mentee" {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.OldProposal != sessionFixture().Schedule {
		t.Fatal("OldProposal must stay frozen across counters")
	}
}

func TestRoundTripAcceptAppliesLastCounter(t *testing.T) {
	f := newFixture(sessionFixture())
	first := domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"}
	second := domain.Proposal{Date: "2025-05-02", StartTime: "10:00", EndTime: "11:00"}
	third := domain.Proposal{Date: "2025-05-03", StartTime: "16:00", EndTime: "17:00"}

	req := mustPropose(t, f, "mentor", first)
	if _, err := f.negotiator.Counter(context.Background(), req.ID, "mentee", second); err != nil {
		t.Fatalf("first counter: %v", err)
	}
	if _, err := f.negotiator.Counter(context.Background(), req.ID, "mentor", third); err != nil {
		t.Fatalf("second counter: %v", err)
	}
	got, err := f.negotiator.Accept(context.Background(), req.ID, "mentee")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != domain.RescheduleAccepted {
		t.Fatalf("status = %q", got.Status)
	}
	if f.sessions.applied == nil || *f.sessions.applied != third {
		t.Fatalf("applied schedule = %+v, want last counter", f.sessions.applied)
	}
	if got.OldProposal != sessionFixture().Schedule {
		t.Fatal("OldProposal changed during negotiation")
	}
}

func TestAcceptAppliesCounterVerbatim(t *testing.T) {
	// A proposes, B counters, A accepts: the applied schedule is exactly
	// B's counter.
	f := newFixture(sessionFixture())
	mentorConn := f.connect("mentor", "c1")
	menteeConn := f.connect("mentee", "c2")

	req := mustPropose(t, f, "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})
	counter := domain.Proposal{Date: "2025-05-02", StartTime: "10:00", EndTime: "11:00"}
	if _, err := f.negotiator.Counter(context.Background(), req.ID, "mentee", counter); err != nil {
		t.Fatalf("counter: %v", err)
	}
	got, err := f.negotiator.Accept(context.Background(), req.ID, "mentor")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != domain.RescheduleAccepted || *f.sessions.applied != counter {
		t.Fatalf("applied = %+v status = %q", f.sessions.applied, got.Status)
	}
	if mentorConn.countType(t, EventRescheduleUpdate) == 0 || menteeConn.countType(t, EventRescheduleUpdate) == 0 {
		t.Fatal("both parties must be notified on accept")
	}
}

func TestRejectLeavesScheduleAlone(t *testing.T) {
	f := newFixture(sessionFixture())
	req := mustPropose(t, f, "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})

	got, err := f.negotiator.Reject(context.Background(), req.ID, "mentee")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != domain.RescheduleRejected {
		t.Fatalf("status = %q", got.Status)
	}
	if f.sessions.applied != nil {
		t.Fatal("reject must not mutate the session schedule")
	}
}

func TestAcceptReportsApplyFailureWithoutRollback(t *testing.T) {
	f := newFixture(sessionFixture())
	f.sessions.applyErr = errors.New("store down")
	menteeConn := f.connect("mentee", "c1")

	req := mustPropose(t, f, "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})
	got, err := f.negotiator.Accept(context.Background(), req.ID, "mentee")
	if err != nil {
		t.Fatalf("accept must commit despite apply failure: %v", err)
	}
	if got.Status != domain.RescheduleAccepted {
		t.Fatalf("status = %q", got.Status)
	}
	ev := menteeConn.lastOfType(t, EventRescheduleUpdate)
	if ev == nil || ev["apply_failed"] != true {
		t.Fatalf("apply failure not surfaced: %v", ev)
	}
}

func TestTerminalRequestRejectsFurtherActions(t *testing.T) {
	f := newFixture(sessionFixture())
	req := mustPropose(t, f, "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})
	if _, err := f.negotiator.Accept(context.Background(), req.ID, "mentee"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := f.negotiator.Counter(context.Background(), req.ID, "mentor", domain.Proposal{Date: "2025-05-02", StartTime: "10:00", EndTime: "11:00"}); !errors.Is(err, core.ErrRequestNotOpen) {
		t.Fatalf("err = %v, want ErrRequestNotOpen", err)
	}
	if _, err := f.negotiator.Expire(context.Background(), req.ID); !errors.Is(err, core.ErrRequestNotOpen) {
		t.Fatalf("expire on terminal: %v, want ErrRequestNotOpen", err)
	}
}

func TestExpireOverdueSweep(t *testing.T) {
	rec := sessionFixture()
	// Original slot predates the fixture clock (2025-04-20), so the
	// negotiation is already overdue.
	rec.Schedule = domain.Proposal{Date: "2025-04-10", StartTime: "09:00", EndTime: "10:00"}
	f := newFixture(rec)
	req := mustPropose(t, f, "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})

	if n := f.negotiator.ExpireOverdue(context.Background()); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	got, _ := f.negotiator.Get(req.ID)
	if got.Status != domain.RescheduleExpired {
		t.Fatalf("status = %q", got.Status)
	}
	if f.sessions.applied != nil {
		t.Fatal("expiry must not mutate the session schedule")
	}
	if _, open := f.negotiator.OpenForSession("sess-1"); open {
		t.Fatal("expired request must free the session slot")
	}
}

func TestExpireOverdueIgnoresFutureSlots(t *testing.T) {
	f := newFixture(sessionFixture())
	mustPropose(t, f, "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})

	if n := f.negotiator.ExpireOverdue(context.Background()); n != 0 {
		t.Fatalf("swept %d, want 0", n)
	}
}

func TestReopenDropsClosedHistory(t *testing.T) {
	f := newFixture(sessionFixture())
	first := mustPropose(t, f, "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})
	if _, err := f.negotiator.Reject(context.Background(), first.ID, "mentee"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, ok := f.negotiator.Get(first.ID); !ok {
		t.Fatal("closed request must stay queryable until superseded")
	}

	second := mustPropose(t, f, "mentee", domain.Proposal{Date: "2025-05-03", StartTime: "10:00", EndTime: "11:00"})

	if _, ok := f.negotiator.Get(first.ID); ok {
		t.Fatal("superseded request must be evicted")
	}
	if _, ok := f.negotiator.Get(second.ID); !ok {
		t.Fatal("open request must survive the eviction")
	}
}

func TestSweepDropsStaleClosedRequests(t *testing.T) {
	cur := time.Date(2025, 4, 20, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return cur }
	queued := core.NewMemoryNotificationStore()
	notify := NewNotificationDispatcher(NewPresenceRegistry(clock), queued, clock)
	n := NewRescheduleNegotiator(&sessionStoreStub{rec: sessionFixture()}, notify, seqIDGen("rr"), clock)

	req, err := n.Propose(context.Background(), "sess-1", "mentor", domain.Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := n.Reject(context.Background(), req.ID, "mentee"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	// Freshly closed requests survive the sweep.
	n.ExpireOverdue(context.Background())
	if _, ok := n.Get(req.ID); !ok {
		t.Fatal("closed request dropped before the retention window elapsed")
	}

	cur = cur.Add(25 * time.Hour)
	n.ExpireOverdue(context.Background())
	if _, ok := n.Get(req.ID); ok {
		t.Fatal("closed request must be dropped after the retention window")
	}
}
