package domain

import (
	"testing"
	"time"
)

func TestProposalStarts(t *testing.T) {
	p := Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"}
	got, err := p.Starts()
	if err != nil {
		t.Fatalf("Starts: %v", err)
	}
	want := time.Date(2025, 5, 1, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Starts = %v, want %v", got, want)
	}
}

func TestProposalValid(t *testing.T) {
	cases := []struct {
		name string
		p    Proposal
		want bool
	}{
		{"ok", Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "15:00"}, true},
		{"bad date", Proposal{Date: "soon", StartTime: "14:00", EndTime: "15:00"}, false},
		{"bad start", Proposal{Date: "2025-05-01", StartTime: "2pm", EndTime: "15:00"}, false},
		{"bad end", Proposal{Date: "2025-05-01", StartTime: "14:00", EndTime: "late"}, false},
		{"empty", Proposal{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.Valid(); got != tc.want {
				t.Fatalf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRescheduleStatusTerminal(t *testing.T) {
	if ReschedulePending.Terminal() || RescheduleCountered.Terminal() {
		t.Fatal("pending and countered must stay actionable")
	}
	if !RescheduleAccepted.Terminal() || !RescheduleRejected.Terminal() || !RescheduleExpired.Terminal() {
		t.Fatal("accepted/rejected/expired must be terminal")
	}
}

func TestOtherParty(t *testing.T) {
	r := RescheduleRequest{InitiatedBy: "mentor", Counterparty: "mentee"}
	if r.OtherParty("mentor") != "mentee" || r.OtherParty("mentee") != "mentor" {
		t.Fatal("OtherParty mapping broken")
	}
	if !r.IsParty("mentor") || r.IsParty("stranger") {
		t.Fatal("IsParty mapping broken")
	}
}
