package models

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ClaimStatus
		want     bool
	}{
		{StatusSubmitted, StatusRejected, true},
		{StatusSubmitted, StatusReceived, true},
		{StatusReceived, StatusAssigned, true},
		{StatusReceived, StatusPendingInfo, true},
		{StatusAssigned, StatusInProgress, true},
		{StatusInProgress, StatusResolved, true},
		{StatusResolved, StatusClosed, true},
		{StatusAssigned, StatusResolved, false},
		{StatusInProgress, StatusAssigned, false},
		{StatusResolved, StatusInProgress, false},
		{StatusClosed, StatusResolved, false},
		{StatusRejected, StatusReceived, false},
		{StatusPendingInfo, StatusAssigned, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestClaimReference(t *testing.T) {
	c := Claim{ClaimNumber: "CLM-2024-00123"}
	if got := c.Reference(); got != "CLM-2024-00123" {
		t.Fatalf("Reference() = %q", got)
	}
	ticket := "LW-000042"
	c.InternalTicketNumber = &ticket
	if got := c.Reference(); got != ticket {
		t.Fatalf("Reference() = %q, want %q", got, ticket)
	}
}

func TestTeamTokenState(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	if (InterventionTeam{}).IsExpired(now) {
		t.Fatal("team without expiry must not be expired")
	}
	if !(InterventionTeam{ResolutionTokenExpiresAt: &past}).IsExpired(now) {
		t.Fatal("past expiry must be expired")
	}
	if (InterventionTeam{ResolutionTokenExpiresAt: &future}).IsExpired(now) {
		t.Fatal("future expiry must not be expired")
	}

	if (InterventionTeam{IsActive: true}).IsUsed() {
		t.Fatal("active team must not be used")
	}
	if !(InterventionTeam{IsActive: false}).IsUsed() {
		t.Fatal("inactive team must be used")
	}
	if !(InterventionTeam{IsActive: true, CompletedAt: &past}).IsUsed() {
		t.Fatal("completed team must be used")
	}
}
