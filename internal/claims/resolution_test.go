package claims

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/claimflow/internal/models"
	"github.com/stanstork/claimflow/internal/repository/repotest"
)

func seedResolution(t *testing.T, service models.ServiceType, status models.ClaimStatus, expiresIn time.Duration) (*repotest.Store, *recordingPublisher, *Workflow) {
	t.Helper()
	store := newStore()
	ticket := "LW-000007"
	store.AddClaim(models.Claim{
		ID:                   "claim-7",
		PortalClaimID:        "portal-7",
		ClaimNumber:          "CLM-7",
		InternalTicketNumber: &ticket,
		ServiceType:          service,
		Priority:             models.PriorityHigh,
		Title:                "Overflowing bin",
		Status:               status,
	})
	expires := fixedNow.Add(expiresIn)
	store.AddTeam(models.InterventionTeam{
		ID:                       "team-7",
		ClaimID:                  "claim-7",
		ServiceType:              service,
		LeaderID:                 "e-lead",
		ResolutionToken:          "secret-token",
		ResolutionTokenExpiresAt: &expires,
		IsActive:                 true,
	})

	pub := &recordingPublisher{}
	w := NewWorkflow(store.Gateway(), pub, zerolog.Nop())
	w.now = func() time.Time { return fixedNow }
	return store, pub, w
}

func TestResolveInfo(t *testing.T) {
	_, _, w := seedResolution(t, models.ServiceLighting, models.StatusInProgress, time.Hour)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"missing", "  ", ErrTokenRequired},
		{"unknown", "nope", ErrTokenNotFound},
		{"valid", "secret-token", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claim, err := w.ResolveInfo(context.Background(), tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && claim.ID != "claim-7" {
				t.Errorf("claim = %s", claim.ID)
			}
		})
	}
}

func TestExpiredTokenNeverUpdatesClaim(t *testing.T) {
	store, pub, w := seedResolution(t, models.ServiceLighting, models.StatusInProgress, -time.Minute)

	if _, err := w.ResolveInfo(context.Background(), "secret-token"); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ResolveInfo err = %v, want ErrTokenExpired", err)
	}
	if _, err := w.SubmitResolution(context.Background(), "secret-token", "Replaced the bulb"); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("SubmitResolution err = %v, want ErrTokenExpired", err)
	}
	if c, _ := store.Claim("claim-7"); c.Status != models.StatusInProgress || c.ResolutionText != nil {
		t.Errorf("claim modified: %+v", c)
	}
	if len(pub.updates) != 0 {
		t.Errorf("published %d events", len(pub.updates))
	}
}

func TestSubmitResolution(t *testing.T) {
	store, pub, w := seedResolution(t, models.ServiceLighting, models.StatusInProgress, time.Hour)

	if _, err := w.SubmitResolution(context.Background(), "secret-token", "  ok  "); !errors.Is(err, ErrDescriptionTooShort) {
		t.Fatalf("short description err = %v", err)
	}
	if _, err := w.SubmitResolution(context.Background(), "", "Replaced the bulb"); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("missing token err = %v", err)
	}

	claim, err := w.SubmitResolution(context.Background(), "secret-token", "  Replaced the bulb  ")
	if err != nil {
		t.Fatalf("SubmitResolution: %v", err)
	}
	if claim.Status != models.StatusResolved {
		t.Errorf("status = %s", claim.Status)
	}
	if claim.ResolutionText == nil || *claim.ResolutionText != "Replaced the bulb" {
		t.Errorf("resolution text = %v", claim.ResolutionText)
	}
	if claim.ResolutionSubmitter == nil || *claim.ResolutionSubmitter != "e-lead" {
		t.Errorf("submitter = %v", claim.ResolutionSubmitter)
	}
	if claim.ResolvedAt == nil || !claim.ResolvedAt.Equal(fixedNow) {
		t.Errorf("resolved at = %v", claim.ResolvedAt)
	}
	if team, _ := store.Team("team-7"); team.IsActive || team.CompletedAt == nil {
		t.Errorf("team not completed: %+v", team)
	}

	if got := pub.transitions(); !equalStrings(got, []string{"in_progress->resolved"}) {
		t.Fatalf("events = %v", got)
	}
	if u := pub.updates[0]; u.ClaimID != "portal-7" || u.Resolution == nil || u.Resolution.Summary != "Replaced the bulb" {
		t.Errorf("event = %+v", u)
	}

	if _, err := w.SubmitResolution(context.Background(), "secret-token", "Second attempt"); !errors.Is(err, ErrTokenUsed) {
		t.Errorf("second submission err = %v, want ErrTokenUsed", err)
	}
}

func TestSubmitResolutionRequiresInProgress(t *testing.T) {
	_, _, w := seedResolution(t, models.ServiceWaste, models.StatusAssigned, time.Hour)

	_, err := w.SubmitResolution(context.Background(), "secret-token", "Emptied the bin")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Actual != models.StatusAssigned {
		t.Fatalf("err = %v, want StatusError(assigned)", err)
	}
}

func TestCloseWasteIsForbidden(t *testing.T) {
	for _, status := range []models.ClaimStatus{models.StatusResolved, models.StatusInProgress} {
		_, _, w := seedResolution(t, models.ServiceWaste, status, time.Hour)
		if _, err := w.Close(context.Background(), "claim-7"); !errors.Is(err, ErrClosureForbidden) {
			t.Errorf("status %s: err = %v, want ErrClosureForbidden", status, err)
		}
	}
}

func TestCloseRequiresResolved(t *testing.T) {
	_, pub, w := seedResolution(t, models.ServiceLighting, models.StatusInProgress, time.Hour)

	_, err := w.Close(context.Background(), "claim-7")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if !strings.Contains(err.Error(), "in_progress") {
		t.Errorf("message %q does not name the actual status", err)
	}
	if len(pub.updates) != 0 {
		t.Errorf("published %d events", len(pub.updates))
	}
}

func TestClose(t *testing.T) {
	store, pub, w := seedResolution(t, models.ServiceLighting, models.StatusResolved, time.Hour)

	if _, err := w.Close(context.Background(), " "); !errors.Is(err, ErrClaimIDRequired) {
		t.Errorf("blank id err = %v", err)
	}
	if _, err := w.Close(context.Background(), "missing"); !errors.Is(err, ErrClaimNotFound) {
		t.Errorf("unknown id err = %v", err)
	}

	claim, err := w.Close(context.Background(), "claim-7")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if claim.Status != models.StatusClosed {
		t.Errorf("status = %s", claim.Status)
	}
	if got := pub.transitions(); !equalStrings(got, []string{"resolved->closed"}) {
		t.Errorf("events = %v", got)
	}
	actions := store.Actions("claim-7")
	if len(actions) != 1 || actions[0].ActionType != models.ActionClosedBySupervisor {
		t.Errorf("timeline = %+v", actions)
	}

	if _, err := w.Close(context.Background(), "claim-7"); err == nil {
		t.Error("closing twice should fail the status check")
	}
}
