package notification

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

type fakeMailer struct {
	sent []Message
	// fail returns the error for a message, if any.
	fail func(Message) error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	if m.fail != nil {
		if err := m.fail(msg); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, msg)
	return nil
}

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func seedTeam(t *testing.T, service models.ServiceType) (*repotest.Store, models.Claim, string) {
	t.Helper()
	store := repotest.New()
	store.Now = func() time.Time { return fixedNow }
	lat, lng := 48.85, 2.35
	ticket := "LW-000042"
	claim := models.Claim{
		ID:                   "claim-1",
		PortalClaimID:        "portal-1",
		ClaimNumber:          "CLM-2026-001",
		InternalTicketNumber: &ticket,
		ServiceType:          service,
		Priority:             models.PriorityUrgent,
		Title:                "Lamp out <b>now</b>",
		Description:          "Dark street",
		LocationAddress:      "1 Main St",
		LocationLat:          &lat,
		LocationLng:          &lng,
		UserName:             "Citizen",
		Status:               models.StatusAssigned,
	}
	store.AddClaim(claim)
	store.AddEmployee(models.Employee{ID: "e-lead", FullName: "Lead", Email: "lead@city.test", IsActive: true, ServiceType: service})
	store.AddEmployee(models.Employee{ID: "e-m1", Email: "m1@city.test", IsActive: true, ServiceType: service})
	store.AddEmployee(models.Employee{ID: "e-m2", Email: " m2@city.test ", IsActive: true, ServiceType: service})
	store.AddEmployee(models.Employee{ID: "e-m3", Email: "m3@city.test", IsActive: false, ServiceType: service})
	store.AddEmployee(models.Employee{ID: "e-sup", Email: "sup@city.test", IsActive: true, IsSupervisor: true, ServiceType: service})
	sup := "e-sup"
	store.AddTeam(models.InterventionTeam{
		ID:              "team-1",
		ClaimID:         claim.ID,
		ServiceType:     service,
		LeaderID:        "e-lead",
		SupervisorID:    &sup,
		ResolutionToken: "tok en/1",
		IsActive:        true,
	},
		models.TeamMember{EmployeeID: "e-lead", IsLeader: true},
		models.TeamMember{EmployeeID: "e-m1"},
		models.TeamMember{EmployeeID: "e-m2"},
		models.TeamMember{EmployeeID: "e-m3"},
	)
	return store, claim, "team-1"
}

func newTestDispatcher(store *repotest.Store, mailer Mailer) *Dispatcher {
	d := NewDispatcher(store.Gateway(), mailer, DispatcherConfig{
		From:          "noreply@city.test",
		PublicBaseURL: "https://intake.city.test/",
	}, zerolog.Nop())
	d.now = func() time.Time { return fixedNow }
	return d
}

func TestDispatchLightingSendsThreeMessages(t *testing.T) {
	store, claim, teamID := seedTeam(t, models.ServiceLighting)
	mailer := &fakeMailer{}
	d := newTestDispatcher(store, mailer)

	res, err := d.Dispatch(context.Background(), claim.ID, teamID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.MemberBatch != SendSent || res.Leader != SendSent || res.Supervisor != SendSent {
		t.Fatalf("result = %+v", res)
	}
	if len(mailer.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(mailer.sent))
	}

	batch := mailer.sent[0]
	if len(batch.To) != 1 || batch.To[0] != "noreply@city.test" {
		t.Errorf("member batch To = %v, want sender only", batch.To)
	}
	if strings.Join(batch.Bcc, ",") != "m1@city.test,m2@city.test" {
		t.Errorf("member batch Bcc = %v", batch.Bcc)
	}
	if !strings.HasPrefix(batch.Subject, "[URGENT] Claim CLM-2026-001") {
		t.Errorf("member subject = %q", batch.Subject)
	}

	leader := mailer.sent[1]
	wantLink := "https://intake.city.test/team/resolve?token=tok+en%2F1"
	if leader.To[0] != "lead@city.test" || !strings.Contains(leader.HTML, wantLink) {
		t.Errorf("leader message to %v missing link %s", leader.To, wantLink)
	}
	if !strings.Contains(leader.HTML, "LW-000042") || !strings.Contains(leader.HTML, "google.com/maps?q=48.85,2.35") {
		t.Errorf("leader body missing reference or map link")
	}
	if strings.Contains(leader.HTML, "<b>now</b>") {
		t.Errorf("title was not escaped")
	}

	supervisor := mailer.sent[2]
	if supervisor.To[0] != "sup@city.test" || !strings.Contains(supervisor.HTML, "/supervisor/close?claimId=claim-1") {
		t.Errorf("supervisor message = %+v", supervisor)
	}

	notes := store.Notifications()
	if len(notes) != 4 {
		t.Fatalf("logged %d rows, want 4", len(notes))
	}
	for _, n := range notes {
		if !n.Sent || n.SentAt == nil {
			t.Errorf("row %s to %s not marked sent", n.ID, n.RecipientEmail)
		}
	}
	if notes[2].ActionLink == nil || *notes[2].ActionLink != wantLink {
		t.Errorf("leader row action link = %v", notes[2].ActionLink)
	}
	for _, m := range store.Members(teamID) {
		if !m.NotificationSent {
			t.Errorf("member %s not flagged", m.EmployeeID)
		}
	}
	if res.MembersNotified != 4 {
		t.Errorf("MembersNotified = %d, want 4", res.MembersNotified)
	}
}

func TestDispatchIsIdempotent(t *testing.T) {
	store, claim, teamID := seedTeam(t, models.ServiceLighting)
	mailer := &fakeMailer{}
	d := newTestDispatcher(store, mailer)

	if _, err := d.Dispatch(context.Background(), claim.ID, teamID); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	first := len(mailer.sent)

	res, err := d.Dispatch(context.Background(), claim.ID, teamID)
	if err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if len(mailer.sent) != first {
		t.Errorf("second dispatch sent %d more messages", len(mailer.sent)-first)
	}
	if res.MemberBatch != SendSkipped || res.Leader != SendSkipped {
		t.Errorf("second result = %+v", res)
	}
}

func TestDispatchWasteSkipsSupervisor(t *testing.T) {
	store, claim, teamID := seedTeam(t, models.ServiceWaste)
	mailer := &fakeMailer{}

	res, err := newTestDispatcher(store, mailer).Dispatch(context.Background(), claim.ID, teamID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Supervisor != SendSkipped || len(mailer.sent) != 2 {
		t.Errorf("result = %+v, sent = %d", res, len(mailer.sent))
	}
}

func TestDispatchMemberFailureKeepsMembersUnnotified(t *testing.T) {
	store, claim, teamID := seedTeam(t, models.ServiceLighting)
	mailer := &fakeMailer{fail: func(m Message) error {
		if len(m.Bcc) > 0 {
			return errors.New("550 relay denied")
		}
		return nil
	}}

	res, err := newTestDispatcher(store, mailer).Dispatch(context.Background(), claim.ID, teamID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.MemberBatch != SendFailed || res.Leader != SendSent || res.Supervisor != SendSent {
		t.Errorf("result = %+v", res)
	}

	var failed int
	for _, n := range store.Notifications() {
		if n.RecipientType != models.RecipientTeamMember {
			continue
		}
		failed++
		if n.Sent || n.ErrorMessage == nil || *n.ErrorMessage != "550 relay denied" {
			t.Errorf("member row %+v, want unsent with error", n)
		}
	}
	if failed != 2 {
		t.Errorf("member rows = %d, want 2", failed)
	}
	for _, m := range store.Members(teamID) {
		if m.NotificationSent {
			t.Errorf("member %s flagged despite failed batch", m.EmployeeID)
		}
	}
}

func TestDispatchWithoutReachableMembersFlagsTeam(t *testing.T) {
	store, claim, teamID := seedTeam(t, models.ServiceWaste)
	for _, id := range []string{"e-m1", "e-m2"} {
		store.AddEmployee(models.Employee{ID: id, Email: id + "@city.test", IsActive: false, ServiceType: models.ServiceWaste})
	}
	mailer := &fakeMailer{fail: func(Message) error { return errors.New("421 try later") }}
	d := newTestDispatcher(store, mailer)

	res, err := d.Dispatch(context.Background(), claim.ID, teamID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.MemberBatch != SendSkipped || res.Leader != SendFailed || res.MembersNotified != 4 {
		t.Errorf("result = %+v", res)
	}
	for _, m := range store.Members(teamID) {
		if !m.NotificationSent {
			t.Errorf("member %s not flagged", m.EmployeeID)
		}
	}

	rows := len(store.Notifications())
	if _, err := d.Dispatch(context.Background(), claim.ID, teamID); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if len(store.Notifications()) != rows {
		t.Errorf("second dispatch logged %d more rows", len(store.Notifications())-rows)
	}
}

func TestDispatchAbortsWithoutReachableLeader(t *testing.T) {
	store, claim, teamID := seedTeam(t, models.ServiceLighting)
	store.AddEmployee(models.Employee{ID: "e-lead", Email: "lead@city.test", IsActive: false, ServiceType: models.ServiceLighting})
	mailer := &fakeMailer{}

	_, err := newTestDispatcher(store, mailer).Dispatch(context.Background(), claim.ID, teamID)
	if !errors.Is(err, ErrLeaderUnreachable) {
		t.Fatalf("err = %v, want ErrLeaderUnreachable", err)
	}
	if len(mailer.sent) != 0 || len(store.Notifications()) != 0 {
		t.Errorf("sent %d messages and logged %d rows, want none", len(mailer.sent), len(store.Notifications()))
	}
}

func TestDispatchUnknownClaim(t *testing.T) {
	store, _, teamID := seedTeam(t, models.ServiceLighting)
	if _, err := newTestDispatcher(store, &fakeMailer{}).Dispatch(context.Background(), "missing", teamID); err == nil {
		t.Fatal("expected error for unknown claim")
	}
}

func TestBuildMessageOmitsBcc(t *testing.T) {
	raw := string(buildMessage(Message{
		From:    "noreply@city.test",
		To:      []string{"noreply@city.test"},
		Bcc:     []string{"hidden@city.test"},
		Subject: "Réclamation",
		HTML:    "<p>hi</p>",
	}))
	if strings.Contains(raw, "hidden@city.test") {
		t.Error("bcc address leaked into headers")
	}
	if !strings.Contains(raw, "Content-Type: text/html") || !strings.HasSuffix(raw, "<p>hi</p>") {
		t.Errorf("unexpected message:\n%s", raw)
	}
}
