package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/claimflow/internal/claims"
	"github.com/stanstork/claimflow/internal/handlers"
	"github.com/stanstork/claimflow/internal/models"
	"github.com/stanstork/claimflow/internal/repository"
	"github.com/stanstork/claimflow/internal/repository/repotest"
	"github.com/stanstork/claimflow/internal/routes"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.StatusUpdate) error { return nil }

func newServer(t *testing.T) (*repotest.Store, http.Handler) {
	t.Helper()
	store := repotest.New()
	future := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-time.Hour)

	store.AddClaim(models.Claim{ID: "c-light", PortalClaimID: "p-1", ClaimNumber: "CLM-1", UserID: "u-1",
		ServiceType: models.ServiceLighting, Status: models.StatusInProgress, Title: "Lamp"})
	store.AddClaim(models.Claim{ID: "c-waste", PortalClaimID: "p-2", ClaimNumber: "CLM-2", UserID: "u-1",
		ServiceType: models.ServiceWaste, Status: models.StatusResolved, Title: "Bin"})
	store.AddTeam(models.InterventionTeam{ID: "t-1", ClaimID: "c-light", LeaderID: "e-1",
		ResolutionToken: "good", ResolutionTokenExpiresAt: &future, IsActive: true},
		models.TeamMember{EmployeeID: "e-1", IsLeader: true})
	store.AddTeam(models.InterventionTeam{ID: "t-2", ClaimID: "c-waste", LeaderID: "e-2",
		ResolutionToken: "stale", ResolutionTokenExpiresAt: &past, IsActive: true})

	gw := store.Gateway()
	workflow := claims.NewWorkflow(gw, nopPublisher{}, zerolog.Nop())
	router := routes.NewRouter(
		handlers.NewResolutionHandler(workflow, zerolog.Nop()),
		handlers.NewClaimHandler(gw, zerolog.Nop()),
	)
	return store, router
}

type apiResponse struct {
	OK      bool            `json:"ok"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Claim   json.RawMessage `json:"claim"`
}

func do(t *testing.T, h http.Handler, method, target, body string) (int, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec.Code, resp
}

func TestResolutionEndpoints(t *testing.T) {
	_, h := newServer(t)

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"info missing token", http.MethodGet, "/api/team/resolve-info", "", 400, "token_required"},
		{"info unknown token", http.MethodGet, "/api/team/resolve-info?token=nope", "", 404, "token_invalid"},
		{"info expired token", http.MethodGet, "/api/team/resolve-info?token=stale", "", 410, "token_expired"},
		{"info ok", http.MethodGet, "/api/team/resolve-info?token=good", "", 200, ""},
		{"resolve bad json", http.MethodPost, "/api/team/resolve", "{", 400, "invalid_payload"},
		{"resolve short", http.MethodPost, "/api/team/resolve", `{"token":"good","resolution_description":"ok"}`, 400, "description_too_short"},
		{"resolve expired", http.MethodPost, "/api/team/resolve", `{"token":"stale","resolution_description":"Emptied it"}`, 410, "token_expired"},
		{"resolve ok", http.MethodPost, "/api/team/resolve", `{"token":"good","resolution_description":"Replaced bulb"}`, 200, ""},
		{"resolve reused", http.MethodPost, "/api/team/resolve", `{"token":"good","resolution_description":"Replaced bulb"}`, 409, "token_used"},
		{"supervisor view", http.MethodGet, "/api/supervisor/claim/c-light", "", 200, ""},
		{"supervisor unknown", http.MethodGet, "/api/supervisor/claim/nope", "", 404, "claim_not_found"},
		{"close missing id", http.MethodPost, "/api/supervisor/close", `{}`, 400, "claim_id_required"},
		{"close waste", http.MethodPost, "/api/supervisor/close", `{"claimId":"c-waste"}`, 403, "closure_forbidden"},
		{"close ok", http.MethodPost, "/api/supervisor/close", `{"claimId":"c-light"}`, 200, ""},
		{"close twice", http.MethodPost, "/api/supervisor/close", `{"claimId":"c-light"}`, 400, "invalid_status"},
	}
	// Cases run in order: the resolve and close successes feed the cases after them.
	for _, tt := range tests {
		code, resp := do(t, h, tt.method, tt.target, tt.body)
		if code != tt.wantCode {
			t.Errorf("%s: status = %d, want %d (%+v)", tt.name, code, tt.wantCode, resp)
			continue
		}
		if resp.Code != tt.wantErr {
			t.Errorf("%s: code = %q, want %q", tt.name, resp.Code, tt.wantErr)
		}
		if resp.OK != (tt.wantErr == "") {
			t.Errorf("%s: ok = %v", tt.name, resp.OK)
		}
	}
}

func TestCloseNamesActualStatus(t *testing.T) {
	store, h := newServer(t)
	store.AddClaim(models.Claim{ID: "c-3", ServiceType: models.ServiceLighting, Status: models.StatusAssigned})

	code, resp := do(t, h, http.MethodPost, "/api/supervisor/close", `{"claimId":"c-3"}`)
	if code != http.StatusBadRequest || !strings.Contains(resp.Message, "assigned") {
		t.Fatalf("status = %d, message = %q", code, resp.Message)
	}
}

func TestClaimReadEndpoints(t *testing.T) {
	_, h := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/claims/c-light", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d", rec.Code)
	}
	var detail struct {
		Claim   models.Claim             `json:"claim"`
		Team    *models.InterventionTeam `json:"team"`
		Members []models.TeamMember      `json:"members"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Claim.ID != "c-light" || detail.Team == nil || detail.Team.ID != "t-1" || len(detail.Members) != 1 {
		t.Errorf("detail = %+v", detail)
	}
	if strings.Contains(rec.Body.String(), `"good"`) {
		t.Error("resolution token leaked in claim detail")
	}

	if code, resp := do(t, h, http.MethodGet, "/api/claims/nope", ""); code != http.StatusNotFound || resp.Code != "claim_not_found" {
		t.Errorf("missing claim: %d %+v", code, resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/users/u-1/claims", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var list struct {
		OK     bool                  `json:"ok"`
		Claims []models.ClaimSummary `json:"claims"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if !list.OK || len(list.Claims) != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestClaimDetailHidesActionLinks(t *testing.T) {
	store, h := newServer(t)
	_, err := store.Gateway().Notifications.CreatePending(context.Background(), []repository.CreateNotificationParams{{
		ClaimID:        "c-light",
		TeamID:         "t-1",
		RecipientEmail: "lead@city.test",
		RecipientType:  models.RecipientTeamLeader,
		EmailType:      models.EmailLeaderResolutionLink,
		Subject:        "[LEADER] Claim CLM-1 - Submit resolution",
		ActionLink:     "https://x.test/team/resolve?token=good",
	}})
	if err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/claims/c-light", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d", rec.Code)
	}
	var detail struct {
		Notifications []models.EmailNotification `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if len(detail.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(detail.Notifications))
	}
	if body := rec.Body.String(); strings.Contains(body, "token=good") || strings.Contains(body, "/team/resolve") {
		t.Errorf("resolution link exposed in claim detail: %s", body)
	}
}

func TestHealthCheck(t *testing.T) {
	_, h := newServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}
