package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stanstork/claimflow/internal/models"
)

// ResolutionService is the token-gated resolution and closure workflow.
type ResolutionService interface {
	ResolveInfo(ctx context.Context, token string) (models.Claim, error)
	SubmitResolution(ctx context.Context, token, description string) (models.Claim, error)
	SupervisorClaim(ctx context.Context, claimID string) (models.Claim, error)
	Close(ctx context.Context, claimID string) (models.Claim, error)
}

type ResolutionHandler struct {
	workflow ResolutionService
	logger   zerolog.Logger
}

func NewResolutionHandler(workflow ResolutionService, logger zerolog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		workflow: workflow,
		logger:   logger.With().Str("handler", "resolution").Logger(),
	}
}

// claimView is the projection shown on the team and supervisor pages.
type claimView struct {
	ID                    string             `json:"id"`
	ClaimNumber           string             `json:"claim_number"`
	ServiceType           models.ServiceType `json:"service_type"`
	Priority              models.Priority    `json:"priority"`
	Title                 string             `json:"title"`
	Description           string             `json:"description"`
	LocationAddress       string             `json:"location_address"`
	Status                models.ClaimStatus `json:"status"`
	ResolutionDescription *string            `json:"resolution_description"`
	ResolutionSubmittedAt *time.Time         `json:"resolution_submitted_at"`
	ResolvedAt            *time.Time         `json:"resolved_at"`
	RequiresSupervisor    bool               `json:"requires_supervisor_validation"`
}

func newClaimView(c models.Claim) claimView {
	return claimView{
		ID:                    c.ID,
		ClaimNumber:           c.ClaimNumber,
		ServiceType:           c.ServiceType,
		Priority:              c.Priority,
		Title:                 c.Title,
		Description:           c.Description,
		LocationAddress:       c.LocationAddress,
		Status:                c.Status,
		ResolutionDescription: c.ResolutionText,
		ResolutionSubmittedAt: c.ResolutionSubmitted,
		ResolvedAt:            c.ResolvedAt,
		RequiresSupervisor:    c.RequiresSupervisor,
	}
}

type claimResponse struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Claim   interface{} `json:"claim"`
}

// ResolveInfo handles GET /api/team/resolve-info?token=...
func (h *ResolutionHandler) ResolveInfo(w http.ResponseWriter, r *http.Request) {
	claim, err := h.workflow.ResolveInfo(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeWorkflowError(w, h.logger, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{OK: true, Claim: newClaimView(claim)})
}

// SubmitResolution handles POST /api/team/resolve.
func (h *ResolutionHandler) SubmitResolution(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token       string `json:"token"`
		Description string `json:"resolution_description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid request payload")
		return
	}

	claim, err := h.workflow.SubmitResolution(r.Context(), payload.Token, payload.Description)
	if err != nil {
		writeWorkflowError(w, h.logger, err, http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		OK:      true,
		Message: "Resolution recorded",
		Claim: struct {
			ID                    string             `json:"id"`
			ClaimNumber           string             `json:"claim_number"`
			Status                models.ClaimStatus `json:"status"`
			ResolutionSubmittedAt *time.Time         `json:"resolution_submitted_at"`
		}{claim.ID, claim.ClaimNumber, claim.Status, claim.ResolutionSubmitted},
	})
}

// SupervisorClaim handles GET /api/supervisor/claim/{claimId}.
func (h *ResolutionHandler) SupervisorClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.workflow.SupervisorClaim(r.Context(), mux.Vars(r)["claimId"])
	if err != nil {
		writeWorkflowError(w, h.logger, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{OK: true, Claim: newClaimView(claim)})
}

// Close handles POST /api/supervisor/close.
func (h *ResolutionHandler) Close(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ClaimID string `json:"claimId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "invalid request payload")
		return
	}

	claim, err := h.workflow.Close(r.Context(), payload.ClaimID)
	if err != nil {
		writeWorkflowError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		OK:      true,
		Message: "Claim closed",
		Claim: struct {
			ID     string             `json:"id"`
			Status models.ClaimStatus `json:"status"`
		}{claim.ID, claim.Status},
	})
}
