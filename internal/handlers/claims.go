package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/claimflow/internal/models"
	"github.com/stanstork/claimflow/internal/repository"
)

type ClaimHandler struct {
	store  *repository.Gateway
	logger zerolog.Logger
}

func NewClaimHandler(store *repository.Gateway, logger zerolog.Logger) *ClaimHandler {
	return &ClaimHandler{
		store:  store,
		logger: logger.With().Str("handler", "claims").Logger(),
	}
}

type claimDetailResponse struct {
	OK            bool                       `json:"ok"`
	Claim         models.Claim               `json:"claim"`
	Team          *models.InterventionTeam   `json:"team"`
	Members       []models.TeamMember        `json:"members"`
	Timeline      []models.ClaimAction       `json:"timeline"`
	Notifications []models.EmailNotification `json:"notifications"`
}

// GetClaim returns a claim with its current team, timeline and email log.
func (h *ClaimHandler) GetClaim(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	ctx := r.Context()

	claim, err := h.store.Claims.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "claim_not_found", "claim not found")
			return
		}
		h.fail(w, err, "failed to load claim")
		return
	}

	resp := claimDetailResponse{
		OK:            true,
		Claim:         claim,
		Members:       []models.TeamMember{},
		Timeline:      []models.ClaimAction{},
		Notifications: []models.EmailNotification{},
	}

	team, err := h.store.Teams.GetLatestByClaim(ctx, claim.ID)
	switch {
	case err == nil:
		resp.Team = &team
		members, err := h.store.Teams.ListMembers(ctx, team.ID)
		if err != nil {
			h.fail(w, err, "failed to load team members")
			return
		}
		if members != nil {
			resp.Members = members
		}
	case !errors.Is(err, repository.ErrNotFound):
		h.fail(w, err, "failed to load team")
		return
	}

	timeline, err := h.store.Actions.ListByClaim(ctx, claim.ID)
	if err != nil {
		h.fail(w, err, "failed to load timeline")
		return
	}
	if timeline != nil {
		resp.Timeline = timeline
	}

	notifications, err := h.store.Notifications.ListByClaim(ctx, claim.ID)
	if err != nil {
		h.fail(w, err, "failed to load notifications")
		return
	}
	if notifications != nil {
		resp.Notifications = notifications
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListUserClaims returns the claims filed by one requester, newest first.
func (h *ClaimHandler) ListUserClaims(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id_required", "user id is required")
		return
	}

	summaries, err := h.store.Claims.ListByUser(r.Context(), userID)
	if err != nil {
		h.fail(w, err, "failed to list claims")
		return
	}
	if summaries == nil {
		summaries = []models.ClaimSummary{}
	}
	writeJSON(w, http.StatusOK, struct {
		OK     bool                  `json:"ok"`
		Claims []models.ClaimSummary `json:"claims"`
	}{true, summaries})
}

func (h *ClaimHandler) fail(w http.ResponseWriter, err error, msg string) {
	h.logger.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "internal_error", msg)
}
