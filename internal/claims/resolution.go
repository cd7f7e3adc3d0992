package claims

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/claimflow/internal/models"
	"github.com/stanstork/claimflow/internal/repository"
)

// MinDescriptionLength is the shortest resolution text accepted, in runes
// after trimming.
const MinDescriptionLength = 5

// Workflow carries a claim from in_progress to resolved with the team's
// resolution token, then to closed on a supervisor's request. Holding the
// token or the claim id is the only authorization.
type Workflow struct {
	claims    repository.ClaimRepository
	teams     repository.TeamRepository
	actions   repository.ActionRepository
	publisher StatusPublisher
	now       func() time.Time
	logger    zerolog.Logger
}

func NewWorkflow(store *repository.Gateway, publisher StatusPublisher, logger zerolog.Logger) *Workflow {
	return &Workflow{
		claims:    store.Claims,
		teams:     store.Teams,
		actions:   store.Actions,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.With().Str("component", "resolution-workflow").Logger(),
	}
}

// ResolveInfo returns the claim a resolution token was issued for. A token
// that was already used still resolves, so the leader can see the outcome.
func (w *Workflow) ResolveInfo(ctx context.Context, token string) (models.Claim, error) {
	team, err := w.teamByToken(ctx, token)
	if err != nil {
		return models.Claim{}, err
	}
	return w.claim(ctx, team.ClaimID)
}

// SubmitResolution records the leader's resolution and completes the team.
func (w *Workflow) SubmitResolution(ctx context.Context, token, description string) (models.Claim, error) {
	if strings.TrimSpace(token) == "" {
		return models.Claim{}, ErrTokenRequired
	}
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) < MinDescriptionLength {
		return models.Claim{}, ErrDescriptionTooShort
	}

	team, err := w.teamByToken(ctx, token)
	if err != nil {
		return models.Claim{}, err
	}
	if team.IsUsed() {
		return models.Claim{}, ErrTokenUsed
	}

	claim, err := w.claim(ctx, team.ClaimID)
	if err != nil {
		return models.Claim{}, err
	}
	if claim.Status != models.StatusInProgress {
		return models.Claim{}, &StatusError{Actual: claim.Status, Expected: models.StatusInProgress}
	}

	updated, err := w.claims.SubmitResolution(ctx, repository.SubmitResolutionParams{
		ClaimID:     claim.ID,
		TeamID:      team.ID,
		LeaderID:    team.LeaderID,
		Description: description,
		SubmittedAt: w.now(),
	})
	switch {
	case errors.Is(err, repository.ErrTeamInactive):
		return models.Claim{}, ErrTokenUsed
	case errors.Is(err, repository.ErrStatusConflict):
		return models.Claim{}, w.statusConflict(ctx, claim.ID, models.StatusInProgress)
	case err != nil:
		return models.Claim{}, errors.Wrapf(err, "submit resolution for claim %s", claim.ID)
	}

	log := w.logger.With().Str("claim_id", updated.ID).Str("claim_number", updated.ClaimNumber).Str("team_id", team.ID).Logger()
	w.record(ctx, log, updated.ID, models.ActionResolutionSubmitted, "Resolution submitted by team leader", models.StatusInProgress, models.StatusResolved)
	w.publish(ctx, log, updated, models.StatusInProgress, models.StatusResolved, "Resolution submitted", &models.ResolutionInfo{
		Summary:        description,
		ActionsTaken:   []string{},
		ClosingMessage: "Your claim has been resolved by the intervention team.",
		ResolvedAt:     updated.ResolvedAt,
	})
	log.Info().Msg("Resolution submitted")
	return updated, nil
}

// SupervisorClaim returns a claim for the supervisor closure page.
func (w *Workflow) SupervisorClaim(ctx context.Context, claimID string) (models.Claim, error) {
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return models.Claim{}, ErrClaimIDRequired
	}
	return w.claim(ctx, claimID)
}

// Close moves a resolved lighting claim to closed.
func (w *Workflow) Close(ctx context.Context, claimID string) (models.Claim, error) {
	claim, err := w.SupervisorClaim(ctx, claimID)
	if err != nil {
		return models.Claim{}, err
	}
	if claim.ServiceType != models.ServiceLighting {
		return models.Claim{}, ErrClosureForbidden
	}
	if claim.Status != models.StatusResolved {
		return models.Claim{}, &StatusError{Actual: claim.Status, Expected: models.StatusResolved}
	}

	closed, err := w.claims.Close(ctx, claim.ID)
	if errors.Is(err, repository.ErrStatusConflict) {
		return models.Claim{}, w.statusConflict(ctx, claim.ID, models.StatusResolved)
	}
	if err != nil {
		return models.Claim{}, errors.Wrapf(err, "close claim %s", claim.ID)
	}

	log := w.logger.With().Str("claim_id", closed.ID).Str("claim_number", closed.ClaimNumber).Logger()
	w.record(ctx, log, closed.ID, models.ActionClosedBySupervisor, "Claim closed by supervisor", models.StatusResolved, models.StatusClosed)
	w.publish(ctx, log, closed, models.StatusResolved, models.StatusClosed, "Closed by supervisor", nil)
	log.Info().Msg("Claim closed")
	return closed, nil
}

// teamByToken checks expiry on every use, not only at issuance.
func (w *Workflow) teamByToken(ctx context.Context, token string) (models.InterventionTeam, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.InterventionTeam{}, ErrTokenRequired
	}
	team, err := w.teams.GetByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return models.InterventionTeam{}, ErrTokenNotFound
	}
	if err != nil {
		return models.InterventionTeam{}, errors.Wrap(err, "look up resolution token")
	}
	if team.IsExpired(w.now()) {
		return models.InterventionTeam{}, ErrTokenExpired
	}
	return team, nil
}

func (w *Workflow) claim(ctx context.Context, id string) (models.Claim, error) {
	claim, err := w.claims.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Claim{}, ErrClaimNotFound
	}
	if err != nil {
		return models.Claim{}, errors.Wrapf(err, "load claim %s", id)
	}
	return claim, nil
}

// statusConflict reports the status a concurrent writer left the claim in.
func (w *Workflow) statusConflict(ctx context.Context, id string, expected models.ClaimStatus) error {
	claim, err := w.claim(ctx, id)
	if err != nil {
		return err
	}
	return &StatusError{Actual: claim.Status, Expected: expected}
}

func (w *Workflow) record(ctx context.Context, log zerolog.Logger, claimID string, action models.ActionType, desc string, from, to models.ClaimStatus) {
	_, err := w.actions.Record(ctx, repository.RecordActionParams{
		ClaimID:        claimID,
		ActionType:     action,
		Description:    desc,
		PreviousStatus: from,
		NewStatus:      to,
	})
	if err != nil {
		log.Error().Err(err).Str("action", string(action)).Msg("Failed to write timeline entry")
	}
}

func (w *Workflow) publish(ctx context.Context, log zerolog.Logger, claim models.Claim, from, to models.ClaimStatus, reason string, resolution *models.ResolutionInfo) {
	err := w.publisher.Publish(ctx, models.StatusUpdate{
		ClaimID:          claim.PortalClaimID,
		ClaimNumber:      claim.ClaimNumber,
		Previous:         from,
		New:              to,
		Reason:           reason,
		ServiceReference: claim.InternalTicketNumber,
		Resolution:       resolution,
	})
	if err != nil {
		log.Error().Err(err).
			Str("previous", string(from)).
			Str("new", string(to)).
			Msg("Failed to publish status update")
	}
}
