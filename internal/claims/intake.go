package claims

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/claimflow/internal/models"
	"github.com/stanstork/claimflow/internal/notification"
	"github.com/stanstork/claimflow/internal/repository"
)

// StatusPublisher announces claim transitions on the outbound stream.
type StatusPublisher interface {
	Publish(ctx context.Context, u models.StatusUpdate) error
}

// TeamNotifier emails a freshly assigned team.
type TeamNotifier interface {
	Dispatch(ctx context.Context, claimID, teamID string) (notification.Result, error)
}

type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
)

const (
	ReasonNoTeamAvailable    = "NO_TEAM_AVAILABLE"
	ReasonAvailabilityFailed = "AVAILABILITY_CHECK_FAILED"
	ReasonTeamCreationFailed = "TEAM_CREATION_FAILED"
)

// Result is the outcome of one claim intake. TeamID is set only when accepted;
// Reason only when rejected or failed.
type Result struct {
	Outcome Outcome
	Claim   models.Claim
	TeamID  string
	Reason  string
}

// Timeouts bound the calls intake makes outside the process. StoreCall
// covers the availability check and team creation; Dispatch covers emailing
// the new team.
type Timeouts struct {
	StoreCall time.Duration
	Dispatch  time.Duration
}

// Orchestrator drives a new claim from intake to active work.
type Orchestrator struct {
	claims    repository.ClaimRepository
	teams     repository.TeamRepository
	employees repository.EmployeeRepository
	actions   repository.ActionRepository
	publisher StatusPublisher
	notifier  TeamNotifier
	timeouts  Timeouts
	now       func() time.Time
	logger    zerolog.Logger
}

func NewOrchestrator(store *repository.Gateway, publisher StatusPublisher, notifier TeamNotifier, timeouts Timeouts, logger zerolog.Logger) *Orchestrator {
	if timeouts.StoreCall <= 0 {
		timeouts.StoreCall = 10 * time.Second
	}
	if timeouts.Dispatch <= 0 {
		timeouts.Dispatch = 2 * time.Minute
	}
	return &Orchestrator{
		claims:    store.Claims,
		teams:     store.Teams,
		employees: store.Employees,
		actions:   store.Actions,
		publisher: publisher,
		notifier:  notifier,
		timeouts:  timeouts,
		now:       time.Now,
		logger:    logger.With().Str("component", "intake-orchestrator").Logger(),
	}
}

// HandleClaimCreated runs Intake and logs its outcome.
func (o *Orchestrator) HandleClaimCreated(ctx context.Context, env models.ClaimEnvelope) error {
	res, err := o.Intake(ctx, env)
	if err != nil {
		return err
	}
	o.logger.Info().
		Str("claim_id", res.Claim.ID).
		Str("claim_number", env.ClaimNumber).
		Str("outcome", string(res.Outcome)).
		Str("reason", res.Reason).
		Str("team_id", res.TeamID).
		Msg("Claim intake finished")
	return nil
}

// Intake processes one validated claim-creation envelope. Business outcomes,
// including a failed team creation, are reported in Result; an error means
// the claim could not be stored at all.
func (o *Orchestrator) Intake(ctx context.Context, env models.ClaimEnvelope) (Result, error) {
	if env.Claim == nil {
		return Result{}, errors.New("claim envelope has no claim block")
	}
	log := o.logger.With().
		Str("portal_claim_id", env.ClaimID).
		Str("claim_number", env.ClaimNumber).
		Str("correlation_id", env.CorrelationID).
		Logger()

	existing, err := o.claims.GetByPortalID(ctx, env.ClaimID)
	if err == nil {
		log.Info().Str("claim_id", existing.ID).Msg("Claim already ingested, skipping")
		return Result{Outcome: OutcomeDuplicate, Claim: existing}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return Result{}, errors.Wrapf(err, "look up claim %s", env.ClaimID)
	}

	service := env.Claim.ServiceType
	available, availErr := o.canCreateTeam(ctx, service)
	if availErr == nil && !available {
		return o.reject(ctx, log, env)
	}

	claim, err := o.claims.Create(ctx, newClaimParams(env, models.StatusReceived))
	if err != nil {
		return Result{}, errors.Wrapf(err, "store claim %s", env.ClaimNumber)
	}
	log = log.With().Str("claim_id", claim.ID).Logger()

	if availErr != nil {
		log.Error().Err(availErr).Msg("Team availability check failed")
		return o.pending(ctx, log, env, claim, ReasonAvailabilityFailed, availErr), nil
	}

	when := InterventionDate(claim.Priority, o.now())
	if err := o.claims.SetInterventionDate(ctx, claim.ID, when); err != nil {
		log.Error().Err(err).Msg("Failed to store intervention date")
	} else {
		claim.InterventionDate = &when
	}

	teamID, err := o.createTeam(ctx, claim.ID, service)
	if err != nil {
		log.Error().Err(err).Msg("Team creation failed")
		return o.pending(ctx, log, env, claim, ReasonTeamCreationFailed, err), nil
	}
	log = log.With().Str("team_id", teamID).Logger()

	assignedAt := o.now()
	if err := o.claims.MarkAssigned(ctx, claim.ID, assignedAt); err != nil {
		log.Error().Err(err).Msg("Failed to mark claim assigned")
		return Result{Outcome: OutcomeFailed, Claim: claim, TeamID: teamID, Reason: ReasonTeamCreationFailed}, nil
	}
	claim.Status = models.StatusAssigned
	claim.TeamAssignedAt = &assignedAt
	o.record(ctx, log, claim.ID, models.ActionTeamAssigned, "Intervention team assigned", models.StatusReceived, models.StatusAssigned)
	o.publish(ctx, log, env, claim, models.StatusReceived, models.StatusAssigned, "Intervention team assigned", o.assignee(ctx, log, teamID))

	if res, err := o.dispatch(ctx, claim.ID, teamID); err != nil {
		log.Error().Err(err).Msg("Team notification failed")
	} else {
		log.Debug().Interface("dispatch", res).Msg("Team notification attempted")
	}

	if err := o.claims.UpdateStatus(ctx, claim.ID, models.StatusAssigned, models.StatusInProgress); err != nil {
		log.Error().Err(err).Msg("Failed to start work on claim")
		return Result{Outcome: OutcomeAccepted, Claim: claim, TeamID: teamID}, nil
	}
	claim.Status = models.StatusInProgress
	o.record(ctx, log, claim.ID, models.ActionWorkStarted, "Team notified, intervention in progress", models.StatusAssigned, models.StatusInProgress)
	o.publish(ctx, log, env, claim, models.StatusAssigned, models.StatusInProgress, "Intervention in progress", nil)

	return Result{Outcome: OutcomeAccepted, Claim: claim, TeamID: teamID}, nil
}

func (o *Orchestrator) reject(ctx context.Context, log zerolog.Logger, env models.ClaimEnvelope) (Result, error) {
	claim, err := o.claims.Create(ctx, newClaimParams(env, models.StatusRejected))
	if err != nil {
		return Result{}, errors.Wrapf(err, "store rejected claim %s", env.ClaimNumber)
	}
	log = log.With().Str("claim_id", claim.ID).Logger()
	o.record(ctx, log, claim.ID, models.ActionRejectedNoTeam, "No intervention team available", models.StatusSubmitted, models.StatusRejected)
	o.publish(ctx, log, env, claim, models.StatusSubmitted, models.StatusRejected, "No intervention team available", nil)
	log.Info().Msg("Claim rejected, no team available")
	return Result{Outcome: OutcomeRejected, Claim: claim, Reason: ReasonNoTeamAvailable}, nil
}

// pending leaves the stored claim in received for manual follow-up and tells
// the portal more information is pending.
func (o *Orchestrator) pending(ctx context.Context, log zerolog.Logger, env models.ClaimEnvelope, claim models.Claim, reason string, cause error) Result {
	o.record(ctx, log, claim.ID, models.ActionAssignmentFailed, "Team assignment failed: "+cause.Error(), models.StatusReceived, models.StatusReceived)
	o.publish(ctx, log, env, claim, models.StatusReceived, models.StatusPendingInfo, "Team assignment pending", nil)
	return Result{Outcome: OutcomeFailed, Claim: claim, Reason: reason}
}

func (o *Orchestrator) canCreateTeam(ctx context.Context, service models.ServiceType) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.StoreCall)
	defer cancel()
	return o.teams.CanCreateTeam(ctx, service)
}

func (o *Orchestrator) createTeam(ctx context.Context, claimID string, service models.ServiceType) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.StoreCall)
	defer cancel()
	return o.teams.CreateTeam(ctx, claimID, service)
}

// dispatch keeps a stalled mail relay from holding up the partition.
func (o *Orchestrator) dispatch(ctx context.Context, claimID, teamID string) (notification.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeouts.Dispatch)
	defer cancel()
	return o.notifier.Dispatch(ctx, claimID, teamID)
}

func (o *Orchestrator) assignee(ctx context.Context, log zerolog.Logger, teamID string) *models.Assignee {
	team, err := o.teams.GetByID(ctx, teamID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load team for status event")
		return nil
	}
	a := &models.Assignee{OperatorID: team.LeaderID}
	if leader, err := o.employees.GetByID(ctx, team.LeaderID); err == nil {
		a.OperatorName = leader.FullName
	}
	return a
}

func (o *Orchestrator) record(ctx context.Context, log zerolog.Logger, claimID string, action models.ActionType, desc string, from, to models.ClaimStatus) {
	_, err := o.actions.Record(ctx, repository.RecordActionParams{
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

func (o *Orchestrator) publish(ctx context.Context, log zerolog.Logger, env models.ClaimEnvelope, claim models.Claim, from, to models.ClaimStatus, reason string, assignee *models.Assignee) {
	err := o.publisher.Publish(ctx, models.StatusUpdate{
		ClaimID:          env.ClaimID,
		ClaimNumber:      env.ClaimNumber,
		CorrelationID:    env.CorrelationID,
		Previous:         from,
		New:              to,
		Reason:           reason,
		ServiceReference: claim.InternalTicketNumber,
		AssignedTo:       assignee,
	})
	if err != nil {
		log.Error().Err(err).
			Str("previous", string(from)).
			Str("new", string(to)).
			Msg("Failed to publish status update")
	}
}

func newClaimParams(env models.ClaimEnvelope, status models.ClaimStatus) repository.CreateClaimParams {
	c := env.Claim
	return repository.CreateClaimParams{
		PortalClaimID:       env.ClaimID,
		ClaimNumber:         env.ClaimNumber,
		ServiceType:         c.ServiceType,
		Priority:            c.Priority,
		Title:               c.Title,
		Description:         c.Description,
		LocationAddress:     c.Location.Address,
		LocationLat:         c.Location.Latitude,
		LocationLng:         c.Location.Longitude,
		UserID:              env.User.ID,
		UserEmail:           env.User.Email,
		UserName:            env.User.Name,
		UserPhone:           env.User.Phone,
		ServiceSpecificData: c.ExtraData,
		Status:              status,
	}
}
