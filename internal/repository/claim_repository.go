package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stanstork/claimflow/internal/models"
)

type ClaimRepository interface {
	Create(ctx context.Context, params CreateClaimParams) (models.Claim, error)
	GetByID(ctx context.Context, id string) (models.Claim, error)
	GetByPortalID(ctx context.Context, portalClaimID string) (models.Claim, error)
	ListByUser(ctx context.Context, userID string) ([]models.ClaimSummary, error)
	SetInterventionDate(ctx context.Context, id string, at time.Time) error
	MarkAssigned(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, from, to models.ClaimStatus) error
	SubmitResolution(ctx context.Context, params SubmitResolutionParams) (models.Claim, error)
	Close(ctx context.Context, id string) (models.Claim, error)
}

type CreateClaimParams struct {
	PortalClaimID       string
	ClaimNumber         string
	ServiceType         models.ServiceType
	Priority            models.Priority
	Title               string
	Description         string
	LocationAddress     string
	LocationLat         *float64
	LocationLng         *float64
	UserID              string
	UserEmail           string
	UserName            string
	UserPhone           string
	ServiceSpecificData json.RawMessage
	Status              models.ClaimStatus
}

type SubmitResolutionParams struct {
	ClaimID     string
	TeamID      string
	LeaderID    string
	Description string
	SubmittedAt time.Time
}

type claimRepository struct {
	db *sql.DB
}

func NewClaimRepository(db *sql.DB) ClaimRepository {
	return &claimRepository{db: db}
}

const claimColumns = `
	id, portal_claim_id, claim_number, internal_ticket_number, service_type, priority,
	title, description, location_address, location_lat, location_lng,
	user_id, user_email, user_name, user_phone, service_specific_data,
	status, requires_supervisor_validation, created_at, updated_at,
	team_assigned_at, intervention_scheduled_date, resolution_description,
	resolution_submitted_at, resolution_submitted_by, resolved_at`

func (r *claimRepository) Create(ctx context.Context, params CreateClaimParams) (models.Claim, error) {
	query := `
		INSERT INTO claims (portal_claim_id, claim_number, service_type, priority, title, description,
			location_address, location_lat, location_lng, user_id, user_email, user_name, user_phone,
			service_specific_data, status)
		VALUES ($1, $2, $3::service_type, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::claim_status)
		RETURNING` + claimColumns

	var extra interface{}
	if len(params.ServiceSpecificData) > 0 {
		extra = []byte(params.ServiceSpecificData)
	}

	row := r.db.QueryRowContext(ctx, query,
		params.PortalClaimID,
		params.ClaimNumber,
		params.ServiceType,
		params.Priority,
		params.Title,
		params.Description,
		params.LocationAddress,
		params.LocationLat,
		params.LocationLng,
		params.UserID,
		params.UserEmail,
		params.UserName,
		params.UserPhone,
		extra,
		params.Status,
	)
	claim, err := scanClaim(row)
	if err != nil {
		return models.Claim{}, errors.Wrapf(err, "insert claim %s", params.ClaimNumber)
	}
	return claim, nil
}

// GetByID returns ErrNotFound for ids that are not UUIDs; they reach here
// from request paths and bodies and could never match a row.
func (r *claimRepository) GetByID(ctx context.Context, id string) (models.Claim, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Claim{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT`+claimColumns+` FROM claims WHERE id = $1`, id)
	claim, err := scanClaim(row)
	if err != nil {
		return models.Claim{}, notFound(err)
	}
	return claim, nil
}

func (r *claimRepository) GetByPortalID(ctx context.Context, portalClaimID string) (models.Claim, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+claimColumns+` FROM claims WHERE portal_claim_id = $1`, portalClaimID)
	claim, err := scanClaim(row)
	if err != nil {
		return models.Claim{}, notFound(err)
	}
	return claim, nil
}

func (r *claimRepository) ListByUser(ctx context.Context, userID string) ([]models.ClaimSummary, error) {
	const query = `
		SELECT c.id, c.claim_number, c.internal_ticket_number, c.title, c.priority, c.service_type,
		       c.status, c.location_address, c.created_at, c.intervention_scheduled_date, e.full_name
		FROM claims c
		LEFT JOIN LATERAL (
			SELECT team_leader_id FROM intervention_teams t
			WHERE t.claim_id = c.id
			ORDER BY t.created_at DESC
			LIMIT 1
		) team ON TRUE
		LEFT JOIN employees e ON e.id = team.team_leader_id
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list claims by user")
	}
	defer rows.Close()

	var summaries []models.ClaimSummary
	for rows.Next() {
		var (
			s         models.ClaimSummary
			ticket    sql.NullString
			scheduled sql.NullTime
			leader    sql.NullString
		)
		if err := rows.Scan(
			&s.ID,
			&s.ClaimNumber,
			&ticket,
			&s.Title,
			&s.Priority,
			&s.Service,
			&s.Status,
			&s.Location,
			&s.CreatedAt,
			&scheduled,
			&leader,
		); err != nil {
			return nil, err
		}
		s.InternalTicket = nullString(ticket)
		s.ScheduledDate = nullTime(scheduled)
		s.TeamLeader = nullString(leader)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *claimRepository) SetInterventionDate(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE claims
		SET intervention_scheduled_date = $1, updated_at = now()
		WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return errors.Wrap(err, "set intervention date")
	}
	return expectOneRow(res, ErrNotFound)
}

func (r *claimRepository) MarkAssigned(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE claims
		SET status = 'assigned', team_assigned_at = $1, updated_at = now()
		WHERE id = $2 AND status = 'received'
	`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return errors.Wrap(err, "mark claim assigned")
	}
	return expectOneRow(res, ErrStatusConflict)
}

// UpdateStatus moves the claim along a single lifecycle edge. The write only
// applies while the claim is still in status from.
func (r *claimRepository) UpdateStatus(ctx context.Context, id string, from, to models.ClaimStatus) error {
	if !models.CanTransition(from, to) {
		return errors.Errorf("invalid claim transition %s -> %s", from, to)
	}
	const query = `
		UPDATE claims
		SET status = $1::claim_status, updated_at = now()
		WHERE id = $2 AND status = $3::claim_status
	`
	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return errors.Wrapf(err, "update claim status %s -> %s", from, to)
	}
	return expectOneRow(res, ErrStatusConflict)
}

// SubmitResolution records the leader's resolution and completes the team in
// one transaction. The team update is guarded on is_active so that two
// concurrent submissions with the same token cannot both succeed.
func (r *claimRepository) SubmitResolution(ctx context.Context, params SubmitResolutionParams) (models.Claim, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return models.Claim{}, errors.Wrap(err, "begin resolution transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE intervention_teams
		SET is_active = FALSE, completed_at = $1
		WHERE id = $2 AND is_active
	`, params.SubmittedAt, params.TeamID)
	if err != nil {
		return models.Claim{}, errors.Wrap(err, "complete team")
	}
	if err := expectOneRow(res, ErrTeamInactive); err != nil {
		return models.Claim{}, err
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE claims
		SET resolution_description = $1,
		    resolution_submitted_at = $2,
		    resolution_submitted_by = $3,
		    status = 'resolved',
		    resolved_at = $2,
		    updated_at = now()
		WHERE id = $4 AND status = 'in_progress'
		RETURNING`+claimColumns,
		params.Description, params.SubmittedAt, params.LeaderID, params.ClaimID)
	claim, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Claim{}, ErrStatusConflict
		}
		return models.Claim{}, errors.Wrap(err, "resolve claim")
	}

	if err := tx.Commit(); err != nil {
		return models.Claim{}, errors.Wrap(err, "commit resolution")
	}
	return claim, nil
}

func (r *claimRepository) Close(ctx context.Context, id string) (models.Claim, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE claims
		SET status = 'closed', updated_at = now()
		WHERE id = $1 AND status = 'resolved'
		RETURNING`+claimColumns, id)
	claim, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Claim{}, ErrStatusConflict
		}
		return models.Claim{}, errors.Wrap(err, "close claim")
	}
	return claim, nil
}

func scanClaim(s scanner) (models.Claim, error) {
	var (
		c           models.Claim
		ticket      sql.NullString
		lat, lng    sql.NullFloat64
		extra       []byte
		assignedAt  sql.NullTime
		scheduled   sql.NullTime
		resolution  sql.NullString
		submittedAt sql.NullTime
		submittedBy sql.NullString
		resolvedAt  sql.NullTime
	)
	if err := s.Scan(
		&c.ID,
		&c.PortalClaimID,
		&c.ClaimNumber,
		&ticket,
		&c.ServiceType,
		&c.Priority,
		&c.Title,
		&c.Description,
		&c.LocationAddress,
		&lat,
		&lng,
		&c.UserID,
		&c.UserEmail,
		&c.UserName,
		&c.UserPhone,
		&extra,
		&c.Status,
		&c.RequiresSupervisor,
		&c.CreatedAt,
		&c.UpdatedAt,
		&assignedAt,
		&scheduled,
		&resolution,
		&submittedAt,
		&submittedBy,
		&resolvedAt,
	); err != nil {
		return models.Claim{}, err
	}

	c.InternalTicketNumber = nullString(ticket)
	c.LocationLat = nullFloat(lat)
	c.LocationLng = nullFloat(lng)
	if len(extra) > 0 {
		c.ServiceSpecificData = extra
	}
	c.TeamAssignedAt = nullTime(assignedAt)
	c.InterventionDate = nullTime(scheduled)
	c.ResolutionText = nullString(resolution)
	c.ResolutionSubmitted = nullTime(submittedAt)
	c.ResolutionSubmitter = nullString(submittedBy)
	c.ResolvedAt = nullTime(resolvedAt)
	return c, nil
}

func expectOneRow(res sql.Result, otherwise error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otherwise
	}
	return nil
}
