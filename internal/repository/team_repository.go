package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/claimflow/internal/models"
)

// TeamRepository exposes intervention teams and their members. CanCreateTeam
// and CreateTeam call the store's team-formation procedures, which serialize
// concurrent claims for the same service type.
type TeamRepository interface {
	CanCreateTeam(ctx context.Context, service models.ServiceType) (bool, error)
	CreateTeam(ctx context.Context, claimID string, service models.ServiceType) (string, error)
	GetByID(ctx context.Context, id string) (models.InterventionTeam, error)
	GetByToken(ctx context.Context, token string) (models.InterventionTeam, error)
	GetLatestByClaim(ctx context.Context, claimID string) (models.InterventionTeam, error)
	ListMembers(ctx context.Context, teamID string) ([]models.TeamMember, error)
	ListUnnotifiedMembers(ctx context.Context, teamID string) ([]models.TeamMember, error)
	MarkMembersNotified(ctx context.Context, memberIDs []string, at time.Time) error
}

type teamRepository struct {
	db *sql.DB
}

func NewTeamRepository(db *sql.DB) TeamRepository {
	return &teamRepository{db: db}
}

const teamColumns = `
	id, claim_id, service_type, team_leader_id, team_supervisor_id, resolution_token,
	resolution_token_expires_at, is_active, created_at, completed_at`

func (r *teamRepository) CanCreateTeam(ctx context.Context, service models.ServiceType) (bool, error) {
	var ok sql.NullBool
	err := r.db.QueryRowContext(ctx, `SELECT can_create_new_team($1::service_type)`, service).Scan(&ok)
	if err != nil {
		return false, errors.Wrapf(err, "check team availability for %s", service)
	}
	return ok.Valid && ok.Bool, nil
}

func (r *teamRepository) CreateTeam(ctx context.Context, claimID string, service models.ServiceType) (string, error) {
	var teamID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT auto_create_intervention_team($1::uuid, $2::service_type)`, claimID, service).Scan(&teamID)
	if err != nil {
		return "", errors.Wrapf(err, "create intervention team for claim %s", claimID)
	}
	if !teamID.Valid || teamID.String == "" {
		return "", errors.Errorf("team formation returned no team for claim %s", claimID)
	}
	return teamID.String, nil
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (models.InterventionTeam, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+teamColumns+` FROM intervention_teams WHERE id = $1`, id)
	team, err := scanTeam(row)
	if err != nil {
		return models.InterventionTeam{}, notFound(err)
	}
	return team, nil
}

func (r *teamRepository) GetByToken(ctx context.Context, token string) (models.InterventionTeam, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+teamColumns+` FROM intervention_teams WHERE resolution_token = $1`, token)
	team, err := scanTeam(row)
	if err != nil {
		return models.InterventionTeam{}, notFound(err)
	}
	return team, nil
}

func (r *teamRepository) GetLatestByClaim(ctx context.Context, claimID string) (models.InterventionTeam, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+teamColumns+`
		FROM intervention_teams
		WHERE claim_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, claimID)
	team, err := scanTeam(row)
	if err != nil {
		return models.InterventionTeam{}, notFound(err)
	}
	return team, nil
}

func (r *teamRepository) ListMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	return r.listMembers(ctx, `
		SELECT id, team_id, employee_id, is_leader, notification_sent, notification_sent_at
		FROM team_members
		WHERE team_id = $1
		ORDER BY is_leader DESC, id
	`, teamID)
}

func (r *teamRepository) ListUnnotifiedMembers(ctx context.Context, teamID string) ([]models.TeamMember, error) {
	return r.listMembers(ctx, `
		SELECT id, team_id, employee_id, is_leader, notification_sent, notification_sent_at
		FROM team_members
		WHERE team_id = $1 AND NOT notification_sent
		ORDER BY is_leader DESC, id
	`, teamID)
}

func (r *teamRepository) listMembers(ctx context.Context, query, teamID string) ([]models.TeamMember, error) {
	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, errors.Wrapf(err, "list members of team %s", teamID)
	}
	defer rows.Close()

	var members []models.TeamMember
	for rows.Next() {
		var (
			m      models.TeamMember
			sentAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.TeamID, &m.EmployeeID, &m.IsLeader, &m.NotificationSent, &sentAt); err != nil {
			return nil, err
		}
		m.NotificationSentAt = nullTime(sentAt)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *teamRepository) MarkMembersNotified(ctx context.Context, memberIDs []string, at time.Time) error {
	if len(memberIDs) == 0 {
		return nil
	}
	const query = `
		UPDATE team_members
		SET notification_sent = TRUE, notification_sent_at = $1
		WHERE id = ANY($2)
	`
	if _, err := r.db.ExecContext(ctx, query, at, pq.Array(memberIDs)); err != nil {
		return errors.Wrap(err, "mark members notified")
	}
	return nil
}

func scanTeam(s scanner) (models.InterventionTeam, error) {
	var (
		t           models.InterventionTeam
		supervisor  sql.NullString
		expiresAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := s.Scan(
		&t.ID,
		&t.ClaimID,
		&t.ServiceType,
		&t.LeaderID,
		&supervisor,
		&t.ResolutionToken,
		&expiresAt,
		&t.IsActive,
		&t.CreatedAt,
		&completedAt,
	); err != nil {
		return models.InterventionTeam{}, err
	}
	t.SupervisorID = nullString(supervisor)
	t.ResolutionTokenExpiresAt = nullTime(expiresAt)
	t.CompletedAt = nullTime(completedAt)
	return t, nil
}
