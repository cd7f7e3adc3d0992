package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/stanstork/claimflow/internal/models"
)

// ActionRepository stores the claim timeline.
type ActionRepository interface {
	Record(ctx context.Context, params RecordActionParams) (models.ClaimAction, error)
	ListByClaim(ctx context.Context, claimID string) ([]models.ClaimAction, error)
}

type RecordActionParams struct {
	ClaimID        string
	ActionType     models.ActionType
	Description    string
	PreviousStatus models.ClaimStatus
	NewStatus      models.ClaimStatus
}

type actionRepository struct {
	db *sql.DB
}

func NewActionRepository(db *sql.DB) ActionRepository {
	return &actionRepository{db: db}
}

func (r *actionRepository) Record(ctx context.Context, params RecordActionParams) (models.ClaimAction, error) {
	const query = `
		INSERT INTO claim_actions (claim_id, action_type, action_description, previous_status, new_status)
		VALUES ($1, $2, $3, NULLIF($4, '')::claim_status, $5::claim_status)
		RETURNING id, claim_id, action_type, action_description, previous_status, new_status, created_at
	`
	row := r.db.QueryRowContext(ctx, query,
		params.ClaimID,
		params.ActionType,
		params.Description,
		params.PreviousStatus,
		params.NewStatus,
	)
	action, err := scanAction(row)
	if err != nil {
		return models.ClaimAction{}, errors.Wrapf(err, "record %s for claim %s", params.ActionType, params.ClaimID)
	}
	return action, nil
}

func (r *actionRepository) ListByClaim(ctx context.Context, claimID string) ([]models.ClaimAction, error) {
	const query = `
		SELECT id, claim_id, action_type, action_description, previous_status, new_status, created_at
		FROM claim_actions
		WHERE claim_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, claimID)
	if err != nil {
		return nil, errors.Wrap(err, "list claim actions")
	}
	defer rows.Close()

	var actions []models.ClaimAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

func scanAction(s scanner) (models.ClaimAction, error) {
	var (
		a        models.ClaimAction
		previous sql.NullString
	)
	if err := s.Scan(&a.ID, &a.ClaimID, &a.ActionType, &a.Description, &previous, &a.NewStatus, &a.CreatedAt); err != nil {
		return models.ClaimAction{}, err
	}
	if previous.Valid {
		status := models.ClaimStatus(previous.String)
		a.PreviousStatus = &status
	}
	return a, nil
}
