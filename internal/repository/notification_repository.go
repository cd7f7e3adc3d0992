package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stanstork/claimflow/internal/models"
)

// NotificationRepository is the per-recipient email log. Rows are created
// unsent before the transport call and resolved exactly once afterwards.
type NotificationRepository interface {
	CreatePending(ctx context.Context, params []CreateNotificationParams) ([]string, error)
	MarkSent(ctx context.Context, ids []string, at time.Time) error
	MarkFailed(ctx context.Context, ids []string, reason string) error
	ListByClaim(ctx context.Context, claimID string) ([]models.EmailNotification, error)
}

type notificationRepository struct {
	db *sql.DB
}

type CreateNotificationParams struct {
	ClaimID        string
	TeamID         string
	RecipientEmail string
	RecipientType  models.RecipientType
	EmailType      models.EmailType
	Subject        string
	BodyHTML       string
	ActionLink     string
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// CreatePending inserts one unsent row per recipient inside a single
// transaction and returns the new ids in input order.
func (r *notificationRepository) CreatePending(ctx context.Context, params []CreateNotificationParams) ([]string, error) {
	if len(params) == 0 {
		return nil, nil
	}
	const query = `
		INSERT INTO email_notifications (claim_id, team_id, recipient_email, recipient_type, email_type,
			subject, email_body_html, resolution_link, sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), FALSE)
		RETURNING id
	`

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin notification batch")
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(params))
	for _, p := range params {
		var id string
		err := tx.QueryRowContext(ctx, query,
			p.ClaimID,
			p.TeamID,
			strings.TrimSpace(p.RecipientEmail),
			p.RecipientType,
			p.EmailType,
			p.Subject,
			p.BodyHTML,
			p.ActionLink,
		).Scan(&id)
		if err != nil {
			return nil, errors.Wrapf(err, "insert notification for %s", p.RecipientType)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit notification batch")
	}
	return ids, nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, ids []string, at time.Time) error {
	const query = `
		UPDATE email_notifications
		SET sent = TRUE, sent_at = $1, error_message = NULL
		WHERE id = ANY($2)
	`
	if _, err := r.db.ExecContext(ctx, query, at, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "mark notifications sent")
	}
	return nil
}

func (r *notificationRepository) MarkFailed(ctx context.Context, ids []string, reason string) error {
	const query = `
		UPDATE email_notifications
		SET sent = FALSE, error_message = $1
		WHERE id = ANY($2)
	`
	if _, err := r.db.ExecContext(ctx, query, reason, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "mark notifications failed")
	}
	return nil
}

func (r *notificationRepository) ListByClaim(ctx context.Context, claimID string) ([]models.EmailNotification, error) {
	const query = `
		SELECT id, claim_id, team_id, recipient_email, recipient_type, email_type, subject,
		       email_body_html, resolution_link, sent, sent_at, error_message, created_at
		FROM email_notifications
		WHERE claim_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, claimID)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	defer rows.Close()

	var notifications []models.EmailNotification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notif)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func scanNotification(s scanner) (models.EmailNotification, error) {
	var (
		notif    models.EmailNotification
		link     sql.NullString
		sentAt   sql.NullTime
		errorMsg sql.NullString
	)

	if err := s.Scan(
		&notif.ID,
		&notif.ClaimID,
		&notif.TeamID,
		&notif.RecipientEmail,
		&notif.RecipientType,
		&notif.EmailType,
		&notif.Subject,
		&notif.BodyHTML,
		&link,
		&notif.Sent,
		&sentAt,
		&errorMsg,
		&notif.CreatedAt,
	); err != nil {
		return models.EmailNotification{}, err
	}

	notif.ActionLink = nullString(link)
	notif.SentAt = nullTime(sentAt)
	notif.ErrorMessage = nullString(errorMsg)
	return notif, nil
}
