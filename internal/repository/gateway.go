package repository

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict is returned when a guarded status write finds the claim
	// in a different status than expected.
	ErrStatusConflict = errors.New("claim status changed concurrently")
	// ErrTeamInactive is returned when a team was already completed.
	ErrTeamInactive = errors.New("team is no longer active")
)

// Gateway groups typed access to every record the claim pipeline touches.
type Gateway struct {
	Claims        ClaimRepository
	Teams         TeamRepository
	Employees     EmployeeRepository
	Notifications NotificationRepository
	Actions       ActionRepository
}

func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{
		Claims:        NewClaimRepository(db),
		Teams:         NewTeamRepository(db),
		Employees:     NewEmployeeRepository(db),
		Notifications: NewNotificationRepository(db),
		Actions:       NewActionRepository(db),
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
