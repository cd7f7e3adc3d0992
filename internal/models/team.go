package models

import "time"

// InterventionTeam is created by the store alongside its member rows. The
// resolution token is a bearer capability: whoever holds it may submit the
// team's resolution once, before ResolutionTokenExpiresAt.
type InterventionTeam struct {
	ID                       string      `json:"id"`
	ClaimID                  string      `json:"claim_id"`
	ServiceType              ServiceType `json:"service_type"`
	LeaderID                 string      `json:"team_leader_id"`
	SupervisorID             *string     `json:"team_supervisor_id,omitempty"`
	ResolutionToken          string      `json:"-"`
	ResolutionTokenExpiresAt *time.Time  `json:"resolution_token_expires_at,omitempty"`
	IsActive                 bool        `json:"is_active"`
	CreatedAt                time.Time   `json:"created_at"`
	CompletedAt              *time.Time  `json:"completed_at,omitempty"`
}

// IsExpired determines whether the resolution token has expired.
func (t InterventionTeam) IsExpired(now time.Time) bool {
	return t.ResolutionTokenExpiresAt != nil && now.After(*t.ResolutionTokenExpiresAt)
}

// IsUsed indicates whether the team already submitted its resolution.
func (t InterventionTeam) IsUsed() bool {
	return !t.IsActive || t.CompletedAt != nil
}

type TeamMember struct {
	ID                 string     `json:"id"`
	TeamID             string     `json:"team_id"`
	EmployeeID         string     `json:"employee_id"`
	IsLeader           bool       `json:"is_leader"`
	NotificationSent   bool       `json:"notification_sent"`
	NotificationSentAt *time.Time `json:"notification_sent_at,omitempty"`
}
