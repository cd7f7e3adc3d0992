package models

import "time"

type RecipientType string

const (
	RecipientTeamMember RecipientType = "team_member"
	RecipientTeamLeader RecipientType = "team_leader"
	RecipientSupervisor RecipientType = "supervisor"
)

type EmailType string

const (
	EmailTeamMemberAssignment  EmailType = "team_member_assignment"
	EmailLeaderResolutionLink  EmailType = "leader_resolution_link"
	EmailSupervisorClosureLink EmailType = "supervisor_closure_link"
)

// EmailNotification is one log row per recipient of a send. Rows are written
// unsent before the transport call and updated once it resolves. ActionLink
// carries a bearer capability and is never serialized.
type EmailNotification struct {
	ID             string        `json:"id"`
	ClaimID        string        `json:"claim_id"`
	TeamID         string        `json:"team_id"`
	RecipientEmail string        `json:"recipient_email"`
	RecipientType  RecipientType `json:"recipient_type"`
	EmailType      EmailType     `json:"email_type"`
	Subject        string        `json:"subject"`
	BodyHTML       string        `json:"-"`
	ActionLink     *string       `json:"-"`
	Sent           bool          `json:"sent"`
	SentAt         *time.Time    `json:"sent_at,omitempty"`
	ErrorMessage   *string       `json:"error_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
