package models

import "time"

type ActionType string

const (
	ActionRejectedNoTeam      ActionType = "REJECTION_NO_TEAM"
	ActionTeamAssigned        ActionType = "TEAM_ASSIGNED"
	ActionAssignmentFailed    ActionType = "TEAM_ASSIGNMENT_FAILED"
	ActionWorkStarted         ActionType = "WORK_STARTED"
	ActionResolutionSubmitted ActionType = "RESOLUTION_SUBMITTED"
	ActionClosedBySupervisor  ActionType = "CLOSED_BY_SUPERVISOR"
)

// ClaimAction is a timeline entry, one per meaningful transition.
type ClaimAction struct {
	ID             string       `json:"id"`
	ClaimID        string       `json:"claim_id"`
	ActionType     ActionType   `json:"action_type"`
	Description    string       `json:"action_description"`
	PreviousStatus *ClaimStatus `json:"previous_status,omitempty"`
	NewStatus      ClaimStatus  `json:"new_status"`
	CreatedAt      time.Time    `json:"created_at"`
}
