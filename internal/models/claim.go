package models

import (
	"encoding/json"
	"time"
)

type ServiceType string

const (
	ServiceLighting ServiceType = "lighting"
	ServiceWaste    ServiceType = "waste"
)

func (s ServiceType) Valid() bool {
	return s == ServiceLighting || s == ServiceWaste
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type ClaimStatus string

const (
	StatusSubmitted   ClaimStatus = "submitted"
	StatusRejected    ClaimStatus = "rejected"
	StatusReceived    ClaimStatus = "received"
	StatusPendingInfo ClaimStatus = "pending_info"
	StatusAssigned    ClaimStatus = "assigned"
	StatusInProgress  ClaimStatus = "in_progress"
	StatusResolved    ClaimStatus = "resolved"
	StatusClosed      ClaimStatus = "closed"
)

// transitions lists the forward edges of the claim lifecycle. No edge leads back
// to an earlier state.
var transitions = map[ClaimStatus][]ClaimStatus{
	StatusSubmitted:  {StatusRejected, StatusReceived},
	StatusReceived:   {StatusAssigned, StatusPendingInfo},
	StatusAssigned:   {StatusInProgress},
	StatusInProgress: {StatusResolved},
	StatusResolved:   {StatusClosed},
}

// CanTransition reports whether a claim in status from may move to status to.
func CanTransition(from, to ClaimStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Claim struct {
	ID                   string          `json:"id"`
	PortalClaimID        string          `json:"portal_claim_id"`
	ClaimNumber          string          `json:"claim_number"`
	InternalTicketNumber *string         `json:"internal_ticket_number,omitempty"`
	ServiceType          ServiceType     `json:"service_type"`
	Priority             Priority        `json:"priority"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	LocationAddress      string          `json:"location_address"`
	LocationLat          *float64        `json:"location_lat,omitempty"`
	LocationLng          *float64        `json:"location_lng,omitempty"`
	UserID               string          `json:"user_id"`
	UserEmail            string          `json:"user_email"`
	UserName             string          `json:"user_name,omitempty"`
	UserPhone            string          `json:"user_phone,omitempty"`
	ServiceSpecificData  json.RawMessage `json:"service_specific_data,omitempty"`
	Status               ClaimStatus     `json:"status"`
	RequiresSupervisor   bool            `json:"requires_supervisor_validation"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	TeamAssignedAt       *time.Time      `json:"team_assigned_at,omitempty"`
	InterventionDate     *time.Time      `json:"intervention_scheduled_date,omitempty"`
	ResolutionText       *string         `json:"resolution_description,omitempty"`
	ResolutionSubmitted  *time.Time      `json:"resolution_submitted_at,omitempty"`
	ResolutionSubmitter  *string         `json:"resolution_submitted_by,omitempty"`
	ResolvedAt           *time.Time      `json:"resolved_at,omitempty"`
}

// Reference is the number shown to field teams: the internal ticket when the
// store assigned one, the portal claim number otherwise.
func (c Claim) Reference() string {
	if c.InternalTicketNumber != nil && *c.InternalTicketNumber != "" {
		return *c.InternalTicketNumber
	}
	return c.ClaimNumber
}

// ClaimSummary is the projection returned to requesters listing their claims.
type ClaimSummary struct {
	ID             string      `json:"id"`
	ClaimNumber    string      `json:"claimNumber"`
	InternalTicket *string     `json:"internalTicket"`
	Title          string      `json:"title"`
	Priority       Priority    `json:"priority"`
	Service        ServiceType `json:"service"`
	Status         ClaimStatus `json:"status"`
	Location       string      `json:"location"`
	CreatedAt      time.Time   `json:"createdAt"`
	ScheduledDate  *time.Time  `json:"scheduledDate"`
	TeamLeader     *string     `json:"teamLeader"`
}
