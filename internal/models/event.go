package models

import (
	"encoding/json"
	"time"
)

const (
	MessageTypeClaimCreated = "CLAIM_CREATED"
	MessageTypeStatusUpdate = "STATUS_UPDATE"
	MessageVersion          = "1.0"
)

// ClaimEnvelope is the claim-creation message published by the citizen portal.
type ClaimEnvelope struct {
	MessageID     string        `json:"messageId"`
	MessageType   string        `json:"messageType"`
	Timestamp     string        `json:"timestamp"`
	Version       string        `json:"version"`
	ClaimID       string        `json:"claimId" validate:"required"`
	ClaimNumber   string        `json:"claimNumber"`
	CorrelationID string        `json:"correlationId"`
	User          UserInfo      `json:"user"`
	Claim         *ClaimDetails `json:"claim" validate:"required"`
}

type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type ClaimDetails struct {
	ServiceType ServiceType     `json:"serviceType" validate:"required,oneof=lighting waste"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	Location    LocationInfo    `json:"location"`
	Attachments []Attachment    `json:"attachments"`
	ExtraData   json.RawMessage `json:"extraData,omitempty"`
}

type LocationInfo struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	District  string   `json:"district,omitempty"`
	City      string   `json:"city,omitempty"`
}

type Attachment struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	FileName   string `json:"fileName"`
	FileSize   int64  `json:"fileSize"`
	MimeType   string `json:"mimeType"`
	UploadedAt string `json:"uploadedAt"`
}

// StatusUpdate describes one claim transition to announce to the portal.
type StatusUpdate struct {
	ClaimID          string
	ClaimNumber      string
	CorrelationID    string
	Previous         ClaimStatus
	New              ClaimStatus
	Reason           string
	ServiceReference *string
	AssignedTo       *Assignee
	Resolution       *ResolutionInfo
}

type Assignee struct {
	OperatorID   string `json:"operatorId"`
	OperatorName string `json:"operatorName"`
}

type ResolutionInfo struct {
	Summary        string     `json:"summary"`
	ActionsTaken   []string   `json:"actionsTaken"`
	ClosingMessage string     `json:"closingMessage"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}
