package models

import (
	"strings"
	"time"
)

// Employee workload counters are maintained by the team-formation procedure in
// the store; this service only reads them.
type Employee struct {
	ID                 string      `json:"id"`
	FullName           string      `json:"full_name"`
	Email              string      `json:"email"`
	IsActive           bool        `json:"is_active"`
	IsSupervisor       bool        `json:"is_supervisor"`
	ServiceType        ServiceType `json:"service_type"`
	Status             string      `json:"status"`
	CurrentWorkload    int         `json:"current_workload"`
	TotalInterventions int         `json:"total_interventions"`
	CreatedAt          time.Time   `json:"created_at"`
}

// Reachable reports whether the employee can receive email.
func (e Employee) Reachable() bool {
	return e.IsActive && strings.TrimSpace(e.Email) != ""
}
