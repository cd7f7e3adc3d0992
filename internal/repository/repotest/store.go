// Package repotest is an in-process implementation of the repository gateway
// for tests of the services built on it.
// Team formation mirrors the store procedures: three available employees of
// the service type, the first as leader, plus an active supervisor if any.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stanstork/claimflow/internal/models"
	"github.com/stanstork/claimflow/internal/repository"
)

const teamSize = 3

type Store struct {
	mu sync.Mutex

	claims        map[string]*models.Claim
	teams         map[string]*models.InterventionTeam
	members       map[string][]*models.TeamMember
	employees     map[string]*models.Employee
	notifications []*models.EmailNotification
	actions       []models.ClaimAction
	seq           int

	// Injected failures, checked before the corresponding call mutates anything.
	CanCreateErr  error
	CreateTeamErr error
	CreateErr     error

	Now func() time.Time
}

func New() *Store {
	return &Store{
		claims:    make(map[string]*models.Claim),
		teams:     make(map[string]*models.InterventionTeam),
		members:   make(map[string][]*models.TeamMember),
		employees: make(map[string]*models.Employee),
		Now:       time.Now,
	}
}

// Gateway exposes the store through the repository interfaces.
func (s *Store) Gateway() *repository.Gateway {
	return &repository.Gateway{
		Claims:        claimRepo{s},
		Teams:         teamRepo{s},
		Employees:     employeeRepo{s},
		Notifications: notificationRepo{s},
		Actions:       actionRepo{s},
	}
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

// AddEmployee registers an employee. Status defaults to "available".
func (s *Store) AddEmployee(e models.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Status == "" {
		e.Status = "available"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.Now()
	}
	s.employees[e.ID] = &e
}

// AddClaim stores a claim as-is, for tests that start mid-lifecycle.
func (s *Store) AddClaim(c models.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[c.ID] = &c
}

// AddTeam stores a team and its members as-is.
func (s *Store) AddTeam(t models.InterventionTeam, members ...models.TeamMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[t.ID] = &t
	for i := range members {
		m := members[i]
		if m.ID == "" {
			m.ID = s.nextID("member")
		}
		m.TeamID = t.ID
		s.members[t.ID] = append(s.members[t.ID], &m)
	}
}

func (s *Store) Claim(id string) (models.Claim, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return models.Claim{}, false
	}
	return *c, true
}

func (s *Store) Team(id string) (models.InterventionTeam, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return models.InterventionTeam{}, false
	}
	return *t, true
}

func (s *Store) TeamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.teams)
}

func (s *Store) Members(teamID string) []models.TeamMember {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TeamMember, 0, len(s.members[teamID]))
	for _, m := range s.members[teamID] {
		out = append(out, *m)
	}
	return out
}

func (s *Store) Notifications() []models.EmailNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EmailNotification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	return out
}

func (s *Store) Actions(claimID string) []models.ClaimAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ClaimAction
	for _, a := range s.actions {
		if a.ClaimID == claimID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) availableFor(service models.ServiceType) []*models.Employee {
	var out []*models.Employee
	for _, e := range s.employees {
		if e.ServiceType == service && e.IsActive && !e.IsSupervisor && e.Status == "available" {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentWorkload != out[j].CurrentWorkload {
			return out[i].CurrentWorkload < out[j].CurrentWorkload
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type claimRepo struct{ s *Store }

func (r claimRepo) Create(_ context.Context, p repository.CreateClaimParams) (models.Claim, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return models.Claim{}, s.CreateErr
	}
	now := s.Now()
	id := s.nextID("claim")
	ticket := fmt.Sprintf("LW-%06d", s.seq)
	c := &models.Claim{
		ID:                   id,
		PortalClaimID:        p.PortalClaimID,
		ClaimNumber:          p.ClaimNumber,
		InternalTicketNumber: &ticket,
		ServiceType:          p.ServiceType,
		Priority:             p.Priority,
		Title:                p.Title,
		Description:          p.Description,
		LocationAddress:      p.LocationAddress,
		LocationLat:          p.LocationLat,
		LocationLng:          p.LocationLng,
		UserID:               p.UserID,
		UserEmail:            p.UserEmail,
		UserName:             p.UserName,
		UserPhone:            p.UserPhone,
		ServiceSpecificData:  p.ServiceSpecificData,
		Status:               p.Status,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	s.claims[id] = c
	return *c, nil
}

func (r claimRepo) GetByID(_ context.Context, id string) (models.Claim, error) {
	c, ok := r.s.Claim(id)
	if !ok {
		return models.Claim{}, repository.ErrNotFound
	}
	return c, nil
}

func (r claimRepo) GetByPortalID(_ context.Context, portalID string) (models.Claim, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.claims {
		if c.PortalClaimID == portalID {
			return *c, nil
		}
	}
	return models.Claim{}, repository.ErrNotFound
}

func (r claimRepo) ListByUser(_ context.Context, userID string) ([]models.ClaimSummary, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ClaimSummary
	for _, c := range s.claims {
		if c.UserID != userID {
			continue
		}
		sum := models.ClaimSummary{
			ID:             c.ID,
			ClaimNumber:    c.ClaimNumber,
			InternalTicket: c.InternalTicketNumber,
			Title:          c.Title,
			Priority:       c.Priority,
			Service:        c.ServiceType,
			Status:         c.Status,
			Location:       c.LocationAddress,
			CreatedAt:      c.CreatedAt,
			ScheduledDate:  c.InterventionDate,
		}
		if t := s.latestTeam(c.ID); t != nil {
			if e, ok := s.employees[t.LeaderID]; ok {
				name := e.FullName
				sum.TeamLeader = &name
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r claimRepo) SetInterventionDate(_ context.Context, id string, at time.Time) error {
	return r.s.updateClaim(id, "", func(c *models.Claim) { c.InterventionDate = &at })
}

func (r claimRepo) MarkAssigned(_ context.Context, id string, at time.Time) error {
	return r.s.updateClaim(id, models.StatusReceived, func(c *models.Claim) {
		c.Status = models.StatusAssigned
		c.TeamAssignedAt = &at
	})
}

func (r claimRepo) UpdateStatus(_ context.Context, id string, from, to models.ClaimStatus) error {
	if !models.CanTransition(from, to) {
		return fmt.Errorf("invalid claim transition %s -> %s", from, to)
	}
	return r.s.updateClaim(id, from, func(c *models.Claim) { c.Status = to })
}

func (r claimRepo) SubmitResolution(_ context.Context, p repository.SubmitResolutionParams) (models.Claim, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[p.TeamID]
	if !ok || !t.IsActive {
		return models.Claim{}, repository.ErrTeamInactive
	}
	c, ok := s.claims[p.ClaimID]
	if !ok || c.Status != models.StatusInProgress {
		return models.Claim{}, repository.ErrStatusConflict
	}
	at := p.SubmittedAt
	t.IsActive = false
	t.CompletedAt = &at
	desc, by := p.Description, p.LeaderID
	c.ResolutionText = &desc
	c.ResolutionSubmitted = &at
	c.ResolutionSubmitter = &by
	c.ResolvedAt = &at
	c.Status = models.StatusResolved
	c.UpdatedAt = s.Now()
	return *c, nil
}

func (r claimRepo) Close(_ context.Context, id string) (models.Claim, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok || c.Status != models.StatusResolved {
		return models.Claim{}, repository.ErrStatusConflict
	}
	c.Status = models.StatusClosed
	c.UpdatedAt = s.Now()
	return *c, nil
}

// updateClaim applies fn when the claim exists and, if from is set, is still
// in that status.
func (s *Store) updateClaim(id string, from models.ClaimStatus, fn func(*models.Claim)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return repository.ErrNotFound
	}
	if from != "" && c.Status != from {
		return repository.ErrStatusConflict
	}
	fn(c)
	c.UpdatedAt = s.Now()
	return nil
}

func (s *Store) latestTeam(claimID string) *models.InterventionTeam {
	var latest *models.InterventionTeam
	for _, t := range s.teams {
		if t.ClaimID == claimID && (latest == nil || t.CreatedAt.After(latest.CreatedAt)) {
			latest = t
		}
	}
	return latest
}

type teamRepo struct{ s *Store }

func (r teamRepo) CanCreateTeam(_ context.Context, service models.ServiceType) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CanCreateErr != nil {
		return false, s.CanCreateErr
	}
	return len(s.availableFor(service)) >= teamSize, nil
}

func (r teamRepo) CreateTeam(_ context.Context, claimID string, service models.ServiceType) (string, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateTeamErr != nil {
		return "", s.CreateTeamErr
	}
	picked := s.availableFor(service)
	if len(picked) < teamSize {
		return "", fmt.Errorf("not enough available employees for %s", service)
	}
	picked = picked[:teamSize]

	now := s.Now()
	expires := now.Add(7 * 24 * time.Hour)
	t := &models.InterventionTeam{
		ID:                       s.nextID("team"),
		ClaimID:                  claimID,
		ServiceType:              service,
		LeaderID:                 picked[0].ID,
		ResolutionToken:          s.nextID("token"),
		ResolutionTokenExpiresAt: &expires,
		IsActive:                 true,
		CreatedAt:                now,
	}
	for _, e := range s.employees {
		if e.ServiceType == service && e.IsActive && e.IsSupervisor {
			if t.SupervisorID == nil || e.ID < *t.SupervisorID {
				id := e.ID
				t.SupervisorID = &id
			}
		}
	}
	s.teams[t.ID] = t
	for i, e := range picked {
		s.members[t.ID] = append(s.members[t.ID], &models.TeamMember{
			ID:         s.nextID("member"),
			TeamID:     t.ID,
			EmployeeID: e.ID,
			IsLeader:   i == 0,
		})
		e.Status = "busy"
		e.CurrentWorkload++
		e.TotalInterventions++
	}
	if c, ok := s.claims[claimID]; ok && service == models.ServiceLighting {
		c.RequiresSupervisor = true
	}
	return t.ID, nil
}

func (r teamRepo) GetByID(_ context.Context, id string) (models.InterventionTeam, error) {
	t, ok := r.s.Team(id)
	if !ok {
		return models.InterventionTeam{}, repository.ErrNotFound
	}
	return t, nil
}

func (r teamRepo) GetByToken(_ context.Context, token string) (models.InterventionTeam, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.teams {
		if t.ResolutionToken == token {
			return *t, nil
		}
	}
	return models.InterventionTeam{}, repository.ErrNotFound
}

func (r teamRepo) GetLatestByClaim(_ context.Context, claimID string) (models.InterventionTeam, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.latestTeam(claimID)
	if t == nil {
		return models.InterventionTeam{}, repository.ErrNotFound
	}
	return *t, nil
}

func (r teamRepo) ListMembers(_ context.Context, teamID string) ([]models.TeamMember, error) {
	return r.s.Members(teamID), nil
}

func (r teamRepo) ListUnnotifiedMembers(_ context.Context, teamID string) ([]models.TeamMember, error) {
	var out []models.TeamMember
	for _, m := range r.s.Members(teamID) {
		if !m.NotificationSent {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r teamRepo) MarkMembersNotified(_ context.Context, ids []string, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, ms := range s.members {
		for _, m := range ms {
			if want[m.ID] {
				m.NotificationSent = true
				m.NotificationSentAt = &at
			}
		}
	}
	return nil
}

type employeeRepo struct{ s *Store }

func (r employeeRepo) GetByID(_ context.Context, id string) (models.Employee, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.employees[id]
	if !ok {
		return models.Employee{}, repository.ErrNotFound
	}
	return *e, nil
}

func (r employeeRepo) ListByIDs(_ context.Context, ids []string) ([]models.Employee, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Employee
	for _, id := range ids {
		if e, ok := r.s.employees[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) CreatePending(_ context.Context, params []repository.CreateNotificationParams) ([]string, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(params))
	for _, p := range params {
		n := &models.EmailNotification{
			ID:             s.nextID("notification"),
			ClaimID:        p.ClaimID,
			TeamID:         p.TeamID,
			RecipientEmail: p.RecipientEmail,
			RecipientType:  p.RecipientType,
			EmailType:      p.EmailType,
			Subject:        p.Subject,
			BodyHTML:       p.BodyHTML,
			CreatedAt:      s.Now(),
		}
		if p.ActionLink != "" {
			link := p.ActionLink
			n.ActionLink = &link
		}
		s.notifications = append(s.notifications, n)
		ids = append(ids, n.ID)
	}
	return ids, nil
}

func (r notificationRepo) MarkSent(_ context.Context, ids []string, at time.Time) error {
	r.s.eachNotification(ids, func(n *models.EmailNotification) {
		n.Sent = true
		n.SentAt = &at
		n.ErrorMessage = nil
	})
	return nil
}

func (r notificationRepo) MarkFailed(_ context.Context, ids []string, reason string) error {
	r.s.eachNotification(ids, func(n *models.EmailNotification) {
		n.Sent = false
		n.ErrorMessage = &reason
	})
	return nil
}

func (r notificationRepo) ListByClaim(_ context.Context, claimID string) ([]models.EmailNotification, error) {
	var out []models.EmailNotification
	for _, n := range r.s.Notifications() {
		if n.ClaimID == claimID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) eachNotification(ids []string, fn func(*models.EmailNotification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, n := range s.notifications {
		if want[n.ID] {
			fn(n)
		}
	}
}

type actionRepo struct{ s *Store }

func (r actionRepo) Record(_ context.Context, p repository.RecordActionParams) (models.ClaimAction, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a := models.ClaimAction{
		ID:          s.nextID("action"),
		ClaimID:     p.ClaimID,
		ActionType:  p.ActionType,
		Description: p.Description,
		NewStatus:   p.NewStatus,
		CreatedAt:   s.Now(),
	}
	if p.PreviousStatus != "" {
		prev := p.PreviousStatus
		a.PreviousStatus = &prev
	}
	s.actions = append(s.actions, a)
	return a, nil
}

func (r actionRepo) ListByClaim(_ context.Context, claimID string) ([]models.ClaimAction, error) {
	return r.s.Actions(claimID), nil
}
