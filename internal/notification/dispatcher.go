package notification

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/claimflow/internal/models"
	"github.com/stanstork/claimflow/internal/repository"
)

// ErrLeaderUnreachable aborts a dispatch before anything is sent: without a
// reachable leader nobody can submit the resolution.
var ErrLeaderUnreachable = errors.New("team leader is missing or inactive")

type SendStatus string

const (
	SendSkipped SendStatus = "skipped"
	SendSent    SendStatus = "sent"
	SendFailed  SendStatus = "failed"
)

// Result reports what happened to each of the three sends of a dispatch.
type Result struct {
	MemberBatch     SendStatus
	Leader          SendStatus
	Supervisor      SendStatus
	MembersNotified int
}

type DispatcherConfig struct {
	From          string
	PublicBaseURL string
}

// Dispatcher emails a freshly assigned team: members in one blind-copy batch,
// the leader with a resolution link, and for lighting claims the supervisor
// with a closure link. Every recipient gets a log row before the send.
type Dispatcher struct {
	claims        repository.ClaimRepository
	teams         repository.TeamRepository
	employees     repository.EmployeeRepository
	notifications repository.NotificationRepository
	mailer        Mailer
	from          string
	baseURL       string
	now           func() time.Time
	logger        zerolog.Logger
}

func NewDispatcher(store *repository.Gateway, mailer Mailer, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		claims:        store.Claims,
		teams:         store.Teams,
		employees:     store.Employees,
		notifications: store.Notifications,
		mailer:        mailer,
		from:          cfg.From,
		baseURL:       strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:           time.Now,
		logger:        logger.With().Str("component", "notification-dispatcher").Logger(),
	}
}

// ResolutionLink is the leader's entry point for submitting a resolution.
func (d *Dispatcher) ResolutionLink(token string) string {
	return fmt.Sprintf("%s/team/resolve?token=%s", d.baseURL, url.QueryEscape(token))
}

// ClosureLink is the supervisor's entry point for closing a claim.
func (d *Dispatcher) ClosureLink(claimID string) string {
	return fmt.Sprintf("%s/supervisor/close?claimId=%s", d.baseURL, url.QueryEscape(claimID))
}

// Dispatch notifies the team assigned to a claim. Members already flagged as
// notified are not emailed again, so repeated calls are harmless.
//
// Pending rows, the leader's included, are flagged notified when the member
// batch succeeds. A batch with no reachable non-leader member has nothing to
// send and counts as a success, so those rows are flagged even if the leader
// send failed; otherwise the next call would email the leader again.
func (d *Dispatcher) Dispatch(ctx context.Context, claimID, teamID string) (Result, error) {
	res := Result{MemberBatch: SendSkipped, Leader: SendSkipped, Supervisor: SendSkipped}
	log := d.logger.With().Str("claim_id", claimID).Str("team_id", teamID).Logger()

	claim, err := d.claims.GetByID(ctx, claimID)
	if err != nil {
		return res, errors.Wrapf(err, "load claim %s", claimID)
	}
	log = log.With().Str("claim_number", claim.ClaimNumber).Logger()

	team, err := d.teams.GetByID(ctx, teamID)
	if err != nil {
		return res, errors.Wrapf(err, "load team %s", teamID)
	}

	pending, err := d.teams.ListUnnotifiedMembers(ctx, teamID)
	if err != nil {
		return res, errors.Wrapf(err, "list unnotified members of team %s", teamID)
	}
	if len(pending) == 0 {
		log.Debug().Msg("No members left to notify")
		return res, nil
	}

	leader, err := d.employees.GetByID(ctx, team.LeaderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return res, errors.Wrapf(err, "load leader %s", team.LeaderID)
	}
	if err != nil || !leader.Reachable() {
		log.Warn().Str("leader_id", team.LeaderID).Msg("Leader unreachable, dispatch aborted")
		return res, ErrLeaderUnreachable
	}

	memberEmails, err := d.memberEmails(ctx, pending)
	if err != nil {
		return res, err
	}

	view := newEmailView(claim)
	base := repository.CreateNotificationParams{ClaimID: claim.ID, TeamID: team.ID}

	// An empty member batch has nothing to deliver and counts as delivered.
	membersOK := true
	if len(memberEmails) > 0 {
		p := base
		p.RecipientType = models.RecipientTeamMember
		p.EmailType = models.EmailTeamMemberAssignment
		p.Subject = fmt.Sprintf("[%s] Claim %s - %s", strings.ToUpper(string(claim.Priority)), claim.ClaimNumber, claim.Title)
		membersOK = d.sendAndLog(ctx, log, "member", view, p, memberEmails, true)
		res.MemberBatch = statusOf(membersOK)
	}

	{
		p := base
		p.RecipientType = models.RecipientTeamLeader
		p.EmailType = models.EmailLeaderResolutionLink
		p.Subject = fmt.Sprintf("[LEADER] Claim %s - Submit resolution", claim.ClaimNumber)
		p.ActionLink = d.ResolutionLink(team.ResolutionToken)
		ok := d.sendAndLog(ctx, log, "leader", view, p, []string{strings.TrimSpace(leader.Email)}, false)
		res.Leader = statusOf(ok)
	}

	if claim.ServiceType == models.ServiceLighting {
		if supervisor, ok := d.supervisor(ctx, log, team); ok {
			p := base
			p.RecipientType = models.RecipientSupervisor
			p.EmailType = models.EmailSupervisorClosureLink
			p.Subject = fmt.Sprintf("[SUPERVISOR] Claim %s - Closure", claim.ClaimNumber)
			p.ActionLink = d.ClosureLink(claim.ID)
			sent := d.sendAndLog(ctx, log, "supervisor", view, p, []string{strings.TrimSpace(supervisor.Email)}, false)
			res.Supervisor = statusOf(sent)
		}
	}

	if !membersOK {
		log.Warn().Msg("Member batch failed, members left unnotified")
		return res, nil
	}

	ids := make([]string, 0, len(pending))
	for _, m := range pending {
		ids = append(ids, m.ID)
	}
	if err := d.teams.MarkMembersNotified(ctx, ids, d.now()); err != nil {
		return res, errors.Wrapf(err, "mark members of team %s notified", teamID)
	}
	res.MembersNotified = len(ids)

	log.Info().
		Str("members", string(res.MemberBatch)).
		Str("leader", string(res.Leader)).
		Str("supervisor", string(res.Supervisor)).
		Msg("Team notified")
	return res, nil
}

func (d *Dispatcher) memberEmails(ctx context.Context, pending []models.TeamMember) ([]string, error) {
	var ids []string
	for _, m := range pending {
		if !m.IsLeader {
			ids = append(ids, m.EmployeeID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	employees, err := d.employees.ListByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load member employees")
	}
	var emails []string
	for _, e := range employees {
		if e.Reachable() {
			emails = append(emails, strings.TrimSpace(e.Email))
		}
	}
	return emails, nil
}

func (d *Dispatcher) supervisor(ctx context.Context, log zerolog.Logger, team models.InterventionTeam) (models.Employee, bool) {
	if team.SupervisorID == nil {
		return models.Employee{}, false
	}
	sup, err := d.employees.GetByID(ctx, *team.SupervisorID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error().Err(err).Str("supervisor_id", *team.SupervisorID).Msg("Failed to load supervisor")
		}
		return models.Employee{}, false
	}
	return sup, sup.Reachable()
}

// sendAndLog writes one unsent row per recipient, sends, then records the
// outcome on those rows. It reports whether the transport accepted the message.
func (d *Dispatcher) sendAndLog(ctx context.Context, log zerolog.Logger, tmpl string, view emailView, p repository.CreateNotificationParams, recipients []string, bcc bool) bool {
	log = log.With().Str("email_type", string(p.EmailType)).Int("recipients", len(recipients)).Logger()

	view.ActionLink = p.ActionLink
	body, err := render(tmpl, view)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render email")
		return false
	}
	p.BodyHTML = body

	rows := make([]repository.CreateNotificationParams, len(recipients))
	for i, email := range recipients {
		rows[i] = p
		rows[i].RecipientEmail = email
	}
	ids, err := d.notifications.CreatePending(ctx, rows)
	if err != nil {
		log.Error().Err(err).Msg("Failed to log notification, send skipped")
		return false
	}

	msg := Message{From: d.from, Subject: p.Subject, HTML: body}
	if bcc {
		msg.To = []string{d.from}
		msg.Bcc = recipients
	} else {
		msg.To = recipients
	}

	sendErr := d.mailer.Send(ctx, msg)
	// The outcome is recorded even when the send ran out of time.
	outcomeCtx := context.WithoutCancel(ctx)
	if sendErr != nil {
		log.Error().Err(sendErr).Msg("Email send failed")
		if err := d.notifications.MarkFailed(outcomeCtx, ids, sendErr.Error()); err != nil {
			log.Error().Err(err).Msg("Failed to record send failure")
		}
		return false
	}

	if err := d.notifications.MarkSent(outcomeCtx, ids, d.now()); err != nil {
		log.Error().Err(err).Msg("Failed to record send success")
	}
	log.Info().Msg("Email sent")
	return true
}

func statusOf(ok bool) SendStatus {
	if ok {
		return SendSent
	}
	return SendFailed
}
