package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/automail/internal/domain"
	"github.com/ignite/automail/internal/filter"
)

// insertBatchSize is the chunk size for InsertScheduledEmails calls.
const insertBatchSize = 100

// maxLookaheadDays bounds how far into the future a date-triggered send may
// fall; rows further out are skipped and picked up by a later refresh.
const maxLookaheadDays = 365

// Scheduler walks automations and emits ScheduledEmail rows for qualifying
// accounts, on a periodic refresh or a one-shot activation.
type Scheduler struct {
	store Store
	now   clock
}

// NewScheduler builds a Scheduler backed by store.
func NewScheduler(store Store) *Scheduler {
	return &Scheduler{store: store, now: time.Now}
}

// Refresh runs every Active automation. A single automation's failure is
// recorded and does not abort the run.
func (s *Scheduler) Refresh(ctx context.Context) error {
	automations, err := s.store.ListActiveAutomations(ctx)
	if err != nil {
		return fmt.Errorf("automation: list active: %w", err)
	}
	for _, a := range automations {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.processAutomation(ctx, a); err != nil {
			_ = s.store.RecordAutomationError(ctx, a.ID, err.Error())
		}
	}
	return nil
}

// Activate runs a single automation, typically in response to a
// just-created or just-edited workflow.
func (s *Scheduler) Activate(ctx context.Context, automationID string) error {
	a, err := s.store.GetAutomation(ctx, automationID)
	if err != nil {
		return fmt.Errorf("automation: get %s: %w", automationID, err)
	}
	if a == nil {
		return fmt.Errorf("automation: %s not found", automationID)
	}
	return s.processAutomation(ctx, *a)
}

func (s *Scheduler) processAutomation(ctx context.Context, a domain.Automation) error {
	dedup, err := s.store.ExistingDedupKeys(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("load dedup keys: %w", err)
	}

	accounts, err := s.store.CandidateAccounts(ctx, a.OwnerID)
	if err != nil {
		return fmt.Errorf("candidate accounts: %w", err)
	}
	accountIDs := make([]string, len(accounts))
	for i, acct := range accounts {
		accountIDs[i] = acct.ID
	}
	policiesByAccount, err := s.store.ActivePolicies(ctx, accountIDs)
	if err != nil {
		return fmt.Errorf("active policies: %w", err)
	}

	var matched []domain.Account
	for _, acct := range accounts {
		if filter.Evaluate(a.FilterConfig, &acct, policiesByAccount[acct.ID]) {
			matched = append(matched, acct)
		}
	}

	var sendNodes []domain.WorkflowNode
	collectSendEmailNodes(a.Nodes, &sendNodes)

	nodeTemplates := map[string]*domain.EmailTemplate{}
	templateIDs := map[string]string{}
	for _, node := range sendNodes {
		tmpl, err := s.resolveTemplate(ctx, a, node.Config)
		if err != nil {
			return err
		}
		nodeTemplates[node.ID] = tmpl
		templateIDs[node.ID] = tmpl.ID
	}

	var schedule []scheduledNode
	if err := buildSchedule(a.Nodes, 0, templateIDs, map[string]bool{}, &schedule); err != nil {
		return fmt.Errorf("workflow graph: %w", err)
	}
	if len(schedule) == 0 {
		return nil
	}

	now := s.now()
	todayUTC := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	triggerHHMM := triggerTime(a)
	dateTriggers := collapseDateTriggers(a.FilterConfig)

	var rows []domain.ScheduledEmail
	if len(dateTriggers) > 0 {
		rows = s.planDateTriggered(a, matched, policiesByAccount, dateTriggers, schedule, nodeTemplates, triggerHHMM, todayUTC, dedup)
	} else {
		rows = s.planActivation(a, matched, schedule, nodeTemplates, triggerHHMM, now, todayUTC, dedup)
	}

	return s.insertInBatches(ctx, a.ID, rows)
}

func (s *Scheduler) resolveTemplate(ctx context.Context, a domain.Automation, cfg domain.NodeConfig) (*domain.EmailTemplate, error) {
	if cfg.Template != "" {
		tmpl, err := s.store.GetTemplate(ctx, cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("resolve template %s: %w", cfg.Template, err)
		}
		if tmpl == nil {
			return nil, fmt.Errorf("template %s not found", cfg.Template)
		}
		return tmpl, nil
	}
	if cfg.TemplateKey != "" {
		tmpl, err := s.store.ResolveTemplateKey(ctx, a.OwnerID, cfg.TemplateKey)
		if err != nil {
			return nil, fmt.Errorf("resolve templateKey %s: %w", cfg.TemplateKey, err)
		}
		if tmpl == nil {
			return nil, fmt.Errorf("no template mapped for templateKey %s", cfg.TemplateKey)
		}
		return tmpl, nil
	}
	return nil, fmt.Errorf("send_email node carries neither template nor templateKey")
}

// anchorDates returns the candidate trigger dates for field on account,
// drawn from its active policies or its own creation date.
func anchorDates(field domain.DateTriggerField, account domain.Account, policies []domain.Policy) []time.Time {
	switch field {
	case domain.FieldAccountCreated:
		return []time.Time{account.CreatedAt}
	case domain.FieldPolicyExpiration:
		var dates []time.Time
		for _, p := range policies {
			if p.Status == domain.PolicyActive {
				dates = append(dates, p.ExpirationDate)
			}
		}
		return dates
	case domain.FieldPolicyEffective:
		var dates []time.Time
		for _, p := range policies {
			if p.Status == domain.PolicyActive {
				dates = append(dates, p.EffectiveDate)
			}
		}
		return dates
	}
	return nil
}

func (s *Scheduler) planDateTriggered(
	a domain.Automation,
	accounts []domain.Account,
	policiesByAccount map[string][]domain.Policy,
	dateTriggers map[domain.DateTriggerField]int,
	schedule []scheduledNode,
	templates map[string]*domain.EmailTemplate,
	triggerHHMM string,
	todayUTC time.Time,
	dedup map[domain.DedupKey]bool,
) []domain.ScheduledEmail {
	horizon := todayUTC.AddDate(0, 0, maxLookaheadDays)
	var rows []domain.ScheduledEmail

	for _, account := range accounts {
		policies := policiesByAccount[account.ID]
		for field, daysBefore := range dateTriggers {
			for _, triggerDate := range anchorDates(field, account, policies) {
				qualDate := time.Date(triggerDate.Year(), triggerDate.Month(), triggerDate.Day(), 0, 0, 0, 0, time.UTC)
				firstQualification := qualDate.AddDate(0, 0, -daysBefore)
				qualificationValue := qualDate.Format("2006-01-02")

				for _, step := range schedule {
					sendDate := addDays(firstQualification, step.DaysOffset)
					sendAt := wallClockUTC(sendDate, triggerHHMM, a.TimeZone)
					if sendAt.Before(todayUTC) || sendAt.After(horizon) {
						continue
					}

					key := domain.DedupKey{AccountID: account.ID, TemplateID: step.TemplateID, QualificationValue: qualificationValue}
					if dedup[key] {
						continue
					}
					dedup[key] = true

					rows = append(rows, s.buildRow(a, account, step, templates, key, sendAt, domain.TriggerField(field), true))
				}
			}
		}
	}
	return rows
}

func (s *Scheduler) planActivation(
	a domain.Automation,
	accounts []domain.Account,
	schedule []scheduledNode,
	templates map[string]*domain.EmailTemplate,
	triggerHHMM string,
	now time.Time,
	todayUTC time.Time,
	dedup map[domain.DedupKey]bool,
) []domain.ScheduledEmail {
	baseDate := todayUTC
	if wallClockUTC(baseDate, triggerHHMM, a.TimeZone).Before(now) {
		baseDate = baseDate.AddDate(0, 0, 1)
	}

	const qualificationValue = "immediate"
	var rows []domain.ScheduledEmail

	for _, account := range accounts {
		for _, step := range schedule {
			sendDate := addDays(baseDate, step.DaysOffset)
			sendAt := wallClockUTC(sendDate, triggerHHMM, a.TimeZone)

			key := domain.DedupKey{AccountID: account.ID, TemplateID: step.TemplateID, QualificationValue: qualificationValue}
			if dedup[key] {
				continue
			}
			dedup[key] = true

			rows = append(rows, s.buildRow(a, account, step, templates, key, sendAt, domain.TriggerActivation, false))
		}
	}
	return rows
}

func (s *Scheduler) buildRow(
	a domain.Automation,
	account domain.Account,
	step scheduledNode,
	templates map[string]*domain.EmailTemplate,
	key domain.DedupKey,
	sendAt time.Time,
	triggerField domain.TriggerField,
	requiresVerification bool,
) domain.ScheduledEmail {
	tmpl := templates[step.NodeID]
	row := domain.ScheduledEmail{
		OwnerID:              a.OwnerID,
		AutomationID:         a.ID,
		AccountID:            account.ID,
		TemplateID:           step.TemplateID,
		NodeID:               step.NodeID,
		RecipientEmail:       account.RecipientEmail(),
		RecipientName:        strings.TrimSpace(account.FirstName + " " + account.LastName),
		ScheduledFor:         sendAt,
		Status:               domain.ScheduledPending,
		RequiresVerification: requiresVerification,
		QualificationValue:   key.QualificationValue,
		TriggerField:         triggerField,
		MaxAttempts:          domain.DefaultMaxAttempts,
	}
	if tmpl != nil {
		row.FromEmail = tmpl.FromEmail
		row.FromName = tmpl.FromName
		row.Subject = tmpl.Subject
	}
	return row
}

func (s *Scheduler) insertInBatches(ctx context.Context, automationID string, rows []domain.ScheduledEmail) error {
	var firstErr error
	for i := 0; i < len(rows); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.store.InsertScheduledEmails(ctx, rows[i:end]); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("insert scheduled emails: %w", err)
			}
			_ = s.store.RecordAutomationError(ctx, automationID, err.Error())
		}
	}
	return firstErr
}
