package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/automail/internal/domain"
)

// AutomationStore implements automation.Store against PostgreSQL.
type AutomationStore struct{ db *sql.DB }

func NewAutomationStore(db *sql.DB) *AutomationStore { return &AutomationStore{db: db} }

func (s *AutomationStore) ListActiveAutomations(ctx context.Context) ([]domain.Automation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, status, time_zone, filter_config, nodes
		FROM automations WHERE status = $1
	`, domain.AutomationActive)
	if err != nil {
		return nil, fmt.Errorf("list active automations: %w", err)
	}
	defer rows.Close()

	var out []domain.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AutomationStore) GetAutomation(ctx context.Context, id string) (*domain.Automation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, status, time_zone, filter_config, nodes
		FROM automations WHERE id = $1
	`, id)
	a, err := scanAutomation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get automation %s: %w", id, err)
	}
	return &a, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAutomation(row rowScanner) (domain.Automation, error) {
	var a domain.Automation
	var filterRaw, nodesRaw []byte
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Status, &a.TimeZone, &filterRaw, &nodesRaw); err != nil {
		return a, err
	}
	if len(filterRaw) > 0 {
		if err := json.Unmarshal(filterRaw, &a.FilterConfig); err != nil {
			return a, fmt.Errorf("decode filter_config: %w", err)
		}
	}
	if len(nodesRaw) > 0 {
		if err := json.Unmarshal(nodesRaw, &a.Nodes); err != nil {
			return a, fmt.Errorf("decode nodes: %w", err)
		}
	}
	return a, nil
}

func (s *AutomationStore) ExistingDedupKeys(ctx context.Context, automationID string) (map[domain.DedupKey]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, template_id, qualification_value
		FROM scheduled_emails
		WHERE automation_id = $1 AND status IN ($2, $3)
	`, automationID, domain.ScheduledPending, domain.ScheduledProcessing)
	if err != nil {
		return nil, fmt.Errorf("existing dedup keys: %w", err)
	}
	defer rows.Close()

	out := map[domain.DedupKey]bool{}
	for rows.Next() {
		var k domain.DedupKey
		if err := rows.Scan(&k.AccountID, &k.TemplateID, &k.QualificationValue); err != nil {
			return nil, err
		}
		out[k] = true
	}
	return out, rows.Err()
}

func (s *AutomationStore) CandidateAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	var rows *sql.Rows
	var err error
	if ownerID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT account_id, owner_id, name, person_email, email, first_name, last_name,
			       address, city, state, zip, phone, opted_out,
			       validation_status, validation_score, validated_at, created_at
			FROM accounts WHERE opted_out = false
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT account_id, owner_id, name, person_email, email, first_name, last_name,
			       address, city, state, zip, phone, opted_out,
			       validation_status, validation_score, validated_at, created_at
			FROM accounts WHERE owner_id = $1 AND opted_out = false
		`, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("candidate accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &a.PersonEmail, &a.Email, &a.FirstName, &a.LastName,
			&a.Address, &a.City, &a.State, &a.Zip, &a.Phone, &a.OptedOut,
			&a.ValidationStatus, &a.ValidationScore, &a.ValidatedAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AutomationStore) ActivePolicies(ctx context.Context, accountIDs []string) (map[string][]domain.Policy, error) {
	out := map[string][]domain.Policy{}
	if len(accountIDs) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, line_of_business, term, effective_date, expiration_date, status
		FROM policies
		WHERE account_id = ANY($1) AND status = $2
	`, pq.Array(accountIDs), domain.PolicyActive)
	if err != nil {
		return nil, fmt.Errorf("active policies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.AccountID, &p.LineOfBusiness, &p.Term, &p.EffectiveDate, &p.ExpirationDate, &p.Status); err != nil {
			return nil, err
		}
		out[p.AccountID] = append(out[p.AccountID], p)
	}
	return out, rows.Err()
}

func (s *AutomationStore) ResolveTemplateKey(ctx context.Context, ownerID, defaultKey string) (*domain.EmailTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, default_key, category, subject, html_content, text_content, from_email, from_name, merge_fields
		FROM email_templates
		WHERE default_key = $1 AND owner_id = $2
	`, defaultKey, ownerID)
	tmpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, owner_id, default_key, category, subject, html_content, text_content, from_email, from_name, merge_fields
			FROM email_templates
			WHERE default_key = $1 AND owner_id = ''
		`, defaultKey)
		tmpl, err = scanTemplate(row)
		if err == sql.ErrNoRows {
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve template key %s: %w", defaultKey, err)
	}
	return &tmpl, nil
}

func (s *AutomationStore) GetTemplate(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, default_key, category, subject, html_content, text_content, from_email, from_name, merge_fields
		FROM email_templates WHERE id = $1
	`, id)
	tmpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return &tmpl, nil
}

func scanTemplate(row rowScanner) (domain.EmailTemplate, error) {
	var t domain.EmailTemplate
	if err := row.Scan(&t.ID, &t.OwnerID, &t.DefaultKey, &t.Category, &t.Subject, &t.HTMLContent, &t.TextContent,
		&t.FromEmail, &t.FromName, pq.Array(&t.MergeFields)); err != nil {
		return t, err
	}
	return t, nil
}

// dupKeyViolation reports whether err is a Postgres unique-violation
// (code 23505), the expected race when two refresh runs schedule the same
// dedup key concurrently (DESIGN.md Open Question 2).
func dupKeyViolation(err error) bool {
	var pqErr *pq.Error
	if ok := asPQError(err, &pqErr); ok {
		return pqErr.Code == "23505"
	}
	return false
}

func asPQError(err error, target **pq.Error) bool {
	if pe, ok := err.(*pq.Error); ok {
		*target = pe
		return true
	}
	return false
}

func (s *AutomationStore) InsertScheduledEmails(ctx context.Context, batch []domain.ScheduledEmail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert scheduled emails: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scheduled_emails
			(id, owner_id, automation_id, account_id, template_id, node_id,
			 recipient_email, recipient_name, from_email, from_name, subject,
			 scheduled_for, status, requires_verification, qualification_value,
			 trigger_field, max_attempts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (automation_id, account_id, template_id, qualification_value) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert scheduled emails: %w", err)
	}
	defer stmt.Close()

	for _, row := range batch {
		id := row.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, id, row.OwnerID, row.AutomationID, row.AccountID, row.TemplateID, row.NodeID,
			row.RecipientEmail, row.RecipientName, row.FromEmail, row.FromName, row.Subject,
			row.ScheduledFor, domain.ScheduledPending, row.RequiresVerification, row.QualificationValue,
			row.TriggerField, row.MaxAttempts); err != nil {
			if dupKeyViolation(err) {
				continue
			}
			return fmt.Errorf("insert scheduled email %s/%s: %w", row.AccountID, row.TemplateID, err)
		}
	}
	return tx.Commit()
}

func (s *AutomationStore) RecordAutomationError(ctx context.Context, automationID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_errors (automation_id, message, occurred_at)
		VALUES ($1, $2, NOW())
	`, automationID, message)
	if err != nil {
		return fmt.Errorf("record automation error: %w", err)
	}
	return nil
}
