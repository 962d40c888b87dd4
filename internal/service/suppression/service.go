package suppression

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/automail/internal/domain"
)

// Service implements suppression business logic. It is safe for concurrent use.
// All methods are pure: they take typed inputs and return typed outputs.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsSuppressed checks whether an email address should be blocked from sending.
func (s *Service) IsSuppressed(ctx context.Context, email string) (bool, error) {
	return s.repo.IsSuppressed(ctx, normalize(email))
}

// Suppress adds an email to the global suppression list. Idempotent — if the
// email is already suppressed, the existing record is preserved.
func (s *Service) Suppress(ctx context.Context, email, reason string) error {
	email = normalize(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	return s.repo.Suppress(ctx, &domain.SuppressionEntry{Email: email, Reason: reason})
}

// Remove deletes a suppression entry. Returns an error if the email is not suppressed.
func (s *Service) Remove(ctx context.Context, email string) error {
	email = normalize(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	return s.repo.Remove(ctx, email)
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error) {
	return s.repo.List(ctx, filter)
}

// Count returns the total number of suppressed emails.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Stats returns aggregate counts grouped by reason.
type Stats struct {
	Total    int            `json:"total"`
	ByReason map[string]int `json:"by_reason"`
}

// GetStats computes suppression statistics for the dashboard.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, ListFilter{Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: total, ByReason: make(map[string]int)}
	for _, e := range entries {
		stats.ByReason[e.Reason]++
	}
	return stats, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
