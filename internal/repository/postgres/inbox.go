package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/automail/internal/domain"
)

// InboxStore implements inbox.Store against PostgreSQL.
type InboxStore struct{ db *sql.DB }

func NewInboxStore(db *sql.DB) *InboxStore { return &InboxStore{db: db} }

func (s *InboxStore) GetActiveConnection(ctx context.Context, ownerID string) (*domain.ProviderConnection, error) {
	var c domain.ProviderConnection
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, provider, encrypted_access_token, encrypted_refresh_token,
		       token_expires_at, provider_email, status, last_error, last_used_at, created_at, updated_at
		FROM provider_connections
		WHERE owner_id = $1 AND status = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`, ownerID, domain.ConnectionActive).Scan(&c.ID, &c.OwnerID, &c.Provider, &c.EncryptedAccess, &c.EncryptedRefresh,
		&c.TokenExpiresAt, &c.ProviderEmail, &c.Status, &c.LastError, &c.LastUsedAt, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active connection for owner %s: %w", ownerID, err)
	}
	return &c, nil
}

func (s *InboxStore) UpdateConnection(ctx context.Context, conn *domain.ProviderConnection) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE provider_connections SET
			encrypted_access_token = $1, encrypted_refresh_token = $2, token_expires_at = $3,
			status = $4, last_error = $5, last_used_at = $6, updated_at = NOW()
		WHERE id = $7
	`, conn.EncryptedAccess, conn.EncryptedRefresh, conn.TokenExpiresAt,
		conn.Status, conn.LastError, conn.LastUsedAt, conn.ID)
	if err != nil {
		return fmt.Errorf("update connection %s: %w", conn.ID, err)
	}
	return nil
}

// UpsertConnection inserts a new provider connection or, if the owner
// already has one for that provider, replaces its tokens in place. Used
// by the OAuth callback; not part of inbox.Store since the injection
// flow only ever reads and refreshes an existing connection.
func (s *InboxStore) UpsertConnection(ctx context.Context, conn *domain.ProviderConnection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_connections
			(id, owner_id, provider, encrypted_access_token, encrypted_refresh_token,
			 token_expires_at, provider_email, status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', NOW(), NOW())
		ON CONFLICT (owner_id, provider) DO UPDATE SET
			encrypted_access_token = EXCLUDED.encrypted_access_token,
			encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			provider_email = EXCLUDED.provider_email,
			status = EXCLUDED.status,
			last_error = '',
			updated_at = NOW()
	`, conn.ID, conn.OwnerID, conn.Provider, conn.EncryptedAccess, conn.EncryptedRefresh,
		conn.TokenExpiresAt, conn.ProviderEmail, domain.ConnectionActive)
	if err != nil {
		return fmt.Errorf("upsert connection for owner %s provider %s: %w", conn.OwnerID, conn.Provider, err)
	}
	return nil
}

func (s *InboxStore) GetOwner(ctx context.Context, ownerID string) (*domain.Owner, error) {
	return getOwner(ctx, s.db, ownerID)
}

func (s *InboxStore) GetVerifiedSenderDomain(ctx context.Context, ownerID string) (string, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `
		SELECT domain FROM sender_domains
		WHERE owner_id = $1 AND status = $2
		ORDER BY id LIMIT 1
	`, ownerID, domain.SenderDomainVerified).Scan(&d)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("verified sender domain for owner %s: %w", ownerID, err)
	}
	return d, true, nil
}
