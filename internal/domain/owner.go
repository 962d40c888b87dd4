package domain

import "time"

// Owner is the tenant. Automations, templates, sender domains, and provider
// connections are all scoped to an owner_id.
type Owner struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Email    string `json:"email" db:"email"`
	TimeZone string `json:"time_zone" db:"time_zone"`

	// Company identity fields, assembled into the outbound footer
	// (internal/mimeutil.CompanyBlock) alongside the unsubscribe link.
	Address string `json:"address" db:"address"`
	Phone   string `json:"phone" db:"phone"`
	Website string `json:"website" db:"website"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ProviderType identifies a mailbox provider for OAuth-controlled inbox injection.
type ProviderType string

const (
	ProviderGmail     ProviderType = "gmail"
	ProviderMicrosoft ProviderType = "microsoft"
)

// ConnectionStatus enumerates ProviderConnection health.
type ConnectionStatus string

const (
	ConnectionActive  ConnectionStatus = "active"
	ConnectionError   ConnectionStatus = "error"
	ConnectionExpired ConnectionStatus = "expired"
)

// ProviderConnection holds an owner's encrypted OAuth credentials for one
// mailbox provider. Access and refresh tokens are stored ciphertext-only;
// internal/crypto is the only component that ever sees plaintext.
type ProviderConnection struct {
	ID                string           `json:"id" db:"id"`
	OwnerID           string           `json:"owner_id" db:"owner_id"`
	Provider          ProviderType     `json:"provider" db:"provider"`
	EncryptedAccess   string           `json:"-" db:"encrypted_access_token"`
	EncryptedRefresh  string           `json:"-" db:"encrypted_refresh_token"`
	TokenExpiresAt    time.Time        `json:"token_expires_at" db:"token_expires_at"`
	ProviderEmail     string           `json:"provider_email" db:"provider_email"`
	Status            ConnectionStatus `json:"status" db:"status"`
	LastError         string           `json:"last_error,omitempty" db:"last_error"`
	LastUsedAt        *time.Time       `json:"last_used_at" db:"last_used_at"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the stored access token needs a refresh before use.
func (p *ProviderConnection) Expired(now time.Time) bool {
	return now.After(p.TokenExpiresAt)
}
