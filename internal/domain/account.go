package domain

import "time"

// ValidationStatus is the substate of an Account's email validity check.
type ValidationStatus string

const (
	ValidationUnknown ValidationStatus = "unknown"
	ValidationValid   ValidationStatus = "valid"
	ValidationRisky   ValidationStatus = "risky"
	ValidationInvalid ValidationStatus = "invalid"
)

// Account is a CRM contact belonging to an Owner.
type Account struct {
	ID        string `json:"account_id" db:"account_id"`
	OwnerID   string `json:"owner_id" db:"owner_id"`
	Name      string `json:"name" db:"name"`
	// PersonEmail is the primary address; Email is the legacy fallback used
	// when PersonEmail is blank.
	PersonEmail string `json:"person_email" db:"person_email"`
	Email       string `json:"email" db:"email"`
	FirstName   string `json:"first_name" db:"first_name"`
	LastName    string `json:"last_name" db:"last_name"`
	Address     string `json:"address" db:"address"`
	City        string `json:"city" db:"city"`
	State       string `json:"state" db:"state"`
	Zip         string `json:"zip" db:"zip"`
	Phone       string `json:"phone" db:"phone"`
	OptedOut    bool   `json:"opted_out" db:"opted_out"`

	ValidationStatus    ValidationStatus `json:"validation_status" db:"validation_status"`
	ValidationScore     float64          `json:"validation_score" db:"validation_score"`
	ValidatedAt         *time.Time       `json:"validated_at" db:"validated_at"`
	ValidationReason    string           `json:"validation_reason,omitempty" db:"validation_reason"`
	ValidationRawDetail string           `json:"validation_raw_detail,omitempty" db:"validation_raw_detail"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RecipientEmail resolves the address the account should be mailed at,
// preferring PersonEmail and falling back to the legacy Email field.
func (a *Account) RecipientEmail() string {
	if a.PersonEmail != "" {
		return a.PersonEmail
	}
	return a.Email
}

// DispatchEligible reports whether this account may currently receive mail.
// opted_out overrides a valid validation status.
func (a *Account) DispatchEligible() bool {
	if a.OptedOut {
		return false
	}
	return a.ValidationStatus == ValidationValid
}

// PolicyStatus enumerates a Policy's lifecycle state.
type PolicyStatus string

const (
	PolicyActive PolicyStatus = "Active"
)

// Policy is a child of Account. Only Active policies drive date triggers.
type Policy struct {
	ID              string       `json:"id" db:"id"`
	AccountID       string       `json:"account_id" db:"account_id"`
	LineOfBusiness  string       `json:"line_of_business" db:"line_of_business"`
	Term            string       `json:"term" db:"term"`
	EffectiveDate   time.Time    `json:"effective_date" db:"effective_date"`
	ExpirationDate  time.Time    `json:"expiration_date" db:"expiration_date"`
	Status          PolicyStatus `json:"status" db:"status"`
}
