package domain

import "time"

type GrantStatus string

const (
	GrantActive  GrantStatus = "active"
	GrantRevoked GrantStatus = "revoked"
)

func ParseGrantStatus(s string) (GrantStatus, bool) {
	switch GrantStatus(s) {
	case GrantActive, GrantRevoked:
		return GrantStatus(s), true
	default:
		return "", false
	}
}

// AccessGrant is one entry in the append-only entitlement ledger: it records
// that a user paid to see a collaborator's contact channels. Grants are never
// deleted; revocation flips Status and is terminal. Expiry is not a stored
// status — an active grant past ExpiresAt simply stops being effective.
type AccessGrant struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	CollaboratorID string      `json:"collaborator_id"`
	PaymentID      string      `json:"payment_id"`
	Price          float64     `json:"price"`
	Currency       string      `json:"currency"`
	Description    string      `json:"description,omitempty"`
	Status         GrantStatus `json:"status"`
	GrantedAt      time.Time   `json:"granted_at"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	RevokedAt      *time.Time  `json:"revoked_at,omitempty"`
}

// IsExpired reports whether the grant's window has passed at the given
// instant. Grants with no ExpiresAt never expire.
func (g *AccessGrant) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// IsEffective reports whether the grant authorizes access right now:
// still active and not past its expiry.
func (g *AccessGrant) IsEffective(now time.Time) bool {
	return g.Status == GrantActive && !g.IsExpired(now)
}

// AccessDecision is the derived answer of an access check. It is never
// persisted; Grant is the ledger row that justified a positive answer.
type AccessDecision struct {
	HasAccess bool
	Grant     *AccessGrant
}

// UnlockRequest is the body of POST /collaborators/{id}/unlock. PaymentRef is
// an opaque reference to an already-settled payment; this service never
// charges. DurationDays semantics: nil means the configured default, zero
// requests a non-expiring grant (only honored when the deployment allows it),
// negative is rejected.
type UnlockRequest struct {
	PaymentRef   string  `json:"payment_ref"`
	Description  string  `json:"description,omitempty"`
	Price        float64 `json:"price,omitempty"`
	Currency     string  `json:"currency,omitempty"`
	DurationDays *int    `json:"duration_days,omitempty"`
}

// UnlockResult is what an unlock call returns. Granted is true only when this
// call created the grant; an idempotent replay or a lost creation race returns
// the existing grant with Granted=false.
type UnlockResult struct {
	Grant   *AccessGrant `json:"grant"`
	Granted bool         `json:"granted"`
}

// GrantStats summarizes the ledger for the admin dashboard. Expired counts
// active rows whose window has passed; it overlaps Active because expiry is
// derived, not stored.
type GrantStats struct {
	Total        int64   `json:"total"`
	Active       int64   `json:"active"`
	Revoked      int64   `json:"revoked"`
	Expired      int64   `json:"expired"`
	TotalRevenue float64 `json:"total_revenue"`
}
