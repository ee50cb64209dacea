package v1

import "time"

// OAuthStatus tracks the authorization state of an OAuthSession (§3).
type OAuthStatus string

const (
	OAuthPending      OAuthStatus = "pending"
	OAuthAuthorized   OAuthStatus = "authorized"
	OAuthExpired      OAuthStatus = "expired"
	OAuthRevoked      OAuthStatus = "revoked"
)

// OAuthSession is the public (non-secret) view of a per-user, per-resource
// OAuth grant (§3, §4.10). Tokens and client secrets are never serialized
// here; they live only in the encrypted vault.
type OAuthSession struct {
	ID                string      `json:"id"`
	UserID            string      `json:"user_id"`
	ResourceURL       string      `json:"resource_url"`
	AuthorizationURL  string      `json:"authorization_url"`
	Status            OAuthStatus `json:"status"`
	ExpiresAt         *time.Time  `json:"expires_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}
