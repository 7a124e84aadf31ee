package domain

import "time"

// Session is the identity issued by Supabase auth. It is externally owned;
// this application only observes it (and refreshes its tokens).
type Session struct {
	UserID         string            `json:"user_id"` // Supabase UUID
	Email          string            `json:"email"`
	EmailConfirmed bool              `json:"email_confirmed"`
	AccessToken    string            `json:"-"`
	RefreshToken   string            `json:"-"`
	ExpiresAt      time.Time         `json:"expires_at"`
	// Raw user metadata set at sign-up. Carries at least optional
	// full_name and role hints used for fallback profile synthesis.
	Metadata UserMetadata `json:"metadata"`
}

type UserMetadata map[string]interface{}

// FullName returns the full_name hint, or "" if absent.
func (m UserMetadata) FullName() string {
	if m == nil {
		return ""
	}
	s, _ := m["full_name"].(string)
	return s
}

// Role returns the role hint, or "" if absent.
func (m UserMetadata) Role() string {
	if m == nil {
		return ""
	}
	s, _ := m["role"].(string)
	return s
}

type AuthEventKind string

const (
	EventSignedIn       AuthEventKind = "SIGNED_IN"
	EventSignedOut      AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent is a push notification from the auth gateway. Session is nil for
// signed-out events.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// SignUpResult reports the outcome of a sign-up call. IdentitiesCount == 0
// means Supabase matched an existing account and did not create a new
// identity (it suppresses errors to avoid email enumeration).
type SignUpResult struct {
	UserID          string
	IdentitiesCount int
	Session         *Session // non-nil only when auto-confirm is enabled
}
