package domain

import "context"

// AuthGateway wraps the hosted auth service (Supabase GoTrue). All calls are
// blocking and honor ctx cancellation.
type AuthGateway interface {
	// CurrentSession returns the session the gateway currently holds, or nil
	// if nobody is signed in.
	CurrentSession(ctx context.Context) (*Session, error)
	SignUp(ctx context.Context, email, password string, metadata UserMetadata) (*SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email, redirectURL string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	// Events registers a push-style listener. The returned channel is closed
	// when the unsubscribe func runs.
	Events() (<-chan AuthEvent, func())
}

// ProfileStore is the tabular half of the backend: profile rows plus role
// extension tables.
type ProfileStore interface {
	// FetchWithDetails loads the profile joined with its role extension
	// tables, settings and subscription. Returns (nil, nil) when no row.
	FetchWithDetails(ctx context.Context, userID string) (*Profile, error)
	// FetchBasic loads only the base profile row. Returns (nil, nil) when no row.
	FetchBasic(ctx context.Context, userID string) (*Profile, error)
	ApplyUpdates(ctx context.Context, userID string, updates ProfileUpdates) error
}

// AccountGateway is the stateless counterpart of AuthGateway for serving
// many users at once: tokens are returned to the caller, never held.
type AccountGateway interface {
	SignUp(ctx context.Context, email, password string, metadata UserMetadata) (*SignUpResult, error)
	PasswordGrant(ctx context.Context, email, password string) (*Session, error)
	SendPasswordReset(ctx context.Context, email string) error
	UpdatePasswordWithToken(ctx context.Context, accessToken, newPassword string) error
	// RevokeToken invalidates the refresh token family behind an access token.
	RevokeToken(ctx context.Context, accessToken string) error
}

// ProfileDirectory covers the account sync operations the HTTP layer needs
// beyond the fetch tiers.
type ProfileDirectory interface {
	// EmailExists must stay server-side only; the answer enables enumeration.
	EmailExists(ctx context.Context, email string) (bool, error)
	// EnsureProfile creates the row if missing. Existing rows keep their role.
	EnsureProfile(ctx context.Context, id, email, role string) error
}

// ServerFunctions calls server-side functions (PostgREST RPC).
type ServerFunctions interface {
	Call(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error)
}

// FileStore covers the storage bucket primitives.
type FileStore interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	PublicURL(bucket, path string) string
	CreateBucket(ctx context.Context, name string, public bool) error
}

// Notifier surfaces one-line user-facing notices. The session core produces
// at most one notice per failure, never one per internal retry.
type Notifier interface {
	Success(message string)
	Info(message string)
	Warn(message string)
	Error(message string)
}
