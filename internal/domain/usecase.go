package domain

import "context"

// RegisterOutcome reports what sign-up produced. When the address was already
// registered the auth service returns an obfuscated user with no identities;
// callers must answer as if the mail was sent.
type RegisterOutcome struct {
	UserID            string
	Session           *Session
	Profile           *Profile
	AlreadyRegistered bool
}

type AccountUsecase interface {
	Register(ctx context.Context, email, password, role, fullName string) (*RegisterOutcome, error)
	// Login exchanges credentials for a session and syncs the profile row.
	Login(ctx context.Context, email, password string) (*Session, *Profile, error)
	// Logout revokes the refresh token family behind the access token.
	Logout(ctx context.Context, accessToken string) error
	// ForgotPassword never reveals whether the address exists.
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, accessToken, newPassword string) error
	CurrentProfile(ctx context.Context, userID string) (*Profile, error)
}

type ProfileUsecase interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	// UpdateProfile applies whitelisted fields and returns the re-fetched
	// profile; the server row is the source of truth, not a local merge.
	UpdateProfile(ctx context.Context, userID string, updates ProfileUpdates) (*Profile, error)
	UploadAvatar(ctx context.Context, userID string, data []byte, contentType string) (string, error)
}
