package usecase

import (
	"context"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"
	"go-jobmarket-backend/pkg/logger"
)

type accountUsecase struct {
	accounts  domain.AccountGateway
	profiles  domain.ProfileStore
	directory domain.ProfileDirectory
	funcs     domain.ServerFunctions
}

func NewAccountUsecase(accounts domain.AccountGateway, profiles domain.ProfileStore, directory domain.ProfileDirectory, funcs domain.ServerFunctions) domain.AccountUsecase {
	return &accountUsecase{
		accounts:  accounts,
		profiles:  profiles,
		directory: directory,
		funcs:     funcs,
	}
}

func (u *accountUsecase) Register(ctx context.Context, email, password, role, fullName string) (*domain.RegisterOutcome, error) {
	if !domain.ValidRole(domain.Role(role)) {
		return nil, apperror.BadRequest("Invalid role: " + role)
	}

	metadata := domain.UserMetadata{"role": role}
	if fullName != "" {
		metadata["full_name"] = fullName
	}

	res, err := u.accounts.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, err
	}

	outcome := &domain.RegisterOutcome{UserID: res.UserID}

	// GoTrue obfuscates duplicate sign-ups as a user with zero identities.
	if res.IdentitiesCount == 0 {
		outcome.AlreadyRegistered = true
		return outcome, nil
	}

	if res.Session == nil {
		// Confirmation mail pending; the profile is provisioned on first login.
		return outcome, nil
	}

	// Auto-confirmed project: provision the profile row now. The server
	// function owns the canonical provisioning; the direct insert is a
	// fallback for projects without it.
	_, rpcErr := u.funcs.Call(ctx, "create_profile_for_user", map[string]interface{}{
		"user_id":   res.UserID,
		"email":     email,
		"role":      role,
		"full_name": fullName,
	})
	if rpcErr != nil {
		logger.Log.Warn("profile provisioning function failed", "error", rpcErr, "user_id", res.UserID)
		if err := u.directory.EnsureProfile(ctx, res.UserID, email, role); err != nil {
			logger.Log.Warn("profile fallback insert failed", "error", err, "user_id", res.UserID)
		}
	}

	outcome.Session = res.Session
	profile, err := u.profiles.FetchBasic(ctx, res.UserID)
	if err == nil {
		outcome.Profile = profile
	}
	return outcome, nil
}

func (u *accountUsecase) Login(ctx context.Context, email, password string) (*domain.Session, *domain.Profile, error) {
	sess, err := u.accounts.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	// Sync the profile row; an existing row keeps its role.
	if err := u.directory.EnsureProfile(ctx, sess.UserID, sess.Email, sess.Metadata.Role()); err != nil {
		return nil, nil, err
	}

	profile, err := u.profiles.FetchBasic(ctx, sess.UserID)
	if err != nil {
		return nil, nil, err
	}
	return sess, profile, nil
}

// Logout is best-effort: a failed revocation is logged but not surfaced, the
// caller is dropping its tokens either way.
func (u *accountUsecase) Logout(ctx context.Context, accessToken string) error {
	if err := u.accounts.RevokeToken(ctx, accessToken); err != nil {
		logger.Log.Warn("token revocation failed", "error", err)
	}
	return nil
}

// ForgotPassword always succeeds from the caller's point of view. Failures
// are logged server-side only; revealing them would enable enumeration.
func (u *accountUsecase) ForgotPassword(ctx context.Context, email string) error {
	exists, err := u.directory.EmailExists(ctx, email)
	if err != nil {
		logger.Log.Warn("forgot-password lookup failed", "error", err)
		return nil
	}
	if !exists {
		return nil
	}

	if err := u.accounts.SendPasswordReset(ctx, email); err != nil {
		logger.Log.Warn("password reset mail failed", "error", err)
	}
	return nil
}

func (u *accountUsecase) ResetPassword(ctx context.Context, accessToken, newPassword string) error {
	return u.accounts.UpdatePasswordWithToken(ctx, accessToken, newPassword)
}

func (u *accountUsecase) CurrentProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := u.profiles.FetchWithDetails(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperror.NotFound("Profile not found")
	}
	return profile, nil
}
