package usecase

import (
	"context"
	"fmt"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	avatarBucket       = "avatars"
	maxAvatarSizeBytes = 2 << 20
)

// columns a client may update, with their validation rules
var updatableColumns = map[string]string{
	"full_name":  "omitempty,min=2,max=100,valid_name",
	"avatar_url": "omitempty,url",
	"role":       "omitempty,oneof=job_seeker employer admin institution_partner",
}

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

type profileUsecase struct {
	profiles domain.ProfileStore
	files    domain.FileStore
	validate *validator.Validate
}

func NewProfileUsecase(profiles domain.ProfileStore, files domain.FileStore, validate *validator.Validate) domain.ProfileUsecase {
	return &profileUsecase{
		profiles: profiles,
		files:    files,
		validate: validate,
	}
}

func (u *profileUsecase) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := u.profiles.FetchWithDetails(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, apperror.NotFound("Profile not found")
	}
	return profile, nil
}

func (u *profileUsecase) UpdateProfile(ctx context.Context, userID string, updates domain.ProfileUpdates) (*domain.Profile, error) {
	if len(updates) == 0 {
		return nil, apperror.BadRequest("No fields to update")
	}

	for column, value := range updates {
		rule, ok := updatableColumns[column]
		if !ok {
			return nil, apperror.BadRequest("Field cannot be updated: " + column)
		}
		if err := u.validate.Var(value, rule); err != nil {
			return nil, apperror.BadRequest("Invalid value for " + column)
		}
	}

	if err := u.profiles.ApplyUpdates(ctx, userID, updates); err != nil {
		return nil, err
	}

	// Re-fetch rather than merge; triggers may have recomputed completion.
	return u.GetProfile(ctx, userID)
}

func (u *profileUsecase) UploadAvatar(ctx context.Context, userID string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", apperror.BadRequest("Empty file")
	}
	if len(data) > maxAvatarSizeBytes {
		return "", apperror.BadRequest("Avatar must be 2MB or smaller")
	}
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return "", apperror.BadRequest("Unsupported image type: " + contentType)
	}

	path := fmt.Sprintf("%s/%s%s", userID, uuid.NewString(), ext)
	if err := u.files.Upload(ctx, avatarBucket, path, data, contentType); err != nil {
		return "", err
	}

	url := u.files.PublicURL(avatarBucket, path)
	if err := u.profiles.ApplyUpdates(ctx, userID, domain.ProfileUpdates{"avatar_url": url}); err != nil {
		return "", err
	}
	return url, nil
}
