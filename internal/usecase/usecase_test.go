package usecase_test

import (
	"context"
	"testing"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/internal/usecase"
	"go-jobmarket-backend/pkg/apperror"
	"go-jobmarket-backend/pkg/logger"
	"go-jobmarket-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Init()
}

// Mock collaborators

type MockAccountGateway struct {
	mock.Mock
}

func (m *MockAccountGateway) SignUp(ctx context.Context, email, password string, metadata domain.UserMetadata) (*domain.SignUpResult, error) {
	args := m.Called(ctx, email, password, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SignUpResult), args.Error(1)
}

func (m *MockAccountGateway) PasswordGrant(ctx context.Context, email, password string) (*domain.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockAccountGateway) SendPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAccountGateway) UpdatePasswordWithToken(ctx context.Context, accessToken, newPassword string) error {
	return m.Called(ctx, accessToken, newPassword).Error(0)
}

func (m *MockAccountGateway) RevokeToken(ctx context.Context, accessToken string) error {
	return m.Called(ctx, accessToken).Error(0)
}

type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) FetchWithDetails(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockProfileStore) FetchBasic(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Profile), args.Error(1)
}

func (m *MockProfileStore) ApplyUpdates(ctx context.Context, userID string, updates domain.ProfileUpdates) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockDirectory) EnsureProfile(ctx context.Context, id, email, role string) error {
	return m.Called(ctx, id, email, role).Error(0)
}

type MockFuncs struct {
	mock.Mock
}

func (m *MockFuncs) Call(ctx context.Context, name string, fnArgs map[string]interface{}) (map[string]interface{}, error) {
	args := m.Called(ctx, name, fnArgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

type MockFileStore struct {
	mock.Mock
}

func (m *MockFileStore) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	return m.Called(ctx, bucket, path, data, contentType).Error(0)
}

func (m *MockFileStore) PublicURL(bucket, path string) string {
	return m.Called(bucket, path).String(0)
}

func (m *MockFileStore) CreateBucket(ctx context.Context, name string, public bool) error {
	return m.Called(ctx, name, public).Error(0)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown role", func(t *testing.T) {
		uc := usecase.NewAccountUsecase(new(MockAccountGateway), new(MockProfileStore), new(MockDirectory), new(MockFuncs))

		_, err := uc.Register(ctx, "a@b.com", "secret1", "superuser", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid role")
	})

	t.Run("zero identities means the address was already registered", func(t *testing.T) {
		accounts := new(MockAccountGateway)
		accounts.On("SignUp", mock.Anything, "dup@example.com", "secret1", mock.Anything).
			Return(&domain.SignUpResult{UserID: "obfuscated", IdentitiesCount: 0}, nil)
		uc := usecase.NewAccountUsecase(accounts, new(MockProfileStore), new(MockDirectory), new(MockFuncs))

		outcome, err := uc.Register(ctx, "dup@example.com", "secret1", string(domain.RoleJobSeeker), "")
		require.NoError(t, err)
		assert.True(t, outcome.AlreadyRegistered)
		assert.Nil(t, outcome.Session)
	})

	t.Run("pending confirmation returns no session and provisions nothing", func(t *testing.T) {
		accounts := new(MockAccountGateway)
		accounts.On("SignUp", mock.Anything, "new@example.com", "secret1", mock.Anything).
			Return(&domain.SignUpResult{UserID: "u-1", IdentitiesCount: 1}, nil)
		funcs := new(MockFuncs)
		uc := usecase.NewAccountUsecase(accounts, new(MockProfileStore), new(MockDirectory), funcs)

		outcome, err := uc.Register(ctx, "new@example.com", "secret1", string(domain.RoleEmployer), "Acme HR")
		require.NoError(t, err)
		assert.False(t, outcome.AlreadyRegistered)
		assert.Nil(t, outcome.Session)
		funcs.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("auto-confirmed signup provisions the profile", func(t *testing.T) {
		sess := &domain.Session{UserID: "u-2", Email: "auto@example.com", AccessToken: "tok"}
		accounts := new(MockAccountGateway)
		accounts.On("SignUp", mock.Anything, "auto@example.com", "secret1", mock.Anything).
			Return(&domain.SignUpResult{UserID: "u-2", IdentitiesCount: 1, Session: sess}, nil)
		funcs := new(MockFuncs)
		funcs.On("Call", mock.Anything, "create_profile_for_user", mock.Anything).
			Return(map[string]interface{}{}, nil)
		store := new(MockProfileStore)
		store.On("FetchBasic", mock.Anything, "u-2").
			Return(&domain.Profile{ID: "u-2", Role: domain.RoleJobSeeker}, nil)
		uc := usecase.NewAccountUsecase(accounts, store, new(MockDirectory), funcs)

		outcome, err := uc.Register(ctx, "auto@example.com", "secret1", string(domain.RoleJobSeeker), "")
		require.NoError(t, err)
		assert.Equal(t, sess, outcome.Session)
		require.NotNil(t, outcome.Profile)
		assert.Equal(t, "u-2", outcome.Profile.ID)
	})

	t.Run("falls back to direct insert when the function fails", func(t *testing.T) {
		sess := &domain.Session{UserID: "u-3", Email: "fb@example.com", AccessToken: "tok"}
		accounts := new(MockAccountGateway)
		accounts.On("SignUp", mock.Anything, "fb@example.com", "secret1", mock.Anything).
			Return(&domain.SignUpResult{UserID: "u-3", IdentitiesCount: 1, Session: sess}, nil)
		funcs := new(MockFuncs)
		funcs.On("Call", mock.Anything, "create_profile_for_user", mock.Anything).
			Return(nil, apperror.Rpc("function missing", nil))
		directory := new(MockDirectory)
		directory.On("EnsureProfile", mock.Anything, "u-3", "fb@example.com", string(domain.RoleJobSeeker)).Return(nil)
		store := new(MockProfileStore)
		store.On("FetchBasic", mock.Anything, "u-3").
			Return(&domain.Profile{ID: "u-3"}, nil)
		uc := usecase.NewAccountUsecase(accounts, store, directory, funcs)

		_, err := uc.Register(ctx, "fb@example.com", "secret1", string(domain.RoleJobSeeker), "")
		require.NoError(t, err)
		directory.AssertExpectations(t)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("syncs the profile row and returns it", func(t *testing.T) {
		sess := &domain.Session{
			UserID:   "u-1",
			Email:    "who@example.com",
			Metadata: domain.UserMetadata{"role": "employer"},
		}
		accounts := new(MockAccountGateway)
		accounts.On("PasswordGrant", mock.Anything, "who@example.com", "pw").Return(sess, nil)
		directory := new(MockDirectory)
		directory.On("EnsureProfile", mock.Anything, "u-1", "who@example.com", "employer").Return(nil)
		store := new(MockProfileStore)
		store.On("FetchBasic", mock.Anything, "u-1").
			Return(&domain.Profile{ID: "u-1", Role: domain.RoleEmployer}, nil)
		uc := usecase.NewAccountUsecase(accounts, store, directory, new(MockFuncs))

		gotSess, profile, err := uc.Login(ctx, "who@example.com", "pw")
		require.NoError(t, err)
		assert.Equal(t, sess, gotSess)
		require.NotNil(t, profile)
		assert.Equal(t, domain.RoleEmployer, profile.Role)
		directory.AssertExpectations(t)
	})

	t.Run("propagates credential failures untouched", func(t *testing.T) {
		accounts := new(MockAccountGateway)
		accounts.On("PasswordGrant", mock.Anything, "who@example.com", "bad").
			Return(nil, apperror.Unauthorized("Invalid login credentials"))
		uc := usecase.NewAccountUsecase(accounts, new(MockProfileStore), new(MockDirectory), new(MockFuncs))

		_, _, err := uc.Login(ctx, "who@example.com", "bad")
		require.Error(t, err)
		assert.Equal(t, apperror.KindAuth, apperror.KindOf(err))
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("revocation failure is swallowed", func(t *testing.T) {
		accounts := new(MockAccountGateway)
		accounts.On("RevokeToken", mock.Anything, "tok").
			Return(apperror.Network("gotrue down", nil))
		uc := usecase.NewAccountUsecase(accounts, new(MockProfileStore), new(MockDirectory), new(MockFuncs))

		assert.NoError(t, uc.Logout(ctx, "tok"))
		accounts.AssertExpectations(t)
	})
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown address sends nothing and still succeeds", func(t *testing.T) {
		directory := new(MockDirectory)
		directory.On("EmailExists", mock.Anything, "ghost@example.com").Return(false, nil)
		accounts := new(MockAccountGateway)
		uc := usecase.NewAccountUsecase(accounts, new(MockProfileStore), directory, new(MockFuncs))

		err := uc.ForgotPassword(ctx, "ghost@example.com")
		require.NoError(t, err)
		accounts.AssertNotCalled(t, "SendPasswordReset", mock.Anything, mock.Anything)
	})

	t.Run("known address triggers the reset mail", func(t *testing.T) {
		directory := new(MockDirectory)
		directory.On("EmailExists", mock.Anything, "real@example.com").Return(true, nil)
		accounts := new(MockAccountGateway)
		accounts.On("SendPasswordReset", mock.Anything, "real@example.com").Return(nil)
		uc := usecase.NewAccountUsecase(accounts, new(MockProfileStore), directory, new(MockFuncs))

		err := uc.ForgotPassword(ctx, "real@example.com")
		require.NoError(t, err)
		accounts.AssertExpectations(t)
	})

	t.Run("mail failure is swallowed", func(t *testing.T) {
		directory := new(MockDirectory)
		directory.On("EmailExists", mock.Anything, "real@example.com").Return(true, nil)
		accounts := new(MockAccountGateway)
		accounts.On("SendPasswordReset", mock.Anything, "real@example.com").
			Return(apperror.Network("gotrue down", nil))
		uc := usecase.NewAccountUsecase(accounts, new(MockProfileStore), directory, new(MockFuncs))

		assert.NoError(t, uc.ForgotPassword(ctx, "real@example.com"))
	})
}

func newProfileUsecase(store *MockProfileStore, files *MockFileStore) domain.ProfileUsecase {
	validate := validator.New()
	validation.RegisterValidators(validate)
	return usecase.NewProfileUsecase(store, files, validate)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects fields outside the whitelist", func(t *testing.T) {
		uc := newProfileUsecase(new(MockProfileStore), new(MockFileStore))

		_, err := uc.UpdateProfile(ctx, "u-1", domain.ProfileUpdates{"is_verified": true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be updated")
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		uc := newProfileUsecase(new(MockProfileStore), new(MockFileStore))

		_, err := uc.UpdateProfile(ctx, "u-1", domain.ProfileUpdates{"avatar_url": "not a url"})
		require.Error(t, err)
	})

	t.Run("applies and re-fetches instead of merging", func(t *testing.T) {
		store := new(MockProfileStore)
		store.On("ApplyUpdates", mock.Anything, "u-1", domain.ProfileUpdates{"full_name": "Ada Deane"}).Return(nil)
		store.On("FetchWithDetails", mock.Anything, "u-1").
			Return(&domain.Profile{ID: "u-1", FullName: "Ada Deane", ProfileCompletion: 95}, nil)
		uc := newProfileUsecase(store, new(MockFileStore))

		profile, err := uc.UpdateProfile(ctx, "u-1", domain.ProfileUpdates{"full_name": "Ada Deane"})
		require.NoError(t, err)
		assert.Equal(t, 95, profile.ProfileCompletion)
		store.AssertExpectations(t)
	})
}

func TestUploadAvatar(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unsupported content types", func(t *testing.T) {
		uc := newProfileUsecase(new(MockProfileStore), new(MockFileStore))

		_, err := uc.UploadAvatar(ctx, "u-1", []byte{1, 2, 3}, "application/pdf")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unsupported image type")
	})

	t.Run("uploads, records the URL, and returns it", func(t *testing.T) {
		files := new(MockFileStore)
		files.On("Upload", mock.Anything, "avatars", mock.MatchedBy(func(path string) bool {
			return len(path) > len("u-1/") && path[:4] == "u-1/"
		}), mock.Anything, "image/png").Return(nil)
		files.On("PublicURL", "avatars", mock.Anything).Return("https://cdn.example.com/avatars/u-1/x.png")
		store := new(MockProfileStore)
		store.On("ApplyUpdates", mock.Anything, "u-1",
			domain.ProfileUpdates{"avatar_url": "https://cdn.example.com/avatars/u-1/x.png"}).Return(nil)
		uc := newProfileUsecase(store, files)

		url, err := uc.UploadAvatar(ctx, "u-1", []byte{137, 80, 78, 71}, "image/png")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/avatars/u-1/x.png", url)
		store.AssertExpectations(t)
		files.AssertExpectations(t)
	})
}
