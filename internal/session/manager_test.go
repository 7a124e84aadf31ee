package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/internal/session"
	"go-jobmarket-backend/pkg/apperror"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Collaborators

type MockAuthGateway struct {
	mock.Mock
	eventsOnce sync.Once
	events     chan domain.AuthEvent
}

func (m *MockAuthGateway) CurrentSession(ctx context.Context) (*domain.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockAuthGateway) SignUp(ctx context.Context, email, password string, metadata domain.UserMetadata) (*domain.SignUpResult, error) {
	args := m.Called(ctx, email, password, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SignUpResult), args.Error(1)
}

func (m *MockAuthGateway) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockAuthGateway) SignOut(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockAuthGateway) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	return m.Called(ctx, email, redirectURL).Error(0)
}

func (m *MockAuthGateway) UpdatePassword(ctx context.Context, newPassword string) error {
	return m.Called(ctx, newPassword).Error(0)
}

func (m *MockAuthGateway) Events() (<-chan domain.AuthEvent, func()) {
	m.eventsOnce.Do(func() {
		m.events = make(chan domain.AuthEvent, 8)
	})
	return m.events, func() { close(m.events) }
}

func (m *MockAuthGateway) Push(ev domain.AuthEvent) {
	m.eventsOnce.Do(func() {
		m.events = make(chan domain.AuthEvent, 8)
	})
	m.events <- ev
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

// recordingNotifier collects notices so tests can assert on their count.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *recordingNotifier) record(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, msg)
}

func (n *recordingNotifier) Success(msg string) { n.record("success: " + msg) }
func (n *recordingNotifier) Info(msg string)    { n.record("info: " + msg) }
func (n *recordingNotifier) Warn(msg string)    { n.record("warn: " + msg) }
func (n *recordingNotifier) Error(msg string)   { n.record("error: " + msg) }

func (n *recordingNotifier) count(prefix string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, msg := range n.notices {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			c++
		}
	}
	return c
}

func testPolicy() session.Policy {
	return session.Policy{
		BootstrapTimeout:    150 * time.Millisecond,
		ProfileFetchTimeout: 100 * time.Millisecond,
		BasicFetchTimeout:   100 * time.Millisecond,
		PermissionRetries:   2,
		FallbackCompletion:  10,
		CompleteThreshold:   80,
	}
}

func newTestManager(auth *MockAuthGateway, store *MockProfileStore, notify *recordingNotifier) *session.Manager {
	return session.NewManager(session.Deps{
		Auth:     auth,
		Store:    store,
		Notify:   notify,
		Validate: validator.New(),
		Policy:   testPolicy(),
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func waitSettled(t *testing.T, mgr *session.Manager) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := mgr.Snapshot()
		return !snap.Initializing && !snap.Loading
	}, 2*time.Second, 5*time.Millisecond, "bootstrap never settled")
}

func testSession() *domain.Session {
	return &domain.Session{
		UserID:         "user-1",
		Email:          "sam@example.com",
		EmailConfirmed: true,
		Metadata: domain.UserMetadata{
			"full_name": "Sam Doe",
			"role":      "employer",
		},
	}
}

func authoritativeProfile() *domain.Profile {
	return &domain.Profile{
		ID:                "user-1",
		Email:             "sam@example.com",
		Role:              domain.RoleEmployer,
		FullName:          "Sam Doe",
		ProfileCompletion: 90,
		IsVerified:        true,
	}
}

func TestBootstrapSettlement(t *testing.T) {
	t.Run("session error settles anonymous with one notice", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, errors.New("connection refused"))

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		snap := mgr.Snapshot()
		assert.Nil(t, snap.User)
		assert.Nil(t, snap.Profile)
		assert.Equal(t, session.StateReadyAnonymous, snap.State)
		assert.Equal(t, 1, notify.count("error:"))
	})

	t.Run("no session settles anonymous", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		assert.Equal(t, session.StateReadyAnonymous, mgr.Snapshot().State)
	})

	t.Run("session with profile settles authenticated", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(authoritativeProfile(), nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		snap := mgr.Snapshot()
		require.NotNil(t, snap.User)
		require.NotNil(t, snap.Profile)
		assert.Equal(t, session.StateReadyAuthenticated, snap.State)
		assert.True(t, snap.Profile.Authoritative())
	})

	t.Run("total fetch failure still settles with a fallback profile", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").
			Return(nil, apperror.Network("profiles unreachable", errors.New("dial tcp")))

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		snap := mgr.Snapshot()
		require.NotNil(t, snap.Profile)
		assert.Equal(t, domain.ProvenanceFallback, snap.Profile.Provenance)
		assert.Equal(t, session.StateReadyAuthenticated, snap.State)
	})

	t.Run("bootstrap timeout forces settlement", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		// Session fetch outlives the bootstrap timeout (150ms)
		auth.On("CurrentSession", mock.Anything).Return(nil, nil).After(400 * time.Millisecond)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		snap := mgr.Snapshot()
		assert.Nil(t, snap.User)
		assert.Nil(t, snap.Profile)
		assert.Equal(t, session.StateReadyAnonymous, snap.State)

		// The losing path completing later must not resurrect the flags.
		time.Sleep(400 * time.Millisecond)
		snap = mgr.Snapshot()
		assert.False(t, snap.Initializing)
		assert.False(t, snap.Loading)
	})

	t.Run("initializing never goes true again after settlement", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, nil)
		auth.On("SignInWithPassword", mock.Anything, "sam@example.com", "pw").
			Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, mock.Anything).Return(authoritativeProfile(), nil).Maybe()

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		require.NoError(t, mgr.SignIn(context.Background(), "sam@example.com", "pw"))
		assert.False(t, mgr.Snapshot().Initializing)
	})
}

func TestTierOrdering(t *testing.T) {
	t.Run("permission error retries tier 1 before degrading", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").
			Return(nil, apperror.Forbidden("row level security")).Once()
		store.On("FetchWithDetails", mock.Anything, "user-1").
			Return(authoritativeProfile(), nil).Once()

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		snap := mgr.Snapshot()
		require.NotNil(t, snap.Profile)
		assert.True(t, snap.Profile.Authoritative())
		assert.Equal(t, 90, snap.Profile.ProfileCompletion)
		store.AssertNotCalled(t, "FetchBasic", mock.Anything, mock.Anything)
	})

	t.Run("missing row falls through to basic fetch", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(nil, nil)
		store.On("FetchBasic", mock.Anything, "user-1").Return(&domain.Profile{
			ID:       "user-1",
			Email:    "sam@example.com",
			Role:     domain.RoleEmployer,
			FullName: "Acme Recruiter",
		}, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		snap := mgr.Snapshot()
		require.NotNil(t, snap.Profile)
		assert.Equal(t, domain.RoleEmployer, snap.Profile.Role)
		assert.Equal(t, "Acme Recruiter", snap.Profile.FullName)
		assert.True(t, snap.Profile.Authoritative())
	})

	t.Run("tier 1 timeout skips tier 2 entirely", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").
			Return(nil, context.DeadlineExceeded)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		snap := mgr.Snapshot()
		require.NotNil(t, snap.Profile)
		assert.Equal(t, domain.ProvenanceFallback, snap.Profile.Provenance)
		// Deeper failure: verification is not trusted on this path.
		assert.False(t, snap.Profile.IsVerified)
		store.AssertNotCalled(t, "FetchBasic", mock.Anything, mock.Anything)
	})
}

func TestFallbackProfile(t *testing.T) {
	t.Run("synthesized from session metadata on clean miss", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(nil, nil)
		store.On("FetchBasic", mock.Anything, "user-1").Return(nil, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		snap := mgr.Snapshot()
		require.NotNil(t, snap.Profile)
		assert.Equal(t, "user-1", snap.Profile.ID)
		assert.Equal(t, domain.RoleEmployer, snap.Profile.Role)
		assert.Equal(t, "Sam Doe", snap.Profile.FullName)
		// Clean miss with a confirmed email keeps the verification bit.
		assert.True(t, snap.Profile.IsVerified)
		assert.Less(t, snap.Profile.ProfileCompletion, 80)
		assert.False(t, mgr.IsProfileComplete())
	})

	t.Run("unknown role hint defaults to job seeker", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		sess := testSession()
		sess.Metadata = domain.UserMetadata{"role": "wizard"}
		auth.On("CurrentSession", mock.Anything).Return(sess, nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(nil, nil)
		store.On("FetchBasic", mock.Anything, "user-1").Return(nil, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()

		waitSettled(t, mgr)
		require.NotNil(t, mgr.Snapshot().Profile)
		assert.Equal(t, domain.RoleJobSeeker, mgr.Snapshot().Profile.Role)
	})
}

func TestRefreshProfileIdempotent(t *testing.T) {
	auth := new(MockAuthGateway)
	store := new(MockProfileStore)
	notify := &recordingNotifier{}
	auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
	store.On("FetchWithDetails", mock.Anything, "user-1").Return(authoritativeProfile(), nil)

	mgr := newTestManager(auth, store, notify)
	mgr.Start(context.Background())
	defer mgr.Close()
	waitSettled(t, mgr)

	mgr.RefreshProfile(context.Background())
	first := mgr.Snapshot().Profile
	mgr.RefreshProfile(context.Background())
	second := mgr.Snapshot().Profile

	assert.Equal(t, first, second)
}

func TestSignOutClearsStateSynchronously(t *testing.T) {
	auth := new(MockAuthGateway)
	store := new(MockProfileStore)
	notify := &recordingNotifier{}
	auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
	auth.On("SignOut", mock.Anything).Return(nil)
	store.On("FetchWithDetails", mock.Anything, "user-1").Return(authoritativeProfile(), nil)

	mgr := newTestManager(auth, store, notify)
	mgr.Start(context.Background())
	defer mgr.Close()
	waitSettled(t, mgr)
	require.NotNil(t, mgr.Snapshot().Profile)

	require.NoError(t, mgr.SignOut(context.Background()))
	snap := mgr.Snapshot()
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.Profile)
	assert.Equal(t, session.StateReadyAnonymous, snap.State)
	assert.False(t, snap.Loading)
}

func TestSignUp(t *testing.T) {
	t.Run("existing email surfaces one notice and no profile", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, nil)
		auth.On("SignUp", mock.Anything, "sam@example.com", "pw", mock.Anything).
			Return(&domain.SignUpResult{UserID: "user-1", IdentitiesCount: 0}, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		err := mgr.SignUp(context.Background(), "sam@example.com", "pw",
			domain.UserMetadata{"role": "employer"})
		require.NoError(t, err)
		assert.Nil(t, mgr.Snapshot().Profile)
		assert.Equal(t, 1, notify.count("info:"))
		assert.False(t, mgr.Snapshot().Loading)
	})

	t.Run("new account synthesizes a low-completion profile", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, nil)
		auth.On("SignUp", mock.Anything, "new@example.com", "pw", mock.Anything).
			Return(&domain.SignUpResult{UserID: "user-9", IdentitiesCount: 1}, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		err := mgr.SignUp(context.Background(), "new@example.com", "pw",
			domain.UserMetadata{"role": "institution_partner", "full_name": "Uni Liaison"})
		require.NoError(t, err)

		prof := mgr.Snapshot().Profile
		require.NotNil(t, prof)
		assert.Equal(t, domain.ProvenanceFallback, prof.Provenance)
		assert.Equal(t, domain.RoleInstitutionPartner, prof.Role)
		assert.Equal(t, "Uni Liaison", prof.FullName)
		assert.Less(t, prof.ProfileCompletion, 80)
		assert.False(t, mgr.Snapshot().Loading)
	})

	t.Run("loading clears even when the gateway fails", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, nil)
		auth.On("SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, apperror.Unauthorized("signup disabled"))

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		err := mgr.SignUp(context.Background(), "x@example.com", "pw", nil)
		assert.Error(t, err)
		assert.False(t, mgr.Snapshot().Loading)
		assert.Equal(t, 1, notify.count("error:"))
	})
}

func TestAuthEvents(t *testing.T) {
	t.Run("signed in event records session and refreshes profile without loading", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(authoritativeProfile(), nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		auth.Push(domain.AuthEvent{Kind: domain.EventSignedIn, Session: testSession()})

		require.Eventually(t, func() bool {
			snap := mgr.Snapshot()
			return snap.Profile != nil && snap.Profile.Authoritative()
		}, 2*time.Second, 5*time.Millisecond)
		assert.False(t, mgr.Snapshot().Loading)
		assert.Equal(t, session.StateReadyAuthenticated, mgr.Snapshot().State)
	})

	t.Run("other event kinds record the session without a refetch", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		auth.Push(domain.AuthEvent{Kind: domain.EventUserUpdated, Session: testSession()})

		require.Eventually(t, func() bool {
			return mgr.Snapshot().User != nil
		}, 2*time.Second, 5*time.Millisecond)
		store.AssertNotCalled(t, "FetchWithDetails", mock.Anything, mock.Anything)
	})

	t.Run("signed out event clears session and profile", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(authoritativeProfile(), nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		auth.Push(domain.AuthEvent{Kind: domain.EventSignedOut, Session: nil})

		require.Eventually(t, func() bool {
			snap := mgr.Snapshot()
			return snap.User == nil && snap.Profile == nil
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, session.StateReadyAnonymous, mgr.Snapshot().State)
	})
}

func TestDegradationNoticeOnce(t *testing.T) {
	auth := new(MockAuthGateway)
	store := new(MockProfileStore)
	notify := &recordingNotifier{}
	auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
	store.On("FetchWithDetails", mock.Anything, "user-1").
		Return(nil, apperror.Network("profiles unreachable", nil))

	mgr := newTestManager(auth, store, notify)
	mgr.Start(context.Background())
	defer mgr.Close()
	waitSettled(t, mgr)

	// One exhaustion from bootstrap; two more refreshes cross the threshold.
	mgr.RefreshProfile(context.Background())
	mgr.RefreshProfile(context.Background())

	assert.Equal(t, 1, notify.count("warn:"))
}

func TestUpdateProfile(t *testing.T) {
	t.Run("refetches instead of merging locally", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(authoritativeProfile(), nil).Once()

		updated := authoritativeProfile()
		updated.FullName = "Sam Q. Doe"
		updated.ProfileCompletion = 95 // server-computed, must come from the refetch
		store.On("ApplyUpdates", mock.Anything, "user-1", mock.Anything).Return(nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(updated, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		err := mgr.UpdateProfile(context.Background(), domain.ProfileUpdates{"full_name": "Sam Q. Doe"})
		require.NoError(t, err)

		prof := mgr.Snapshot().Profile
		require.NotNil(t, prof)
		assert.Equal(t, "Sam Q. Doe", prof.FullName)
		assert.Equal(t, 95, prof.ProfileCompletion)
		assert.False(t, mgr.Snapshot().Loading)
	})

	t.Run("rejects columns outside the whitelist", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
		store.On("FetchWithDetails", mock.Anything, "user-1").Return(authoritativeProfile(), nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		err := mgr.UpdateProfile(context.Background(), domain.ProfileUpdates{"is_verified": true})
		assert.Error(t, err)
		store.AssertNotCalled(t, "ApplyUpdates", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("requires a session", func(t *testing.T) {
		auth := new(MockAuthGateway)
		store := new(MockProfileStore)
		notify := &recordingNotifier{}
		auth.On("CurrentSession", mock.Anything).Return(nil, nil)

		mgr := newTestManager(auth, store, notify)
		mgr.Start(context.Background())
		defer mgr.Close()
		waitSettled(t, mgr)

		err := mgr.UpdateProfile(context.Background(), domain.ProfileUpdates{"full_name": "X"})
		assert.Error(t, err)
	})
}

func TestLateAuthoritativeResultStillApplies(t *testing.T) {
	auth := new(MockAuthGateway)
	store := new(MockProfileStore)
	notify := &recordingNotifier{}
	auth.On("CurrentSession", mock.Anything).Return(nil, nil)

	// First chain: slow but genuine success. Second chain: fast failure that
	// installs a fallback. The slow success must still win in the end.
	store.On("FetchWithDetails", mock.Anything, "user-1").
		Return(authoritativeProfile(), nil).Once().After(60 * time.Millisecond)
	store.On("FetchWithDetails", mock.Anything, "user-1").
		Return(nil, apperror.Network("profiles unreachable", nil)).Once()

	mgr := newTestManager(auth, store, notify)
	mgr.Start(context.Background())
	defer mgr.Close()
	waitSettled(t, mgr)

	auth.Push(domain.AuthEvent{Kind: domain.EventUserUpdated, Session: testSession()})
	require.Eventually(t, func() bool {
		return mgr.Snapshot().User != nil
	}, 2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		mgr.RefreshProfile(context.Background()) // slow authoritative chain
	}()
	time.Sleep(15 * time.Millisecond)
	mgr.RefreshProfile(context.Background()) // fast failing chain, newer generation

	prof := mgr.Snapshot().Profile
	require.NotNil(t, prof)
	assert.Equal(t, domain.ProvenanceFallback, prof.Provenance)

	<-done
	prof = mgr.Snapshot().Profile
	require.NotNil(t, prof)
	assert.True(t, prof.Authoritative(), "late genuine success should replace the fallback")
}

func TestRolePredicates(t *testing.T) {
	auth := new(MockAuthGateway)
	store := new(MockProfileStore)
	notify := &recordingNotifier{}
	auth.On("CurrentSession", mock.Anything).Return(testSession(), nil)
	store.On("FetchWithDetails", mock.Anything, "user-1").Return(authoritativeProfile(), nil)

	mgr := newTestManager(auth, store, notify)
	mgr.Start(context.Background())
	defer mgr.Close()
	waitSettled(t, mgr)

	assert.True(t, mgr.HasRole(domain.RoleEmployer))
	assert.False(t, mgr.HasRole(domain.RoleAdmin))
	assert.True(t, mgr.HasAnyRole(domain.RoleAdmin, domain.RoleEmployer))
	assert.False(t, mgr.HasAnyRole(domain.RoleAdmin, domain.RoleInstitutionPartner))
	assert.True(t, mgr.IsProfileComplete())
}
