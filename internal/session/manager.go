package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

// Manager owns the process-wide authentication state: the current session,
// the current profile, and the loading/initializing flags. It is the sole
// writer of all four; consumers read via Snapshot.
//
// The invariant the whole design exists to guarantee: loading and
// initializing both settle to false within a bounded time no matter how the
// backend misbehaves, and initializing never goes true again after its first
// transition to false.
type Manager struct {
	auth     domain.AuthGateway
	store    domain.ProfileStore
	funcs    domain.ServerFunctions
	notify   domain.Notifier
	validate *validator.Validate
	policy   Policy
	log      *slog.Logger

	mu           sync.Mutex
	state        State
	user         *domain.Session
	profile      *domain.Profile
	loading      bool
	initializing bool
	settled      bool   // bootstrap settlement, single assignment
	fetchGen     uint64 // current profile fetch chain
	tierFailures int    // cumulative tier exhaustions, reset after the notice

	startOnce   sync.Once
	done        chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()
}

// Deps are the collaborators the manager needs. Funcs may be nil; server-side
// profile creation is then skipped (the fallback tier covers the absence).
type Deps struct {
	Auth     domain.AuthGateway
	Store    domain.ProfileStore
	Funcs    domain.ServerFunctions
	Notify   domain.Notifier
	Validate *validator.Validate
	Policy   Policy
	Log      *slog.Logger
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		auth:     deps.Auth,
		store:    deps.Store,
		funcs:    deps.Funcs,
		notify:   deps.Notify,
		validate: deps.Validate,
		policy:   deps.Policy,
		log:      deps.Log,
		state:    StateUnstarted,
		done:     make(chan struct{}),
	}
}

// Start kicks off the one-time bootstrap and the auth event drain. Safe to
// call more than once; only the first call does anything.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.mu.Lock()
		m.state = StateBootstrapping
		m.initializing = true
		m.loading = true
		m.mu.Unlock()

		events, unsubscribe := m.auth.Events()
		m.unsubscribe = unsubscribe

		m.wg.Add(2)
		go m.drainEvents(events)
		go m.bootstrap(ctx)
	})
}

// Close unsubscribes from auth events and waits for background work to stop.
func (m *Manager) Close() {
	close(m.done)
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.wg.Wait()
}

// bootstrap races the session-restore chain against a hard timer. Whichever
// finishes first settles the loading flags; the loser converges without
// touching them again.
func (m *Manager) bootstrap(ctx context.Context) {
	defer m.wg.Done()

	chain := make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(chain)

		sess, err := m.auth.CurrentSession(ctx)
		if err != nil {
			m.log.Warn("session restore failed", "error", err)
			m.notify.Error("Could not restore your session. Please sign in again.")
			m.settle()
			return
		}
		if sess == nil {
			m.settle()
			return
		}
		m.setSession(sess)
		// Wait for the fetch attempt to complete, not for it to succeed;
		// the tiering guarantees a profile either way.
		m.fetchProfile(ctx, sess)
		m.settle()
	}()

	timer := time.NewTimer(m.policy.BootstrapTimeout)
	defer timer.Stop()

	select {
	case <-chain:
	case <-timer.C:
		if m.settle() {
			m.log.Warn("bootstrap timed out, forcing settled state",
				"timeout", m.policy.BootstrapTimeout)
		}
	case <-m.done:
	}
}

// settle clears both flags and fixes the ready state exactly once. Returns
// false if another path already settled.
func (m *Manager) settle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return false
	}
	m.settled = true
	m.loading = false
	m.initializing = false
	m.setReadyStateLocked()
	return true
}

func (m *Manager) setReadyStateLocked() {
	if m.user != nil {
		m.state = StateReadyAuthenticated
	} else {
		m.state = StateReadyAnonymous
	}
}

// setSession records a session. A session landing after settlement still
// updates the ready state, but never the loading flags.
func (m *Manager) setSession(sess *domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = sess
	if m.settled {
		m.setReadyStateLocked()
	}
}

func (m *Manager) drainEvents(events <-chan domain.AuthEvent) {
	defer m.wg.Done()
	for ev := range events {
		m.handleEvent(ev)
	}
}

func (m *Manager) handleEvent(ev domain.AuthEvent) {
	if ev.Session == nil {
		m.mu.Lock()
		m.user = nil
		m.profile = nil
		m.loading = false
		if m.settled {
			m.state = StateReadyAnonymous
		}
		m.mu.Unlock()
		return
	}

	m.setSession(ev.Session)
	switch ev.Kind {
	case domain.EventSignedIn, domain.EventTokenRefreshed:
		// Background refresh: must not flip loading and block the UI.
		sess := ev.Session
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.fetchProfile(context.Background(), sess)
		}()
	}
}

// --- operations -----------------------------------------------------------

// SignUp registers a new account. When the service reports zero new
// identities the email already existed; no local profile is created and no
// error is returned. Otherwise a server-side profile creation is attempted
// best-effort and a low-completion local profile is synthesized so callers
// have something to render immediately.
func (m *Manager) SignUp(ctx context.Context, email, password string, userData domain.UserMetadata) error {
	m.setLoading(true)
	defer m.setLoading(false)

	result, err := m.auth.SignUp(ctx, email, password, userData)
	if err != nil {
		m.notify.Error("Sign up failed: " + err.Error())
		return err
	}

	if result.IdentitiesCount == 0 {
		m.notify.Info("An account with this email already exists. Try signing in instead.")
		return nil
	}

	if m.funcs != nil {
		args := map[string]interface{}{
			"user_id":   result.UserID,
			"email":     email,
			"role":      userData.Role(),
			"full_name": userData.FullName(),
		}
		if _, err := m.funcs.Call(ctx, "create_profile_for_user", args); err != nil {
			// Non-fatal: the fallback tier covers profile absence on the
			// next fetch.
			m.log.Warn("server-side profile creation failed", "error", err)
		}
	}

	role := domain.Role(userData.Role())
	if !domain.ValidRole(role) {
		role = domain.RoleJobSeeker
	}
	m.mu.Lock()
	m.profile = &domain.Profile{
		ID:                result.UserID,
		Email:             email,
		Role:              role,
		FullName:          userData.FullName(),
		ProfileCompletion: m.policy.FallbackCompletion,
		IsVerified:        false,
		Provenance:        domain.ProvenanceFallback,
	}
	if result.Session != nil {
		m.user = result.Session
		if m.settled {
			m.setReadyStateLocked()
		}
	}
	m.mu.Unlock()

	m.notify.Success("Account created. Please check your email to confirm.")
	return nil
}

// SignIn authenticates with email and password. On success the gateway emits
// a SIGNED_IN event which records the session and refreshes the profile.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	m.setLoading(true)
	defer m.setLoading(false)

	if _, err := m.auth.SignInWithPassword(ctx, email, password); err != nil {
		m.notify.Error("Sign in failed: " + err.Error())
		return err
	}
	m.notify.Success("Signed in.")
	return nil
}

// SignOut ends the session. State is cleared synchronously on success, not
// via the eventual SIGNED_OUT event, so there is no window where user is nil
// but profile is still set.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.auth.SignOut(ctx); err != nil {
		m.notify.Error("Sign out failed: " + err.Error())
		return err
	}
	m.mu.Lock()
	m.user = nil
	m.profile = nil
	m.loading = false
	if m.settled {
		m.state = StateReadyAnonymous
	}
	m.mu.Unlock()
	m.notify.Info("Signed out.")
	return nil
}

// allowed profile update columns and their validation rules
var updatableColumns = map[string]string{
	"full_name":  "omitempty,max=120",
	"avatar_url": "omitempty,url",
	"role":       "omitempty,oneof=job_seeker employer admin institution_partner",
}

// UpdateProfile writes updates to the backend and then re-runs the full
// fetch chain rather than merging locally, so server-computed fields such as
// profile_completion never drift.
func (m *Manager) UpdateProfile(ctx context.Context, updates domain.ProfileUpdates) error {
	m.setLoading(true)
	defer m.setLoading(false)

	sess := m.currentUser()
	if sess == nil {
		err := apperror.Unauthorized("Not signed in")
		m.notify.Error(err.Message)
		return err
	}

	for column, value := range updates {
		rule, ok := updatableColumns[column]
		if !ok {
			err := apperror.BadRequest("Field cannot be updated: " + column)
			m.notify.Error(err.Message)
			return err
		}
		if err := m.validate.Var(value, rule); err != nil {
			appErr := apperror.BadRequest("Invalid value for " + column)
			m.notify.Error(appErr.Message)
			return appErr
		}
	}

	if err := m.store.ApplyUpdates(ctx, sess.UserID, updates); err != nil {
		m.notify.Error("Profile update failed: " + err.Error())
		return err
	}

	m.fetchProfile(ctx, sess)
	m.notify.Success("Profile updated.")
	return nil
}

// ResetPassword requests a password reset email. No fallback here: failure
// is terminal and must be visible to the caller.
func (m *Manager) ResetPassword(ctx context.Context, email, redirectURL string) error {
	if err := m.auth.SendPasswordReset(ctx, email, redirectURL); err != nil {
		m.notify.Error("Password reset failed: " + err.Error())
		return err
	}
	m.notify.Success("Password reset email sent.")
	return nil
}

// UpdatePassword sets a new password for the signed-in user.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword string) error {
	if err := m.auth.UpdatePassword(ctx, newPassword); err != nil {
		m.notify.Error("Password change failed: " + err.Error())
		return err
	}
	m.notify.Success("Password changed.")
	return nil
}

// RefreshProfile re-runs the full fetch chain for the current session.
// No-op when nobody is signed in.
func (m *Manager) RefreshProfile(ctx context.Context) {
	sess := m.currentUser()
	if sess == nil {
		return
	}
	m.fetchProfile(ctx, sess)
}

// --- derived reads --------------------------------------------------------

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		User:         m.user,
		Profile:      m.profile,
		Loading:      m.loading,
		Initializing: m.initializing,
		State:        m.state,
	}
}

func (m *Manager) HasRole(role domain.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile != nil && m.profile.Role == role
}

func (m *Manager) HasAnyRole(roles ...domain.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return false
	}
	for _, role := range roles {
		if m.profile.Role == role {
			return true
		}
	}
	return false
}

func (m *Manager) IsProfileComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile != nil && m.profile.ProfileCompletion >= m.policy.CompleteThreshold
}

// --- helpers --------------------------------------------------------------

func (m *Manager) currentUser() *domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = v
}
