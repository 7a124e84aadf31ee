package session

import (
	"context"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"
)

// fetchProfile runs the three-tier fetch chain for sess and applies the
// result. It always completes with a non-nil profile applied (unless the
// user signed out mid-flight) and never blocks past the tier timeouts.
//
// Tier policy:
//
//	tier 1  full join fetch, bounded by ProfileFetchTimeout
//	        row            -> authoritative, done
//	        no row         -> tier 2
//	        permission err -> retry tier 1 while budget lasts, then tier 2
//	                          (the base row may be readable even when a
//	                          joined table's policy denies)
//	        timeout        -> tier 3 (service degraded, don't try a smaller
//	                          query against it)
//	        other error    -> tier 3
//	tier 2  base row fetch, bounded by BasicFetchTimeout
//	        row            -> authoritative (base fields), done
//	        anything else  -> tier 3
//	tier 3  pure local synthesis from session metadata; cannot fail
func (m *Manager) fetchProfile(ctx context.Context, sess *domain.Session) {
	gen := m.beginFetch()

	profile, failures := m.runTiers(ctx, sess)
	m.applyProfile(gen, profile)

	if failures > 0 {
		m.recordTierFailures(failures, profile)
	}
}

func (m *Manager) runTiers(ctx context.Context, sess *domain.Session) (*domain.Profile, int) {
	failures := 0
	retries := 0
	deepFailure := false

tier1:
	for {
		t1ctx, cancel := context.WithTimeout(ctx, m.policy.ProfileFetchTimeout)
		profile, err := m.store.FetchWithDetails(t1ctx, sess.UserID)
		cancel()

		switch {
		case err == nil && profile != nil:
			profile.Provenance = domain.ProvenanceAuthoritative
			return profile, failures
		case err == nil:
			// no row yet, try the cheaper shape
			break tier1
		case apperror.IsTimeout(err):
			m.log.Warn("full profile fetch timed out", "user_id", sess.UserID)
			failures++
			deepFailure = true
			return m.synthesize(sess, deepFailure), failures
		case apperror.IsPermission(err):
			failures++
			if retries < m.policy.PermissionRetries {
				retries++
				continue
			}
			m.log.Warn("full profile fetch denied, retry budget spent", "user_id", sess.UserID)
			break tier1
		default:
			m.log.Warn("full profile fetch failed", "user_id", sess.UserID, "error", err)
			failures++
			deepFailure = true
			return m.synthesize(sess, deepFailure), failures
		}
	}

	t2ctx, cancel := context.WithTimeout(ctx, m.policy.BasicFetchTimeout)
	profile, err := m.store.FetchBasic(t2ctx, sess.UserID)
	cancel()

	if err == nil && profile != nil {
		profile.Provenance = domain.ProvenanceAuthoritative
		return profile, failures
	}
	if err != nil {
		m.log.Warn("basic profile fetch failed", "user_id", sess.UserID, "error", err)
		failures++
		deepFailure = true
	}

	return m.synthesize(sess, deepFailure), failures
}

// synthesize builds a usable profile from session data alone. The low
// completion score signals downstream consumers to prompt the user to finish
// setup; it stays strictly below the completeness threshold.
func (m *Manager) synthesize(sess *domain.Session, deepFailure bool) *domain.Profile {
	role := domain.Role(sess.Metadata.Role())
	if !domain.ValidRole(role) {
		role = domain.RoleJobSeeker
	}
	return &domain.Profile{
		ID:                sess.UserID,
		Email:             sess.Email,
		Role:              role,
		FullName:          sess.Metadata.FullName(),
		ProfileCompletion: m.policy.FallbackCompletion,
		IsVerified:        sess.EmailConfirmed && !deepFailure,
		Provenance:        domain.ProvenanceFallback,
	}
}

// beginFetch opens a new fetch generation and returns it. The generation is
// how late completions from abandoned chains are told apart from the active
// one.
func (m *Manager) beginFetch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchGen++
	return m.fetchGen
}

// applyProfile installs a fetched profile, subject to the late-result
// policy: a genuine authoritative result is always applied, even from a
// stale generation; a stale fallback is discarded; and a fallback never
// overwrites an authoritative profile for the same user.
func (m *Manager) applyProfile(gen uint64, profile *domain.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.user == nil {
		// signed out while the fetch was in flight
		return
	}
	if gen != m.fetchGen && !profile.Authoritative() {
		return
	}
	if m.profile.Authoritative() && !profile.Authoritative() && m.profile.ID == profile.ID {
		return
	}
	m.profile = profile
}

// recordTierFailures accumulates tier exhaustions and surfaces a single
// degradation notice once three or more have piled up — one notice per
// failure episode, not one per tier.
func (m *Manager) recordTierFailures(failures int, result *domain.Profile) {
	m.mu.Lock()
	m.tierFailures += failures
	shouldNotify := m.tierFailures >= 3 && !result.Authoritative()
	if shouldNotify {
		m.tierFailures = 0
	}
	m.mu.Unlock()

	if shouldNotify {
		m.notify.Warn("We couldn't load your full profile. Some features may be limited.")
	}
}
