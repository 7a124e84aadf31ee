package session

import (
	"time"

	"go-jobmarket-backend/config"
	"go-jobmarket-backend/internal/domain"
)

// State is the lifecycle of the manager. Bootstrapping is entered exactly
// once per process; it is the only state in which Initializing is true.
type State string

const (
	StateUnstarted          State = "unstarted"
	StateBootstrapping      State = "bootstrapping"
	StateReadyAuthenticated State = "ready_authenticated"
	StateReadyAnonymous     State = "ready_anonymous"
)

// Policy holds the tunables of the bootstrap and profile fetch. These are
// deployment policy, not structure; load them from config.
type Policy struct {
	BootstrapTimeout    time.Duration
	ProfileFetchTimeout time.Duration // tier 1, full join fetch
	BasicFetchTimeout   time.Duration // tier 2, base row fetch
	PermissionRetries   int
	FallbackCompletion  int
	CompleteThreshold   int
}

// DefaultPolicy mirrors the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		BootstrapTimeout:    10 * time.Second,
		ProfileFetchTimeout: 8 * time.Second,
		BasicFetchTimeout:   5 * time.Second,
		PermissionRetries:   2,
		FallbackCompletion:  10,
		CompleteThreshold:   80,
	}
}

// PolicyFromConfig lifts the session knobs out of the app config.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		BootstrapTimeout:    cfg.BootstrapTimeout,
		ProfileFetchTimeout: cfg.ProfileFetchTimeout,
		BasicFetchTimeout:   cfg.BasicFetchTimeout,
		PermissionRetries:   cfg.PermissionRetries,
		FallbackCompletion:  cfg.FallbackCompletion,
		CompleteThreshold:   cfg.CompleteThreshold,
	}
}

// Snapshot is the read-only view handed to consumers. Reads never block on
// in-flight operations.
type Snapshot struct {
	User         *domain.Session `json:"user"`
	Profile      *domain.Profile `json:"profile"`
	Loading      bool            `json:"loading"`
	Initializing bool            `json:"initializing"`
	State        State           `json:"state"`
}
