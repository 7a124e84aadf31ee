package usecase

import (
	"context"

	"go-jobmarket-backend/internal/session"
	"go-jobmarket-backend/pkg/redis"

	"github.com/jackc/pgx/v5/pgxpool"
)

type HealthUsecase interface {
	// Check reports per-component status and whether the whole service is
	// healthy. Redis being down degrades but does not fail the check.
	Check(ctx context.Context) (map[string]string, bool)
}

type healthUsecase struct {
	db       *pgxpool.Pool
	sessions *session.Manager
}

func NewHealthUsecase(db *pgxpool.Pool, sessions *session.Manager) HealthUsecase {
	return &healthUsecase{db: db, sessions: sessions}
}

func (u *healthUsecase) Check(ctx context.Context) (map[string]string, bool) {
	healthy := true
	status := map[string]string{"status": "ok"}

	if err := u.db.Ping(ctx); err != nil {
		status["database"] = err.Error()
		healthy = false
	} else {
		status["database"] = "ok"
	}

	if err := redis.HealthCheck(ctx); err != nil {
		status["redis"] = err.Error()
	} else {
		status["redis"] = "ok"
	}

	if u.sessions != nil {
		status["service_session"] = string(u.sessions.Snapshot().State)
	}

	if !healthy {
		status["status"] = "degraded"
	}
	return status, healthy
}
