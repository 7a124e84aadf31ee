package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// PostgreSQL error codes
const (
	pgInsufficientPrivilege = "42501" // raised by row level security denials
	pgUniqueViolation       = "23505"
)

type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FetchWithDetails loads the profile row joined with every role extension
// table plus settings and subscription in a single round trip. Only the
// extension matching the profile's role will have data; the others scan as
// NULL.
func (r *ProfileRepository) FetchWithDetails(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT
			p.id, p.email, p.role, COALESCE(p.full_name, ''),
			COALESCE(p.profile_completion, 0), p.is_verified,
			COALESCE(p.avatar_url, ''), p.created_at, p.updated_at,
			js.headline, js.skills, js.resume_url, js.desired_salary, js.open_to_work,
			em.company_name, em.company_size, em.industry, em.website,
			ip.institution_name, ip.focus_areas, ip.contact_phone,
			st.email_notifications, st.profile_visibility,
			sub.plan, sub.status, sub.expires_at
		FROM profiles p
		LEFT JOIN job_seeker_profiles js ON js.user_id = p.id
		LEFT JOIN employer_profiles em   ON em.user_id = p.id
		LEFT JOIN institution_profiles ip ON ip.user_id = p.id
		LEFT JOIN user_settings st       ON st.user_id = p.id
		LEFT JOIN subscriptions sub      ON sub.user_id = p.id
		WHERE p.id = $1`

	var p domain.Profile
	var (
		jsHeadline, jsResume               *string
		jsSkills                           []string
		jsSalary                           *int
		jsOpen                             *bool
		emName, emSize, emIndustry, emSite *string
		ipName, ipPhone                    *string
		ipFocus                            []string
		stNotif                            *bool
		stVisibility                       *string
		subPlan, subStatus                 *string
		subExpires                         *time.Time
	)

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.Email, &p.Role, &p.FullName,
		&p.ProfileCompletion, &p.IsVerified,
		&p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
		&jsHeadline, pq.Array(&jsSkills), &jsResume, &jsSalary, &jsOpen,
		&emName, &emSize, &emIndustry, &emSite,
		&ipName, pq.Array(&ipFocus), &ipPhone,
		&stNotif, &stVisibility,
		&subPlan, &subStatus, &subExpires,
	)
	if err != nil {
		return nil, mapError(err)
	}

	if jsHeadline != nil {
		p.JobSeeker = &domain.JobSeekerDetail{
			Headline: *jsHeadline,
			Skills:   jsSkills,
		}
		if jsResume != nil {
			p.JobSeeker.ResumeURL = *jsResume
		}
		if jsSalary != nil {
			p.JobSeeker.DesiredSalary = *jsSalary
		}
		if jsOpen != nil {
			p.JobSeeker.OpenToWork = *jsOpen
		}
	}
	if emName != nil {
		p.Employer = &domain.EmployerDetail{CompanyName: *emName}
		if emSize != nil {
			p.Employer.CompanySize = *emSize
		}
		if emIndustry != nil {
			p.Employer.Industry = *emIndustry
		}
		if emSite != nil {
			p.Employer.Website = *emSite
		}
	}
	if ipName != nil {
		p.Institution = &domain.InstitutionDetail{
			InstitutionName: *ipName,
			FocusAreas:      ipFocus,
		}
		if ipPhone != nil {
			p.Institution.ContactPhone = *ipPhone
		}
	}
	if stNotif != nil && stVisibility != nil {
		p.Settings = &domain.UserSettings{
			EmailNotifications: *stNotif,
			ProfileVisibility:  *stVisibility,
		}
	}
	if subPlan != nil && subStatus != nil {
		p.Subscription = &domain.Subscription{Plan: *subPlan, Status: *subStatus}
		if subExpires != nil {
			p.Subscription.ExpiresAt = *subExpires
		}
	}

	return &p, nil
}

// FetchBasic loads only the base profile row.
func (r *ProfileRepository) FetchBasic(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `
		SELECT id, email, role, COALESCE(full_name, ''),
		       COALESCE(profile_completion, 0), is_verified,
		       COALESCE(avatar_url, ''), created_at, updated_at
		FROM profiles WHERE id = $1`

	var p domain.Profile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.ID, &p.Email, &p.Role, &p.FullName,
		&p.ProfileCompletion, &p.IsVerified,
		&p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

// ApplyUpdates writes a partial update. Callers whitelist the columns; this
// still builds the SET clause from a fixed map so a stray key can never
// reach the SQL.
func (r *ProfileRepository) ApplyUpdates(ctx context.Context, userID string, updates domain.ProfileUpdates) error {
	if len(updates) == 0 {
		return nil
	}

	allowed := map[string]bool{"full_name": true, "avatar_url": true, "role": true}

	setClauses := make([]string, 0, len(updates)+1)
	args := make([]interface{}, 0, len(updates)+1)
	args = append(args, userID)
	for column, value := range updates {
		if !allowed[column] {
			return apperror.BadRequest("Field cannot be updated: " + column)
		}
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	setClauses = append(setClauses, "updated_at = NOW()")

	query := fmt.Sprintf("UPDATE profiles SET %s WHERE id = $1", strings.Join(setClauses, ", "))
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("Profile not found")
	}
	return nil
}

// EmailExists reports whether a profile row exists for the address. Used by
// the password reset flow, which must not reveal the answer to the caller.
func (r *ProfileRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM profiles WHERE email = $1)", email).Scan(&exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

// EnsureProfile creates the profile row if it does not exist yet. An existing
// row keeps its role; the role argument only seeds new rows.
func (r *ProfileRepository) EnsureProfile(ctx context.Context, id, email, role string) error {
	if role == "" {
		role = string(domain.RoleJobSeeker)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO profiles (id, email, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, updated_at = NOW()`,
		id, email, role)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// mapError translates driver errors into the application taxonomy. A missing
// row is not an error for the fetch tiers; it is reported as (nil, nil).
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Timeout("profile query timed out", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgInsufficientPrivilege:
			return apperror.Forbidden("profile query denied by policy")
		case pgUniqueViolation:
			return apperror.Conflict("profile already exists")
		}
	}
	return apperror.Network("profile query failed", err)
}
