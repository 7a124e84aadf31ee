package domain

import "time"

type Role string

const (
	RoleJobSeeker          Role = "job_seeker"
	RoleEmployer           Role = "employer"
	RoleAdmin              Role = "admin"
	RoleInstitutionPartner Role = "institution_partner"
)

// ValidRole reports whether r is one of the marketplace roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleJobSeeker, RoleEmployer, RoleAdmin, RoleInstitutionPartner:
		return true
	}
	return false
}

// Provenance records where a profile came from. Synthesized fallbacks carry
// a low completion score and should be replaced by an authoritative row on a
// later fetch.
type Provenance string

const (
	ProvenanceAuthoritative Provenance = "authoritative"
	ProvenanceFallback      Provenance = "fallback"
)

// Profile is the application-level user record. ID always equals the owning
// Session's UserID when both exist.
type Profile struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Role              Role       `json:"role"`
	FullName          string     `json:"full_name"`
	ProfileCompletion int        `json:"profile_completion"` // 0-100 quality score
	IsVerified        bool       `json:"is_verified"`
	AvatarURL         string     `json:"avatar_url,omitempty"`
	Provenance        Provenance `json:"provenance"`
	CreatedAt         time.Time  `json:"created_at,omitzero"`
	UpdatedAt         time.Time  `json:"updated_at,omitzero"`

	// Role extension rows, present only on a full fetch.
	JobSeeker   *JobSeekerDetail   `json:"job_seeker,omitempty"`
	Employer    *EmployerDetail    `json:"employer,omitempty"`
	Institution *InstitutionDetail `json:"institution,omitempty"`
	Settings    *UserSettings      `json:"settings,omitempty"`
	Subscription *Subscription     `json:"subscription,omitempty"`
}

// Authoritative reports whether the profile was fetched from storage rather
// than synthesized locally.
func (p *Profile) Authoritative() bool {
	return p != nil && p.Provenance == ProvenanceAuthoritative
}

type JobSeekerDetail struct {
	Headline      string   `json:"headline"`
	Skills        []string `json:"skills"`
	ResumeURL     string   `json:"resume_url,omitempty"`
	DesiredSalary int      `json:"desired_salary,omitempty"`
	OpenToWork    bool     `json:"open_to_work"`
}

type EmployerDetail struct {
	CompanyName string `json:"company_name"`
	CompanySize string `json:"company_size,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Website     string `json:"website,omitempty"`
}

type InstitutionDetail struct {
	InstitutionName string   `json:"institution_name"`
	FocusAreas      []string `json:"focus_areas,omitempty"`
	ContactPhone    string   `json:"contact_phone,omitempty"`
}

type UserSettings struct {
	EmailNotifications bool   `json:"email_notifications"`
	ProfileVisibility  string `json:"profile_visibility"`
}

type Subscription struct {
	Plan      string    `json:"plan"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// ProfileUpdates is a partial update keyed by column name; only whitelisted
// fields are written by the store.
type ProfileUpdates map[string]interface{}
