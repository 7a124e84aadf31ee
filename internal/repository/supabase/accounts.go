package supabase

import (
	"context"
	"net/http"
	"net/url"

	"go-jobmarket-backend/internal/domain"
)

// Accounts is the stateless face of GoTrue used by the HTTP layer. Unlike
// AuthGateway it holds no session; tokens are handed back to the caller.
type Accounts struct {
	client      *Client
	frontendURL string
}

func NewAccounts(client *Client, frontendURL string) *Accounts {
	return &Accounts{client: client, frontendURL: frontendURL}
}

func (a *Accounts) SignUp(ctx context.Context, email, password string, metadata domain.UserMetadata) (*domain.SignUpResult, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"data":     metadata,
		"options": map[string]interface{}{
			"emailRedirectTo": a.frontendURL + "/auth/callback",
		},
	}

	var resp struct {
		tokenResponse
		gotrueUser
	}
	if err := a.client.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &resp); err != nil {
		return nil, err
	}

	user := resp.gotrueUser
	if resp.AccessToken != "" {
		user = resp.tokenResponse.User
	}

	result := &domain.SignUpResult{
		UserID:          user.ID,
		IdentitiesCount: len(user.Identities),
	}
	if resp.AccessToken != "" {
		result.Session = resp.tokenResponse.session()
	}
	return result, nil
}

// PasswordGrant exchanges credentials for a token pair.
func (a *Accounts) PasswordGrant(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]interface{}{"email": email, "password": password}

	var resp tokenResponse
	if err := a.client.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}
	return resp.session(), nil
}

// SendPasswordReset asks GoTrue to mail a recovery link pointing at the
// frontend's update-password page.
func (a *Accounts) SendPasswordReset(ctx context.Context, email string) error {
	redirect := a.frontendURL + "/auth/update-password"
	path := "/auth/v1/recover?redirect_to=" + url.QueryEscape(redirect)
	body := map[string]interface{}{"email": email}
	return a.client.do(ctx, http.MethodPost, path, "", body, nil)
}

// UpdatePasswordWithToken sets a new password using the access token from a
// recovery link.
func (a *Accounts) UpdatePasswordWithToken(ctx context.Context, accessToken, newPassword string) error {
	body := map[string]interface{}{"password": newPassword}
	return a.client.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, body, nil)
}

// RevokeToken invalidates the server-side refresh token family. The access
// token itself stays valid until it expires; callers must also drop it.
func (a *Accounts) RevokeToken(ctx context.Context, accessToken string) error {
	return a.client.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}
