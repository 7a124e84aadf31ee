package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"
)

// refresh this long before the access token expires
const refreshMargin = 60 * time.Second

// AuthGateway implements domain.AuthGateway against GoTrue. It holds the one
// session this process owns, refreshes its token in the background, and
// fans auth events out to subscribers the way the hosted client SDKs do.
type AuthGateway struct {
	client      *Client
	frontendURL string

	mu           sync.Mutex
	session      *domain.Session
	refreshTimer *time.Timer
	subscribers  map[int]chan domain.AuthEvent
	nextSub      int
	closed       bool
}

func NewAuthGateway(client *Client, frontendURL string) *AuthGateway {
	return &AuthGateway{
		client:      client,
		frontendURL: frontendURL,
		subscribers: make(map[int]chan domain.AuthEvent),
	}
}

// gotrueUser is the user object GoTrue embeds in auth responses.
type gotrueUser struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	EmailConfirmedAt string                 `json:"email_confirmed_at"`
	UserMetadata     map[string]interface{} `json:"user_metadata"`
	Identities       []json.RawMessage      `json:"identities"`
}

type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         gotrueUser `json:"user"`
}

func (t *tokenResponse) session() *domain.Session {
	return &domain.Session{
		UserID:         t.User.ID,
		Email:          t.User.Email,
		EmailConfirmed: t.User.EmailConfirmedAt != "",
		AccessToken:    t.AccessToken,
		RefreshToken:   t.RefreshToken,
		ExpiresAt:      time.Now().Add(time.Duration(t.ExpiresIn) * time.Second),
		Metadata:       domain.UserMetadata(t.User.UserMetadata),
	}
}

// CurrentSession returns the session this gateway holds, validating it
// against the auth service. A rejected token clears the session; a network
// failure is reported as an error so the caller can distinguish "signed
// out" from "unknown".
func (g *AuthGateway) CurrentSession(ctx context.Context) (*domain.Session, error) {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()

	if sess == nil {
		return nil, nil
	}

	var user gotrueUser
	err := g.client.do(ctx, http.MethodGet, "/auth/v1/user", sess.AccessToken, nil, &user)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindAuth {
			// token no longer honored upstream
			g.mu.Lock()
			g.session = nil
			g.mu.Unlock()
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

func (g *AuthGateway) SignUp(ctx context.Context, email, password string, metadata domain.UserMetadata) (*domain.SignUpResult, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"data":     metadata,
		"options": map[string]interface{}{
			"emailRedirectTo": g.frontendURL + "/auth/callback",
		},
	}

	// The signup response is the user object directly, unless auto-confirm
	// is on, in which case it is a full token grant.
	var resp struct {
		tokenResponse
		gotrueUser
	}
	if err := g.client.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &resp); err != nil {
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
		sess := resp.tokenResponse.session()
		result.Session = sess
		g.adopt(sess, domain.EventSignedIn)
	}
	return result, nil
}

func (g *AuthGateway) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]interface{}{"email": email, "password": password}

	var resp tokenResponse
	err := g.client.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &resp)
	if err != nil {
		return nil, err
	}

	sess := resp.session()
	g.adopt(sess, domain.EventSignedIn)
	return sess, nil
}

func (g *AuthGateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return nil
	}

	if err := g.client.do(ctx, http.MethodPost, "/auth/v1/logout", sess.AccessToken, nil, nil); err != nil {
		return err
	}

	g.mu.Lock()
	g.session = nil
	g.stopRefreshLocked()
	g.mu.Unlock()
	g.emit(domain.AuthEvent{Kind: domain.EventSignedOut, Session: nil})
	return nil
}

func (g *AuthGateway) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	// GoTrue takes the redirect as a query parameter on /recover
	path := "/auth/v1/recover?redirect_to=" + url.QueryEscape(redirectURL)
	body := map[string]interface{}{"email": email}
	return g.client.do(ctx, http.MethodPost, path, "", body, nil)
}

func (g *AuthGateway) UpdatePassword(ctx context.Context, newPassword string) error {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil {
		return apperror.Unauthorized("Not signed in")
	}

	body := map[string]interface{}{"password": newPassword}
	return g.client.do(ctx, http.MethodPut, "/auth/v1/user", sess.AccessToken, body, nil)
}

// Events subscribes to auth events. The channel is buffered; a subscriber
// that stops draining loses events rather than blocking the gateway.
func (g *AuthGateway) Events() (<-chan domain.AuthEvent, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSub
	g.nextSub++
	ch := make(chan domain.AuthEvent, 8)
	g.subscribers[id] = ch

	return ch, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if sub, ok := g.subscribers[id]; ok {
			delete(g.subscribers, id)
			close(sub)
		}
	}
}

// Close stops the refresh timer and closes all subscriber channels.
func (g *AuthGateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.stopRefreshLocked()
	for id, ch := range g.subscribers {
		delete(g.subscribers, id)
		close(ch)
	}
}

// adopt installs a new session, emits ev, and schedules the token refresh.
func (g *AuthGateway) adopt(sess *domain.Session, kind domain.AuthEventKind) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.session = sess
	g.scheduleRefreshLocked(sess)
	g.mu.Unlock()

	g.emit(domain.AuthEvent{Kind: kind, Session: sess})
}

func (g *AuthGateway) emit(ev domain.AuthEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (g *AuthGateway) scheduleRefreshLocked(sess *domain.Session) {
	g.stopRefreshLocked()
	if sess.RefreshToken == "" {
		return
	}
	wait := time.Until(sess.ExpiresAt) - refreshMargin
	if wait < 0 {
		wait = 0
	}
	g.refreshTimer = time.AfterFunc(wait, g.refresh)
}

func (g *AuthGateway) stopRefreshLocked() {
	if g.refreshTimer != nil {
		g.refreshTimer.Stop()
		g.refreshTimer = nil
	}
}

func (g *AuthGateway) refresh() {
	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()
	if sess == nil || sess.RefreshToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body := map[string]interface{}{"refresh_token": sess.RefreshToken}
	var resp tokenResponse
	err := g.client.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &resp)
	if err != nil {
		// retry shortly; the access token may still be valid
		g.mu.Lock()
		if !g.closed && g.session != nil {
			g.refreshTimer = time.AfterFunc(30*time.Second, g.refresh)
		}
		g.mu.Unlock()
		return
	}

	g.adopt(resp.session(), domain.EventTokenRefreshed)
}
