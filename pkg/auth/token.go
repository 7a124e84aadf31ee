package auth

import (
	"fmt"
	"time"

	"go-jobmarket-backend/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns raw Supabase access tokens into sessions. The JWT role
// claim is deliberately NOT mapped to the marketplace role; that comes from
// the profile store (the claim is usually just "authenticated" or stale).
type Verifier struct {
	jwks   *Provider
	secret string // HS256 shared secret, may be empty on JWKS-only projects
}

func NewVerifier(jwks *Provider, hs256Secret string) *Verifier {
	return &Verifier{jwks: jwks, secret: hs256Secret}
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if v.secret == "" {
			return nil, fmt.Errorf("HS256 token received but no JWT secret is configured")
		}
		return []byte(v.secret), nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
		return v.jwks.KeyFunc(token)
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

// VerifySession validates the token and derives a Session from its claims.
func (v *Verifier) VerifySession(tokenString string) (*domain.Session, error) {
	token, err := jwt.Parse(tokenString, v.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}

	return SessionFromClaims(claims, tokenString), nil
}

// SessionFromClaims maps Supabase JWT claims onto a Session. GoTrue puts the
// sign-up metadata under user_metadata and sets email_confirmed_at once the
// address is verified.
func SessionFromClaims(claims jwt.MapClaims, accessToken string) *domain.Session {
	sess := &domain.Session{AccessToken: accessToken}

	sess.UserID, _ = claims["sub"].(string)
	sess.Email, _ = claims["email"].(string)

	if confirmed, ok := claims["email_confirmed_at"].(string); ok && confirmed != "" {
		sess.EmailConfirmed = true
	}
	if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		sess.Metadata = domain.UserMetadata(meta)
	}
	if exp, ok := claims["exp"].(float64); ok {
		sess.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return sess
}
