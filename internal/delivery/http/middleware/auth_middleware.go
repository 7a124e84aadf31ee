package middleware

import (
	"net/http"
	"strings"

	"go-jobmarket-backend/internal/delivery/http/response"
	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/auth"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the Supabase access token and loads the caller's
// marketplace role. The role comes from the profile row, never from the JWT
// role claim, which is usually just "authenticated".
func AuthMiddleware(verifier *auth.Verifier, profiles domain.ProfileStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var tokenString string

		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			cookie, err := c.Cookie("auth_token")
			if err == nil && cookie != "" {
				tokenString = cookie
			}
		}

		if tokenString == "" {
			response.Error(c, http.StatusUnauthorized, "Authorization header or auth_token cookie required", nil)
			c.Abort()
			return
		}

		sess, err := verifier.VerifySession(tokenString)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid token", nil)
			c.Abort()
			return
		}

		profile, err := profiles.FetchBasic(c.Request.Context(), sess.UserID)
		if err != nil || profile == nil {
			// A valid token without a profile row means provisioning never
			// finished; treat it as unauthorized rather than guessing a role.
			response.Error(c, http.StatusUnauthorized, "Profile not found", nil)
			c.Abort()
			return
		}

		role := profile.Role
		if role == "" {
			role = domain.RoleJobSeeker
		}

		c.Set(string(domain.KeyUserID), sess.UserID)
		c.Set(string(domain.KeyUserEmail), sess.Email)
		c.Set(string(domain.KeyUserRole), string(role))

		c.Next()
	}
}

// RequireRoles allows only callers whose role matches one of the given roles.
// Must run after AuthMiddleware.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		role := c.GetString(string(domain.KeyUserRole))
		if !allowed[role] {
			response.Error(c, http.StatusForbidden, "Insufficient permissions", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
