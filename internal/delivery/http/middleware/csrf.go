package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"go-jobmarket-backend/internal/delivery/http/response"

	"github.com/gin-gonic/gin"
)

const (
	CSRFTokenCookieName = "csrf_token"
	CSRFTokenHeaderName = "X-CSRF-Token"
	CSRFTokenLength     = 32
	CSRFTokenExpiry     = 24 * time.Hour
)

func generateCSRFToken() (string, error) {
	bytes := make([]byte, CSRFTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// CSRFMiddleware implements the double-submit cookie pattern: mutating
// requests must echo the csrf_token cookie in the X-CSRF-Token header.
// Cross-origin attackers can trigger requests carrying the cookie but cannot
// read its value, so they cannot forge the header.
//
// Public auth routes are exempt because the caller has no session yet; those
// are guarded by rate limiting instead.
func CSRFMiddleware() gin.HandlerFunc {
	csrfExemptPaths := map[string]bool{
		"/v1/auth/login":           true,
		"/v1/auth/register":        true,
		"/v1/auth/forgot-password": true,
		"/v1/health":               true,
	}

	return func(c *gin.Context) {
		if csrfExemptPaths[c.Request.URL.Path] {
			// Still seed the cookie for later authenticated requests.
			csrfCookie, err := c.Cookie(CSRFTokenCookieName)
			if err != nil || csrfCookie == "" {
				if newToken, _ := generateCSRFToken(); newToken != "" {
					setCSRFCookie(c, newToken)
				}
			}
			c.Next()
			return
		}

		csrfCookie, err := c.Cookie(CSRFTokenCookieName)
		if err != nil || csrfCookie == "" {
			newToken, err := generateCSRFToken()
			if err != nil {
				response.Error(c, http.StatusInternalServerError, "Failed to generate security token", nil)
				c.Abort()
				return
			}
			setCSRFCookie(c, newToken)
			csrfCookie = newToken
		}

		method := c.Request.Method
		if method == "GET" || method == "HEAD" || method == "OPTIONS" {
			c.Next()
			return
		}

		headerToken := c.GetHeader(CSRFTokenHeaderName)
		if headerToken == "" {
			response.Error(c, http.StatusForbidden, "Missing CSRF token", nil)
			c.Abort()
			return
		}
		if headerToken != csrfCookie {
			response.Error(c, http.StatusForbidden, "Invalid CSRF token", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

func setCSRFCookie(c *gin.Context, token string) {
	// HttpOnly stays false so the SPA can read the value and echo it back.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		CSRFTokenCookieName,
		token,
		int(CSRFTokenExpiry.Seconds()),
		"/",
		"",
		true,
		false,
	)
}
