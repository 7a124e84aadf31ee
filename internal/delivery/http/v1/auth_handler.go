package v1

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go-jobmarket-backend/internal/delivery/http/middleware"
	"go-jobmarket-backend/internal/delivery/http/response"
	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"
	"go-jobmarket-backend/pkg/security"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	accountUC domain.AccountUsecase
	tracker   *security.LoginTracker
}

func NewAuthHandler(public *gin.RouterGroup, protected *gin.RouterGroup, accountUC domain.AccountUsecase, tracker *security.LoginTracker) {
	handler := &AuthHandler{
		accountUC: accountUC,
		tracker:   tracker,
	}

	publicAuth := public.Group("/auth")
	{
		publicAuth.POST("/login", middleware.RateLimitMiddleware(middleware.LoginRateLimitConfig()), handler.Login)
		publicAuth.POST("/register", middleware.RateLimitMiddleware(middleware.AuthRateLimitConfig()), handler.Register)
		publicAuth.POST("/forgot-password", middleware.RateLimitMiddleware(middleware.AuthRateLimitConfig()), handler.ForgotPassword)
		publicAuth.POST("/reset-password", middleware.RateLimitMiddleware(middleware.AuthRateLimitConfig()), handler.ResetPassword)
		// Email confirmation itself happens on the Supabase-hosted link
	}

	protectedAuth := protected.Group("/auth")
	{
		protectedAuth.POST("/logout", handler.Logout)
		protectedAuth.GET("/me", handler.Me)
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required,oneof=job_seeker employer institution_partner"`
	FullName string `json:"full_name" binding:"omitempty,min=2,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register godoc
// @Summary      User Registration
// @Description  Register a new account with email, password, and marketplace role
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        register  body      RegisterRequest  true  "Registration details"
// @Success      201    {object}  response.Response
// @Failure      400    {object}  response.Response
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	outcome, err := h.accountUC.Register(c.Request.Context(), req.Email, req.Password, req.Role, req.FullName)
	if err != nil {
		c.Error(err)
		return
	}

	if outcome.AlreadyRegistered {
		response.Success(c, http.StatusOK, "This email is already registered. Try signing in instead.", nil)
		return
	}

	if outcome.Session == nil {
		response.Success(c, http.StatusCreated, "Registration successful. Please check your email to confirm.", nil)
		return
	}

	response.Success(c, http.StatusCreated, "Registration successful", gin.H{
		"token":         outcome.Session.AccessToken,
		"refresh_token": outcome.Session.RefreshToken,
		"user":          outcome.Profile,
	})
}

// Login godoc
// @Summary      User Login
// @Description  Login with email and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        login  body      LoginRequest  true  "Login credentials"
// @Success      200    {object}  response.Response
// @Failure      401    {object}  response.Response
// @Failure      429    {object}  response.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	requestID := c.GetString("RequestID")

	blocked, err := h.tracker.IsBlocked(c.Request.Context(), req.Email, ip)
	if err == nil && blocked {
		security.DefaultLogger().LogLoginBlocked(c.Request.Context(), req.Email, ip, userAgent, requestID)
		response.Error(c, http.StatusTooManyRequests, "Too many failed attempts. Please try again later.", nil)
		return
	}

	sess, profile, err := h.accountUC.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		kind := apperror.KindOf(err)
		if kind == apperror.KindAuth || kind == apperror.KindValidation {
			nowBlocked, _, trackErr := h.tracker.RecordFailedAttempt(c.Request.Context(), req.Email, ip, userAgent, requestID)
			if trackErr == nil && nowBlocked {
				response.Error(c, http.StatusTooManyRequests, "Too many failed attempts. Please try again later.", nil)
				return
			}
			c.Error(apperror.Unauthorized(loginFailureMessage(err)))
			return
		}
		c.Error(err)
		return
	}

	_ = h.tracker.ClearAttempts(c.Request.Context(), req.Email, ip)
	security.DefaultLogger().Log(c.Request.Context(), security.SecurityEvent{
		Event:        security.EventLoginSuccess,
		SubjectType:  "email",
		SubjectValue: security.MaskEmail(req.Email),
		IP:           ip,
		UserAgent:    userAgent,
		RequestID:    requestID,
	})

	response.Success(c, http.StatusOK, "Login successful", gin.H{
		"token":         sess.AccessToken,
		"refresh_token": sess.RefreshToken,
		"expires_at":    sess.ExpiresAt,
		"user":          profile,
	})
}

// loginFailureMessage keeps credential failures generic so callers cannot
// distinguish a wrong password from an unknown account. "Email not confirmed"
// passes through; the caller needs it to offer a resend.
func loginFailureMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message == "Email not confirmed" {
		return appErr.Message
	}
	return "Wrong password or account not found"
}

// Logout godoc
// @Summary      User Logout
// @Description  Revoke the refresh token family behind the caller's access token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token, _ = c.Cookie("auth_token")
	}

	_ = h.accountUC.Logout(c.Request.Context(), token)
	response.Success(c, http.StatusOK, "Logged out", nil)
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword godoc
// @Summary      Request Password Reset
// @Description  Send a password reset email. Responds identically whether the address exists or not.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      ForgotPasswordRequest  true  "Email address"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	// Equalize response time across all paths so it cannot be used to probe
	// which addresses exist.
	start := time.Now()
	const targetDuration = 2 * time.Second

	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	_ = h.accountUC.ForgotPassword(c.Request.Context(), req.Email)

	holdUntil(start, targetDuration)
	response.Success(c, http.StatusOK, "If an account with that email exists, a password reset link has been sent.", nil)
}

func holdUntil(start time.Time, target time.Duration) {
	if elapsed := time.Since(start); elapsed < target {
		time.Sleep(target - elapsed)
	}
}

type ResetPasswordRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

// ResetPassword godoc
// @Summary      Reset Password
// @Description  Set a new password using the access token from the reset email link
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request  body      ResetPasswordRequest  true  "Reset password details"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	if err := h.accountUC.ResetPassword(c.Request.Context(), req.AccessToken, req.NewPassword); err != nil {
		c.Error(err)
		return
	}

	response.Success(c, http.StatusOK, "Password has been reset successfully. You can now login with your new password.", nil)
}

// Me godoc
// @Summary      Current Account
// @Description  Return the caller's profile with role details
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(string(domain.KeyUserID))

	profile, err := h.accountUC.CurrentProfile(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	response.Success(c, http.StatusOK, "User details", profile)
}
