package v1

import (
	"io"
	"net/http"

	"go-jobmarket-backend/internal/delivery/http/middleware"
	"go-jobmarket-backend/internal/delivery/http/response"
	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// Uploads are rejected above this size before touching storage.
const maxAvatarUploadBytes = 2 << 20

type ProfileHandler struct {
	profileUC domain.ProfileUsecase
}

func NewProfileHandler(protected *gin.RouterGroup, profileUC domain.ProfileUsecase) {
	handler := &ProfileHandler{profileUC: profileUC}

	profile := protected.Group("/profile")
	{
		profile.GET("", handler.Get)
		profile.PATCH("", handler.Update)
		profile.POST("/avatar", middleware.RateLimitMiddleware(middleware.UploadRateLimitConfig()), handler.UploadAvatar)
	}
}

// Get godoc
// @Summary      Get Profile
// @Description  Return the caller's profile joined with role details, settings, and subscription
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	userID := c.GetString(string(domain.KeyUserID))

	profile, err := h.profileUC.GetProfile(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	response.Success(c, http.StatusOK, "Profile", profile)
}

// Update godoc
// @Summary      Update Profile
// @Description  Apply partial updates to the caller's profile. Only whitelisted fields are accepted.
// @Tags         profile
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        updates  body      map[string]interface{}  true  "Fields to update"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /profile [patch]
func (h *ProfileHandler) Update(c *gin.Context) {
	var updates domain.ProfileUpdates
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	userID := c.GetString(string(domain.KeyUserID))

	profile, err := h.profileUC.UpdateProfile(c.Request.Context(), userID, updates)
	if err != nil {
		c.Error(err)
		return
	}

	response.Success(c, http.StatusOK, "Profile updated", profile)
}

// UploadAvatar godoc
// @Summary      Upload Avatar
// @Description  Upload a profile picture (png, jpeg, or webp, max 2MB) and set it as the avatar
// @Tags         profile
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "Image file"
// @Success      200   {object}  response.Response
// @Failure      400   {object}  response.Response
// @Router       /profile/avatar [post]
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.Error(apperror.BadRequest("A file upload named 'file' is required"))
		return
	}
	if fileHeader.Size > maxAvatarUploadBytes {
		c.Error(apperror.BadRequest("Avatar must be 2MB or smaller"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.Error(apperror.Internal(err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarUploadBytes+1))
	if err != nil {
		c.Error(apperror.Internal(err))
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	userID := c.GetString(string(domain.KeyUserID))

	url, err := h.profileUC.UploadAvatar(c.Request.Context(), userID, data, contentType)
	if err != nil {
		c.Error(err)
		return
	}

	response.Success(c, http.StatusOK, "Avatar uploaded", gin.H{"avatar_url": url})
}
