package v1

import (
	"net/http"

	"go-jobmarket-backend/config"
	"go-jobmarket-backend/internal/delivery/http/middleware"
	"go-jobmarket-backend/internal/delivery/http/response"
	"go-jobmarket-backend/internal/domain"
	"go-jobmarket-backend/internal/usecase"
	"go-jobmarket-backend/pkg/auth"
	"go-jobmarket-backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	AccountUC domain.AccountUsecase
	ProfileUC domain.ProfileUsecase
	HealthUC  usecase.HealthUsecase
	Verifier  *auth.Verifier
	Profiles  domain.ProfileStore
	Tracker   *security.LoginTracker
	Config    *config.Config
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// CORS must run before anything that can abort the request
	r.Use(middleware.CORSMiddleware(deps.Config.AllowedOrigins))
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.GlobalRateLimitMiddleware())
	r.Use(middleware.CSRFMiddleware())
	r.Use(middleware.ErrorHandler())

	v1 := r.Group("/v1")

	v1.GET("/health", func(c *gin.Context) {
		status, healthy := deps.HealthUC.Check(c.Request.Context())
		if !healthy {
			response.Error(c, http.StatusServiceUnavailable, "Service degraded", status)
			return
		}
		response.Success(c, http.StatusOK, "System operational", status)
	})

	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(deps.Verifier, deps.Profiles))
	{
		NewAuthHandler(v1, protected, deps.AccountUC, deps.Tracker)
		NewProfileHandler(protected, deps.ProfileUC)
	}

	return r
}
