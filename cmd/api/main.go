package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-jobmarket-backend/config"
	_ "go-jobmarket-backend/docs" // swagger registration
	v1 "go-jobmarket-backend/internal/delivery/http/v1"
	"go-jobmarket-backend/internal/repository/postgres"
	"go-jobmarket-backend/internal/repository/supabase"
	"go-jobmarket-backend/internal/session"
	"go-jobmarket-backend/internal/usecase"
	"go-jobmarket-backend/pkg/auth"
	"go-jobmarket-backend/pkg/database"
	"go-jobmarket-backend/pkg/logger"
	"go-jobmarket-backend/pkg/notify"
	"go-jobmarket-backend/pkg/redis"
	"go-jobmarket-backend/pkg/security"
	"go-jobmarket-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
)

// @title           Job Marketplace Backend API
// @version         1.0
// @description     Backend for the job marketplace: auth sessions, profiles, and role details.
// @host            localhost:8080
// @BasePath        /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init()
	logger.Log.Info("Starting job marketplace backend", "port", cfg.Port)

	security.InitSecurityLogger("jobmarket-backend", ginEnvironment())

	dbPool, err := database.NewPostgresConnection(cfg.DBUrl)
	if err != nil {
		logger.Log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := database.RunMigrations(cfg.DBUrl); err != nil {
		logger.Log.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := redis.Initialize(redis.Config{
		URL:      cfg.UpstashRedisURL,
		Password: cfg.UpstashRedisPassword,
	}); err != nil {
		// Sign-in throttling degrades to in-memory; the API still serves.
		logger.Log.Warn("Redis unavailable", "error", err)
	}
	defer redis.Close()

	// Supabase surfaces: GoTrue auth, PostgREST RPC, storage
	sbClient := supabase.NewClient(cfg.SupabaseUrl, cfg.SupabaseKey)
	gateway := supabase.NewAuthGateway(sbClient, cfg.FrontendURL)
	defer gateway.Close()
	accounts := supabase.NewAccounts(sbClient, cfg.FrontendURL)
	funcs := supabase.NewServerFunctions(sbClient, cfg.SupabaseServiceKey)
	files := supabase.NewFileStore(sbClient, cfg.SupabaseServiceKey)

	profileRepo := postgres.NewProfileRepository(dbPool)

	validate := validator.New()
	validation.RegisterValidators(validate)

	// The service session: the API's own sign-in against the auth service,
	// bootstrapped like any client session and visible in /v1/health.
	sessions := session.NewManager(session.Deps{
		Auth:     gateway,
		Store:    profileRepo,
		Funcs:    funcs,
		Notify:   notify.NewSlogNotifier(),
		Validate: validate,
		Policy:   session.PolicyFromConfig(cfg),
		Log:      logger.Log,
	})
	sessions.Start(context.Background())
	defer sessions.Close()

	if cfg.ServiceEmail != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := sessions.SignIn(ctx, cfg.ServiceEmail, cfg.ServicePassword); err != nil {
				logger.Log.Warn("Service account sign-in failed", "error", err)
			}
		}()
	}

	accountUC := usecase.NewAccountUsecase(accounts, profileRepo, profileRepo, funcs)
	profileUC := usecase.NewProfileUsecase(profileRepo, files, validate)
	healthUC := usecase.NewHealthUsecase(dbPool, sessions)

	jwksURL := cfg.SupabaseUrl + "/auth/v1/.well-known/jwks.json"
	verifier := auth.NewVerifier(auth.NewProvider(jwksURL), cfg.SupabaseJWTSecret)

	tracker := security.NewLoginTracker(security.LoginTrackerConfig{
		MaxAttempts:   cfg.FailedLoginMaxAttempts,
		AttemptWindow: time.Duration(cfg.FailedLoginBlockMinutes) * time.Minute,
		BlockDuration: time.Duration(cfg.FailedLoginBlockMinutes) * time.Minute,
		UseIPTracking: true,
	})

	router := v1.NewRouter(v1.RouterDeps{
		AccountUC: accountUC,
		ProfileUC: profileUC,
		HealthUC:  healthUC,
		Verifier:  verifier,
		Profiles:  profileRepo,
		Tracker:   tracker,
		Config:    cfg,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", "error", err)
	}

	logger.Log.Info("Server exiting")
}

func ginEnvironment() string {
	if os.Getenv("GIN_MODE") == "release" {
		return "production"
	}
	return "development"
}
