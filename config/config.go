package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBUrl       string
	SupabaseUrl string
	SupabaseKey string
	// Service role key used for server-side RPC and storage administration
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	FrontendURL        string
	// Extra origins allowed by CORS on top of FrontendURL
	AllowedOrigins []string
	// Service account the API signs in with for privileged operations
	ServiceEmail    string
	ServicePassword string
	// Redis/Upstash Configuration
	UpstashRedisURL      string
	UpstashRedisPassword string
	// Session bootstrap/fetch policy. These are policy knobs, not structure;
	// tune per deployment.
	BootstrapTimeout    time.Duration
	ProfileFetchTimeout time.Duration // full join fetch
	BasicFetchTimeout   time.Duration // base row fetch
	PermissionRetries   int           // tier-1 retries on permission errors
	FallbackCompletion  int           // completion score for synthesized profiles
	CompleteThreshold   int           // profile_completion considered "complete"
	// Failed sign-in tracking
	FailedLoginBlockMinutes int
	FailedLoginMaxAttempts  int
}

func LoadConfig() (*Config, error) {
	// Only effective locally; ignored in production when the file is absent
	_ = godotenv.Load()

	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		DBUrl: getEnv("DATABASE_URL", ""),
		// Trailing slash would produce double slashes in auth URLs (.co//auth)
		SupabaseUrl:        strings.TrimRight(getEnv("SUPABASE_URL", ""), "/"),
		SupabaseKey:        getEnv("SUPABASE_KEY", getEnv("SUPABASE_ANON_KEY", "")),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseJWTSecret:  getEnv("SUPABASE_JWT_SECRET", getEnv("SUPABASE_JWT_KEY", "")),
		FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		AllowedOrigins:     splitEnvList("CORS_ALLOWED_ORIGINS"),
		ServiceEmail:       getEnv("SERVICE_ACCOUNT_EMAIL", ""),
		ServicePassword:    getEnv("SERVICE_ACCOUNT_PASSWORD", ""),
		// Redis/Upstash Configuration
		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),
		// Session policy (with sensible defaults)
		BootstrapTimeout:    getEnvSeconds("SESSION_BOOTSTRAP_TIMEOUT_SECONDS", 10),
		ProfileFetchTimeout: getEnvSeconds("PROFILE_FETCH_TIMEOUT_SECONDS", 8),
		BasicFetchTimeout:   getEnvSeconds("BASIC_FETCH_TIMEOUT_SECONDS", 5),
		PermissionRetries:   getEnvInt("PROFILE_FETCH_PERMISSION_RETRIES", 2),
		FallbackCompletion:  getEnvInt("FALLBACK_PROFILE_COMPLETION", 10),
		CompleteThreshold:   getEnvInt("PROFILE_COMPLETE_THRESHOLD", 80),
		// Failed sign-in tracking
		FailedLoginBlockMinutes: getEnvInt("FAILED_LOGIN_BLOCK_MINUTES", 15),
		FailedLoginMaxAttempts:  getEnvInt("FAILED_LOGIN_MAX_ATTEMPTS", 5),
	}

	cfg.AllowedOrigins = append(cfg.AllowedOrigins, cfg.FrontendURL)

	// Basic validation to avoid confusing failures later
	if cfg.DBUrl == "" {
		log.Println("WARNING: DATABASE_URL is missing. Application may fail to connect.")
	}
	if cfg.SupabaseUrl == "" {
		log.Println("WARNING: SUPABASE_URL is missing. Auth operations will fail.")
	}
	if cfg.UpstashRedisURL == "" {
		log.Println("WARNING: UPSTASH_REDIS_URL not configured. Sign-in tracking disabled.")
	}
	// A fallback profile must never read as complete
	if cfg.FallbackCompletion >= cfg.CompleteThreshold {
		log.Printf("WARNING: FALLBACK_PROFILE_COMPLETION (%d) >= PROFILE_COMPLETE_THRESHOLD (%d), clamping",
			cfg.FallbackCompletion, cfg.CompleteThreshold)
		cfg.FallbackCompletion = cfg.CompleteThreshold / 8
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// splitEnvList reads a comma-separated environment variable
func splitEnvList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvSeconds reads an integer number of seconds as a duration
func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}
