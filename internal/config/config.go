package config

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	PublicBaseURL   string
	// Endpoint overrides the account-derived R2 endpoint (any S3-compatible store).
	Endpoint        string
}

type GenerationConfig struct {
	Endpoint       string
	TickInterval   time.Duration
	EstimateWindow time.Duration
	CapPercent     int
	// Timeout of 0 leaves the HTTP client default in place.
	Timeout        time.Duration
	Retention      time.Duration
	RatePerMinute  float64
	RateBurst      int
}

type PipelineConfig struct {
	FetchTimeout  time.Duration
	UploadTimeout time.Duration
	MaxBlobBytes  int64
}

type LogConfig struct {
	Level  string
	Format string
}

type Config struct {
	DB_URL      string
	Port        string
	JWTSecret   string
	Environment string
	CorsConfig  cors.Options
	R2          R2Config
	Generation  GenerationConfig
	Pipeline    PipelineConfig
	Log         LogConfig
}

var Envs = initConfig()

func initConfig() Config {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	// A missing env file is normal outside development.
	_ = godotenv.Load(envFile)

	return Load()
}

// Load builds a Config from the current process environment.
func Load() Config {
	env := getEnv("ENV", "development")
	logFormat := "console"
	if env == "production" {
		logFormat = "json"
	}

	return Config{
		DB_URL:      getEnv("DB_URL", ""),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "not-so-secret-now-is-it?"),
		Environment: env,
		CorsConfig:  CorsConfig(),
		R2: R2Config{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			BucketName:      getEnv("R2_BUCKET_NAME", "user-models"),
			Region:          getEnv("R2_REGION", "auto"),
			PublicBaseURL:   getEnv("R2_PUBLIC_BASE_URL", ""),
			Endpoint:        getEnv("R2_ENDPOINT", ""),
		},
		Generation: GenerationConfig{
			Endpoint:       getEnv("GENERATION_ENDPOINT", "http://localhost:8000/generate-3d-model"),
			TickInterval:   getEnvDuration("GENERATION_TICK_INTERVAL", 3*time.Second),
			EstimateWindow: getEnvDuration("GENERATION_ESTIMATE_WINDOW", 120*time.Second),
			CapPercent:     getEnvInt("GENERATION_CAP_PERCENT", 90),
			Timeout:        getEnvDuration("GENERATION_TIMEOUT", 0),
			Retention:      getEnvDuration("GENERATION_RETENTION", 30*time.Minute),
			RatePerMinute:  getEnvFloat("GENERATION_RATE_PER_MINUTE", 6),
			RateBurst:      getEnvInt("GENERATION_RATE_BURST", 2),
		},
		Pipeline: PipelineConfig{
			FetchTimeout:  getEnvDuration("BLOB_FETCH_TIMEOUT", 2*time.Minute),
			UploadTimeout: getEnvDuration("BLOB_UPLOAD_TIMEOUT", 5*time.Minute),
			MaxBlobBytes:  int64(getEnvInt("BLOB_MAX_BYTES", 200<<20)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", logFormat),
		},
	}
}

// Gets the env by key or fallbacks
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

// getEnvDuration accepts Go duration strings ("3s") or bare milliseconds ("3000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func CorsConfig() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"http://localhost:8081", "http://localhost:19006"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
}
