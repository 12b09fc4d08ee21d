package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	S3Bucket   string
	S3Region   string
	S3Endpoint string // LocalStack or other S3-compatible endpoint; empty means AWS

	RedisURL     string // optional; enables the signed URL cache
	SignedURLTTL time.Duration

	MaxUploadBytes int64
	WorkerID       string

	// Location used to compute "today" for unlock checks.
	Location *time.Location
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		S3Bucket:             getenv("S3_BUCKET", "capsule-media"),
		S3Region:             getenv("S3_REGION", "us-east-1"),
		S3Endpoint:           getenv("S3_ENDPOINT", ""),
		RedisURL:             getenv("REDIS_URL", ""),
		WorkerID:             getenv("WORKER_ID", "worker-1"),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	if cfg.DatabaseURL, err = requireEnv("DATABASE_URL"); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret, err = requireEnv("JWT_SECRET"); err != nil {
		return Config{}, err
	}

	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SignedURLTTL, err = durationEnv("SIGNED_URL_TTL", time.Hour); err != nil {
		return Config{}, err
	}

	cfg.MaxUploadBytes = 1 << 30
	if v := getenv("MAX_UPLOAD_BYTES", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid env MAX_UPLOAD_BYTES: %q", v)
		}
		cfg.MaxUploadBytes = n
	}

	cfg.Location = time.Local
	if tz := getenv("TIMEZONE", ""); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Config{}, fmt.Errorf("invalid env TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func requireEnv(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("missing env: %s", key)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid env %s: %q", key, v)
	}
	return d, nil
}
