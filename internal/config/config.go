package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Token
	JWTSecret string
	JWTExpire time.Duration

	// OAuth（Client IDが設定されたプロバイダーのみ有効）
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string

	// Storage（STORAGE_BUCKET未設定の場合、メディア機能は無効）
	StorageEndpoint        string
	StorageRegion          string
	StorageAccessKeyID     string
	StorageSecretAccessKey string
	StorageBucket          string
	StoragePublicBaseURL   string
	StorageUsePathStyle    bool
	UploadMaxBytes         int64
	ResumeURLTTL           time.Duration

	// Cache（REDIS_URL未設定の場合、公開ページのキャッシュは無効）
	RedisURL       string
	PublicCacheTTL time.Duration

	// Blob sweeper
	BlobSweepInterval    time.Duration
	BlobSweepBatch       int
	BlobSweepMaxAttempts int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitAccount int
	RateLimitUpload  int
	RateLimitPublic  int

	// Logging
	LogFormat string
	LogLevel  string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool

	// CORS
	CORSAllowedOrigin string
}

// GitHubEnabled はGitHubログインが設定されているかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != ""
}

// GoogleEnabled はGoogleログインが設定されているかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

// StorageEnabled はオブジェクトストレージが設定されているかを返す。
func (c *Config) StorageEnabled() bool {
	return c.StorageBucket != ""
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTExpire = getEnvDuration("JWT_EXPIRE", 720*time.Hour)

	cfg.GitHubClientID = getEnvString("GITHUB_CLIENT_ID", "")
	cfg.GitHubClientSecret = getEnvString("GITHUB_CLIENT_SECRET", "")
	cfg.GitHubCallbackURL = getEnvString("GITHUB_CALLBACK_URL", cfg.BaseURL+"/api/auth/github/callback")
	cfg.GoogleClientID = getEnvString("GOOGLE_CLIENT_ID", "")
	cfg.GoogleClientSecret = getEnvString("GOOGLE_CLIENT_SECRET", "")
	cfg.GoogleCallbackURL = getEnvString("GOOGLE_CALLBACK_URL", cfg.BaseURL+"/api/auth/google/callback")

	cfg.StorageEndpoint = getEnvString("STORAGE_ENDPOINT", "")
	cfg.StorageRegion = getEnvString("STORAGE_REGION", "auto")
	cfg.StorageAccessKeyID = getEnvString("STORAGE_ACCESS_KEY_ID", "")
	cfg.StorageSecretAccessKey = getEnvString("STORAGE_SECRET_ACCESS_KEY", "")
	cfg.StorageBucket = getEnvString("STORAGE_BUCKET", "")
	cfg.StoragePublicBaseURL = getEnvString("STORAGE_PUBLIC_BASE_URL", "")
	cfg.StorageUsePathStyle = getEnvBool("STORAGE_USE_PATH_STYLE", false)
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 10<<20)
	cfg.ResumeURLTTL = getEnvDuration("RESUME_URL_TTL", time.Hour)

	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.PublicCacheTTL = getEnvDuration("PUBLIC_CACHE_TTL", 60*time.Second)

	cfg.BlobSweepInterval = getEnvDuration("BLOB_SWEEP_INTERVAL", 10*time.Minute)
	cfg.BlobSweepBatch = getEnvInt("BLOB_SWEEP_BATCH", 50)
	cfg.BlobSweepMaxAttempts = getEnvInt("BLOB_SWEEP_MAX_ATTEMPTS", 10)

	cfg.RateLimitAccount = getEnvInt("RATE_LIMIT_ACCOUNT", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)
	cfg.RateLimitPublic = getEnvInt("RATE_LIMIT_PUBLIC", 60)

	cfg.LogFormat = getEnvString("LOG_FORMAT", "json")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
