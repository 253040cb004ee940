package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth (GitHub)
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string

	// Session
	SessionMaxAge int

	// Analysis backend
	AnalyzeAPIURL string

	// Content generation
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// GitHub ingestion
	GitHubFetchTimeout time.Duration
	GitHubTreeLimit    int

	// Usage / billing
	FreeGenerationLimit     int
	GumroadSecret           string
	GumroadProductPermalink string

	// Rate Limit
	RateLimitGeneral  int
	RateLimitGenerate int

	// History
	HistoryRetentionDays   int
	HistoryFreeVisibleDays int

	// Logging / tracing
	LogFile   string
	TraceFile string

	// Server
	ServerPort   string
	AnalyzerPort string
	BaseURL      string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	if cfg.GitHubClientID == "" {
		missing = append(missing, "GITHUB_CLIENT_ID")
	}

	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	if cfg.GitHubClientSecret == "" {
		missing = append(missing, "GITHUB_CLIENT_SECRET")
	}

	cfg.GitHubRedirectURL = os.Getenv("GITHUB_REDIRECT_URL")
	if cfg.GitHubRedirectURL == "" {
		missing = append(missing, "GITHUB_REDIRECT_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.AnalyzeAPIURL = strings.TrimRight(getEnvString("ANALYZE_API_URL", "http://127.0.0.1:8000"), "/")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o")
	cfg.OpenAIBaseURL = strings.TrimRight(getEnvString("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/")
	cfg.GitHubFetchTimeout = getEnvDuration("GITHUB_FETCH_TIMEOUT", 10*time.Second)
	cfg.GitHubTreeLimit = getEnvInt("GITHUB_TREE_LIMIT", 300)
	cfg.FreeGenerationLimit = getEnvInt("FREE_GENERATION_LIMIT", 1)
	cfg.GumroadSecret = os.Getenv("GUMROAD_SECRET")
	cfg.GumroadProductPermalink = getEnvString("GUMROAD_PRODUCT_PERMALINK", "rczekx")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGenerate = getEnvInt("RATE_LIMIT_GENERATE", 10)
	cfg.HistoryRetentionDays = getEnvInt("HISTORY_RETENTION_DAYS", 90)
	cfg.HistoryFreeVisibleDays = getEnvInt("HISTORY_FREE_VISIBLE_DAYS", 3)
	cfg.LogFile = os.Getenv("LOG_FILE")
	cfg.TraceFile = os.Getenv("TRACE_FILE")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AnalyzerPort = getEnvString("ANALYZER_PORT", "8000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
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
