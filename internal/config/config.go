package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// 導出戦略の識別子。MEMBER_STRATEGYで指定する。
const (
	// StrategyDomain はユーザー名にドメインサフィックスを付与する戦略。
	StrategyDomain = "domain"
	// StrategyAuthState はユーザー詳細APIから外部ログイン識別子を引く戦略。
	StrategyAuthState = "authstate"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Hub
	HubAPIURL         string
	HubAPIToken       string
	HubRequestTimeout time.Duration
	APIPageSize       int
	FetchConcurrency  int
	HubRateLimit      float64

	// Grouper
	GrouperBaseURL string
	GrouperUser    string
	GrouperPass    string

	// Grouper (optional)
	GrouperRequestTimeout time.Duration

	// Group
	GroupName             string
	GroupPrefix           string
	GroupDefaultNamespace string
	ReplaceExisting       bool

	// Sync
	SyncInterval   time.Duration
	MemberStrategy string
	MemberDomain   string

	// Outbound
	OutboundStrict bool

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.HubAPIURL = os.Getenv("HUB_API_URL")
	if cfg.HubAPIURL == "" {
		missing = append(missing, "HUB_API_URL")
	}

	cfg.HubAPIToken = os.Getenv("HUB_API_TOKEN")
	if cfg.HubAPIToken == "" {
		missing = append(missing, "HUB_API_TOKEN")
	}

	cfg.GrouperBaseURL = os.Getenv("GROUPER_BASE_URL")
	if cfg.GrouperBaseURL == "" {
		missing = append(missing, "GROUPER_BASE_URL")
	}

	cfg.GrouperUser = os.Getenv("GROUPER_USER")
	if cfg.GrouperUser == "" {
		missing = append(missing, "GROUPER_USER")
	}

	cfg.GrouperPass = os.Getenv("GROUPER_PASS")
	if cfg.GrouperPass == "" {
		missing = append(missing, "GROUPER_PASS")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.HubRequestTimeout = getEnvDuration("HUB_REQUEST_TIMEOUT", 60*time.Second)
	cfg.APIPageSize = getEnvInt("API_PAGE_SIZE", 0)
	cfg.FetchConcurrency = getEnvInt("FETCH_CONCURRENCY", 10)
	cfg.HubRateLimit = getEnvFloat("HUB_RATE_LIMIT", 0)
	cfg.GrouperRequestTimeout = getEnvDuration("GROUPER_REQUEST_TIMEOUT", 60*time.Second)
	cfg.GroupName = getEnvString("GROUP_NAME", "")
	cfg.GroupPrefix = getEnvString("GROUP_PREFIX", "edu:berkeley:app:datahub:")
	cfg.GroupDefaultNamespace = getEnvString("GROUP_DEFAULT_NAMESPACE", "datahub")
	cfg.ReplaceExisting = getEnvBool("REPLACE_EXISTING", true)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", time.Hour)
	cfg.MemberStrategy = getEnvString("MEMBER_STRATEGY", StrategyDomain)
	cfg.MemberDomain = getEnvString("MEMBER_DOMAIN", "berkeley.edu")
	cfg.OutboundStrict = getEnvBool("OUTBOUND_STRICT", false)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	if cfg.MemberStrategy != StrategyDomain && cfg.MemberStrategy != StrategyAuthState {
		return nil, fmt.Errorf("invalid MEMBER_STRATEGY: %q (allowed: %s, %s)",
			cfg.MemberStrategy, StrategyDomain, StrategyAuthState)
	}

	if cfg.FetchConcurrency < 0 {
		return nil, fmt.Errorf("FETCH_CONCURRENCY must not be negative: %d", cfg.FetchConcurrency)
	}

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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
