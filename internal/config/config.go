package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Wiki
	Lang    string
	Project string

	// IRC
	IRCServer   string
	IRCChannel  string
	IRCNick     string
	IRCRealName string

	// API
	APITimeout   time.Duration
	APIRateLimit float64
	APIRateBurst int

	// Recorder
	LogDir string

	// Operator
	OperatorTarget string

	// Server
	ServerPort string
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

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Lang = getEnvString("WIKI_LANG", "pl")
	cfg.Project = getEnvString("WIKI_PROJECT", "wikipedia")
	cfg.IRCServer = getEnvString("IRC_SERVER", "irc.wikimedia.org:6667")
	cfg.IRCChannel = getEnvString("IRC_CHANNEL", "#"+cfg.Lang+"."+cfg.Project)
	cfg.IRCNick = getEnvString("IRC_NICK", "wikirc-"+cfg.Lang)
	cfg.IRCRealName = getEnvString("IRC_REALNAME", "wikirc recent changes recorder")
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 30*time.Second)
	cfg.APIRateLimit = getEnvFloat("API_RATE_LIMIT", 5)
	cfg.APIRateBurst = getEnvInt("API_RATE_BURST", 5)
	cfg.LogDir = getEnvString("LOG_DIR", ".")
	cfg.OperatorTarget = getEnvString("OPERATOR_TARGET", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

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
