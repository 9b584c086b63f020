package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 起動時の設定エラー。これが返ったら起動しない
var ErrConfiguration = errors.New("configuration error")

// HS256の鍵は最低32バイト
const minJWTSecretLen = 32

// Configはアプリ全体の設定。Load後は書き換えない
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL string // DATABASE_URL か POSTGRES_* から組み立てたDSN

	JWTSecret    string // JWT署名シークレット
	TokenHashKey string // リフレッシュトークンのハッシュ用キー（空ならSHA-256のみ）

	AccessTokenLifetime  time.Duration // アクセストークンの有効期間（短い）
	RefreshTokenLifetime time.Duration // リフレッシュトークンの有効期間（長い）
	ReaperInterval       time.Duration // 期限切れトークン掃除の間隔

	CookieSecure bool   // refresh cookie の Secure
	LogLevel     string // debug/info/warn/error
}

// Loadは環境変数
func Load() (Config, error) {
	accessTTL, err := durationEnv("ACCESS_TOKEN_LIFETIME", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	refreshTTL, err := durationEnv("REFRESH_TOKEN_LIFETIME", 7*24*time.Hour)
	if err != nil {
		return Config{}, err
	}
	reaperInterval, err := durationEnv("REAPER_INTERVAL", time.Hour)
	if err != nil {
		return Config{}, err
	}
	cookieSecure, err := boolEnv("COOKIE_SECURE", true)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: getenv("PORT", "8080"),

		DatabaseURL: databaseURL(),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		TokenHashKey: os.Getenv("TOKEN_HASH_KEY"),

		AccessTokenLifetime:  accessTTL,
		RefreshTokenLifetime: refreshTTL,
		ReaperInterval:       reaperInterval,

		CookieSecure: cookieSecure,
		LogLevel:     strings.ToLower(getenv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// 必須チェック
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return configErr("DATABASE_URL or POSTGRES_HOST/POSTGRES_DB is required")
	}
	if c.JWTSecret == "" {
		return configErr("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return configErr("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.AccessTokenLifetime <= 0 {
		return configErr("ACCESS_TOKEN_LIFETIME must be positive")
	}
	if c.RefreshTokenLifetime <= 0 {
		return configErr("REFRESH_TOKEN_LIFETIME must be positive")
	}
	if c.RefreshTokenLifetime <= c.AccessTokenLifetime {
		return configErr("REFRESH_TOKEN_LIFETIME must be longer than ACCESS_TOKEN_LIFETIME")
	}
	if c.ReaperInterval <= 0 {
		return configErr("REAPER_INTERVAL must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return configErr("LOG_LEVEL must be one of debug/info/warn/error")
	}
	return nil
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

// DATABASE_URL があれば最優先で使う
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	host := os.Getenv("POSTGRES_HOST")
	name := os.Getenv("POSTGRES_DB")
	if host == "" || name == "" {
		return ""
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		host,
		getenv("POSTGRES_PORT", "5432"),
		getenv("POSTGRES_USER", "postgres"),
		os.Getenv("POSTGRES_PASSWORD"),
		name,
		getenv("POSTGRES_SSLMODE", "disable"),
	)
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a duration: %v", ErrConfiguration, key, err)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a bool: %v", ErrConfiguration, key, err)
	}
	return b, nil
}
