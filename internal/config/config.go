package config

import (
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/SergeiKhy/shortlink/internal/sequence"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Бэкенды последовательности идентификаторов
const (
	SequenceMemory   = "memory"
	SequencePostgres = "postgres"
	SequenceRedis    = "redis"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Sequence  SequenceConfig
	Cache     CacheConfig
}

type AppConfig struct {
	Port           string
	Env            string
	BaseURL        string // пусто: берётся из схемы и хоста запроса
	RedirectStatus int
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret  string
	JWTIssuer  string
	TokenTTL   time.Duration
	BcryptCost int
}

type RateLimitConfig struct {
	RequestsPerSecond     float64
	BurstSize             int
	AuthRequestsPerSecond float64
	AuthBurstSize         int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type SequenceConfig struct {
	Backend   string
	Start     *big.Int
	BlockSize uint64
}

type CacheConfig struct {
	TTL           time.Duration
	LocalMaxItems int64
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("REDIRECT_STATUS", http.StatusMovedPermanently)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "shortener")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 25)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_ISSUER", "url-shortener")
	v.SetDefault("JWT_TTL", time.Hour)
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("AUTH_RATE_LIMIT_RPS", 1)
	v.SetDefault("AUTH_RATE_LIMIT_BURST", 5)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")

	v.SetDefault("SEQUENCE_BACKEND", SequencePostgres)
	v.SetDefault("SEQUENCE_START", "1000")
	v.SetDefault("SEQUENCE_BLOCK_SIZE", sequence.DefaultBlockSize)

	v.SetDefault("CACHE_TTL", 24*time.Hour)
	v.SetDefault("CACHE_LOCAL_MAX_ITEMS", 10000)
}

// FromViper собирает конфиг из подготовленного экземпляра viper.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	cfg.App.Port = v.GetString("APP_PORT")
	cfg.App.Env = strings.ToLower(v.GetString("APP_ENV"))
	cfg.App.BaseURL = strings.TrimRight(v.GetString("APP_BASE_URL"), "/")
	cfg.App.RedirectStatus = v.GetInt("REDIRECT_STATUS")

	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetString("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.Name = v.GetString("DB_NAME")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")
	cfg.DB.MaxConns = v.GetInt32("DB_MAX_CONNS")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetString("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Auth.JWTSecret = v.GetString("JWT_SECRET")
	cfg.Auth.JWTIssuer = v.GetString("JWT_ISSUER")
	cfg.Auth.TokenTTL = v.GetDuration("JWT_TTL")
	cfg.Auth.BcryptCost = v.GetInt("BCRYPT_COST")

	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = v.GetInt("RATE_LIMIT_BURST")
	cfg.RateLimit.AuthRequestsPerSecond = v.GetFloat64("AUTH_RATE_LIMIT_RPS")
	cfg.RateLimit.AuthBurstSize = v.GetInt("AUTH_RATE_LIMIT_BURST")

	cfg.CORS.AllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))

	cfg.Sequence.Backend = strings.ToLower(v.GetString("SEQUENCE_BACKEND"))
	cfg.Sequence.BlockSize = v.GetUint64("SEQUENCE_BLOCK_SIZE")
	start, err := sequence.ParseStart(strings.TrimSpace(v.GetString("SEQUENCE_START")))
	if err != nil {
		return nil, err
	}
	cfg.Sequence.Start = start

	cfg.Cache.TTL = v.GetDuration("CACHE_TTL")
	cfg.Cache.LocalMaxItems = v.GetInt64("CACHE_LOCAL_MAX_ITEMS")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные и взаимозависимые параметры.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}

	switch c.Sequence.Backend {
	case SequenceMemory, SequencePostgres, SequenceRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown SEQUENCE_BACKEND %q", c.Sequence.Backend))
	}

	switch c.App.RedirectStatus {
	case http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		errs = append(errs, fmt.Errorf("REDIRECT_STATUS must be 301, 302, 307 or 308, got %d", c.App.RedirectStatus))
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.RateLimit.AuthRequestsPerSecond <= 0 || c.RateLimit.AuthBurstSize <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_RPS and AUTH_RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// IsDevelopment включает человекочитаемые логи
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development" || c.App.Env == "dev"
}

// DSN строка подключения к PostgreSQL
func (c DBConfig) DSN() string {
	// логин и пароль экранируются, спецсимволы не ломают разбор строки
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// splitList разбирает список через запятую, пропуская пустые элементы
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
