package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/quillpad/quillpad/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	MongoDB   MongoDBConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Storage   StorageConfig
	MinIO     MinIOConfig
	Identity  IdentityConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Notes     NotesConfig
	Mail      MailConfig
}

type ServerConfig struct {
	Port          string
	Host          string
	Environment   string
	PublicBaseURL string
	CookieSecure  bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// StoreConfig selects the backend for note, user and session rows.
type StoreConfig struct {
	Backend string // memory | mongo | postgres
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type PostgresConfig struct {
	DSN string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// StorageConfig selects the attachment object store.
type StorageConfig struct {
	Backend       string // memory | minio
	SigningSecret string
	SignedURLTTL  time.Duration
	CacheControl  time.Duration
	MaxUploadSize int64
}

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type IdentityConfig struct {
	Provider           string // local | keycloak
	AllowInsecureToken bool
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

type NotesConfig struct {
	SaveLockTTL time.Duration
}

type MailConfig struct {
	Backend  string // log | smtp
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	envPath := os.Getenv("DOTENV_PATH")
	if envPath == "" {
		envPath = ".env"
	}
	_ = godotenv.Load(envPath)

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5001")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:5001")
	viper.SetDefault("STORE_BACKEND", "memory")
	viper.SetDefault("MONGODB_DATABASE", "quillpad")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("STORAGE_BACKEND", "memory")
	viper.SetDefault("MINIO_BUCKET", "note-attachments")
	viper.SetDefault("SIGNED_URL_TTL", 300)
	viper.SetDefault("UPLOAD_CACHE_CONTROL", 3600)
	viper.SetDefault("MAX_UPLOAD_MB", 25)
	viper.SetDefault("IDENTITY_PROVIDER", "local")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	viper.SetDefault("RATE_LIMIT_RPS", 5)
	viper.SetDefault("RATE_LIMIT_BURST", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("SAVE_LOCK_TTL", 60)
	viper.SetDefault("MAIL_BACKEND", "log")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("MAIL_FROM", "no-reply@quillpad.local")

	cfg := &Config{
		Server: ServerConfig{
			Port:          viper.GetString("SERVER_PORT"),
			Host:          viper.GetString("SERVER_HOST"),
			Environment:   viper.GetString("SERVER_ENVIRONMENT"),
			PublicBaseURL: strings.TrimRight(viper.GetString("PUBLIC_BASE_URL"), "/"),
			CookieSecure:  viper.GetBool("COOKIE_SECURE"),
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
		},
		Store: StoreConfig{
			Backend: strings.ToLower(viper.GetString("STORE_BACKEND")),
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Postgres: PostgresConfig{
			DSN: viper.GetString("POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Storage: StorageConfig{
			Backend:       strings.ToLower(viper.GetString("STORAGE_BACKEND")),
			SigningSecret: os.Getenv("STORAGE_SIGNING_SECRET"),
			SignedURLTTL:  time.Duration(viper.GetInt("SIGNED_URL_TTL")) * time.Second,
			CacheControl:  time.Duration(viper.GetInt("UPLOAD_CACHE_CONTROL")) * time.Second,
			MaxUploadSize: viper.GetInt64("MAX_UPLOAD_MB") << 20,
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		Identity: IdentityConfig{
			Provider:           strings.ToLower(viper.GetString("IDENTITY_PROVIDER")),
			AllowInsecureToken: strings.EqualFold(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")), "true"),
		},
		Keycloak: KeycloakConfig{
			URL:          viper.GetString("KEYCLOAK_URL"),
			Realm:        viper.GetString("KEYCLOAK_REALM"),
			ClientID:     viper.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: viper.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			AccessTokenTTL:  time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(viper.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Notes: NotesConfig{
			SaveLockTTL: time.Duration(viper.GetInt("SAVE_LOCK_TTL")) * time.Second,
		},
		Mail: MailConfig{
			Backend:  strings.ToLower(viper.GetString("MAIL_BACKEND")),
			Host:     viper.GetString("SMTP_HOST"),
			Port:     viper.GetInt("SMTP_PORT"),
			Username: viper.GetString("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     viper.GetString("MAIL_FROM"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set; using a random per-process secret (sessions will not survive restarts)")
		cfg.JWT.Secret = randomSecret()
	}
	if cfg.Storage.SigningSecret == "" {
		cfg.Storage.SigningSecret = cfg.JWT.Secret
	}

	return cfg, nil
}

// Validate checks that every selected backend has the settings it needs.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "mongo":
		if c.MongoDB.URI == "" {
			return fmt.Errorf("STORE_BACKEND=mongo requires MONGODB_URI")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.Store.Backend)
	}

	switch c.Storage.Backend {
	case "memory":
	case "minio":
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("STORAGE_BACKEND=minio requires MINIO_ENDPOINT")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Identity.Provider {
	case "local":
	case "keycloak":
		if c.Keycloak.URL == "" || c.Keycloak.Realm == "" || c.Keycloak.ClientID == "" {
			return fmt.Errorf("IDENTITY_PROVIDER=keycloak requires KEYCLOAK_URL, KEYCLOAK_REALM and KEYCLOAK_CLIENT_ID")
		}
	default:
		return fmt.Errorf("unsupported IDENTITY_PROVIDER %q", c.Identity.Provider)
	}

	switch c.Mail.Backend {
	case "log":
	case "smtp":
		if c.Mail.Host == "" {
			return fmt.Errorf("MAIL_BACKEND=smtp requires SMTP_HOST")
		}
	default:
		return fmt.Errorf("unsupported MAIL_BACKEND %q", c.Mail.Backend)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
