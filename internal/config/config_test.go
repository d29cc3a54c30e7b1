package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DOTENV_PATH", "does-not-exist.env")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "quillpad_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "quillpad_test", cfg.MongoDB.Database)
	require.Equal(t, "localhost", cfg.Redis.Host)
	require.Equal(t, 5*time.Minute, cfg.Storage.SignedURLTTL)
	require.Equal(t, time.Hour, cfg.Storage.CacheControl)
	require.Equal(t, "note-attachments", cfg.MinIO.Bucket)
	require.Equal(t, "local", cfg.Identity.Provider)
	// signing secret falls back to the JWT secret
	require.Equal(t, cfg.JWT.Secret, cfg.Storage.SigningSecret)
}

func TestLoadConfig_GeneratesSecretWhenMissing(t *testing.T) {
	t.Setenv("DOTENV_PATH", "does-not-exist.env")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Len(t, cfg.JWT.Secret, 64)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Store:    StoreConfig{Backend: "memory"},
			Storage:  StorageConfig{Backend: "memory"},
			Identity: IdentityConfig{Provider: "local"},
			Mail:     MailConfig{Backend: "log"},
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.Store.Backend = "postgres"
	require.Error(t, c.Validate())
	c.Postgres.DSN = "postgres://localhost/quillpad"
	require.NoError(t, c.Validate())

	c = base()
	c.Storage.Backend = "minio"
	require.Error(t, c.Validate())

	c = base()
	c.Identity.Provider = "keycloak"
	c.Keycloak.URL = "http://kc"
	require.Error(t, c.Validate())

	c = base()
	c.Store.Backend = "sqlite"
	require.Error(t, c.Validate())
}
