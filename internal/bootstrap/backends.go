// Package bootstrap opens the backends selected by configuration. It is
// shared by the server and the quillctl maintenance commands.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quillpad/quillpad/internal/config"
	"github.com/quillpad/quillpad/internal/database"
	"github.com/quillpad/quillpad/internal/notes/repository"
	"github.com/quillpad/quillpad/internal/storage"
	"github.com/quillpad/quillpad/internal/users"
	"github.com/quillpad/quillpad/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

const mongoAttempts = 5

// Backends holds the open connections and the repositories built on them.
// Fields for backends that are not configured stay nil.
type Backends struct {
	Redis    *redis.Client
	Mongo    *mongo.Client
	MongoDB  *mongo.Database
	Postgres *sql.DB

	Notes repository.Repository
	Users users.UserRepository

	Objects storage.ObjectStore
	// Memory is set when Objects is the in-process store and has to be
	// served by the application itself.
	Memory *storage.MemoryStorage
	MinIO  *storage.MinIOStorage
}

// Open connects everything cfg selects. On error the connections opened so
// far are closed again.
func Open(ctx context.Context, cfg *config.Config) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			b.Close(context.Background())
		}
	}()

	if cfg.Redis.Host != "" {
		b.Redis = connectRedis(ctx, cfg.Redis)
	}

	switch cfg.Store.Backend {
	case "mongo":
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, mongoAttempts)
		if err != nil {
			return nil, err
		}
		b.Mongo = client
		b.MongoDB = client.Database(cfg.MongoDB.Database)
		if b.Notes, err = repository.NewMongoRepo(ctx, b.MongoDB); err != nil {
			return nil, fmt.Errorf("notes repository: %w", err)
		}
		if b.Users, err = users.NewMongoUserRepository(ctx, b.MongoDB.Collection("users")); err != nil {
			return nil, fmt.Errorf("users repository: %w", err)
		}
		logger.Infof("store: mongo database %s", cfg.MongoDB.Database)
	case "postgres":
		db, err := database.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		b.Postgres = db
		if err := database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		b.Notes = repository.NewPostgresRepo(db)
		b.Users = users.NewPostgresUserRepository(db)
		logger.Infof("store: postgres")
	default:
		b.Notes = repository.NewMemoryRepo()
		b.Users = users.NewMemoryUserRepository()
		logger.Warnf("store: memory (data is lost on restart)")
	}

	switch cfg.Storage.Backend {
	case "minio":
		s, err := storage.NewMinIOStorage(cfg.MinIO, cfg.Storage.CacheControl)
		if err != nil {
			return nil, err
		}
		b.MinIO = s
		b.Objects = s
		logger.Infof("objects: minio bucket %s at %s", cfg.MinIO.Bucket, cfg.MinIO.Endpoint)
	default:
		b.Memory = storage.NewMemoryStorage(cfg.Server.PublicBaseURL, cfg.Storage.SigningSecret, cfg.Storage.CacheControl)
		b.Objects = b.Memory
		logger.Warnf("objects: memory (attachments are lost on restart)")
	}
	return b, nil
}

// connectRedis returns nil when the server does not answer, so features
// that prefer Redis fall back to their in-process versions.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Host, cfg.Port, err)
		_ = client.Close()
		return nil
	}
	logger.Infof("connected to Redis at %s:%s", cfg.Host, cfg.Port)
	return client
}

// Checks returns one readiness probe per open backend.
func (b *Backends) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if b.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return b.Redis.Ping(ctx).Err() }
	}
	if b.Mongo != nil {
		checks["mongo"] = func(ctx context.Context) error { return b.Mongo.Ping(ctx, nil) }
	}
	if b.Postgres != nil {
		checks["postgres"] = b.Postgres.PingContext
	}
	if b.MinIO != nil {
		checks["minio"] = b.MinIO.Ping
	}
	return checks
}

func (b *Backends) Close(ctx context.Context) {
	if b.Mongo != nil {
		if err := b.Mongo.Disconnect(ctx); err != nil {
			logger.Warnf("mongo disconnect: %v", err)
		}
	}
	if b.Postgres != nil {
		_ = b.Postgres.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
}
