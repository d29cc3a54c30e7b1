package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quillpad/quillpad/handlers"
	"github.com/quillpad/quillpad/internal/bootstrap"
	"github.com/quillpad/quillpad/internal/config"
	"github.com/quillpad/quillpad/internal/identity"
	"github.com/quillpad/quillpad/internal/inflight"
	"github.com/quillpad/quillpad/internal/notes/service"
	"github.com/quillpad/quillpad/internal/oidc"
	"github.com/quillpad/quillpad/internal/sessions"
	"github.com/quillpad/quillpad/internal/tokens"
	"github.com/quillpad/quillpad/internal/users"
	"github.com/quillpad/quillpad/pkg/logger"
	"github.com/quillpad/quillpad/pkg/metrics"
	"github.com/quillpad/quillpad/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer logger.Sync()
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: store=%s storage=%s identity=%s redis=%v",
		cfg.Store.Backend, cfg.Storage.Backend, cfg.Identity.Provider, cfg.Redis.Host != "")
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open backends: %v", err)
	}
	defer b.Close(context.Background())

	userSvc := users.NewService(b.Users)
	sessionsSvc, blacklist := sessionStores(ctx, cfg, b)

	provider, err := identityProvider(ctx, cfg, b, userSvc)
	if err != nil {
		logger.Fatalf("failed to set up identity provider: %v", err)
	}
	issuer := tokens.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	id := identity.NewService(provider, userSvc, sessionsSvc, blacklist, issuer, cfg.JWT.RefreshTokenTTL)

	var guard inflight.Guard = inflight.NewMemoryGuard()
	if b.Redis != nil {
		guard = inflight.NewRedisGuard(b.Redis, cfg.Notes.SaveLockTTL)
	}
	notes := service.New(b.Notes, b.Objects, guard, cfg.Storage.SignedURLTTL)

	var limiter gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && b.Redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			limiter = middleware.RedisRateLimitMiddleware(b.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win)
		} else {
			limiter = middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
		logger.Infof("rate limiter enabled: rps=%v burst=%d redis=%v", cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.UseRedis && b.Redis != nil)
	}

	checks := map[string]handlers.ReadyCheck{}
	for name, check := range b.Checks() {
		checks[name] = check
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	r := handlers.NewRouter(handlers.Deps{
		Identity: id,
		Users:    userSvc,
		Notes:    notes,
		Objects:  b.Memory,
		Cookies: handlers.CookieConfig{
			Secure:     cfg.Server.CookieSecure,
			AccessTTL:  cfg.JWT.AccessTokenTTL,
			RefreshTTL: cfg.JWT.RefreshTokenTTL,
		},
		MaxUpload:    cfg.Storage.MaxUploadSize,
		SignedURLTTL: cfg.Storage.SignedURLTTL,
		RateLimit:    limiter,
		Checks:       checks,
		Gatherer:     prometheus.DefaultGatherer,
		Started:      startTime,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting notes service on %s (public URL %s)", srv.Addr, cfg.Server.PublicBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}

// sessionStores prefers Redis for refresh sessions and revoked tokens, then
// Mongo for sessions, and finally process memory.
func sessionStores(ctx context.Context, cfg *config.Config, b *bootstrap.Backends) (*sessions.Service, sessions.Blacklist) {
	if b.Redis != nil {
		logger.Infof("sessions: redis")
		return sessions.NewService(sessions.NewRedisRepository(b.Redis, "session:")), sessions.NewRedisBlacklist(b.Redis)
	}
	if b.MongoDB != nil {
		repo, err := sessions.NewMongoRepository(ctx, b.MongoDB.Collection("sessions"))
		if err == nil {
			logger.Infof("sessions: mongo")
			return sessions.NewService(repo), sessions.NewMemoryBlacklist()
		}
		logger.Warnf("mongo session repository unavailable: %v", err)
	}
	logger.Warnf("sessions: memory (sign-ins are lost on restart)")
	return sessions.NewService(sessions.NewMemoryRepository()), sessions.NewMemoryBlacklist()
}

func identityProvider(ctx context.Context, cfg *config.Config, b *bootstrap.Backends, u *users.Service) (identity.Provider, error) {
	if cfg.Identity.Provider == "keycloak" {
		ver, err := oidc.NewKeycloakVerifier(ctx, cfg.Keycloak.URL, cfg.Keycloak.Realm, cfg.Keycloak.ClientID, cfg.Identity.AllowInsecureToken)
		if err != nil {
			return nil, err
		}
		logger.Infof("identity: keycloak realm %s", cfg.Keycloak.Realm)
		return identity.NewKeycloakProvider(cfg.Keycloak, cfg.Server.PublicBaseURL, ver, u), nil
	}

	var ts identity.TokenStore = identity.NewMemoryTokenStore()
	if b.Redis != nil {
		ts = identity.NewRedisTokenStore(b.Redis)
	}
	logger.Infof("identity: local (mail backend %s)", cfg.Mail.Backend)
	return identity.NewLocalProvider(u, ts, identity.NewMailer(cfg.Mail), cfg.Server.PublicBaseURL), nil
}
