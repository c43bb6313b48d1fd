// Command server starts the Sharow HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	ai "github.com/sharow/sharow/internal/adapter/ai"
	"github.com/sharow/sharow/internal/adapter/ai/gemini"
	"github.com/sharow/sharow/internal/adapter/ai/tokencount"
	httpserver "github.com/sharow/sharow/internal/adapter/httpserver"
	"github.com/sharow/sharow/internal/adapter/mailer"
	"github.com/sharow/sharow/internal/adapter/oauth"
	"github.com/sharow/sharow/internal/adapter/observability"
	"github.com/sharow/sharow/internal/adapter/repo/postgres"
	"github.com/sharow/sharow/internal/adapter/storage"
	"github.com/sharow/sharow/internal/agent"
	"github.com/sharow/sharow/internal/app"
	"github.com/sharow/sharow/internal/auth"
	"github.com/sharow/sharow/internal/config"
	"github.com/sharow/sharow/internal/domain"
	"github.com/sharow/sharow/internal/service/ratelimiter"
	"github.com/sharow/sharow/internal/usecase"
)

// redisPinger adapts *redis.Client to app.RedisClient.
type redisPinger struct{ *redis.Client }

func (r redisPinger) Ping(ctx context.Context) app.RedisPingResult { return r.Client.Ping(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	ctx := context.Background()
	shutdownTracer, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool
	if cfg.DBAutoMigrate {
		if err := postgres.Migrate(cfg.DBURL); err != nil {
			slog.Error("db migration failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid redis url", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// Repositories
	users := postgres.NewUserRepo(pool)
	sessions := postgres.NewOtpSessionRepo(pool)
	bills := postgres.NewBillRepo(pool)
	convs := postgres.NewConversationRepo(pool)

	otpLimiter := ratelimiter.NewFixedWindow(rdb, "otp:req:", cfg.OTPRequestLimit, cfg.OTPRequestWindow)
	aiLimiter := ratelimiter.NewTokenBucket(rdb, "ai:user:", ratelimiter.NewBucketConfigFromPerMinute(cfg.AIUserRatePerMin))

	mail, err := mailer.FromConfig(cfg)
	if err != nil {
		slog.Error("mailer setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	if !cfg.MailerEnabled() {
		slog.Warn("EMAIL_ID/EMAIL_PASS not set, OTP codes will be logged instead of mailed")
	}

	var store domain.BlobStore
	if cfg.CloudinaryEnabled() {
		store, err = storage.NewCloudinaryStore(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	} else {
		slog.Warn("cloudinary not configured, storing uploads on local disk", slog.String("dir", cfg.StorageDir))
		store, err = storage.NewLocalStore(cfg.StorageDir, app.LocalUploadsPath)
	}
	if err != nil {
		slog.Error("blob store setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	// AI model: Gemini when a key is present, otherwise the offline dry-run model.
	var model domain.Model = ai.DryRunModel{}
	if cfg.GeminiAPIKey != "" {
		gm, err := gemini.New(ctx, cfg)
		if err != nil {
			slog.Error("gemini client setup failed", slog.Any("error", err))
			os.Exit(1)
		}
		model = gm
		slog.Info("gemini model configured", slog.String("model", cfg.GeminiModel))
	} else {
		slog.Warn("GEMINI_API_KEY not set, using dry-run model")
	}
	breaker := ai.NewCircuitBreaker("gemini", cfg.AIBreakerFailures, cfg.AIBreakerCooldown)
	model = ai.NewBreakerModel(model, breaker)

	guards, err := agent.LoadGuardrails(cfg.GuardrailsFile)
	if err != nil {
		slog.Error("guardrails load failed", slog.Any("error", err))
		os.Exit(1)
	}
	billAgent := agent.New(model, guards, tokencount.NewCounter(cfg.GeminiModel), cfg.AgentHistoryTokenBudget)

	// Usecases
	tokens := auth.NewTokenManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	hasher := auth.NewHasher(auth.DefaultArgon2Params)
	authSvc := usecase.NewAuthService(users, sessions, mail, otpLimiter, hasher, tokens, cfg.OTPPolicy())

	var providers []domain.OAuthProvider
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers = append(providers, oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI))
	}
	if cfg.GithubClientID != "" && cfg.GithubClientSecret != "" {
		providers = append(providers, oauth.NewGitHub(cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubRedirectURI))
	}
	oauthSvc := usecase.NewOAuthService(users, tokens, providers...)

	uploadSvc := usecase.NewUploadService(store)
	billSvc := usecase.NewBillService(bills, convs, store, billAgent, aiLimiter)

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	if cfg.OTPCleanupInterval > 0 {
		go postgres.NewOtpCleanupService(sessions).RunPeriodic(cleanupCtx, cfg.OTPCleanupInterval)
		slog.Info("otp cleanup started", slog.Duration("interval", cfg.OTPCleanupInterval))
	}

	dbCheck, redisCheck := app.BuildReadinessChecks(pool, redisPinger{rdb})

	// HTTP server
	srv := httpserver.NewServer(cfg, authSvc, oauthSvc, uploadSvc, billSvc, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	stopCleanup()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	authSvc.WaitMail()
}
