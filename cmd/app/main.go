package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-tokens/internal/config"
	pg "course-tokens/internal/infra/db/postgres"
	"course-tokens/internal/infra/logging"
	"course-tokens/internal/infra/mail"
	"course-tokens/internal/infra/metrics"
	red "course-tokens/internal/infra/redis"
	"course-tokens/internal/infra/retry"
	"course-tokens/internal/infra/web"
	"course-tokens/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted PII)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.Register()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis (optional) ----
	var (
		limiter     web.RateLimiter
		statusCache usecase.StatusCache
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connect failed")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
		statusCache = red.NewStatusCache(redisClient, cfg.Redis.StatusTTL, logger)
	} else {
		logger.Warn().Msg("redis not configured; rate limiting and status caching disabled")
	}

	// ---- Repositories and adapters ----
	tokenRepo := pg.NewTokenRepo(pool)
	txManager := pg.NewTxManager(pool)
	accountRepo := pg.NewAccountRepo(pool)
	courseRegistry := pg.NewCourseRegistry(pool)
	enrolmentSvc := pg.NewEnrolmentService(pool)
	activitySrc := pg.NewActivitySource(pool)
	mailSender := mail.NewSMTPSender(&cfg.Mail, logger)

	// ---- Use cases ----
	exec := retry.NewExecutor(logger)
	dbRetry := retry.Policy{MaxAttempts: cfg.Engine.DBRetry.MaxAttempts, Backoff: cfg.Engine.DBRetry.Backoff}
	mailRetry := retry.Policy{MaxAttempts: cfg.Engine.MailRetry.MaxAttempts, Backoff: cfg.Engine.MailRetry.Backoff}

	notify := usecase.NewNotifier(mailSender, exec, mailRetry,
		usecase.EmailFormat(cfg.Engine.EmailFormat),
		cfg.Mail.FromEmail, cfg.Mail.FromName, cfg.Mail.LoginURL, logger)
	provisionUC := usecase.NewProvisionUseCase(accountRepo, exec, dbRetry,
		usecase.CredentialMode(cfg.Engine.CredentialMode), logger)
	tokenUC := usecase.NewTokenUseCase(tokenRepo, txManager, courseRegistry, enrolmentSvc,
		provisionUC, notify, exec, dbRetry, logger)
	redeemUC := usecase.NewRedemptionUseCase(tokenRepo, accountRepo, courseRegistry,
		enrolmentSvc, provisionUC, notify,
		usecase.OwnershipCheck(cfg.Engine.OwnershipCheck), cfg.Engine.EnrolRole, logger)
	statusUC := usecase.NewStatusUseCase(tokenRepo, accountRepo, activitySrc,
		statusCache, cfg.Engine.ExamPassRatio, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Server.JWTSecret, 24*time.Hour)
	srv := web.NewServer(tokenUC, redeemUC, statusUC, auth, limiter,
		cfg.Engine.RateLimitPerMinute, cfg.Server.APISecret, logger)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Handler(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := server.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
}
