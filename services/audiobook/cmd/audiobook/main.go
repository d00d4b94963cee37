package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"harmonicai/internal/ratelimit"
	"harmonicai/internal/usertoken"
	"harmonicai/internal/util"
	"harmonicai/pkg/notify"
	"harmonicai/services/audiobook/internal/app"
	"harmonicai/services/audiobook/internal/config"
	"harmonicai/services/audiobook/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret: cfg.AuthJWTSecret,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	notifier, err := notify.NewRedisNotifier(redisClient, "")
	if err != nil {
		log.Fatalf("failed to init notifier: %v", err)
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "", cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	corsPolicy, err := util.NewCORSPolicy(cfg.AllowedOrigins, cfg.OriginPatterns)
	if err != nil {
		log.Fatalf("failed to init cors policy: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:         cfg.DatabaseURL,
		MinioEndpoint:       cfg.MinioEndpoint,
		MinioAccessKey:      cfg.MinioAccessKey,
		MinioSecretKey:      cfg.MinioSecretKey,
		MinioBucket:         cfg.MinioBucket,
		MinioUseSSL:         cfg.MinioUseSSL,
		TTSAPIKey:           cfg.TTSAPIKey,
		TTSBaseURL:          cfg.TTSBaseURL,
		TTSModelID:          cfg.TTSModelID,
		Notifier:            notifier,
		DefaultVoiceID:      cfg.DefaultVoiceID,
		SynthesisCharLimit:  cfg.SynthesisCharLimit,
		GenerateConcurrency: cfg.GenerateConcurrency,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:               appCore,
		TokenVerifier:     tokenVerifier,
		Limiter:           limiter,
		CORS:              corsPolicy,
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 30 * time.Second,
		// WriteTimeout stays generous: batch generation responses wait on the
		// synthesis provider, and the events endpoint streams indefinitely.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("audiobook server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
