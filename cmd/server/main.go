package main

import (
	"SecureDrop/internal/blob"
	"SecureDrop/internal/clock"
	"SecureDrop/internal/config"
	"SecureDrop/internal/handlers"
	"SecureDrop/internal/lifecycle"
	"SecureDrop/internal/middleware"
	"SecureDrop/internal/notify"
	"SecureDrop/internal/repo"
	"SecureDrop/internal/service"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	cfg := config.NewConfig()

	// создаём предустановленный регистратор zap
	logger, err := newLogger(cfg.Env)
	if err != nil {
		panic(err)
	}

	// делаем регистратор SugaredLogger
	sugar := logger.Sugar()
	middleware.SetLogger(sugar) // передаём логгер в middleware
	//сброс буфера логгера
	defer func() {
		_ = logger.Sync()
	}()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("invalid configuration", "error", err)
	}

	//context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := repo.InitDB(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		sugar.Fatalw("failed to initialize database", "driver", cfg.DatabaseDriver, "error", err)
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		sugar.Fatalw("failed to initialize blob storage", "backend", cfg.StorageBackend, "error", err)
	}

	notifier, err := newNotifier(cfg, sugar)
	if err != nil {
		sugar.Fatalw("failed to initialize key delivery", "notifier", cfg.Notifier, "error", err)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			sugar.Warnw("failed to close notifier", "error", err)
		}
	}()

	userRepo := repo.NewUserRepository(gormDB)
	artifactRepo := repo.NewArtifactRepository(gormDB)

	engine := lifecycle.NewEngine(artifactRepo, blobs, clock.Real(), sugar)
	sweeper := lifecycle.NewSweeper(engine, lifecycle.SweeperConfig{
		Interval:           cfg.SweepInterval,
		TombstoneRetention: cfg.TombstoneRetention,
	}, sugar)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	userService := service.NewUserService(userRepo)
	transferService := service.NewTransferService(artifactRepo, userRepo, blobs, engine, notifier, service.TransferConfig{
		MaxUploadBytes:       cfg.MaxUploadBytes(),
		DefaultAttemptLimit:  cfg.AttemptLimit,
		DefaultDownloadLimit: cfg.DownloadLimit,
		DefaultTTL:           cfg.ArtifactTTL,
		ChunkSize:            cfg.ChunkSizeKB * 1024,
		TempDir:              cfg.TempDir,
		PublicURL:            cfg.PublicURL,
	}, sugar)
	if _, err := transferService.RemoveStaleTemp(); err != nil {
		sugar.Warnw("stale temp cleanup failed", "dir", cfg.TempDir, "error", err)
	}

	h := handlers.NewHandler(userService, transferService, sugar, cfg)

	srv := &http.Server{
		Addr:              cfg.BaseURL,
		Handler:           h.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sugar.Infow(
		"Starting server",
		"addr", cfg.BaseURL,
	)

	sugar.Infow("Config",
		"BaseURL", cfg.BaseURL,
		"PublicURL", cfg.PublicURL,
		"DatabaseDriver", cfg.DatabaseDriver,
		"StorageBackend", cfg.StorageBackend,
		"Notifier", cfg.Notifier,
		"MaxUploadMB", cfg.MaxUploadMB,
		"ArtifactTTL", cfg.ArtifactTTL,
		"SweepInterval", cfg.SweepInterval,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("Server failed", "error", err)
		}
	case <-ctx.Done():
		sugar.Infow("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sugar.Errorw("Graceful shutdown failed", "error", err)
		}
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func newBlobStore(cfg *config.Config) (blob.Store, error) {
	if cfg.StorageBackend == "s3" {
		return blob.NewS3Store(blob.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			TempDir:         cfg.TempDir,
		})
	}
	return blob.NewFSStore(cfg.StorageDir)
}

func newNotifier(cfg *config.Config, logger *zap.SugaredLogger) (notify.Notifier, error) {
	switch cfg.Notifier {
	case "kafka":
		return notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	case "redis":
		return notify.NewRedisNotifier(cfg.RedisURL, cfg.RedisStream, logger)
	default:
		return notify.NewLogNotifier(logger), nil
	}
}
