package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/routelens/routelens/internal/api"
	"github.com/routelens/routelens/internal/config"
	"github.com/routelens/routelens/internal/extractor"
	"github.com/routelens/routelens/internal/overlay"
	"github.com/routelens/routelens/internal/pipeline"
	"github.com/routelens/routelens/internal/retriever"
	"github.com/routelens/routelens/internal/session"
	"github.com/routelens/routelens/internal/vision"
	"github.com/routelens/routelens/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer zl.Sync()

	if cfg.OpenAIAPIKey == "" {
		zl.Fatal("OPENAI_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		zl.Fatal("Failed to initialize session store", zap.Error(err))
	}
	defer store.Close()

	var s3 *minio.Client
	if cfg.MinIOEndpoint != "" {
		s3, err = minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			zl.Fatal("Failed to initialize object storage client", zap.Error(err))
		}
	}

	fetcher, err := retriever.New(retriever.Config{
		TempDir:     cfg.TempDir,
		Attempts:    cfg.RetrievalAttempts,
		BaseBackoff: cfg.RetryBaseDelay,
	}, s3, zl)
	if err != nil {
		zl.Fatal("Failed to initialize retriever", zap.Error(err))
	}

	ext, err := extractor.New(cfg.FrameSize, zl)
	if err != nil {
		zl.Fatal("Failed to initialize frame extractor", zap.Error(err))
	}

	analyzer := vision.NewAnalyzer(
		vision.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.VisionModel),
		vision.Config{Attempts: cfg.VisionAttempts, BaseBackoff: cfg.RetryBaseDelay},
		zl,
	)

	runner := pipeline.NewRunner(store, fetcher, ext, analyzer, pipeline.Config{
		Workers:   cfg.WorkerCount,
		QueueSize: cfg.QueueSize,
		MaxFrames: cfg.MaxFrames,
		Deadline:  cfg.SessionDeadline,
		Overlay:   overlay.Config{GoodScore: cfg.ScoreGood, BorderlineScore: cfg.ScoreBorderline},
	}, zl)
	runner.Start(ctx)

	app := &api.App{Store: store, Pipeline: runner, Logger: zl}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(app),
	}

	go func() {
		zl.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("session_store", cfg.SessionStore),
			zap.String("vision_model", cfg.VisionModel),
			zap.Int("workers", cfg.WorkerCount),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server shutdown failed", zap.Error(err))
	}
	runner.Wait()
	zl.Info("shutdown complete")
}

func newStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.SessionStore {
	case "sqlite":
		return session.NewSQLStore(session.SQLConfig{Type: "sqlite", SQLitePath: cfg.DBPath})
	case "postgres":
		return session.NewSQLStore(session.SQLConfig{
			Type:     "postgres",
			Host:     cfg.PGHost,
			Port:     cfg.PGPort,
			User:     cfg.PGUser,
			Password: cfg.PGPassword,
			Name:     cfg.PGName,
		})
	case "redis":
		return session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.SessionTTL,
		})
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.SessionStore)
	}
}
