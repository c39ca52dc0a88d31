package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/config"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/derive"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/observability"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/server"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/service"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/storage"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/store"
	"github.com/DeepakkumarGupta/MediaVaultBackendAPI/internal/worker"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// 1. Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	transcodeTimeout, err := cfg.TranscodeTimeout()
	if err != nil {
		panic(err)
	}

	// 2. Logging and tracing
	logger, err := observability.InitLogger(cfg.Server.Development)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracerProvider(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialize tracer provider", zap.Error(err))
	}
	defer observability.ShutdownTracerProvider(context.Background(), tp, logger)

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	observability.StartMetricsServer(cfg.Server.MetricsAddress, logger)

	// 3. Record store
	st, err := store.NewMongoStore(ctx, cfg.Database.MongoURI, cfg.Database.Database)
	if err != nil {
		logger.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn("mongodb disconnect failed", zap.Error(err))
		}
	}()

	// 4. Filesystem layout and derivers
	layout := storage.NewLayout(cfg.Storage.BaseDir, cfg.Server.PublicBaseURL)
	images := derive.NewImageOptimizer(layout, logger)
	videos := derive.NewVideoTranscoder(layout, logger)

	// 5. Background transcode queue
	queue := worker.NewQueue(cfg.Transcode.Workers, videos, st, layout, metrics, logger, transcodeTimeout)
	defer queue.Close()

	// 6. Service and HTTP surface
	svc := service.NewMediaService(st, layout, images, queue, metrics, logger)
	srv := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: server.New(svc, logger, cfg.MaxUploadBytes()).Handler(cfg.APIKeys),
	}

	go func() {
		logger.Info("media server listening", zap.String("address", cfg.Server.ListenAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}
