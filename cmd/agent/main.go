package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/calder-labs/persona/internal/api"
	"github.com/calder-labs/persona/internal/api/handlers"
	"github.com/calder-labs/persona/internal/classifier"
	"github.com/calder-labs/persona/internal/config"
	"github.com/calder-labs/persona/internal/domain"
	"github.com/calder-labs/persona/internal/embedding"
	"github.com/calder-labs/persona/internal/remote"
	"github.com/calder-labs/persona/internal/service"
	"github.com/calder-labs/persona/internal/store"
)

func main() {
	if err := config.Load(); err != nil {
		panic(err)
	}
	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	files := store.NewFileStore(config.DataDir(), config.DeviceID(), logger)
	decay := service.NewDecayModel(config.DecayHalfLifeDays())

	embedder := newEmbedder(logger)
	matcher := newMatcher(embedder, logger)

	var remoteClassifier domain.PromotionClassifier
	if url := config.ClassifierBaseURL(); url != "" {
		remoteClassifier = classifier.NewHTTPClient(url)
		logger.Info("remote promotion classifier configured", zap.String("url", url))
	}

	svc := service.NewIdentityService(
		files,
		decay,
		service.NewDeduper(matcher),
		service.NewCandidateRegistry(logger),
		service.NewProjector(decay, embedder, logger),
		service.NewPromotionService(remoteClassifier, logger),
		logger,
	)
	if cache, ok := embedder.(*embedding.Cache); ok {
		svc.SetEmbeddingInvalidator(cache)
	}

	var syncer *service.SyncService
	if baseURL := config.SyncBaseURL(); baseURL != "" {
		relay := remote.NewClient(baseURL, config.SyncUserID())
		syncer = service.NewSyncService(files, relay, logger)
		syncer.SetGuard(svc.Guard())
		syncer.SetInterval(config.SyncInterval())
		syncer.Start()
		svc.SetSyncQueuer(syncer)
		logger.Info("sync enabled",
			zap.String("relay", baseURL),
			zap.String("user_id", config.SyncUserID()))
	}

	var trigger handlers.SyncTrigger
	if syncer != nil {
		trigger = syncer
	}
	router := api.NewAgentRouter(svc, trigger, logger)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("agent starting",
			zap.String("addr", addr),
			zap.String("data_dir", config.DataDir()),
			zap.String("device_id", config.DeviceID()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down agent")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if syncer != nil {
		syncer.Stop()
	}
	logger.Info("agent stopped")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// newEmbedder builds the configured embedding client wrapped in the
// read-through cache, or nil when embeddings are disabled.
func newEmbedder(logger *zap.Logger) domain.EmbeddingClient {
	client, err := embedding.NewClient(config.EmbeddingProvider(), config.OpenAIAPIKey())
	if err != nil {
		logger.Warn("embedding client initialization failed, string similarity only",
			zap.String("provider", config.EmbeddingProvider()),
			zap.Error(err))
		return nil
	}
	if client == nil {
		return nil
	}
	cached, err := embedding.NewCache(client)
	if err != nil {
		logger.Warn("embedding cache initialization failed, using uncached client", zap.Error(err))
		return client
	}
	logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	return cached
}

func newMatcher(embedder domain.EmbeddingClient, logger *zap.Logger) service.Matcher {
	if embedder == nil {
		return service.StringMatcher{}
	}
	return service.NewVectorMatcher(embedder, logger)
}
