package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/auth"
	"github.com/knowledger-ai/knowledger/pkg/config"
	"github.com/knowledger-ai/knowledger/pkg/database"
	"github.com/knowledger-ai/knowledger/pkg/handlers"
	"github.com/knowledger-ai/knowledger/pkg/llm"
	"github.com/knowledger-ai/knowledger/pkg/middleware"
	"github.com/knowledger-ai/knowledger/pkg/repositories"
	"github.com/knowledger-ai/knowledger/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("port", cfg.Port),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.String("embedding_model", cfg.Embeddings.Model),
		zap.Int("embedding_dimensions", cfg.Embeddings.Dimensions))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.URL, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	embedder := llm.NewEmbedder(llm.EmbedderConfig{
		Endpoint:   cfg.Embeddings.Endpoint,
		APIKey:     cfg.Embeddings.APIKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
	}, logger)

	if !embedder.TestConnection(ctx) {
		logger.Warn("Embedding provider unreachable at startup, semantic search will fall back to keyword search")
	}

	knowledgeRepo := repositories.NewKnowledgeRepository(db)
	embeddingRepo := repositories.NewEmbeddingRepository(db)
	knowledgeService := services.NewKnowledgeService(knowledgeRepo, embeddingRepo, embedder, logger)

	var validator auth.TokenValidator
	if cfg.Auth.Mode != config.AuthDisabled {
		validator, err = auth.NewJWKSValidator(ctx, cfg.Auth.JWKSURL)
		if err != nil {
			logger.Fatal("Failed to initialize JWKS validator", zap.Error(err))
		}
	}
	authMiddleware := auth.NewMiddleware(validator, cfg.Auth.Mode, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewKnowledgeHandler(knowledgeService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewSearchHandler(knowledgeService, logger).RegisterRoutes(mux, authMiddleware)

	handler := middleware.RequestLogger(logger)(middleware.CORS()(mux))

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting knowledger API",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
