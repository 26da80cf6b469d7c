// Command generate-embeddings backfills vectors for knowledge entries that
// do not have one yet. It runs sequentially with a short delay between
// provider calls to stay under rate limits.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/config"
	"github.com/knowledger-ai/knowledger/pkg/database"
	"github.com/knowledger-ai/knowledger/pkg/llm"
	"github.com/knowledger-ai/knowledger/pkg/repositories"
	"github.com/knowledger-ai/knowledger/pkg/services"
)

const interCallDelay = 100 * time.Millisecond

func main() {
	userIDFlag := flag.String("user-id", "", "only backfill entries owned by this user UUID")
	limitFlag := flag.Int("limit", 0, "maximum number of entries to process (0 = all)")
	dryRun := flag.Bool("dry-run", false, "list entries that would be processed without calling the provider")
	flag.Parse()

	cfg, err := config.Load("backfill")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var userID *uuid.UUID
	if *userIDFlag != "" {
		id, err := uuid.Parse(*userIDFlag)
		if err != nil {
			logger.Fatal("Invalid --user-id", zap.Error(err))
		}
		userID = &id
	}

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	embedder := llm.NewEmbedder(llm.EmbedderConfig{
		Endpoint:   cfg.Embeddings.Endpoint,
		APIKey:     cfg.Embeddings.APIKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
	}, logger)

	knowledgeRepo := repositories.NewKnowledgeRepository(db)
	embeddingRepo := repositories.NewEmbeddingRepository(db)
	svc := services.NewKnowledgeService(knowledgeRepo, embeddingRepo, embedder, logger)

	entries, err := embeddingRepo.ListMissing(ctx, userID, *limitFlag)
	if err != nil {
		logger.Fatal("Failed to list entries missing embeddings", zap.Error(err))
	}

	logger.Info("Entries missing embeddings", zap.Int("count", len(entries)))

	if *dryRun {
		for _, entry := range entries {
			logger.Info("Would embed",
				zap.String("id", entry.ID.String()),
				zap.String("title", entry.Title))
		}
		return
	}

	succeeded, failed := 0, 0
	for _, entry := range entries {
		if err := svc.RefreshEmbedding(ctx, entry); err != nil {
			logger.Warn("Failed to embed entry",
				zap.String("id", entry.ID.String()),
				zap.Error(err))
			failed++
		} else {
			succeeded++
		}
		time.Sleep(interCallDelay)
	}

	logger.Info("Backfill complete",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed))

	if userID != nil {
		stats, err := svc.GetEmbeddingStats(ctx, *userID)
		if err == nil {
			logger.Info("Embedding coverage",
				zap.Int("count", stats.Count),
				zap.Int("dimensions", stats.Dimensions),
				zap.Strings("models", stats.Models))
		}
	}
}
