package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/apperrors"
	"github.com/knowledger-ai/knowledger/pkg/llm"
	"github.com/knowledger-ai/knowledger/pkg/models"
	"github.com/knowledger-ai/knowledger/pkg/repositories"
)

const (
	// DefaultSearchLimit is the page size when a search request does not set one.
	DefaultSearchLimit = 20
	// DefaultSemanticLimit caps vector search results.
	DefaultSemanticLimit = 10
	// DefaultSimilarityThreshold drops weak vector matches.
	DefaultSimilarityThreshold = 0.7

	embeddingRefreshTimeout = 30 * time.Second
)

// KnowledgeService provides operations over a user's knowledge entries.
type KnowledgeService interface {
	Create(ctx context.Context, userID uuid.UUID, req *models.CreateKnowledgeRequest) (*models.Knowledge, error)
	List(ctx context.Context, userID uuid.UUID, opts repositories.ListOptions) (*models.SearchKnowledgeResponse, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Knowledge, error)
	Update(ctx context.Context, id, userID uuid.UUID, patch *models.UpdateKnowledgeRequest) (*models.Knowledge, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	Search(ctx context.Context, userID uuid.UUID, req *models.SearchKnowledgeRequest) (*models.SearchKnowledgeResponse, error)
	SearchSemantic(ctx context.Context, userID uuid.UUID, query string, threshold float64, limit int) (*models.SemanticSearchResponse, error)
	GetByTags(ctx context.Context, userID uuid.UUID, tags []string) ([]*models.Knowledge, error)
	GetByReference(ctx context.Context, userID uuid.UUID, filter repositories.ReferenceFilter) ([]*models.Knowledge, error)
	GetByTraits(ctx context.Context, userID uuid.UUID, filter repositories.TraitFilter) ([]*models.Knowledge, error)
	GetEmbeddingStats(ctx context.Context, userID uuid.UUID) (*models.EmbeddingStats, error)
	RefreshEmbedding(ctx context.Context, entry *models.Knowledge) error
}

type knowledgeService struct {
	repo       repositories.KnowledgeRepository
	embeddings repositories.EmbeddingRepository
	embedder   llm.Embedder
	logger     *zap.Logger
}

// NewKnowledgeService creates a new KnowledgeService.
func NewKnowledgeService(
	repo repositories.KnowledgeRepository,
	embeddings repositories.EmbeddingRepository,
	embedder llm.Embedder,
	logger *zap.Logger,
) KnowledgeService {
	return &knowledgeService{
		repo:       repo,
		embeddings: embeddings,
		embedder:   embedder,
		logger:     logger.Named("knowledge-service"),
	}
}

var _ KnowledgeService = (*knowledgeService)(nil)

func (s *knowledgeService) Create(ctx context.Context, userID uuid.UUID, req *models.CreateKnowledgeRequest) (*models.Knowledge, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if req.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	entry := &models.Knowledge{
		Title:     req.Title,
		Content:   req.Content,
		Tags:      req.Tags,
		ProjectID: req.ProjectID,
		UserID:    userID,
		Metadata:  req.Metadata,
		Refs:      req.Refs,
		Traits:    req.Traits,
		TimeStart: req.TimeStart,
		TimeEnd:   req.TimeEnd,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to create knowledge entry",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, err
	}

	s.refreshEmbeddingAsync(entry)
	return entry, nil
}

func (s *knowledgeService) List(ctx context.Context, userID uuid.UUID, opts repositories.ListOptions) (*models.SearchKnowledgeResponse, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}

	entries, total, err := s.repo.List(ctx, userID, opts)
	if err != nil {
		s.logger.Error("Failed to list knowledge entries",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, err
	}

	return &models.SearchKnowledgeResponse{
		Entries: entries,
		Total:   total,
		HasMore: total > opts.Offset+opts.Limit,
	}, nil
}

func (s *knowledgeService) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Knowledge, error) {
	return s.repo.GetOwned(ctx, id, userID)
}

func (s *knowledgeService) Update(ctx context.Context, id, userID uuid.UUID, patch *models.UpdateKnowledgeRequest) (*models.Knowledge, error) {
	entry, err := s.repo.Update(ctx, id, userID, patch)
	if err != nil {
		return nil, err
	}

	// A title or content change invalidates the stored vector.
	if patch.TouchesText() {
		s.refreshEmbeddingAsync(entry)
	}
	return entry, nil
}

func (s *knowledgeService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, id, userID)
	if err != nil {
		s.logger.Error("Failed to delete knowledge entry",
			zap.String("knowledge_id", id.String()),
			zap.Error(err))
		return err
	}
	if !removed {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *knowledgeService) Search(ctx context.Context, userID uuid.UUID, req *models.SearchKnowledgeRequest) (*models.SearchKnowledgeResponse, error) {
	if req.Limit <= 0 {
		req.Limit = DefaultSearchLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	entries, total, err := s.repo.Search(ctx, userID, req)
	if err != nil {
		s.logger.Error("Failed to search knowledge entries",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, err
	}

	return &models.SearchKnowledgeResponse{
		Entries: entries,
		Total:   total,
		HasMore: total > req.Offset+req.Limit,
	}, nil
}

// SearchSemantic runs a vector search over the user's entries. If the
// embedding provider or the vector index is unavailable it degrades to a
// keyword search rather than failing the request.
func (s *knowledgeService) SearchSemantic(ctx context.Context, userID uuid.UUID, query string, threshold float64, limit int) (*models.SemanticSearchResponse, error) {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	if limit <= 0 {
		limit = DefaultSemanticLimit
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("Embedding query failed, falling back to keyword search",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return s.keywordFallback(ctx, userID, query, limit)
	}

	results, err := s.embeddings.SearchSimilar(ctx, userID, vector, threshold, limit)
	if err != nil {
		s.logger.Warn("Similarity search failed, falling back to keyword search",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return s.keywordFallback(ctx, userID, query, limit)
	}

	return &models.SemanticSearchResponse{
		Query:      query,
		SearchType: "semantic",
		Results:    results,
		Count:      len(results),
	}, nil
}

func (s *knowledgeService) keywordFallback(ctx context.Context, userID uuid.UUID, query string, limit int) (*models.SemanticSearchResponse, error) {
	resp, err := s.Search(ctx, userID, &models.SearchKnowledgeRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, err
	}

	results := make([]*models.SemanticResult, 0, len(resp.Entries))
	for _, entry := range resp.Entries {
		results = append(results, &models.SemanticResult{Knowledge: *entry})
	}

	return &models.SemanticSearchResponse{
		Query:      query,
		SearchType: "keyword",
		Results:    results,
		Count:      len(results),
	}, nil
}

func (s *knowledgeService) GetByTags(ctx context.Context, userID uuid.UUID, tags []string) ([]*models.Knowledge, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("at least one tag is required")
	}
	return s.repo.GetByTags(ctx, userID, tags)
}

func (s *knowledgeService) GetByReference(ctx context.Context, userID uuid.UUID, filter repositories.ReferenceFilter) ([]*models.Knowledge, error) {
	if filter.URI == "" && filter.AttributedTo == "" && filter.Type == "" {
		return nil, fmt.Errorf("at least one reference filter is required")
	}
	return s.repo.GetByReference(ctx, userID, filter)
}

func (s *knowledgeService) GetByTraits(ctx context.Context, userID uuid.UUID, filter repositories.TraitFilter) ([]*models.Knowledge, error) {
	if filter.Key == "" && filter.Value == "" {
		return nil, fmt.Errorf("a trait key or value is required")
	}
	return s.repo.GetByTraits(ctx, userID, filter)
}

// GetEmbeddingStats reports embedding coverage for the user. Failures are
// logged and reported as empty stats so status endpoints stay available.
func (s *knowledgeService) GetEmbeddingStats(ctx context.Context, userID uuid.UUID) (*models.EmbeddingStats, error) {
	stats, err := s.embeddings.Stats(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to read embedding stats",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return &models.EmbeddingStats{Models: []string{}}, nil
	}
	return stats, nil
}

// RefreshEmbedding regenerates and stores the vector for an entry.
func (s *knowledgeService) RefreshEmbedding(ctx context.Context, entry *models.Knowledge) error {
	vector, err := s.embedder.EmbedEntry(ctx, entry.Title, entry.Content)
	if err != nil {
		return fmt.Errorf("failed to embed entry %s: %w", entry.ID, err)
	}
	if err := s.embeddings.Upsert(ctx, entry.ID, s.embedder.Model(), vector); err != nil {
		return fmt.Errorf("failed to store embedding for entry %s: %w", entry.ID, err)
	}
	return nil
}

// refreshEmbeddingAsync updates the entry's vector in the background. Writes
// never wait on the embedding provider and a failure only costs freshness,
// the entry itself is already persisted.
func (s *knowledgeService) refreshEmbeddingAsync(entry *models.Knowledge) {
	snapshot := *entry
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), embeddingRefreshTimeout)
		defer cancel()

		if err := s.RefreshEmbedding(ctx, &snapshot); err != nil {
			s.logger.Warn("Background embedding refresh failed",
				zap.String("knowledge_id", snapshot.ID.String()),
				zap.Error(err))
		}
	}()
}
