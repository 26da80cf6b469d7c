package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/knowledger-ai/knowledger/pkg/database"
	"github.com/knowledger-ai/knowledger/pkg/models"
)

// EmbeddingRepository provides data access for knowledge embedding vectors.
type EmbeddingRepository interface {
	Upsert(ctx context.Context, knowledgeID uuid.UUID, modelName string, embedding []float32) error
	SearchSimilar(ctx context.Context, userID uuid.UUID, query []float32, threshold float64, limit int) ([]*models.SemanticResult, error)
	Stats(ctx context.Context, userID uuid.UUID) (*models.EmbeddingStats, error)
	ListMissing(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.Knowledge, error)
}

type embeddingRepository struct {
	db *database.DB
}

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(db *database.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

var _ EmbeddingRepository = (*embeddingRepository)(nil)

func (r *embeddingRepository) Upsert(ctx context.Context, knowledgeID uuid.UUID, modelName string, embedding []float32) error {
	query := `
		INSERT INTO knowledge_embeddings (knowledge_id, model_name, content_embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (knowledge_id, model_name)
		DO UPDATE SET content_embedding = EXCLUDED.content_embedding, updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, knowledgeID, modelName, pgvector.NewVector(embedding)); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (r *embeddingRepository) SearchSimilar(ctx context.Context, userID uuid.UUID, query []float32, threshold float64, limit int) ([]*models.SemanticResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, content, tags, project_id, user_id, metadata, refs, traits,
		        time_start, time_end, created_at, updated_at, similarity
		 FROM match_knowledge($1, $2, $3, $4)`,
		userID, pgvector.NewVector(query), threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run similarity search: %w", err)
	}
	defer rows.Close()

	results := make([]*models.SemanticResult, 0)
	for rows.Next() {
		var res models.SemanticResult
		var metadata, refs, traits []byte

		err := rows.Scan(
			&res.ID, &res.Title, &res.Content, &res.Tags, &res.ProjectID, &res.UserID,
			&metadata, &refs, &traits, &res.TimeStart, &res.TimeEnd,
			&res.CreatedAt, &res.UpdatedAt, &res.Similarity,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan similarity result: %w", err)
		}

		if err := json.Unmarshal(metadata, &res.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		if err := json.Unmarshal(refs, &res.Refs); err != nil {
			return nil, fmt.Errorf("failed to parse refs: %w", err)
		}
		if err := json.Unmarshal(traits, &res.Traits); err != nil {
			return nil, fmt.Errorf("failed to parse traits: %w", err)
		}

		res.Normalize()
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read similarity results: %w", err)
	}

	return results, nil
}

func (r *embeddingRepository) Stats(ctx context.Context, userID uuid.UUID) (*models.EmbeddingStats, error) {
	stats := &models.EmbeddingStats{Models: []string{}}

	query := `
		SELECT COUNT(*),
		       COALESCE(MAX(vector_dims(e.content_embedding)), 0),
		       MAX(e.updated_at)
		FROM knowledge_embeddings e
		JOIN knowledge k ON k.id = e.knowledge_id
		WHERE k.user_id = $1`

	if err := r.db.QueryRow(ctx, query, userID).Scan(&stats.Count, &stats.Dimensions, &stats.LastUpdated); err != nil {
		return nil, fmt.Errorf("failed to read embedding stats: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT e.model_name
		 FROM knowledge_embeddings e
		 JOIN knowledge k ON k.id = e.knowledge_id
		 WHERE k.user_id = $1
		 ORDER BY e.model_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list embedding models: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var model string
		if err := rows.Scan(&model); err != nil {
			return nil, fmt.Errorf("failed to scan embedding model: %w", err)
		}
		stats.Models = append(stats.Models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read embedding models: %w", err)
	}

	return stats, nil
}

func (r *embeddingRepository) ListMissing(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.Knowledge, error) {
	where := "e.knowledge_id IS NULL"
	args := []any{}

	if userID != nil {
		args = append(args, *userID)
		where += fmt.Sprintf(" AND k.user_id = $%d", len(args))
	}

	query := fmt.Sprintf(`
		SELECT k.id, k.title, k.content, k.tags, k.project_id, k.user_id, k.metadata,
		       k.refs, k.traits, k.time_start, k.time_end, k.created_at, k.updated_at
		FROM knowledge k
		LEFT JOIN knowledge_embeddings e ON e.knowledge_id = k.id
		WHERE %s
		ORDER BY k.created_at ASC`, where)

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries missing embeddings: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.Knowledge, 0)
	for rows.Next() {
		entry, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
