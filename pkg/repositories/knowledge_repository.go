package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knowledger-ai/knowledger/pkg/apperrors"
	"github.com/knowledger-ai/knowledger/pkg/database"
	"github.com/knowledger-ai/knowledger/pkg/models"
)

// ListOptions narrows and windows a listing query.
type ListOptions struct {
	ProjectID *uuid.UUID
	Limit     int
	Offset    int
}

// ReferenceFilter matches entries whose refs array contains a reference
// with the given fields. All set fields must match.
type ReferenceFilter struct {
	URI          string
	AttributedTo string
	Type         string
}

// TraitFilter matches entries whose traits array contains a trait with the
// given key, value, or exact key+value pair.
type TraitFilter struct {
	Key   string
	Value string
	Limit int
}

// KnowledgeRepository provides data access for knowledge entries. Every
// read/update/delete is scoped by the owning user: a row belonging to
// another user is indistinguishable from a missing one.
type KnowledgeRepository interface {
	Create(ctx context.Context, entry *models.Knowledge) error
	List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*models.Knowledge, int, error)
	GetOwned(ctx context.Context, id, userID uuid.UUID) (*models.Knowledge, error)
	Update(ctx context.Context, id, userID uuid.UUID, patch *models.UpdateKnowledgeRequest) (*models.Knowledge, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
	Search(ctx context.Context, userID uuid.UUID, req *models.SearchKnowledgeRequest) ([]*models.Knowledge, int, error)
	GetByTags(ctx context.Context, userID uuid.UUID, tags []string) ([]*models.Knowledge, error)
	GetByReference(ctx context.Context, userID uuid.UUID, filter ReferenceFilter) ([]*models.Knowledge, error)
	GetByTraits(ctx context.Context, userID uuid.UUID, filter TraitFilter) ([]*models.Knowledge, error)
}

type knowledgeRepository struct {
	db *database.DB
}

// NewKnowledgeRepository creates a new KnowledgeRepository.
func NewKnowledgeRepository(db *database.DB) KnowledgeRepository {
	return &knowledgeRepository{db: db}
}

var _ KnowledgeRepository = (*knowledgeRepository)(nil)

const knowledgeColumns = `id, title, content, tags, project_id, user_id, metadata, refs, traits, time_start, time_end, created_at, updated_at`

func (r *knowledgeRepository) Create(ctx context.Context, entry *models.Knowledge) error {
	entry.Normalize()

	metadata, refs, traits, err := marshalJSONColumns(entry)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO knowledge (title, content, tags, project_id, user_id, metadata, refs, traits, time_start, time_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + knowledgeColumns

	row := r.db.QueryRow(ctx, query,
		entry.Title, entry.Content, entry.Tags, entry.ProjectID, entry.UserID,
		metadata, refs, traits, entry.TimeStart, entry.TimeEnd,
	)

	created, err := scanKnowledge(row)
	if err != nil {
		return fmt.Errorf("failed to create knowledge entry: %w", err)
	}

	*entry = *created
	return nil
}

func (r *knowledgeRepository) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]*models.Knowledge, int, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	if opts.ProjectID != nil {
		args = append(args, *opts.ProjectID)
		where = append(where, fmt.Sprintf("project_id = $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM knowledge WHERE ` + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count knowledge entries: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM knowledge WHERE %s ORDER BY created_at DESC`, knowledgeColumns, whereClause)
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list knowledge entries: %w", err)
	}

	return entries, total, nil
}

func (r *knowledgeRepository) GetOwned(ctx context.Context, id, userID uuid.UUID) (*models.Knowledge, error) {
	query := fmt.Sprintf(`SELECT %s FROM knowledge WHERE id = $1 AND user_id = $2`, knowledgeColumns)

	entry, err := scanKnowledge(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch knowledge entry: %w", err)
	}

	return entry, nil
}

func (r *knowledgeRepository) Update(ctx context.Context, id, userID uuid.UUID, patch *models.UpdateKnowledgeRequest) (*models.Knowledge, error) {
	// Only fields present in the patch are written: an explicit empty value
	// overwrites, an absent field is left untouched.
	var sets []string
	var args []any

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Content != nil {
		add("content", *patch.Content)
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		add("tags", tags)
	}
	if patch.Metadata != nil {
		b, err := json.Marshal(*patch.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		add("metadata", b)
	}
	if patch.Refs != nil {
		b, err := marshalArray(*patch.Refs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal refs: %w", err)
		}
		add("refs", b)
	}
	if patch.Traits != nil {
		b, err := marshalArray(*patch.Traits)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal traits: %w", err)
		}
		add("traits", b)
	}
	if patch.TimeStart != nil {
		add("time_start", *patch.TimeStart)
	}
	if patch.TimeEnd != nil {
		add("time_end", *patch.TimeEnd)
	}

	if len(sets) == 0 {
		return r.GetOwned(ctx, id, userID)
	}

	args = append(args, id)
	idPos := len(args)
	args = append(args, userID)
	userPos := len(args)

	query := fmt.Sprintf(`UPDATE knowledge SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), idPos, userPos, knowledgeColumns)

	entry, err := scanKnowledge(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update knowledge entry: %w", err)
	}

	return entry, nil
}

func (r *knowledgeRepository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM knowledge WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete knowledge entry: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *knowledgeRepository) Search(ctx context.Context, userID uuid.UUID, req *models.SearchKnowledgeRequest) ([]*models.Knowledge, int, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	if req.Query != "" {
		args = append(args, "%"+req.Query+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR content ILIKE $%d)", len(args), len(args)))
	}
	if len(req.Tags) > 0 {
		args = append(args, req.Tags)
		where = append(where, fmt.Sprintf("tags && $%d", len(args)))
	}
	if req.ProjectID != nil {
		args = append(args, *req.ProjectID)
		where = append(where, fmt.Sprintf("project_id = $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM knowledge WHERE ` + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	args = append(args, req.Limit)
	limitPos := len(args)
	args = append(args, req.Offset)
	offsetPos := len(args)

	query := fmt.Sprintf(`SELECT %s FROM knowledge WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		knowledgeColumns, whereClause, limitPos, offsetPos)

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search knowledge entries: %w", err)
	}

	return entries, total, nil
}

func (r *knowledgeRepository) GetByTags(ctx context.Context, userID uuid.UUID, tags []string) ([]*models.Knowledge, error) {
	query := fmt.Sprintf(`SELECT %s FROM knowledge WHERE user_id = $1 AND tags && $2 ORDER BY created_at DESC`, knowledgeColumns)

	entries, err := r.queryEntries(ctx, query, userID, tags)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch knowledge by tags: %w", err)
	}
	return entries, nil
}

func (r *knowledgeRepository) GetByReference(ctx context.Context, userID uuid.UUID, filter ReferenceFilter) ([]*models.Knowledge, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	addContains := func(field map[string]string) error {
		b, err := json.Marshal([]map[string]string{field})
		if err != nil {
			return err
		}
		args = append(args, b)
		where = append(where, fmt.Sprintf("refs @> $%d", len(args)))
		return nil
	}

	if filter.URI != "" {
		if err := addContains(map[string]string{"uri": filter.URI}); err != nil {
			return nil, fmt.Errorf("failed to marshal reference filter: %w", err)
		}
	}
	if filter.AttributedTo != "" {
		if err := addContains(map[string]string{"attributed_to": filter.AttributedTo}); err != nil {
			return nil, fmt.Errorf("failed to marshal reference filter: %w", err)
		}
	}
	if filter.Type != "" {
		if err := addContains(map[string]string{"type": filter.Type}); err != nil {
			return nil, fmt.Errorf("failed to marshal reference filter: %w", err)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM knowledge WHERE %s ORDER BY created_at DESC`,
		knowledgeColumns, strings.Join(where, " AND "))

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch knowledge by reference: %w", err)
	}
	return entries, nil
}

func (r *knowledgeRepository) GetByTraits(ctx context.Context, userID uuid.UUID, filter TraitFilter) ([]*models.Knowledge, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	var contains map[string]string
	switch {
	case filter.Key != "" && filter.Value != "":
		contains = map[string]string{"key": filter.Key, "value": filter.Value}
	case filter.Key != "":
		contains = map[string]string{"key": filter.Key}
	case filter.Value != "":
		contains = map[string]string{"value": filter.Value}
	}

	if contains != nil {
		b, err := json.Marshal([]map[string]string{contains})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal trait filter: %w", err)
		}
		args = append(args, b)
		where = append(where, fmt.Sprintf("traits @> $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM knowledge WHERE %s ORDER BY created_at DESC`,
		knowledgeColumns, strings.Join(where, " AND "))

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch knowledge by traits: %w", err)
	}
	return entries, nil
}

func (r *knowledgeRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*models.Knowledge, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
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

// ============================================================================
// Helper Functions - Scan / Marshal
// ============================================================================

func scanKnowledge(row pgx.Row) (*models.Knowledge, error) {
	var k models.Knowledge
	var metadata, refs, traits []byte

	err := row.Scan(
		&k.ID, &k.Title, &k.Content, &k.Tags, &k.ProjectID, &k.UserID,
		&metadata, &refs, &traits, &k.TimeStart, &k.TimeEnd,
		&k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
	}

	if err := json.Unmarshal(metadata, &k.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := json.Unmarshal(refs, &k.Refs); err != nil {
		return nil, fmt.Errorf("failed to parse refs: %w", err)
	}
	if err := json.Unmarshal(traits, &k.Traits); err != nil {
		return nil, fmt.Errorf("failed to parse traits: %w", err)
	}

	k.Normalize()
	return &k, nil
}

func marshalJSONColumns(entry *models.Knowledge) (metadata, refs, traits []byte, err error) {
	if metadata, err = json.Marshal(entry.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if refs, err = marshalArray(entry.Refs); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal refs: %w", err)
	}
	if traits, err = marshalArray(entry.Traits); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal traits: %w", err)
	}
	return metadata, refs, traits, nil
}

// marshalArray marshals a slice, mapping nil to the empty JSON array so the
// stored column is never null.
func marshalArray[T any](values []T) ([]byte, error) {
	if values == nil {
		values = []T{}
	}
	return json.Marshal(values)
}
