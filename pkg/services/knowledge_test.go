package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/apperrors"
	"github.com/knowledger-ai/knowledger/pkg/models"
	"github.com/knowledger-ai/knowledger/pkg/repositories"
)

// ============================================================================
// Mocks
// ============================================================================

type mockKnowledgeRepo struct {
	mu sync.Mutex

	created   *models.Knowledge
	createErr error

	entries []*models.Knowledge
	total   int
	listErr error

	updated   *models.Knowledge
	updateErr error

	deleted   bool
	deleteErr error

	searchReq *models.SearchKnowledgeRequest
	searchErr error
}

func (m *mockKnowledgeRepo) Create(ctx context.Context, entry *models.Knowledge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	entry.ID = uuid.New()
	copied := *entry
	m.created = &copied
	return nil
}

func (m *mockKnowledgeRepo) List(ctx context.Context, userID uuid.UUID, opts repositories.ListOptions) ([]*models.Knowledge, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.entries, m.total, nil
}

func (m *mockKnowledgeRepo) GetOwned(ctx context.Context, id, userID uuid.UUID) (*models.Knowledge, error) {
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockKnowledgeRepo) Update(ctx context.Context, id, userID uuid.UUID, patch *models.UpdateKnowledgeRequest) (*models.Knowledge, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return m.updated, nil
}

func (m *mockKnowledgeRepo) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	return m.deleted, m.deleteErr
}

func (m *mockKnowledgeRepo) Search(ctx context.Context, userID uuid.UUID, req *models.SearchKnowledgeRequest) ([]*models.Knowledge, int, error) {
	m.mu.Lock()
	m.searchReq = req
	m.mu.Unlock()
	if m.searchErr != nil {
		return nil, 0, m.searchErr
	}
	return m.entries, m.total, nil
}

func (m *mockKnowledgeRepo) GetByTags(ctx context.Context, userID uuid.UUID, tags []string) ([]*models.Knowledge, error) {
	return m.entries, nil
}

func (m *mockKnowledgeRepo) GetByReference(ctx context.Context, userID uuid.UUID, filter repositories.ReferenceFilter) ([]*models.Knowledge, error) {
	return m.entries, nil
}

func (m *mockKnowledgeRepo) GetByTraits(ctx context.Context, userID uuid.UUID, filter repositories.TraitFilter) ([]*models.Knowledge, error) {
	return m.entries, nil
}

type upsertCall struct {
	knowledgeID uuid.UUID
	modelName   string
	vector      []float32
}

type mockEmbeddingRepo struct {
	mu        sync.Mutex
	upserts   chan upsertCall
	upsertErr error

	results   []*models.SemanticResult
	searchErr error

	stats    *models.EmbeddingStats
	statsErr error
}

func newMockEmbeddingRepo() *mockEmbeddingRepo {
	return &mockEmbeddingRepo{upserts: make(chan upsertCall, 8)}
}

func (m *mockEmbeddingRepo) Upsert(ctx context.Context, knowledgeID uuid.UUID, modelName string, embedding []float32) error {
	m.mu.Lock()
	err := m.upsertErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.upserts <- upsertCall{knowledgeID: knowledgeID, modelName: modelName, vector: embedding}
	return nil
}

func (m *mockEmbeddingRepo) SearchSimilar(ctx context.Context, userID uuid.UUID, query []float32, threshold float64, limit int) ([]*models.SemanticResult, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func (m *mockEmbeddingRepo) Stats(ctx context.Context, userID uuid.UUID) (*models.EmbeddingStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

func (m *mockEmbeddingRepo) ListMissing(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.Knowledge, error) {
	return nil, nil
}

type mockEmbedder struct {
	mu       sync.Mutex
	vector   []float32
	embedErr error
	inputs   []string
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, text)
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.vector, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = m.vector
	}
	return vectors, nil
}

func (m *mockEmbedder) EmbedEntry(ctx context.Context, title, content string) ([]float32, error) {
	return m.Embed(ctx, title+"\n\n"+title+"\n\n"+content)
}

func (m *mockEmbedder) Model() string       { return "test-embedding-model" }
func (m *mockEmbedder) Dimensions() int     { return 3 }
func (m *mockEmbedder) TestConnection(ctx context.Context) bool { return true }

func newTestService(repo *mockKnowledgeRepo, embRepo *mockEmbeddingRepo, embedder *mockEmbedder) KnowledgeService {
	return NewKnowledgeService(repo, embRepo, embedder, zap.NewNop())
}

// ============================================================================
// Tests
// ============================================================================

func TestCreate_PersistsAndRefreshesEmbedding(t *testing.T) {
	repo := &mockKnowledgeRepo{}
	embRepo := newMockEmbeddingRepo()
	embedder := &mockEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	svc := newTestService(repo, embRepo, embedder)

	userID := uuid.New()
	entry, err := svc.Create(context.Background(), userID, &models.CreateKnowledgeRequest{
		Title:   "Ada Lovelace",
		Content: "Wrote the first published algorithm.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.UserID != userID {
		t.Errorf("expected entry to carry the caller's user ID")
	}

	select {
	case call := <-embRepo.upserts:
		if call.knowledgeID != entry.ID {
			t.Errorf("expected embedding for the new entry, got %s", call.knowledgeID)
		}
		if call.modelName != "test-embedding-model" {
			t.Errorf("expected the embedder's model name, got %q", call.modelName)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a background embedding refresh")
	}
}

func TestCreate_RequiresTitleAndContent(t *testing.T) {
	svc := newTestService(&mockKnowledgeRepo{}, newMockEmbeddingRepo(), &mockEmbedder{})

	if _, err := svc.Create(context.Background(), uuid.New(), &models.CreateKnowledgeRequest{Content: "x"}); err == nil {
		t.Error("expected an error for a missing title")
	}
	if _, err := svc.Create(context.Background(), uuid.New(), &models.CreateKnowledgeRequest{Title: "x"}); err == nil {
		t.Error("expected an error for missing content")
	}
}

func TestCreate_EmbeddingFailureDoesNotFailWrite(t *testing.T) {
	repo := &mockKnowledgeRepo{}
	embRepo := newMockEmbeddingRepo()
	embedder := &mockEmbedder{embedErr: errors.New("provider down")}
	svc := newTestService(repo, embRepo, embedder)

	entry, err := svc.Create(context.Background(), uuid.New(), &models.CreateKnowledgeRequest{
		Title:   "Resilience",
		Content: "Writes never wait on the embedding provider.",
	})
	if err != nil {
		t.Fatalf("expected the write to succeed despite embedding failure, got %v", err)
	}
	if entry.ID == uuid.Nil {
		t.Error("expected a persisted entry")
	}
}

func TestUpdate_TextChangeTriggersRefresh(t *testing.T) {
	updated := &models.Knowledge{ID: uuid.New(), Title: "New title", Content: "body"}
	repo := &mockKnowledgeRepo{updated: updated}
	embRepo := newMockEmbeddingRepo()
	embedder := &mockEmbedder{vector: []float32{1, 2, 3}}
	svc := newTestService(repo, embRepo, embedder)

	title := "New title"
	if _, err := svc.Update(context.Background(), updated.ID, uuid.New(), &models.UpdateKnowledgeRequest{Title: &title}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case call := <-embRepo.upserts:
		if call.knowledgeID != updated.ID {
			t.Errorf("expected refresh for the updated entry")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a background embedding refresh after a title change")
	}
}

func TestUpdate_MetadataOnlyPatchSkipsRefresh(t *testing.T) {
	updated := &models.Knowledge{ID: uuid.New(), Title: "t", Content: "c"}
	repo := &mockKnowledgeRepo{updated: updated}
	embRepo := newMockEmbeddingRepo()
	svc := newTestService(repo, embRepo, &mockEmbedder{vector: []float32{1}})

	meta := map[string]any{"source": "import"}
	if _, err := svc.Update(context.Background(), updated.ID, uuid.New(), &models.UpdateKnowledgeRequest{Metadata: &meta}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-embRepo.upserts:
		t.Error("did not expect an embedding refresh for a metadata-only patch")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo := &mockKnowledgeRepo{deleted: false}
	svc := newTestService(repo, newMockEmbeddingRepo(), &mockEmbedder{})

	err := svc.Delete(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch_DefaultsAndHasMore(t *testing.T) {
	repo := &mockKnowledgeRepo{entries: []*models.Knowledge{{ID: uuid.New()}}, total: 100}
	svc := newTestService(repo, newMockEmbeddingRepo(), &mockEmbedder{})

	resp, err := svc.Search(context.Background(), uuid.New(), &models.SearchKnowledgeRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.searchReq.Limit != DefaultSearchLimit {
		t.Errorf("expected default limit %d, got %d", DefaultSearchLimit, repo.searchReq.Limit)
	}
	if !resp.HasMore {
		t.Error("expected has_more with 100 total and a 20-entry window")
	}

	repo.total = 15
	resp, err = svc.Search(context.Background(), uuid.New(), &models.SearchKnowledgeRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.HasMore {
		t.Error("expected has_more false when the window covers all results")
	}
}

func TestSearchSemantic_Success(t *testing.T) {
	embRepo := newMockEmbeddingRepo()
	embRepo.results = []*models.SemanticResult{
		{Knowledge: models.Knowledge{ID: uuid.New(), Title: "match"}, Similarity: 0.88},
	}
	svc := newTestService(&mockKnowledgeRepo{}, embRepo, &mockEmbedder{vector: []float32{1, 2, 3}})

	resp, err := svc.SearchSemantic(context.Background(), uuid.New(), "query", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.SearchType != "semantic" || resp.Count != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSearchSemantic_EmbeddingFailureFallsBack(t *testing.T) {
	repo := &mockKnowledgeRepo{entries: []*models.Knowledge{{ID: uuid.New(), Title: "kw match"}}, total: 1}
	svc := newTestService(repo, newMockEmbeddingRepo(), &mockEmbedder{embedErr: errors.New("provider down")})

	resp, err := svc.SearchSemantic(context.Background(), uuid.New(), "query", 0, 0)
	if err != nil {
		t.Fatalf("expected fallback, not an error: %v", err)
	}
	if resp.SearchType != "keyword" {
		t.Errorf("expected keyword fallback, got %q", resp.SearchType)
	}
	if resp.Count != 1 || resp.Results[0].Title != "kw match" {
		t.Errorf("expected the keyword results in the fallback envelope: %+v", resp)
	}
}

func TestSearchSemantic_SimilarityFailureFallsBack(t *testing.T) {
	repo := &mockKnowledgeRepo{entries: []*models.Knowledge{}, total: 0}
	embRepo := newMockEmbeddingRepo()
	embRepo.searchErr = errors.New("vector index unavailable")
	svc := newTestService(repo, embRepo, &mockEmbedder{vector: []float32{1}})

	resp, err := svc.SearchSemantic(context.Background(), uuid.New(), "query", 0.5, 5)
	if err != nil {
		t.Fatalf("expected fallback, not an error: %v", err)
	}
	if resp.SearchType != "keyword" {
		t.Errorf("expected keyword fallback, got %q", resp.SearchType)
	}
}

func TestGetEmbeddingStats_FailureReturnsZeroedStats(t *testing.T) {
	embRepo := newMockEmbeddingRepo()
	embRepo.statsErr = errors.New("stats query failed")
	svc := newTestService(&mockKnowledgeRepo{}, embRepo, &mockEmbedder{})

	stats, err := svc.GetEmbeddingStats(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if stats.Count != 0 || stats.Dimensions != 0 || len(stats.Models) != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
}

func TestRefreshEmbedding_UsesWeightedInput(t *testing.T) {
	embRepo := newMockEmbeddingRepo()
	embedder := &mockEmbedder{vector: []float32{1, 2, 3}}
	svc := newTestService(&mockKnowledgeRepo{}, embRepo, embedder)

	entry := &models.Knowledge{ID: uuid.New(), Title: "Title", Content: "Body"}
	if err := svc.RefreshEmbedding(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	embedder.mu.Lock()
	defer embedder.mu.Unlock()
	if len(embedder.inputs) != 1 || embedder.inputs[0] != "Title\n\nTitle\n\nBody" {
		t.Errorf("expected the title-weighted input, got %v", embedder.inputs)
	}
}
