package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/knowledger-ai/knowledger/pkg/models"
	"github.com/knowledger-ai/knowledger/pkg/repositories"
)

// mockKnowledgeService is a mock for testing the HTTP handlers.
type mockKnowledgeService struct {
	entry        *models.Knowledge
	listResp     *models.SearchKnowledgeResponse
	searchResp   *models.SearchKnowledgeResponse
	semanticResp *models.SemanticSearchResponse
	byTraits     []*models.Knowledge
	stats        *models.EmbeddingStats

	createErr   error
	listErr     error
	getErr      error
	updateErr   error
	deleteErr   error
	searchErr   error
	semanticErr error
	byTraitsErr error

	lastCreate *models.CreateKnowledgeRequest
	lastPatch  *models.UpdateKnowledgeRequest
	lastSearch *models.SearchKnowledgeRequest
	lastUserID uuid.UUID
}

func (m *mockKnowledgeService) Create(ctx context.Context, userID uuid.UUID, req *models.CreateKnowledgeRequest) (*models.Knowledge, error) {
	m.lastUserID = userID
	m.lastCreate = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.entry != nil {
		return m.entry, nil
	}
	entry := &models.Knowledge{
		ID:      uuid.New(),
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
		UserID:  userID,
	}
	entry.Normalize()
	return entry, nil
}

func (m *mockKnowledgeService) List(ctx context.Context, userID uuid.UUID, opts repositories.ListOptions) (*models.SearchKnowledgeResponse, error) {
	m.lastUserID = userID
	if m.listErr != nil {
		return nil, m.listErr
	}
	if m.listResp != nil {
		return m.listResp, nil
	}
	return &models.SearchKnowledgeResponse{Entries: []*models.Knowledge{}}, nil
}

func (m *mockKnowledgeService) GetByID(ctx context.Context, id, userID uuid.UUID) (*models.Knowledge, error) {
	m.lastUserID = userID
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.entry, nil
}

func (m *mockKnowledgeService) Update(ctx context.Context, id, userID uuid.UUID, patch *models.UpdateKnowledgeRequest) (*models.Knowledge, error) {
	m.lastUserID = userID
	m.lastPatch = patch
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return m.entry, nil
}

func (m *mockKnowledgeService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	m.lastUserID = userID
	return m.deleteErr
}

func (m *mockKnowledgeService) Search(ctx context.Context, userID uuid.UUID, req *models.SearchKnowledgeRequest) (*models.SearchKnowledgeResponse, error) {
	m.lastUserID = userID
	m.lastSearch = req
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if m.searchResp != nil {
		return m.searchResp, nil
	}
	return &models.SearchKnowledgeResponse{Entries: []*models.Knowledge{}}, nil
}

func (m *mockKnowledgeService) SearchSemantic(ctx context.Context, userID uuid.UUID, query string, threshold float64, limit int) (*models.SemanticSearchResponse, error) {
	m.lastUserID = userID
	if m.semanticErr != nil {
		return nil, m.semanticErr
	}
	if m.semanticResp != nil {
		return m.semanticResp, nil
	}
	return &models.SemanticSearchResponse{Query: query, SearchType: "semantic", Results: []*models.SemanticResult{}}, nil
}

func (m *mockKnowledgeService) GetByTags(ctx context.Context, userID uuid.UUID, tags []string) ([]*models.Knowledge, error) {
	return nil, nil
}

func (m *mockKnowledgeService) GetByReference(ctx context.Context, userID uuid.UUID, filter repositories.ReferenceFilter) ([]*models.Knowledge, error) {
	return nil, nil
}

func (m *mockKnowledgeService) GetByTraits(ctx context.Context, userID uuid.UUID, filter repositories.TraitFilter) ([]*models.Knowledge, error) {
	if m.byTraitsErr != nil {
		return nil, m.byTraitsErr
	}
	return m.byTraits, nil
}

func (m *mockKnowledgeService) GetEmbeddingStats(ctx context.Context, userID uuid.UUID) (*models.EmbeddingStats, error) {
	if m.stats != nil {
		return m.stats, nil
	}
	return &models.EmbeddingStats{Models: []string{}}, nil
}

func (m *mockKnowledgeService) RefreshEmbedding(ctx context.Context, entry *models.Knowledge) error {
	return nil
}
