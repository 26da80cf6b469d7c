package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/apperrors"
	"github.com/knowledger-ai/knowledger/pkg/auth"
	"github.com/knowledger-ai/knowledger/pkg/config"
	"github.com/knowledger-ai/knowledger/pkg/models"
)

func newTestMux(svc *mockKnowledgeService) *http.ServeMux {
	logger := zap.NewNop()
	authMiddleware := auth.NewMiddleware(nil, config.AuthDisabled, logger)

	mux := http.NewServeMux()
	NewKnowledgeHandler(svc, logger).RegisterRoutes(mux, authMiddleware)
	NewSearchHandler(svc, logger).RegisterRoutes(mux, authMiddleware)
	return mux
}

func TestKnowledgeHandler_Create(t *testing.T) {
	svc := &mockKnowledgeService{}
	mux := newTestMux(svc)

	body, _ := json.Marshal(map[string]any{
		"title":   "Team conventions",
		"content": "PRs need two approvals.",
		"tags":    []string{"process"},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var entry models.Knowledge
	if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if entry.Title != "Team conventions" {
		t.Errorf("expected title to round-trip, got %q", entry.Title)
	}
	if svc.lastUserID.String() != config.FallbackUserID {
		t.Errorf("expected fallback user identity, got %s", svc.lastUserID)
	}
}

func TestKnowledgeHandler_Create_MissingTitle(t *testing.T) {
	mux := newTestMux(&mockKnowledgeService{})

	body, _ := json.Marshal(map[string]any{"content": "no title"})
	req := httptest.NewRequest(http.MethodPost, "/api/knowledge", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	var errBody map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&errBody); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if errBody["error"] != "validation_error" {
		t.Errorf("expected error code 'validation_error', got %q", errBody["error"])
	}
	if errBody["message"] == "" {
		t.Error("expected a human-readable message")
	}
}

func TestKnowledgeHandler_Create_InvalidBody(t *testing.T) {
	mux := newTestMux(&mockKnowledgeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/knowledge", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestKnowledgeHandler_Get_NotFound(t *testing.T) {
	svc := &mockKnowledgeService{getErr: apperrors.ErrNotFound}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestKnowledgeHandler_Get_InvalidID(t *testing.T) {
	mux := newTestMux(&mockKnowledgeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestKnowledgeHandler_Update_PatchPassthrough(t *testing.T) {
	title := "Renamed"
	svc := &mockKnowledgeService{entry: &models.Knowledge{ID: uuid.New(), Title: title}}
	mux := newTestMux(svc)

	body, _ := json.Marshal(map[string]any{"title": title})
	req := httptest.NewRequest(http.MethodPut, "/api/knowledge/"+uuid.NewString(), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastPatch == nil || svc.lastPatch.Title == nil || *svc.lastPatch.Title != title {
		t.Error("expected the title field to be present in the patch")
	}
	if svc.lastPatch.Content != nil {
		t.Error("expected absent fields to stay nil in the patch")
	}
}

func TestKnowledgeHandler_Delete(t *testing.T) {
	svc := &mockKnowledgeService{}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/knowledge/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["message"] == "" {
		t.Error("expected a confirmation message")
	}
}

func TestKnowledgeHandler_Delete_NotFound(t *testing.T) {
	svc := &mockKnowledgeService{deleteErr: apperrors.ErrNotFound}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/knowledge/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestKnowledgeHandler_GetByTraits_RequiresFilter(t *testing.T) {
	mux := newTestMux(&mockKnowledgeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/by-traits", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestKnowledgeHandler_GetByTraits(t *testing.T) {
	svc := &mockKnowledgeService{byTraits: []*models.Knowledge{
		{ID: uuid.New(), Title: "Ada Lovelace", Traits: []models.Trait{{Key: "role", Value: "engineer"}}},
	}}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/by-traits?trait_key=role", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp models.SearchKnowledgeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Total != 1 {
		t.Errorf("expected one entry, got %d (total %d)", len(resp.Entries), resp.Total)
	}
}
