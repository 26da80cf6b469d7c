//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/knowledger-ai/knowledger/pkg/models"
	"github.com/knowledger-ai/knowledger/pkg/testhelpers"
)

func testVector(dims int, fill float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEmbeddingRepository_UpsertAndSearch(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	knowledgeRepo := NewKnowledgeRepository(db.DB())
	embRepo := NewEmbeddingRepository(db.DB())
	ctx := context.Background()
	userID := uuid.New()

	entry := seedEntry(t, knowledgeRepo, userID, "vector target", "content", nil)

	vector := testVector(768, 0.5)
	if err := embRepo.Upsert(ctx, entry.ID, "test-model", vector); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	// A second upsert for the same (entry, model) replaces the row.
	if err := embRepo.Upsert(ctx, entry.ID, "test-model", testVector(768, 0.6)); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}

	// An identical query vector is a perfect match.
	results, err := embRepo.SearchSimilar(ctx, userID, testVector(768, 0.6), 0.9, 10)
	if err != nil {
		t.Fatalf("similarity search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one match, got %d", len(results))
	}
	if results[0].ID != entry.ID {
		t.Errorf("expected the embedded entry, got %s", results[0].ID)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("expected near-perfect similarity, got %f", results[0].Similarity)
	}

	// Another user sees nothing.
	other, err := embRepo.SearchSimilar(ctx, uuid.New(), testVector(768, 0.6), 0.5, 10)
	if err != nil {
		t.Fatalf("similarity search failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no cross-user matches, got %d", len(other))
	}
}

func TestEmbeddingRepository_Stats(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	knowledgeRepo := NewKnowledgeRepository(db.DB())
	embRepo := NewEmbeddingRepository(db.DB())
	ctx := context.Background()
	userID := uuid.New()

	empty, err := embRepo.Stats(ctx, userID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if empty.Count != 0 || len(empty.Models) != 0 {
		t.Errorf("expected zero stats for a fresh user, got %+v", empty)
	}

	entry := seedEntry(t, knowledgeRepo, userID, "stats target", "content", nil)
	if err := embRepo.Upsert(ctx, entry.ID, "model-a", testVector(768, 0.1)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	stats, err := embRepo.Stats(ctx, userID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Count != 1 || stats.Dimensions != 768 {
		t.Errorf("expected 1 embedding at 768 dims, got %+v", stats)
	}
	if len(stats.Models) != 1 || stats.Models[0] != "model-a" {
		t.Errorf("expected model-a, got %v", stats.Models)
	}
	if stats.LastUpdated == nil {
		t.Error("expected a last-updated timestamp")
	}
}

func TestEmbeddingRepository_ListMissingAndCascade(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	knowledgeRepo := NewKnowledgeRepository(db.DB())
	embRepo := NewEmbeddingRepository(db.DB())
	ctx := context.Background()
	userID := uuid.New()

	embedded := seedEntry(t, knowledgeRepo, userID, "has vector", "c", nil)
	missing := seedEntry(t, knowledgeRepo, userID, "no vector", "c", nil)

	if err := embRepo.Upsert(ctx, embedded.ID, "test-model", testVector(768, 0.2)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	entries, err := embRepo.ListMissing(ctx, &userID, 0)
	if err != nil {
		t.Fatalf("list missing failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != missing.ID {
		t.Errorf("expected only the un-embedded entry, got %+v", ids(entries))
	}

	// Deleting the entry removes its embedding row via the FK cascade.
	removed, err := knowledgeRepo.Delete(ctx, embedded.ID, userID)
	if err != nil || !removed {
		t.Fatalf("delete failed: removed=%v err=%v", removed, err)
	}
	stats, err := embRepo.Stats(ctx, userID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Count != 0 {
		t.Errorf("expected the embedding gone after cascade, got %d", stats.Count)
	}
}

func ids(entries []*models.Knowledge) []uuid.UUID {
	out := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
