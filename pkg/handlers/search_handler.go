package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/auth"
	"github.com/knowledger-ai/knowledger/pkg/models"
	"github.com/knowledger-ai/knowledger/pkg/services"
)

// SearchHandler handles keyword and semantic search HTTP requests.
type SearchHandler struct {
	knowledgeService services.KnowledgeService
	logger           *zap.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(knowledgeService services.KnowledgeService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		knowledgeService: knowledgeService,
		logger:           logger,
	}
}

// RegisterRoutes registers the search handler's routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/search", authMiddleware.Identify(h.Search))
}

// Search handles GET /api/search. With semantic=true it runs a vector search
// over the query text; otherwise it filters by substring match, tag overlap
// and project.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	query := r.URL.Query()
	q := query.Get("q")

	if query.Get("semantic") == "true" {
		if q == "" {
			if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "q is required for semantic search"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		threshold := queryFloat(query, "threshold", 0)
		limit := queryInt(query, "limit", 0)

		response, err := h.knowledgeService.SearchSemantic(r.Context(), userID, q, threshold, limit)
		if err != nil {
			h.logger.Error("Semantic search failed",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			if err := ErrorResponse(w, http.StatusInternalServerError, "search_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		if err := WriteJSON(w, http.StatusOK, response); err != nil {
			h.logger.Error("Failed to write response", zap.Error(err))
		}
		return
	}

	req := models.SearchKnowledgeRequest{
		Query:     q,
		Tags:      queryTags(query),
		ProjectID: queryUUID(query, "project_id"),
		Limit:     queryInt(query, "limit", 0),
		Offset:    queryInt(query, "offset", 0),
	}

	response, err := h.knowledgeService.Search(r.Context(), userID, &req)
	if err != nil {
		h.logger.Error("Search failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "search_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
