package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/apperrors"
	"github.com/knowledger-ai/knowledger/pkg/auth"
	"github.com/knowledger-ai/knowledger/pkg/models"
	"github.com/knowledger-ai/knowledger/pkg/repositories"
	"github.com/knowledger-ai/knowledger/pkg/services"
)

// KnowledgeHandler handles knowledge entry HTTP requests.
type KnowledgeHandler struct {
	knowledgeService services.KnowledgeService
	logger           *zap.Logger
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(knowledgeService services.KnowledgeService, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		knowledgeService: knowledgeService,
		logger:           logger,
	}
}

// RegisterRoutes registers the knowledge handler's routes on the given mux.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/knowledge", authMiddleware.Identify(h.List))
	mux.HandleFunc("POST /api/knowledge", authMiddleware.Identify(h.Create))
	mux.HandleFunc("GET /api/knowledge/by-traits", authMiddleware.Identify(h.GetByTraits))
	mux.HandleFunc("GET /api/knowledge/{id}", authMiddleware.Identify(h.Get))
	mux.HandleFunc("PUT /api/knowledge/{id}", authMiddleware.Identify(h.Update))
	mux.HandleFunc("DELETE /api/knowledge/{id}", authMiddleware.Identify(h.Delete))
}

// List handles GET /api/knowledge
func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	query := r.URL.Query()
	opts := repositories.ListOptions{
		ProjectID: queryUUID(query, "project_id"),
		Limit:     queryInt(query, "limit", 0),
		Offset:    queryInt(query, "offset", 0),
	}

	response, err := h.knowledgeService.List(r.Context(), userID, opts)
	if err != nil {
		h.logger.Error("Failed to list knowledge entries",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_knowledge_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/knowledge
func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req models.CreateKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if req.Title == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "title is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if req.Content == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "content is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	entry, err := h.knowledgeService.Create(r.Context(), userID, &req)
	if err != nil {
		h.logger.Error("Failed to create knowledge entry",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "create_knowledge_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, entry); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/knowledge/{id}
func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	knowledgeID, ok := ParseKnowledgeID(w, r, h.logger)
	if !ok {
		return
	}

	entry, err := h.knowledgeService.GetByID(r.Context(), knowledgeID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "knowledge_not_found", "Knowledge entry not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to get knowledge entry",
			zap.String("knowledge_id", knowledgeID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_knowledge_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, entry); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/knowledge/{id}
func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	knowledgeID, ok := ParseKnowledgeID(w, r, h.logger)
	if !ok {
		return
	}

	var patch models.UpdateKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	entry, err := h.knowledgeService.Update(r.Context(), knowledgeID, userID, &patch)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "knowledge_not_found", "Knowledge entry not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to update knowledge entry",
			zap.String("knowledge_id", knowledgeID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "update_knowledge_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, entry); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/knowledge/{id}
func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	knowledgeID, ok := ParseKnowledgeID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.knowledgeService.Delete(r.Context(), knowledgeID, userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "knowledge_not_found", "Knowledge entry not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to delete knowledge entry",
			zap.String("knowledge_id", knowledgeID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "delete_knowledge_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"message": "Knowledge entry deleted successfully"}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetByTraits handles GET /api/knowledge/by-traits
func (h *KnowledgeHandler) GetByTraits(w http.ResponseWriter, r *http.Request) {
	userID, ok := RequireUser(w, r, h.logger)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := repositories.TraitFilter{
		Key:   query.Get("trait_key"),
		Value: query.Get("trait_value"),
		Limit: queryInt(query, "limit", 0),
	}

	if filter.Key == "" && filter.Value == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_error", "trait_key or trait_value is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	entries, err := h.knowledgeService.GetByTraits(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("Failed to fetch knowledge by traits",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_by_traits_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := models.SearchKnowledgeResponse{
		Entries: entries,
		Total:   len(entries),
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
