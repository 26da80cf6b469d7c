package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/config"
)

// Middleware resolves the user identity for each request according to the
// configured auth mode and stores it in the request context.
type Middleware struct {
	validator    TokenValidator
	mode         string
	fallbackUser uuid.UUID
	logger       *zap.Logger
}

// NewMiddleware creates an auth middleware. The validator may be nil when the
// mode is disabled.
func NewMiddleware(validator TokenValidator, mode string, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator:    validator,
		mode:         mode,
		fallbackUser: uuid.MustParse(config.FallbackUserID),
		logger:       logger.Named("auth"),
	}
}

// Identify wraps a handler so it always runs with a user identity in context.
//
//   - required: requests without a valid bearer token get 401.
//   - optional: a valid token identifies the caller, anything else falls back
//     to the shared anonymous user.
//   - disabled: every request runs as the shared anonymous user.
func (m *Middleware) Identify(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.resolve(r)
		if err != nil {
			m.unauthorized(w, "Authentication required")
			return
		}
		next(w, r.WithContext(WithUserID(r.Context(), userID)))
	}
}

func (m *Middleware) resolve(r *http.Request) (uuid.UUID, error) {
	if m.mode == config.AuthDisabled {
		return m.fallbackUser, nil
	}

	token := bearerToken(r)
	if token == "" {
		if m.mode == config.AuthRequired {
			return uuid.Nil, ErrNoIdentity
		}
		return m.fallbackUser, nil
	}

	userID, err := m.validator.ValidateToken(token)
	if err != nil {
		if m.mode == config.AuthRequired {
			return uuid.Nil, err
		}
		m.logger.Debug("Invalid token on optional-auth request, using fallback identity",
			zap.Error(err))
		return m.fallbackUser, nil
	}
	return userID, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
