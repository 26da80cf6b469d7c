package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/config"
)

type stubValidator struct {
	userID uuid.UUID
	err    error
}

func (s *stubValidator) ValidateToken(tokenString string) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return s.userID, nil
}

func identityProbe(captured *uuid.UUID) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		*captured = id
		w.WriteHeader(http.StatusOK)
	}
}

func TestIdentify_RequiredMode_MissingToken(t *testing.T) {
	m := NewMiddleware(&stubValidator{}, config.AuthRequired, zap.NewNop())

	var captured uuid.UUID
	handler := m.Identify(identityProbe(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if captured != uuid.Nil {
		t.Error("expected the handler not to run")
	}
}

func TestIdentify_RequiredMode_InvalidToken(t *testing.T) {
	m := NewMiddleware(&stubValidator{err: errors.New("bad signature")}, config.AuthRequired, zap.NewNop())

	var captured uuid.UUID
	handler := m.Identify(identityProbe(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIdentify_RequiredMode_ValidToken(t *testing.T) {
	userID := uuid.New()
	m := NewMiddleware(&stubValidator{userID: userID}, config.AuthRequired, zap.NewNop())

	var captured uuid.UUID
	handler := m.Identify(identityProbe(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured != userID {
		t.Errorf("expected the token's subject in context, got %s", captured)
	}
}

func TestIdentify_OptionalMode_FallsBackWithoutToken(t *testing.T) {
	m := NewMiddleware(&stubValidator{}, config.AuthOptional, zap.NewNop())

	var captured uuid.UUID
	handler := m.Identify(identityProbe(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.String() != config.FallbackUserID {
		t.Errorf("expected the fallback identity, got %s", captured)
	}
}

func TestIdentify_OptionalMode_FallsBackOnInvalidToken(t *testing.T) {
	m := NewMiddleware(&stubValidator{err: errors.New("expired")}, config.AuthOptional, zap.NewNop())

	var captured uuid.UUID
	handler := m.Identify(identityProbe(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.String() != config.FallbackUserID {
		t.Errorf("expected the fallback identity, got %s", captured)
	}
}

func TestIdentify_OptionalMode_UsesValidToken(t *testing.T) {
	userID := uuid.New()
	m := NewMiddleware(&stubValidator{userID: userID}, config.AuthOptional, zap.NewNop())

	var captured uuid.UUID
	handler := m.Identify(identityProbe(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge", nil)
	req.Header.Set("Authorization", "Bearer valid")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if captured != userID {
		t.Errorf("expected the token's subject, got %s", captured)
	}
}

func TestIdentify_DisabledMode(t *testing.T) {
	// No validator is constructed in disabled mode.
	m := NewMiddleware(nil, config.AuthDisabled, zap.NewNop())

	var captured uuid.UUID
	handler := m.Identify(identityProbe(&captured))

	req := httptest.NewRequest(http.MethodGet, "/api/knowledge", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured.String() != config.FallbackUserID {
		t.Errorf("expected the fallback identity, got %s", captured)
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic dXNlcg==", ""},
		{"Bearer", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header %q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
