package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-checkin/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestExtractUserIDFromJWT(t *testing.T) {
	sub, err := ExtractUserIDFromJWT(signedToken(t, "operator-7"))
	require.NoError(t, err)
	assert.Equal(t, "operator-7", sub)

	_, err = ExtractUserIDFromJWT("")
	assert.Error(t, err)

	_, err = ExtractUserIDFromJWT("not-a-jwt")
	assert.Error(t, err)
}

func TestExtractTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		token   string
		wantErr bool
	}{
		{"valid", "Bearer abc", "abc", false},
		{"lowercase scheme", "bearer abc", "abc", false},
		{"missing", "", "", true},
		{"wrong scheme", "Basic abc", "", true},
		{"no token", "Bearer", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			token, err := ExtractTokenFromRequest(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestUnverifiedMiddleware(t *testing.T) {
	mw, err := Middleware(context.Background(), config.AuthConfig{SkipVerification: true}, nil)
	require.NoError(t, err)

	var seen string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/checkin/terminals", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "operator-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "operator-1", seen)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/checkin/terminals", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRequiresIssuer(t *testing.T) {
	_, err := Middleware(context.Background(), config.AuthConfig{}, nil)
	assert.Error(t, err)
}

func TestUserIDOutsideMiddleware(t *testing.T) {
	assert.Equal(t, "", UserID(context.Background()))
	assert.Equal(t, "op", UserID(WithUserID(context.Background(), "op")))
}
