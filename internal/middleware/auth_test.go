package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakegov/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newAuth(t *testing.T, roleClaim string) *Authenticator {
	t.Helper()
	v, err := NewHS256Validator(testSecret, "")
	require.NoError(t, err)
	return NewAuthenticator(v, roleClaim, discard())
}

// principalEcho responds with the principal the middleware stored.
var principalEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.PrincipalFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"name": p.Name, "role": string(p.Role)})
})

func TestAuthenticator_Middleware(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	handler := newAuth(t, "").Middleware(principalEcho)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantRole string
	}{
		{"admin", "Bearer " + makeToken(testSecret, jwt.MapClaims{"sub": "ada", "role": "ADMIN", "exp": exp}), http.StatusOK, "ADMIN"},
		{"lowercase_role", "Bearer " + makeToken(testSecret, jwt.MapClaims{"sub": "vic", "role": "viewer", "exp": exp}), http.StatusOK, "VIEWER"},
		{"missing_header", "", http.StatusUnauthorized, ""},
		{"basic_scheme", "Basic YWRhOnNlY3JldA==", http.StatusUnauthorized, ""},
		{"bad_signature", "Bearer " + makeToken("other", jwt.MapClaims{"sub": "ada", "role": "ADMIN", "exp": exp}), http.StatusUnauthorized, ""},
		{"no_role", "Bearer " + makeToken(testSecret, jwt.MapClaims{"sub": "ada", "exp": exp}), http.StatusUnauthorized, ""},
		{"unknown_role", "Bearer " + makeToken(testSecret, jwt.MapClaims{"sub": "ada", "role": "ROOT", "exp": exp}), http.StatusUnauthorized, ""},
		{"no_subject", "Bearer " + makeToken(testSecret, jwt.MapClaims{"role": "ADMIN", "exp": exp}), http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/tables", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantRole, body["role"])
				return
			}
			assert.Equal(t, "unauthenticated", body["code"])
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestRoleFromClaims(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		path    string
		want    domain.Role
		wantErr bool
	}{
		{"string", map[string]any{"role": "engineer"}, "role", domain.RoleEngineer, false},
		{"list_strongest", map[string]any{"roles": []any{"viewer", "ADMIN", "analyst"}}, "roles", domain.RoleAdmin, false},
		{"list_skips_unknown", map[string]any{"roles": []any{"owner", 7, "analyst"}}, "roles", domain.RoleAnalyst, false},
		{"nested", map[string]any{"realm_access": map[string]any{"roles": []any{"ENGINEER"}}}, "realm_access.roles", domain.RoleEngineer, false},
		{"missing", map[string]any{"sub": "x"}, "role", "", true},
		{"nested_missing", map[string]any{"realm_access": "x"}, "realm_access.roles", "", true},
		{"list_without_roles", map[string]any{"roles": []any{"owner"}}, "roles", "", true},
		{"wrong_type", map[string]any{"role": 3.0}, "role", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := roleFromClaims(tt.raw, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
