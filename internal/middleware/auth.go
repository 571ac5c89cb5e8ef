package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"lakegov/internal/domain"
)

// DefaultRoleClaim is the claim read when no role claim is configured.
const DefaultRoleClaim = "role"

// roleRank orders roles so a token listing several resolves to the
// strongest.
var roleRank = map[domain.Role]int{
	domain.RoleViewer:   1,
	domain.RoleAnalyst:  2,
	domain.RoleEngineer: 3,
	domain.RoleAdmin:    4,
}

// Authenticator turns a bearer token into the principal governed operations
// run as. Token issuance is external; only the role claim is consumed.
type Authenticator struct {
	validator JWTValidator
	roleClaim string
	logger    *slog.Logger
}

// NewAuthenticator creates an Authenticator. roleClaim may be a dotted path
// into nested claims, e.g. "realm_access.roles".
func NewAuthenticator(v JWTValidator, roleClaim string, logger *slog.Logger) *Authenticator {
	if roleClaim == "" {
		roleClaim = DefaultRoleClaim
	}
	return &Authenticator{validator: v, roleClaim: roleClaim, logger: logger.With("component", "auth")}
}

// Principal validates token and extracts the subject and role.
func (a *Authenticator) Principal(ctx context.Context, token string) (domain.ContextPrincipal, error) {
	claims, err := a.validator.Validate(ctx, token)
	if err != nil {
		return domain.ContextPrincipal{}, err
	}
	if claims.Subject == "" {
		return domain.ContextPrincipal{}, fmt.Errorf("token has no subject")
	}
	role, err := roleFromClaims(claims.Raw, a.roleClaim)
	if err != nil {
		return domain.ContextPrincipal{}, err
	}
	return domain.ContextPrincipal{Name: claims.Subject, Role: role, Type: "user"}, nil
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the principal in the request context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			writeUnauthenticated(w, "missing bearer token")
			return
		}
		p, err := a.Principal(r.Context(), token)
		if err != nil {
			a.logger.Warn("authentication failed",
				"error", err,
				"path", r.URL.Path,
				"request_id", RequestIDFromContext(r.Context()),
			)
			writeUnauthenticated(w, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
	})
}

// roleFromClaims reads the role at a dotted claim path. The value may be a
// single role or a list; a list resolves to its strongest known role.
func roleFromClaims(raw map[string]any, path string) (domain.Role, error) {
	var v any = raw
	for _, part := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return "", fmt.Errorf("claim %q not found", path)
		}
		if v, ok = m[part]; !ok {
			return "", fmt.Errorf("claim %q not found", path)
		}
	}

	switch val := v.(type) {
	case string:
		return domain.ParseRole(val)
	case []any:
		var best domain.Role
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				continue
			}
			r, err := domain.ParseRole(s)
			if err != nil {
				continue
			}
			if roleRank[r] > roleRank[best] {
				best = r
			}
		}
		if best == "" {
			return "", fmt.Errorf("claim %q holds no known role", path)
		}
		return best, nil
	default:
		return "", fmt.Errorf("claim %q has unsupported type %T", path, v)
	}
}

func writeUnauthenticated(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    "unauthenticated",
		"message": msg,
	})
}
