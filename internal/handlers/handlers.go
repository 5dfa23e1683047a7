package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/disrupton/collaborators/internal/domain"
	"github.com/disrupton/collaborators/internal/service"
	"github.com/disrupton/collaborators/pkg/auth"
	"github.com/disrupton/collaborators/pkg/config"
	"github.com/disrupton/collaborators/pkg/logger"
)

type contextKey string

const claimsKey contextKey = "claims"

type Handlers struct {
	accessService service.AccessService
	unlockService service.UnlockService
	grantService  service.GrantService
	config        *config.Config
}

func New(accessService service.AccessService, unlockService service.UnlockService, grantService service.GrantService, cfg *config.Config) *Handlers {
	return &Handlers{
		accessService: accessService,
		unlockService: unlockService,
		grantService:  grantService,
		config:        cfg,
	}
}

// RequireJWT rejects requests without a valid token carrying the role.
func (h *Handlers) RequireJWT(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := h.parseBearer(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header")
				return
			}

			if requiredRole != "" && claims.Role != requiredRole && claims.Role != "admin" {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalIdentity resolves the caller's identity when a token is present and
// lets the request through as a guest otherwise. Entitlement decisions down
// the stack treat an absent identity as hasAccess=false.
func (h *Handlers) OptionalIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := h.parseBearer(r); err == nil {
			r = r.WithContext(withClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) parseBearer(r *http.Request) (*auth.Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.New("missing bearer token")
	}
	return auth.Parse(strings.TrimPrefix(authHeader, "Bearer "), h.config.Auth.JWTSecret)
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, logger.UserIDKey, claims.Sub)
	return context.WithValue(ctx, claimsKey, claims)
}

func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// currentUserID returns the resolved identity, or "" for guests.
func currentUserID(r *http.Request) string {
	if claims := getClaims(r); claims != nil {
		return claims.Sub
	}
	return ""
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy to HTTP statuses. Storage
// failures are 503 so clients know a retry is worthwhile.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusServiceUnavailable, "Temporarily unavailable, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
