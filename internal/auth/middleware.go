package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/domain"
)

// GateMode controls how a route treats unauthenticated requests.
type GateMode int

const (
	// GateStrict rejects requests without a valid session.
	GateStrict GateMode = iota

	// GateOptional attaches the principal when a valid session is
	// presented and lets the request through as a guest otherwise.
	// Missing, invalid and expired tokens all downgrade to guest.
	GateOptional
)

// contextKey is a private type for context values set by this package.
type contextKey struct{ name string }

var principalContextKey = &contextKey{"principal"}

// SessionMiddleware authenticates requests with a bearer session token.
func SessionMiddleware(codec *SessionCodec, mode GateMode, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				if mode == GateOptional {
					next.ServeHTTP(w, r)
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := codec.Verify(tokenString)
			if err != nil {
				logger.Debug().Str("path", r.URL.Path).Msg("session verification failed")
				if mode == GateOptional {
					next.ServeHTTP(w, r)
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "invalid session")
				return
			}

			principal := &domain.Principal{ID: claims.Username, IsAdmin: claims.IsAdmin}
			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerMiddleware protects administrative routes with the owner key.
func OwnerMiddleware(gate *OwnerGate, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := gate.Check(r.Header.Get(OwnerKeyHeader)); err != nil {
				logger.Debug().Str("path", r.URL.Path).Msg("owner key check failed")
				writeAuthError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext returns the authenticated principal, or nil for
// a guest request.
func PrincipalFromContext(ctx context.Context) *domain.Principal {
	if p, ok := ctx.Value(principalContextKey).(*domain.Principal); ok {
		return p
	}
	return nil
}

// ContextWithPrincipal attaches a principal to the context. Used by tests
// and internal callers that bypass the HTTP middleware.
func ContextWithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// writeAuthError writes a minimal JSON error response.
func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
