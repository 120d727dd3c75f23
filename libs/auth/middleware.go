package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/clinicapi/libs/httpx"
)

const RoleAdmin = "admin"

// ErrInactiveUser is returned by a UserCheck when the token subject no longer
// exists or was deactivated.
var ErrInactiveUser = errors.New("user not found or inactive")

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID   string
	Role     string
	Document string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type Verifier interface {
	Verify(token string, use TokenUse) (*Claims, error)
}

// UserCheck resolves verified claims to the current principal, typically by
// re-reading the user so role changes and deactivation apply immediately.
type UserCheck func(ctx context.Context, claims *Claims) (Principal, error)

// RequireAuth accepts requests carrying a valid access token. A nil check
// trusts the claims as issued.
func RequireAuth(v Verifier, check UserCheck) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "Access token required")
				return
			}
			claims, err := v.Verify(token, AccessToken)
			if err != nil {
				msg := "Invalid or expired token"
				if errors.Is(err, ErrTokenExpired) {
					msg = "Token expired"
				}
				httpx.Fail(w, http.StatusUnauthorized, msg)
				return
			}

			p := Principal{UserID: claims.Subject, Role: claims.Role, Document: claims.Document}
			if check != nil {
				p, err = check(r.Context(), claims)
				if errors.Is(err, ErrInactiveUser) {
					httpx.Fail(w, http.StatusUnauthorized, "User not found or inactive")
					return
				}
				if err != nil {
					httpx.Fail(w, http.StatusInternalServerError, "internal server error")
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...string) httpx.Middleware {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				httpx.Fail(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
