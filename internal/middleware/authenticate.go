package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ashplayer/backend/internal/apperror"
	"github.com/ashplayer/backend/internal/handlers"
	"github.com/ashplayer/backend/internal/identity"
	"github.com/ashplayer/backend/internal/logging"
)

// Verifier turns a bearer token into a verified identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (identity.Identity, error)
}

// RegistrationChecker reports whether a uid has a user document.
type RegistrationChecker interface {
	Exists(ctx context.Context, uid string) (bool, error)
}

// Route is an exact method and path pair.
type Route struct {
	Method string
	Path   string
}

func (rt Route) matches(r *http.Request) bool {
	return r.Method == rt.Method && r.URL.Path == rt.Path
}

// AuthConfig lists the routes that bypass parts of the access check.
type AuthConfig struct {
	// Public routes skip authentication entirely.
	Public []Route
	// Unregistered routes require a valid token but no user document.
	Unregistered []Route
}

// Authenticate verifies the bearer token of every request and, except for
// the configured unregistered routes, requires the caller to be registered.
func Authenticate(verifier Verifier, users RegistrationChecker, cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if matchesAny(cfg.Public, r) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				handlers.RespondError(ctx, w, apperror.Validation("Authorization header must be a bearer token"))
				return
			}

			id, err := verifier.Verify(ctx, token)
			if err != nil {
				var verr *identity.VerifyError
				code := identity.CodeInvalidToken
				if errors.As(err, &verr) {
					code = verr.Code
				}
				if code == identity.CodeInternal {
					handlers.RespondError(ctx, w, apperror.Internal("", err))
					return
				}
				handlers.RespondError(ctx, w, apperror.Unauthorized(code, err))
				return
			}

			ctx = logging.WithUID(ctx, id.UID)
			ctx = identity.WithIdentity(ctx, id)

			if !matchesAny(cfg.Unregistered, r) {
				registered, err := users.Exists(ctx, id.UID)
				if err != nil {
					handlers.RespondError(ctx, w, apperror.Internal("", err))
					return
				}
				if !registered {
					handlers.RespondError(ctx, w, apperror.Forbidden(apperror.CodeNotRegistered, "User is not registered!"))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func matchesAny(routes []Route, r *http.Request) bool {
	for _, rt := range routes {
		if rt.matches(r) {
			return true
		}
	}
	return false
}
