package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
)

// Context keys for middleware
type contextKey string

const callerKey contextKey = "caller"

// CallerIdentity resolves the caller address from the verified JWT and
// stores it on the request context. It expects to run after
// jwtauth.Verifier and jwtauth.Authenticator, so the token itself has
// already been checked; this middleware only insists on a usable
// subject claim.
func CallerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			writeError(w, r, http.StatusUnauthorized, "token has no subject")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithCaller returns a copy of ctx carrying the given caller address.
// Handlers normally get the caller from CallerIdentity; this is for
// embedding the handlers behind a different authentication scheme.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the caller address set by CallerIdentity.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(callerKey).(string)
	return caller, ok && caller != ""
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": message})
}
