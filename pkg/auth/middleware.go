package auth

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/mohallaa/mohallaa/internal/errors"
)

// Middleware verifies bearer tokens and stores the principal on the request
// context. Requests without a token pass through anonymously; requests with
// an invalid token are rejected with 401.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				// Browsers cannot set headers on WebSocket upgrades.
				token = r.URL.Query().Get("access_token")
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := v.Verify(token)
			if err != nil {
				writeAuthError(w, apperrors.FromError(err, apperrors.CodeSessionExpired))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			writeAuthError(w, apperrors.New(apperrors.CodeAuthRequired))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, err *apperrors.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    err.Code,
			"message": err.Message,
		},
	})
}
