package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/driveshare-backend/internal/auth"
)

// Authenticate attaches the caller's identity when the request carries a
// valid token. WebSocket routes may pass it as ?token= since browsers cannot
// set headers on the upgrade request. Invalid tokens get 401; missing tokens
// pass through anonymously and RequireAuth decides.
func Authenticate(v *auth.Verifier, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r.Header.Get("Authorization"))
			if token == "" && strings.HasPrefix(r.URL.Path, "/ws/") {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := v.Verify(token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected identity token")
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UID(r.Context()) == "" {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"message":"Authentication required"}`))
}
