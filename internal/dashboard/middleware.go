// Package dashboard serves the local JSON API and live event stream that
// back the postdesk dashboard.
package dashboard

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// credential extracts the presented token. EventSource cannot set headers,
// so the event stream also accepts ?access_token=.
type credential func(r *http.Request) string

func bearer(r *http.Request) string {
	got, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return got
}

func bearerOrQuery(r *http.Request) string {
	if got := bearer(r); got != "" {
		return got
	}
	return r.URL.Query().Get("access_token")
}

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return requireToken(enabled, token, bearer)
}

func requireToken(enabled bool, token string, from credential) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := from(r)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="postdesk"`)
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
