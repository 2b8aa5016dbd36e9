package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminAuth requires token on every path under one of prefixes. The token
// is read from "Authorization: Bearer" or X-Admin-Token. An empty token
// disables the check.
func AdminAuth(token string, prefixes ...string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(token))
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !guarded(r.URL.Path, prefixes) {
				next.ServeHTTP(w, r)
				return
			}
			presented := extractToken(r)
			if presented == "" {
				writeAuthError(w, "missing admin token")
				return
			}
			got := sha256.Sum256([]byte(presented))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				writeAuthError(w, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func guarded(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Admin-Token")
}

func writeAuthError(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"detail":"` + detail + `"}`))
}
