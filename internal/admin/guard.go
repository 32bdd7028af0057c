// Package admin gates and implements the admin API: model visibility,
// pricing and limit overrides, and workshop settings. Once a request passes
// the password check it calls the registry mutations directly; there is no
// further state here.
package admin

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/af-corp/promptlab/internal/httputil"
)

// Guard checks the admin password. The password arrives from the
// environment, is digested once at startup, and is never logged or stored.
type Guard struct {
	digest     [sha256.Size]byte
	configured bool
}

// NewGuard builds a guard for the given password. An empty password leaves
// the guard unconfigured and every admin request is rejected.
func NewGuard(password string) *Guard {
	g := &Guard{}
	if password != "" {
		g.digest = sha256.Sum256([]byte(password))
		g.configured = true
	}
	return g
}

// Authorize reports whether the candidate password matches. Comparison runs
// over fixed-size digests in constant time.
func (g *Guard) Authorize(candidate string) bool {
	if !g.configured {
		return false
	}
	sum := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(sum[:], g.digest[:]) == 1
}

// Configured reports whether an admin password was supplied at all.
func (g *Guard) Configured() bool { return g.configured }

// Middleware authenticates admin requests via "Authorization: Bearer
// <password>". It never echoes the supplied credential.
func Middleware(g *Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			if !g.Configured() {
				httputil.WriteError(w, reqID, http.StatusServiceUnavailable,
					"server_error", "admin_disabled", "Admin API is disabled: no admin password configured")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <admin-password>")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader || token == "" {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <admin-password>")
				return
			}
			if !g.Authorize(token) {
				httputil.WriteAuthError(w, reqID, "Invalid admin password")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
