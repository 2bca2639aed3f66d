package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HeaderName carries the admin API key.
const HeaderName = "X-API-Key"

// Middleware rejects requests whose X-API-Key header does not match.
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := a.Authenticate(r.Header.Get(HeaderName))
			if !res.Authenticated {
				render.Status(r, res.Reason.Status())
				render.JSON(w, r, map[string]any{
					"error":     string(res.Reason),
					"code":      res.Reason.Code(),
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
