package httpapi

import (
	"net/http"

	"duka.app/internal/audit"
	"duka.app/internal/auth"
)

// Authorize runs every request through the gate. Rejections are written as
// the envelope and recorded in the audit trail. On proceed the principal,
// when resolved, travels on the request context.
func Authorize(gate *auth.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			out := gate.Authorize(r.Context(), auth.Request{
				Path:          r.URL.Path,
				Authorization: header,
			})
			ctx := r.Context()
			if out.Principal != nil {
				ctx = auth.ContextWithPrincipal(ctx, *out.Principal)
			}
			if !out.Proceed() {
				_ = audit.LogEvent(ctx, "authz.reject", map[string]any{
					"path":     r.URL.Path,
					"method":   r.Method,
					"decision": string(out.Decision),
					"status":   out.Status,
				})
				writeEnvelope(w, out.Status, out.Message, out.Payload)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
