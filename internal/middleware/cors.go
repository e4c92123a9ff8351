package middleware

import "net/http"

// CORS returns a middleware that lets the SPA frontend (served from its own
// origin during development) call the API.
//
// WHY NOT "*"?
// Authorization headers are only allowed on responses that name a concrete
// origin, and echoing the request origin unconditionally would defeat the
// point. The allowed origin is configuration, not a wildcard.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && origin == allowedOrigin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Vary", "Origin")
			}

			// Preflight requests end here; the browser only wants the headers.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
