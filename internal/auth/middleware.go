package auth

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// unauthorizedBody is returned verbatim for every auth failure, regardless
// of cause, so a caller cannot distinguish unknown from revoked from
// malformed.
var unauthorizedBody = []byte(`{"error":"Unauthorized","message":"Invalid or revoked API key"}`)

// RequireAuthFromEnv reads the REQUIRE_AUTH environment variable
// (true|false|1|0), falling back to defaultValue when unset or unparsable.
func RequireAuthFromEnv(defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv("REQUIRE_AUTH"))
	if raw == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return defaultValue
}

// Middleware wraps next with bearer-key authentication. When enabled is
// false it passes every request through untouched.
func Middleware(service *Service, enabled bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled || service == nil {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			lower := strings.ToLower(header)
			if !strings.HasPrefix(lower, "bearer ") {
				writeUnauthorized(w)
				return
			}
			token := strings.TrimSpace(header[len("bearer "):])

			cred, err := service.Verify(r.Context(), token)
			if err != nil {
				if logger != nil {
					logger.Warn("auth: rejected request", "path", r.URL.Path, "error", err)
				}
				writeUnauthorized(w)
				return
			}

			ctx := WithCredential(r.Context(), cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write(unauthorizedBody)
}
