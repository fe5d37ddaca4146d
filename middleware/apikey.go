package middleware

import (
	"context"
	"lyrics-sync-go/logcolors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// AuthMode is what the API key check decided for a request.
type AuthMode string

const (
	AuthNone          AuthMode = ""
	AuthAuthenticated AuthMode = "authenticated"
	AuthInvalid       AuthMode = "invalid"
	// AuthCacheOnly requests carry no key where one is required; they are
	// answered from the cache only.
	AuthCacheOnly AuthMode = "cache"
)

type authModeKey struct{}

// WithAuthMode stores mode in ctx.
func WithAuthMode(ctx context.Context, mode AuthMode) context.Context {
	return context.WithValue(ctx, authModeKey{}, mode)
}

// AuthModeFrom returns the mode stored by APIKeyMiddleware.
func AuthModeFrom(ctx context.Context) AuthMode {
	mode, _ := ctx.Value(authModeKey{}).(AuthMode)
	return mode
}

// APIKeyMiddleware checks the X-API-Key header.
//
// When not required, a matching key marks the request authenticated and a
// wrong one marks it invalid; both are served. When required, requests
// without a key are downgraded to cache-only and a wrong key is rejected.
// Public paths (exact, or prefix when ending in *) skip the check.
func APIKeyMiddleware(apiKey string, required bool, publicPaths []string) func(http.Handler) http.Handler {
	exact := make(map[string]bool)
	var prefixes []string
	for _, p := range publicPaths {
		if strings.HasSuffix(p, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(p, "*"))
		} else {
			exact[p] = true
		}
	}
	isPublic := func(path string) bool {
		if exact[path] {
			return true
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	if required && apiKey == "" {
		log.Warnf("%s API key required but not configured, allowing all requests", logcolors.LogAPIKey)
		required = false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-API-Key")

			mode := AuthNone
			switch {
			case provided != "" && apiKey != "" && provided == apiKey:
				mode = AuthAuthenticated
			case provided != "":
				mode = AuthInvalid
			case required:
				mode = AuthCacheOnly
			}

			if required && !isPublic(r.URL.Path) && mode == AuthInvalid {
				log.Warnf("%s Invalid API key from %s for %s", logcolors.LogAPIKey, r.RemoteAddr, r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Auth-Mode", string(AuthInvalid))
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Invalid API key","message":"The provided API key is not valid"}`))
				return
			}
			if mode == AuthCacheOnly && isPublic(r.URL.Path) {
				mode = AuthNone
			}

			next.ServeHTTP(w, r.WithContext(WithAuthMode(r.Context(), mode)))
		})
	}
}
