package mw

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/voicectl/internal/logger"
	"github.com/MrSnakeDoc/voicectl/internal/utils"
)

// EnforceHost allows requests only if the Host header matches one of the
// allowed hosts. Patterns may be "*.example.com" and may carry a port; a
// pattern without a port matches any port. Empty list means passthrough.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	if len(allowedHosts) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, pattern := range allowedHosts {
				if matchHost(r.Host, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn("host header rejected",
				logger.String("host", r.Host),
				logger.String("path", r.URL.Path))
			reject(w, http.StatusForbidden, "host not allowed")
		})
	}
}

func matchHost(host, pattern string) bool {
	host = strings.ToLower(host)
	pattern = strings.ToLower(pattern)
	if host == pattern {
		return true
	}

	// Without a port in the pattern, compare hostnames only.
	if !strings.Contains(strings.TrimPrefix(pattern, "*."), ":") {
		host = utils.ParseHostNoPort(host)
	}
	if host == pattern {
		return true
	}

	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return false
}
