package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vaihtoaktivaattori/portal/internal/config"
	"github.com/vaihtoaktivaattori/portal/internal/i18n"
	"github.com/vaihtoaktivaattori/portal/pkg/httpext"
	"github.com/vaihtoaktivaattori/portal/pkg/ratelimit"
)

// RateLimit limits requests per user, or per client address for anonymous
// requests. Rejections carry the localized rate limit text.
func RateLimit(limitKey string, catalog *i18n.Catalog) func(http.Handler) http.Handler {
	cfg := config.GetRateLimitConfig(limitKey)
	limiter := ratelimit.NewLimiter(cfg.Window, cfg.MaxHits)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			key := UserID(r)
			if key == "" {
				key = clientIP(r)
			}

			if !limiter.Allow(key) {
				log.Warn().
					Str("client", key).
					Str("limit", limitKey).
					Msg("Rate limit exceeded")

				retry := limiter.RetryAfter(key)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				httpext.JsonErrorWithDetails(w, http.StatusTooManyRequests, httpext.ErrorResponse{
					Error:            "rate_limit_exceeded",
					ErrorDescription: catalog.Message(catalog.FromRequest(r), "chat.rate_limited"),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP uses the first X-Forwarded-For hop when behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
