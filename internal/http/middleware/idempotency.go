// Package middleware - idempotency keys
//
// IdempotencyValidator checks the Idempotency-Key header when one is sent
// and scopes it by caller (user id or "guest:<ip>") and route pattern. When
// a live record exists for that scope the request is flagged as a replay:
// the rate limiter lets it through and the handler answers with the stored
// resource instead of repeating side effects.
//
// Recording the outcome is left to the handler, which knows the id of the
// resource it created.

package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's idempotency key on unsafe
// requests such as POST /orders.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemReplay   = "idem.replay"
	ctxKeyIdemResource = "idem.resource"
	ctxKeyRateBypass   = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether the key matched a completed request.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// ReplayResourceID is the id of the resource created by the request being
// replayed, or "" when this is not a replay.
func ReplayResourceID(c *gin.Context) string {
	return c.GetString(ctxKeyIdemResource)
}

// IdempotencyScope is the scope under which keys for this request are
// stored: the matched route pattern, falling back to the raw path.
func IdempotencyScope(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// IdempotencyOwner identifies who a key belongs to: the authenticated user,
// or the client IP for anonymous callers.
func IdempotencyOwner(c *gin.Context) string {
	if uid := UserID(c); uid != "" {
		return uid
	}
	return "guest:" + c.ClientIP()
}

// IdempotencyOptions tunes header validation. TTL belongs to the lookup.
type IdempotencyOptions struct {
	MaxLen  int            // defaults to 200
	Pattern *regexp.Regexp // defaults to ^[A-Za-z0-9._~\-:]+$
}

// IdempotencyLookup reports the resource id recorded for a live
// (owner, scope, key) triple. Lookup errors never block the request.
type IdempotencyLookup func(ctx context.Context, owner, scope, key string, now time.Time) (resourceID string, found bool, err error)

// IdempotencyValidator validates an Idempotency-Key header when present and
// marks known keys as replays so handlers can return the stored resource and
// the rate limiter lets them through. Requests without the header pass
// untouched; malformed keys get a 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Invalid Idempotency-Key",
				"code":       "bad_idempotency_key",
				"request_id": RequestIDFrom(c),
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			rid, found, err := lookup(c.Request.Context(), IdempotencyOwner(c), IdempotencyScope(c), key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			case found:
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyIdemResource, rid)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}
