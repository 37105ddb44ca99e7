// Package middleware - authentication
//
// OptionalAuth resolves the caller from an "Authorization: Bearer" header or
// the accessToken cookie and stores the id and email in the Gin context. An
// invalid token leaves the request anonymous. RequireAuth then rejects
// anonymous requests on protected routes with 401.

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samrith-ratana/e-commerce/internal/services"
)

// AccessCookie is the httpOnly cookie holding the access token.
const AccessCookie = "accessToken"

const (
	ctxKeyUserID    = "userID"
	ctxKeyUserEmail = "userEmail"
)

// Authenticator verifies an access token.
type Authenticator interface {
	Authenticate(token string) (services.Identity, error)
}

// OptionalAuth resolves the caller from a Bearer token or the access cookie
// and stores the identity on the context. Missing or invalid tokens leave the
// request anonymous; RequireAuth decides whether that is acceptable.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok := requestToken(c); tok != "" {
			if id, err := auth.Authenticate(tok); err == nil {
				c.Set(ctxKeyUserID, id.ID)
				c.Set(ctxKeyUserEmail, id.Email)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "Unauthorized",
				"code":       "unauthorized",
				"request_id": RequestIDFrom(c),
			})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserID)
	return asString(v)
}

// UserEmail returns the authenticated user's email, or "".
func UserEmail(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserEmail)
	return asString(v)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func requestToken(c *gin.Context) string {
	if tok := BearerToken(c); tok != "" {
		return tok
	}
	if ck, err := c.Cookie(AccessCookie); err == nil {
		return strings.TrimSpace(ck)
	}
	return ""
}
