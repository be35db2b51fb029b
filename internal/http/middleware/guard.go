// Package middleware contains the Gin middleware of the local gateway.
//
// This file binds the route guard table to HTTP. Guard reads the signed-in
// user and token validity once per request, evaluates the table for the
// request path and either lets the request through (recording the user id
// for the handlers and the rate limiter) or aborts with 401/403 and the
// redirect target in both the JSON body and the Location header.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-docqa-web/internal/domain"
	"github.com/tbourn/go-docqa-web/internal/guards"
)

const userIDKey = "userID"

// Principal exposes the signed-in user. *session.Store satisfies it.
type Principal interface {
	// Principal returns the user and the token validity as one consistent
	// pair.
	Principal() (*domain.User, bool)
}

// Guard evaluates the route table for every request under base. The user
// is read once per request. A denial answers 401 (login redirect) or 403
// (anything else) with the redirect target in the body and Location.
func Guard(table *guards.Table, p Principal, base string, loginPath string) gin.HandlerFunc {
	base = strings.TrimRight(base, "/")
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if base != "" {
			if !strings.HasPrefix(path, base) {
				c.Next()
				return
			}
			path = strings.TrimPrefix(path, base)
			if path == "" {
				path = "/"
			}
		}

		user, authed := p.Principal()
		if user != nil {
			c.Set(userIDKey, user.ID)
		}
		d := table.Check(path, user, authed)
		if d.Allowed {
			c.Next()
			return
		}

		guardDenials.WithLabelValues(d.Redirect).Inc()
		status := http.StatusForbidden
		code := "forbidden"
		if d.Redirect == loginPath {
			status, code = http.StatusUnauthorized, "unauthorized"
		}
		c.Header("Location", d.Redirect)
		c.AbortWithStatusJSON(status, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       code,
			"message":    "access denied",
			"redirect":   d.Redirect,
		})
	}
}

// UserIDFrom returns the id the guard recorded, if any.
func UserIDFrom(c *gin.Context) string { return c.GetString(userIDKey) }
