package middlewares

import (
	"strconv"

	"bitbucket.org/mmdatafocus/qaudit_backend/utils"
	"github.com/gin-gonic/gin"
)

// RequestContextMiddleware copies the gateway-authenticated identity headers
// into the request context. Authentication itself happens upstream; this
// service only needs to know who performs manual actions.
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if username := c.GetHeader("x-user"); username != "" {
			ctx = utils.SetUsernameInContext(ctx, username)
		}
		if displayName := c.GetHeader("x-user-name"); displayName != "" {
			ctx = utils.SetUserNameInContext(ctx, displayName)
		}
		if idStr := c.GetHeader("x-user-id"); idStr != "" {
			if id, err := strconv.Atoi(idStr); err == nil {
				ctx = utils.SetUserIdInContext(ctx, id)
			}
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
