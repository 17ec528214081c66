package server

import (
	"strings"

	auditcontext "github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/gin-gonic/gin"
)

const actorHeader = "X-Actor"

// ActorMiddleware tags the request context with the caller named in
// the X-Actor header. Audit entries for mutations made without the
// header fall back to the audit service's default actor.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(actorHeader))
		if actor != "" {
			ctx := auditcontext.WithActor(c.Request.Context(), actor)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
