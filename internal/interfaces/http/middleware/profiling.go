package middleware

import (
	"context"

	"github.com/gamehub/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling attaches route, method and partner type pprof labels so
// Pyroscope can break CPU time down by endpoint. Use after the JWT
// middleware.
func Profiling(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if matchesPath(c.Request.URL.Path, []string{"/health", "/api/v1/health"}, []string{"/swagger"}) {
			c.Next()
			return
		}

		var partnerType string
		if actor, ok := GetActor(c); ok {
			partnerType = string(actor.Type)
		}
		labels := telemetry.HTTPRequestLabels(c.FullPath(), c.Request.Method, partnerType)

		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
