package helpers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs every request once it has been served, at warn level
// for client errors and error level for server errors.
func RequestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		status := ctx.Writer.Status()

		event := log.Info()
		switch {
		case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
			event = log.Warn()
		case status >= http.StatusInternalServerError:
			event = log.Error()
		}

		event = event.Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Str("ip", ctx.ClientIP()).
			Int("status", status).
			Int("size", ctx.Writer.Size()).
			Dur("latency", time.Since(start))

		if len(ctx.Errors) > 0 {
			event = event.Str("errors", ctx.Errors.String())
		}

		event.Msg("HTTP request:")
	}
}
