package api

import (
	"net/http"
	"time"

	"learnedge/logger"
	"learnedge/utils"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request, including any errors handlers
// attached with c.Error.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if userID := c.GetString("userID"); userID != "" {
			kv = append(kv, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("request failed", kv...)
		case status >= 400:
			log.Warn("request rejected", kv...)
		default:
			log.Debug("request", kv...)
		}
	}
}

// Recovery turns a panic into a 500 envelope and logs it.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic recovered", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, utils.Envelope{Success: false, Message: "internal server error"})
	})
}
