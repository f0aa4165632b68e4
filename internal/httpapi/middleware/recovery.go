package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"genflow/internal/shared/logging"
)

// ErrorHandlingMiddleware turns handler panics into a 500 envelope.
func ErrorHandlingMiddleware(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, APIResponse{
			Success: false,
			Error:   "Internal server error",
		})
	})
}

// RequestLogger logs one line per request at debug level.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("%s %s -> %d", c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}
