// Package middleware holds the gin middleware shared by the HTTP API.
package middleware

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse mirrors the API envelope so middleware can fail requests
// without importing the handlers.
type APIResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// JSONMiddleware sets the JSON content type and rejects bodies of any other type.
func JSONMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "application/json; charset=utf-8")

		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut || c.Request.Method == http.MethodPatch {
			if contentType := c.GetHeader("Content-Type"); contentType != "" {
				mediaType, _, err := mime.ParseMediaType(contentType)
				if err != nil || mediaType != "application/json" {
					c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, APIResponse{
						Success: false,
						Error:   "Content-Type must be application/json",
					})
					return
				}
			}
		}

		c.Next()
	}
}
