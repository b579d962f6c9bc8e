// api/util/http_util.go

package util

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/warden-net/warden/api/logging"
)

// ErrorResponse is the uniform error body for the management surface.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// RespondWithError logs the failure and writes the error body.
func RespondWithError(c *gin.Context, statusCode int, message string, err error) {
	resp := ErrorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
		logger.Warn("Request failed",
			zap.Int("status", statusCode),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(statusCode, resp)
}
