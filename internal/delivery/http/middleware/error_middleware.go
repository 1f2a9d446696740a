package middleware

import (
	"errors"
	"net/http"

	"go-filescan-backend/internal/delivery/http/response"
	"go-filescan-backend/pkg/apperror"
	"go-filescan-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Check if there are errors appended to the context
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		requestID := c.GetString("RequestID")

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			if appErr.Code >= http.StatusInternalServerError {
				logger.Log.Error("Request failed", "request_id", requestID, "path", c.FullPath(), "error", errors.Unwrap(appErr))
			}
			detail := appErr.Details
			if detail == nil {
				detail = appErr.Message
			}
			response.Error(c, appErr.Code, appErr.Message, detail)
			return
		}

		// SECURITY: Never expose internal error details to clients.
		logger.Log.Error("Internal Server Error", "request_id", requestID, "path", c.FullPath(), "error", err)
		msg := "An unexpected error occurred. Please try again later."
		response.Error(c, http.StatusInternalServerError, msg, msg)
	}
}
