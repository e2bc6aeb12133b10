package middleware

import (
	"errors"

	"github.com/mediagate/modgate/internal/pkg/apperrors"
	"github.com/mediagate/modgate/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error attached to the context as the
// standard apperrors envelope. Store failures map to 5xx, validation to
// 4xx; nothing is swallowed below this point.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.Wrap(err)
		}

		if appErr.HTTPStatus >= 500 {
			logger.Error("request failed", "path", c.Request.URL.Path, "error", appErr.Error())
		}

		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	}
}
