package handler

import (
	"net/http"
	"strings"

	"dispatchconsole/internal/apperror"
	"dispatchconsole/internal/logger"
	"dispatchconsole/internal/middleware"
	"dispatchconsole/internal/service"
	"dispatchconsole/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps a service error to its HTTP status. Errors without a kind are logged
// and reported as a generic 500.
func writeError(c *gin.Context, err error) {
	appErr, ok := apperror.As(err)
	if !ok || appErr.Kind == apperror.KindInternal {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("requestID")),
			zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, response.ErrorWithCode(http.StatusInternalServerError,
			string(apperror.KindInternal), "Internal server error", nil))
		return
	}

	status := appErr.Kind.HTTPStatus()
	c.JSON(status, response.ErrorWithCode(status, string(appErr.Kind), appErr.Message, appErr.Params))
}

// bindJSON decodes the body into req, writing a 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest,
			string(apperror.KindValidation), "Invalid request payload: "+err.Error(), nil))
		return false
	}
	return true
}

// viewer returns the authenticated caller, writing a 401 when there is none.
func viewer(c *gin.Context) (service.Viewer, bool) {
	v, ok := middleware.CurrentViewer(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
	}
	return v, ok
}

func queryBool(c *gin.Context, key string) bool {
	switch strings.ToLower(c.Query(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
