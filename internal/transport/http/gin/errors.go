package httpgin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/venuebook/internal/domain"
)

var statusByKind = map[string]int{
	"VALIDATION_ERROR":    http.StatusBadRequest,
	"NOT_FOUND":           http.StatusNotFound,
	"CONFLICT":            http.StatusConflict,
	"DATE_CONFLICT":       http.StatusConflict,
	"CAPACITY_EXCEEDED":   http.StatusUnprocessableEntity,
	"INVALID_DATE":        http.StatusUnprocessableEntity,
	"VENUE_NOT_APPROVED":  http.StatusConflict,
	"PERMISSION_DENIED":   http.StatusForbidden,
	"UNAUTHENTICATED":     http.StatusUnauthorized,
	"ALREADY_APPROVED":    http.StatusConflict,
	"SERVICE_UNAVAILABLE": http.StatusServiceUnavailable,
}

// respondErr writes the error envelope for err. Errors outside the business
// taxonomy are logged and reported as SERVICE_UNAVAILABLE without detail.
func respondErr(c *gin.Context, logger *slog.Logger, err error) {
	sentinel, kind := domain.Match(err)

	if kind == "" || kind == "SERVICE_UNAVAILABLE" {
		_ = c.Error(err)
		reqID, _ := c.Get(requestIDKey)
		logger.Error("request failed", "request_id", reqID, "path", c.FullPath(), "error", err)

		c.Header("Retry-After", "1")
		abortWith(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", domain.ErrServiceUnavailable.Error())
		return
	}

	abortWith(c, statusByKind[kind], kind, publicMessage(err, sentinel))
}

// publicMessage drops the operation chain in front of the sentinel, keeping
// the detail that follows it.
func publicMessage(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}

func abortWith(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

func badRequest(c *gin.Context, msg string) {
	abortWith(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
}
