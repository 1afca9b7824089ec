package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/chessanalytics/core/internal/apperr"
)

// httpStatus maps a taxonomy tag to the HTTP status spec §6/§7 assigns it.
// Anything unrecognized (including a bare, untagged error) falls back to
// 500, never leaking the underlying Go error text to the caller.
func httpStatus(tag apperr.Tag) int {
	switch tag {
	case apperr.TagValidation, apperr.TagParseError:
		return http.StatusBadRequest
	case apperr.TagNotFound:
		return http.StatusNotFound
	case apperr.TagRateLimit:
		return http.StatusTooManyRequests
	case apperr.TagImportInProgress:
		return http.StatusConflict
	case apperr.TagQueueFull:
		return http.StatusServiceUnavailable
	case apperr.TagEngineUnavailable, apperr.TagEngineCrash:
		return http.StatusServiceUnavailable
	case apperr.TagTimeout:
		return http.StatusGatewayTimeout
	case apperr.TagNetwork:
		return http.StatusBadGateway
	case apperr.TagPersistenceFailed, apperr.TagFKViolationPreempted:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs the full cause and responds with only the taxonomy's
// safe message and tag (spec §7: never surface the wrapped cause to an
// anonymous caller).
func writeError(c *gin.Context, err error) {
	tag, ok := apperr.AsTag(err)
	if !ok {
		tag = apperr.TagPersistenceFailed
	}
	logrus.WithError(err).WithFields(logrus.Fields{
		"path": c.FullPath(),
		"tag":  tag,
	}).Error("request failed")

	c.JSON(httpStatus(tag), gin.H{
		"success": false,
		"error":   apperr.SafeMessage(err),
		"tag":     tag,
	})
}
