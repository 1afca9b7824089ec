package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/chessanalytics/core/internal/apperr"
)

func TestHTTPStatusMapsEveryTag(t *testing.T) {
	cases := map[apperr.Tag]int{
		apperr.TagValidation:           http.StatusBadRequest,
		apperr.TagParseError:           http.StatusBadRequest,
		apperr.TagNotFound:             http.StatusNotFound,
		apperr.TagRateLimit:            http.StatusTooManyRequests,
		apperr.TagImportInProgress:     http.StatusConflict,
		apperr.TagQueueFull:            http.StatusServiceUnavailable,
		apperr.TagEngineUnavailable:    http.StatusServiceUnavailable,
		apperr.TagEngineCrash:          http.StatusServiceUnavailable,
		apperr.TagTimeout:              http.StatusGatewayTimeout,
		apperr.TagNetwork:              http.StatusBadGateway,
		apperr.TagPersistenceFailed:    http.StatusInternalServerError,
		apperr.TagFKViolationPreempted: http.StatusInternalServerError,
	}
	for tag, want := range cases {
		assert.Equal(t, want, httpStatus(tag), "tag %s", tag)
	}
}

func TestHTTPStatusUnknownTagFallsBackTo500(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, httpStatus(apperr.Tag("something_new")))
}

func TestWriteErrorNeverLeaksWrappedCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/stats/hero/lichess", nil)

	cause := errors.New("pq: connection refused at 10.0.0.5:5432 user=admin")
	err := apperr.Wrap(apperr.TagPersistenceFailed, "could not load player stats", cause)

	writeError(c, err)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
	assert.NotContains(t, w.Body.String(), "admin")
	assert.Contains(t, w.Body.String(), "could not load player stats")
}

func TestWriteErrorUntaggedErrorFallsBackToPersistenceFailed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/stats/hero/lichess", nil)

	writeError(c, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal error")
}
