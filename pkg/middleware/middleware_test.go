package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wms-platform/replenishment-service/pkg/errors"
	"github.com/wms-platform/replenishment-service/pkg/logging"
	"github.com/wms-platform/replenishment-service/pkg/metrics"
	"github.com/wms-platform/replenishment-service/pkg/middleware"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	cfg := middleware.DefaultConfig("replenishment-service", logging.NewNop(), metrics.New(metrics.DefaultConfig("test")))
	cfg.EnableTracing = false
	middleware.Setup(router, cfg)
	return router
}

func TestCorrelationID_PropagatesHeader(t *testing.T) {
	router := newRouter()
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetCorrelationID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(middleware.HeaderCorrelationID, "corr-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "corr-1", w.Body.String())
	assert.Equal(t, "corr-1", w.Header().Get(middleware.HeaderCorrelationID))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestNoRoute_ReturnsJSON(t *testing.T) {
	router := newRouter()
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ROUTE_NOT_FOUND", body.Code)
	assert.Equal(t, "/nope", body.Path)
}

func TestNoMethod_ReturnsJSON(t *testing.T) {
	router := newRouter()
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/ping", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	var body middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Code)
}

func TestRecovery_Returns500(t *testing.T) {
	router := newRouter()
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), apperrors.CodeInternalError)
}

func TestErrorResponder_BindingError(t *testing.T) {
	type request struct {
		OrderID  string `json:"orderId" binding:"required"`
		Quantity int    `json:"quantity" binding:"required,gt=0"`
	}

	router := newRouter()
	router.POST("/bind", func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.NewErrorResponder(c, logging.NewNop().Logger).RespondBindingError(err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(`{"quantity":0}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeValidationError, body.Code)
	assert.Equal(t, "is required", body.Details["orderId"])
	assert.Contains(t, body.Details, "quantity")
}

func TestContentType_RejectsNonJSON(t *testing.T) {
	router := newRouter()
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestReadinessCheck(t *testing.T) {
	router := newRouter()
	healthy := true
	router.GET("/ready", middleware.ReadinessCheck("svc", map[string]func(context.Context) error{
		"mongodb": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("no primary")
		},
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	healthy = false
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no primary")
}
