package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProfiling_AttachesLabels(t *testing.T) {
	labels := map[string]string{}
	router := gin.New()
	router.Use(Profiling(DefaultProfilingConfig()))
	handler := func(c *gin.Context) {
		pprof.ForLabels(c.Request.Context(), func(key, value string) bool {
			labels[key] = value
			return true
		})
		c.Status(http.StatusOK)
	}
	router.GET("/api/v1/installment/bill/:billId", handler)
	router.GET("/health", handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/installment/bill/abc", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "installment", labels["controller"])
	assert.Equal(t, "/api/v1/installment/bill/:billId", labels["route"])
	assert.Equal(t, "GET", labels["method"])

	clear(labels)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, labels)
}

func TestProfiling_Disabled(t *testing.T) {
	router := gin.New()
	router.Use(Profiling(ProfilingConfig{Enabled: false}))
	router.GET("/api/v1/batch/list", func(c *gin.Context) {
		_, found := pprof.Label(c.Request.Context(), "route")
		assert.False(t, found)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/batch/list", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestControllerFromRoute(t *testing.T) {
	tests := map[string]string{
		"/api/v1/payment/create":               "payment",
		"/api/v1/payments/history/:customerId": "payments",
		"/api/v2/batch/:id/expire":             "batch",
		"/health":                              "health",
		"":                                     "",
	}
	for route, want := range tests {
		assert.Equal(t, want, controllerFromRoute(route), route)
	}
}
