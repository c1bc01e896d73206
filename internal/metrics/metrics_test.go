package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector_RecordsTurnsAndViolations(t *testing.T) {
	c := NewCollector("cbning")

	c.RecordTurn("committed", nil)
	c.RecordTurn("rejected", []string{"acyclic", "cpd_vector", "acyclic"})
	c.SetActiveSessions(3)
	c.ObserveCall("translate", time.Now(), errors.New("boom"))

	out := scrape(t, c)
	assert.Contains(t, out, `cbning_turns_total{status="committed"} 1`)
	assert.Contains(t, out, `cbning_turns_total{status="rejected"} 1`)
	assert.Contains(t, out, `cbning_violations_total{rule="acyclic"} 2`)
	assert.Contains(t, out, `cbning_violations_total{rule="cpd_vector"} 1`)
	assert.Contains(t, out, `cbning_active_sessions 3`)
	assert.Contains(t, out, `cbning_external_call_errors_total{operation="translate"} 1`)
	assert.Contains(t, out, `cbning_external_call_duration_seconds_count{operation="translate"} 1`)
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("cbning")
	b := NewCollector("cbning")

	a.RecordTurn("committed", nil)

	assert.NotContains(t, scrape(t, b), `cbning_turns_total{status="committed"}`)
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTurn("committed", nil)
		c.ObserveCall("interpret", time.Now(), nil)
		c.SetActiveSessions(1)
	})
}

func TestCollector_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewCollector("cbning")
	r := gin.New()
	r.Use(c.Middleware())
	r.GET("/sessions/:id", func(ctx *gin.Context) { ctx.Status(http.StatusNotFound) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))

	assert.Contains(t, scrape(t, c), `cbning_http_requests_total{method="GET",route="/sessions/:id",status="404"} 1`)
}
