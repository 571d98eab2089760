package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ViewRecorded()
	m.IngestRetry()
	m.RowsMerged("pull", 3)
	m.Exchange("replica-b", "ok")
	m.CycleDuration(time.Second)
	m.PeerHealth("replica-b", 1)
	m.ForgetPeer("replica-b")
	m.ViewsFlushed(2)
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New("replica-a", false)
	m.ViewRecorded()
	m.ViewRecorded()
	m.RowsMerged("pull", 3)
	m.RowsMerged("pull", 0)
	m.Exchange("replica-b", "ok")
	m.PeerHealth("replica-b", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.viewsRecorded))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rowsMerged.WithLabelValues("pull")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchanges.WithLabelValues("replica-b", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.peerHealth.WithLabelValues("replica-b")))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	a := New("replica-a", true)
	b := New("replica-b", false)
	a.ViewRecorded()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.viewsRecorded))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.viewsRecorded))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New("replica-a", false)

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/videos/:videoId", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/videos/1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/videos/:videoId", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `viewsync_http_requests_total{endpoint="/videos/:videoId",method="GET",replica="replica-a",status="200"} 1`)
}
