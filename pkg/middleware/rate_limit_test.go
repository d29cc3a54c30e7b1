package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/quillpad/quillpad/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRouter limits POST /notes and authenticates the X-Sub header value.
func memoryRouter(rps float64, burst int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if sub := c.GetHeader("X-Sub"); sub != "" {
			c.Set("claims", map[string]interface{}{"sub": sub})
		}
		c.Next()
	})
	r.Use(RateLimitMiddleware(rps, burst))
	r.POST("/notes", func(c *gin.Context) { c.Status(http.StatusSeeOther) })
	return r
}

func submit(r http.Handler, sub, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/notes", nil)
	if sub != "" {
		req.Header.Set("X-Sub", sub)
	}
	if ip != "" {
		req.RemoteAddr = ip + ":40000"
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_AllowsBurstAndCounts(t *testing.T) {
	allowed := metrics.RateLimitAllowed.WithLabelValues("memory")
	before := testutil.ToFloat64(allowed)

	r := memoryRouter(10, 2)
	assert.Equal(t, http.StatusSeeOther, submit(r, "", ""))
	assert.Equal(t, http.StatusSeeOther, submit(r, "", ""))
	assert.Equal(t, before+2, testutil.ToFloat64(allowed))
}

func TestRateLimit_RejectsThenRefills(t *testing.T) {
	rejected := metrics.RateLimitRejected.WithLabelValues("memory")
	before := testutil.ToFloat64(rejected)

	// one token every 200ms
	r := memoryRouter(5, 1)
	require.Equal(t, http.StatusSeeOther, submit(r, "", ""))
	require.Equal(t, http.StatusTooManyRequests, submit(r, "", ""))
	assert.Equal(t, before+1, testutil.ToFloat64(rejected))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, http.StatusSeeOther, submit(r, "", ""))
}

func TestRateLimit_KeyedBySubjectNotAddress(t *testing.T) {
	r := memoryRouter(0.5, 1)

	// same user behind two addresses shares one bucket
	require.Equal(t, http.StatusSeeOther, submit(r, "alice", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, submit(r, "alice", "10.0.0.2"))

	// two users behind one NAT address do not
	assert.Equal(t, http.StatusSeeOther, submit(r, "bob", "10.0.0.1"))

	// anonymous clients fall back to the address
	assert.Equal(t, http.StatusSeeOther, submit(r, "", "10.0.0.3"))
	assert.Equal(t, http.StatusTooManyRequests, submit(r, "", "10.0.0.3"))
	assert.Equal(t, http.StatusSeeOther, submit(r, "", "10.0.0.4"))
}

func TestRateLimit_InstancesDoNotShareBuckets(t *testing.T) {
	a, b := memoryRouter(0.5, 1), memoryRouter(0.5, 1)
	assert.Equal(t, http.StatusSeeOther, submit(a, "alice", ""))
	assert.Equal(t, http.StatusSeeOther, submit(b, "alice", ""))
}
