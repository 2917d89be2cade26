package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

func newLimitedRouter(l *SimpleTokenBucket) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestMetrics(), l.GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func hit(r http.Handler, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestSimpleTokenBucket(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := newLimitedRouter(NewSimpleTokenBucket(2, 60, clock))

	if code := hit(r, "10.0.0.1"); code != http.StatusNoContent {
		t.Fatalf("expected first request allowed, got %d", code)
	}
	if code := hit(r, "10.0.0.1"); code != http.StatusNoContent {
		t.Fatalf("expected second request allowed, got %d", code)
	}
	if code := hit(r, "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected third request limited, got %d", code)
	}
	if code := hit(r, "10.0.0.2"); code != http.StatusNoContent {
		t.Errorf("expected another client to have its own bucket, got %d", code)
	}

	clock.Advance(2 * time.Second)
	if code := hit(r, "10.0.0.1"); code != http.StatusNoContent {
		t.Errorf("expected refill after two seconds at 60/min, got %d", code)
	}
}
