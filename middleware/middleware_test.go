package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"washly/utils"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:5000", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.3"}, "10.0.0.2:5000", "198.51.100.3"},
		{"garbage header ignored", map[string]string{"X-Forwarded-For": "not-an-ip"}, "192.0.2.9:1234", "192.0.2.9"},
		{"socket address", nil, "192.0.2.10:4321", "192.0.2.10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			r := gin.New()
			r.GET("/", func(c *gin.Context) { got = getClientIP(c) })
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			serve(r, req)
			if got != tc.want {
				t.Fatalf("getClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRateLimitPerIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		return serve(r, req).Code
	}
	if get("192.0.2.1:1") != http.StatusOK || get("192.0.2.1:2") != http.StatusOK {
		t.Fatalf("burst should be allowed")
	}
	if code := get("192.0.2.1:3"); code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", code)
	}
	if code := get("192.0.2.2:1"); code != http.StatusOK {
		t.Fatalf("other client = %d, want 200", code)
	}
}

func TestRateLimiterDropsIdleVisitors(t *testing.T) {
	s := newRateLimiterStore(10)
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s.getLimiter("a", now)
	s.getLimiter("b", now.Add(limiterIdleTTL+time.Minute))
	if _, ok := s.visitors["a"]; ok {
		t.Fatalf("idle visitor should be swept")
	}
	if len(s.visitors) != 1 {
		t.Fatalf("expected one visitor, got %d", len(s.visitors))
	}
}

func TestJWTAuthAdminMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	r := gin.New()
	r.Use(JWTAuthAdminMiddleware(secret))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("adminSubject")) })

	withToken := func(tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		return serve(r, req)
	}

	if w := withToken(""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token = %d", w.Code)
	}
	if w := withToken("garbage"); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", w.Code)
	}
	other, _ := utils.GenerateToken([]byte("other-secret"), "ops-1", utils.RoleAdmin, time.Hour)
	if w := withToken(other); w.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token = %d", w.Code)
	}
	customer, _ := utils.GenerateToken(secret, "cust-1", "customer", time.Hour)
	if w := withToken(customer); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin token = %d", w.Code)
	}
	admin, _ := utils.GenerateToken(secret, "ops-1", utils.RoleAdmin, time.Hour)
	w := withToken(admin)
	if w.Code != http.StatusOK || w.Body.String() != "ops-1" {
		t.Fatalf("admin token = %d %q", w.Code, w.Body.String())
	}
}
