package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"washly/handlers"

	"github.com/gin-gonic/gin"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// Handlers are never reached: every request below is stopped by middleware
	// or served by the health route.
	RegisterRoutes(r, &handlers.HandlerBundle{
		Catalog:           handlers.NewCatalogHandler(nil),
		Bookings:          handlers.NewBookingHandler(nil),
		Webhooks:          handlers.NewWebhookHandler(nil, nil, nil, ""),
		Admin:             handlers.NewAdminHandler(nil),
		JWTSecret:         []byte("secret"),
		RequestsPerMinute: 100,
	})
	return r
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r := newEngine()
	for _, path := range []string{
		"/api/admin/bookings/b1/no-show",
		"/api/admin/bookings/b1/complete",
		"/api/admin/bookings/b1/retry",
		"/api/admin/reminders/run",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s = %d, want 401", path, w.Code)
		}
	}
}

func TestHealthRoute(t *testing.T) {
	r := newEngine()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK && w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newEngine()
	req := httptest.NewRequest(http.MethodOptions, "/api/bookings", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q", got)
	}
}
