package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZerkerEOD/folderport/internal/handlers"
	"github.com/ZerkerEOD/folderport/internal/handlers/websocket"
	"github.com/ZerkerEOD/folderport/internal/services/status"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func newRouter(t *testing.T) *mux.Router {
	t.Helper()
	hub := status.NewHub(10)
	r := mux.NewRouter()
	SetupRoutes(r, handlers.NewStatusHandler(hub, nil, nil, nil), websocket.NewHandler(hub))
	return r
}

func TestRoutes(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	r := newRouter(t)

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/status", http.StatusOK},
		{http.MethodGet, "/api/transfers", http.StatusServiceUnavailable},
		{http.MethodOptions, "/api/status", http.StatusOK},
		{http.MethodPost, "/api/status", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestCORSHeaders(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	r := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
