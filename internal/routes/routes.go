package routes

import (
	"net/http"

	"github.com/ZerkerEOD/folderport/internal/handlers"
	"github.com/ZerkerEOD/folderport/internal/handlers/websocket"
	"github.com/ZerkerEOD/folderport/pkg/debug"
	"github.com/ZerkerEOD/folderport/pkg/env"
	"github.com/gorilla/mux"
)

/*
 * Package routes wires the read-only status API. Every route is public; the
 * API exposes counters and event history only, never file contents.
 */

/*
 * CORSMiddleware handles CORS headers for all requests.
 *
 * Configuration:
 *   - Uses CORS_ALLOWED_ORIGIN environment variable
 *   - Falls back to * if not set
 */
func CORSMiddleware(next http.Handler) http.Handler {
	allowedOrigin := env.GetOrDefault("CORS_ALLOWED_ORIGIN", "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

/*
 * SetupRoutes configures the status routes.
 *
 * Routes:
 *   - GET /api/health     liveness
 *   - GET /api/status     counters, folders, listeners, recent events
 *   - GET /api/transfers  journaled transfers (503 when the journal is off)
 *   - GET /api/events     live event stream over WebSocket
 */
func SetupRoutes(r *mux.Router, status *handlers.StatusHandler, events *websocket.Handler) {
	debug.Info("Initializing route configuration")

	r.Use(CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", status.Health).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/status", status.Status).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/transfers", status.Transfers).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/events", events.ServeWS).Methods(http.MethodGet)

	debug.Info("Route configuration completed successfully")
}
