package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gatekeeper-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket authenticates with a ticket when JWT is enabled.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/camera", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/status", s.handleListCameras)
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/list", s.handleListCameras)
				r.With(s.requirePermission(auth.PermDeviceConfigure)).Post("/add", s.handleAddCamera)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetCamera)
					r.With(s.requirePermission(auth.PermDeviceConfigure)).Put("/update", s.handleUpdateCamera)
					r.With(s.requirePermission(auth.PermDeviceConfigure)).Delete("/", s.handleDeleteCamera)
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/snapshot", s.handleCameraSnapshot)
					r.With(s.requirePermission(auth.PermDeviceTest)).Post("/test", s.handleTestCamera)
				})
			})

			r.Route("/gate", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/status", s.handleListGates)
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/list", s.handleListGates)
				r.With(s.requirePermission(auth.PermDeviceConfigure)).Post("/add", s.handleAddGate)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/", s.handleGetGate)
					r.With(s.requirePermission(auth.PermDeviceRead)).Get("/status", s.handleGateStatus)
					r.With(s.requirePermission(auth.PermDeviceConfigure)).Put("/update", s.handleUpdateGate)
					r.With(s.requirePermission(auth.PermDeviceConfigure)).Delete("/", s.handleDeleteGate)
					r.With(s.requirePermission(auth.PermGateOperate)).Post("/open", s.handleOpenGate)
					r.With(s.requirePermission(auth.PermGateOperate)).Post("/close", s.handleCloseGate)
					r.With(s.requirePermission(auth.PermDeviceTest)).Post("/test", s.handleTestGate)
					r.With(s.requirePermission(auth.PermAuditRead)).Get("/actions", s.handleGateActions)
				})
			})

			r.Route("/dashboard", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermDeviceRead))
				r.Get("/overview", s.handleDashboardOverview)
				r.Get("/system-status", s.handleSystemStatus)
				r.Get("/alerts", s.handleAlerts)
				r.Get("/recent-activity", s.handleRecentActivity)
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// handleHealth reports liveness and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cameras, gates := s.registry.Counts()
	writeSuccess(w, http.StatusOK, envelope{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"cameras":        cameras,
		"gates":          gates,
		"ws_clients":     s.hub.ClientCount(),
	})
}
