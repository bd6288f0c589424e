package api

import (
	"net/http"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
)

// recentActivityLimit is how many audit entries the activity feed shows.
const recentActivityLimit = 10

func (s *Server) handleDashboardOverview(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, envelope{"overview": s.dashboard.Snapshot()})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, envelope{"status": s.dashboard.Health()})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.dashboard.Alerts(r.Context())
	if err != nil {
		s.logger.Error("failed to build alerts", "error", err)
		writeInternalError(w, "failed to build alerts")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"alerts": alerts, "count": len(alerts)})
}

// handleRecentActivity returns the latest gate commands.
func (s *Server) handleRecentActivity(w http.ResponseWriter, r *http.Request) {
	result, err := s.auditRepo.List(r.Context(), audit.Filter{
		EntityType: audit.EntityGate,
		Limit:      recentActivityLimit,
	})
	if err != nil {
		s.logger.Error("failed to list recent activity", "error", err)
		writeInternalError(w, "failed to list recent activity")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"activities": result.Logs})
}
