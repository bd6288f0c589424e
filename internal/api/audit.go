package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
)

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - action: open or close
//   - entity_type: gate or camera
//   - entity_id: a specific device
//   - operator: operator name
//   - outcome: success, noop, failure, busy, denied, not_found
//   - since: RFC 3339 timestamp
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Operator:   q.Get("operator"),
		Outcome:    q.Get("outcome"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	applyPaging(r, &filter)

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"logs":   result.Logs,
		"total":  result.Total,
		"limit":  result.Limit,
		"offset": result.Offset,
	})
}
