package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/gate"
)

// gateRequest is the body of POST /gate/add.
type gateRequest struct {
	Name           string               `json:"name"`
	Location       string               `json:"location"`
	ControllerIP   string               `json:"controller_ip"`
	ControllerPort int                  `json:"controller_port"`
	GateType       device.GateType      `json:"gate_type"`
	CameraID       *string              `json:"camera_id"`
	ControlMethod  device.ControlMethod `json:"control_method"`
	OpenCommand    string               `json:"open_command"`
	CloseCommand   string               `json:"close_command"`
}

// gatePatch is the body of PUT /gate/{id}/update. Only fields that are
// present change; an empty camera_id unlinks the camera.
type gatePatch struct {
	Name           *string               `json:"name"`
	Location       *string               `json:"location"`
	ControllerIP   *string               `json:"controller_ip"`
	ControllerPort *int                  `json:"controller_port"`
	GateType       *device.GateType      `json:"gate_type"`
	CameraID       *string               `json:"camera_id"`
	ControlMethod  *device.ControlMethod `json:"control_method"`
	OpenCommand    *string               `json:"open_command"`
	CloseCommand   *string               `json:"close_command"`
}

func (p gatePatch) apply(g *device.Gate) {
	setString(&g.Name, p.Name)
	setString(&g.Location, p.Location)
	setString(&g.ControllerIP, p.ControllerIP)
	if p.ControllerPort != nil {
		g.ControllerPort = *p.ControllerPort
	}
	if p.GateType != nil {
		g.GateType = *p.GateType
	}
	if p.CameraID != nil {
		id := *p.CameraID
		g.CameraID = &id
	}
	if p.ControlMethod != nil {
		g.ControlMethod = *p.ControlMethod
	}
	setString(&g.OpenCommand, p.OpenCommand)
	setString(&g.CloseCommand, p.CloseCommand)
}

// actionRequest is the body of POST /gate/{id}/open and /close.
type actionRequest struct {
	OperatorName string `json:"operator_name"`
	Reason       string `json:"reason"`
}

func gateID(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	return id, strings.HasPrefix(id, device.GateIDPrefix)
}

func (s *Server) handleListGates(w http.ResponseWriter, r *http.Request) {
	gates, err := s.registry.ListGates(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"gates": gates, "count": len(gates)})
}

func (s *Server) handleAddGate(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	g := &device.Gate{
		Name:           req.Name,
		Location:       req.Location,
		ControllerIP:   req.ControllerIP,
		ControllerPort: req.ControllerPort,
		GateType:       req.GateType,
		CameraID:       req.CameraID,
		ControlMethod:  req.ControlMethod,
		OpenCommand:    req.OpenCommand,
		CloseCommand:   req.CloseCommand,
	}
	if err := s.registry.AddGate(r.Context(), g); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, envelope{
		"id":      g.ID,
		"gate":    g,
		"message": "Gate added successfully",
	})
}

func (s *Server) handleGetGate(w http.ResponseWriter, r *http.Request) {
	id, ok := gateID(r)
	if !ok {
		writeNotFound(w, "gate not found")
		return
	}
	g, err := s.registry.GetGate(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"gate": g})
}

// handleGateStatus returns the believed position without probing.
func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := gateID(r)
	if !ok {
		writeNotFound(w, "gate not found")
		return
	}
	g, err := s.registry.GetGate(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{
		"gate_id":           g.ID,
		"gate_status":       g.Status,
		"is_online":         g.IsOnline,
		"status_updated_at": g.StatusUpdatedAt,
		"last_action":       g.LastAction,
	})
}

func (s *Server) handleUpdateGate(w http.ResponseWriter, r *http.Request) {
	id, ok := gateID(r)
	if !ok {
		writeNotFound(w, "gate not found")
		return
	}

	var patch gatePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	g, err := s.registry.GetGate(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	patch.apply(g)
	if err := s.registry.UpdateGate(r.Context(), g); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"gate":    g,
		"message": "Gate updated successfully",
	})
}

func (s *Server) handleDeleteGate(w http.ResponseWriter, r *http.Request) {
	id, ok := gateID(r)
	if !ok {
		writeNotFound(w, "gate not found")
		return
	}
	if err := s.registry.DeleteGate(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if f, ok := s.actuator.(interface{ Forget(string) }); ok {
		f.Forget(id)
	}
	writeSuccess(w, http.StatusOK, envelope{"message": "Gate deleted successfully"})
}

func (s *Server) handleOpenGate(w http.ResponseWriter, r *http.Request) {
	s.handleGateAction(w, r, device.ActionOpen)
}

func (s *Server) handleCloseGate(w http.ResponseWriter, r *http.Request) {
	s.handleGateAction(w, r, device.ActionClose)
}

// handleGateAction runs an open or close. With JWT enabled the operator is
// the token's subject; otherwise it is taken from the body.
func (s *Server) handleGateAction(w http.ResponseWriter, r *http.Request, action device.Action) {
	id, ok := gateID(r)
	if !ok {
		writeNotFound(w, "gate not found")
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	operator := strings.TrimSpace(req.OperatorName)
	if op, ok := operatorFromContext(r.Context()); ok {
		operator = op.Name
	}

	var (
		res gate.ActionResult
		err error
	)
	if action == device.ActionOpen {
		res, err = s.actuator.Open(r.Context(), id, operator, req.Reason)
	} else {
		res, err = s.actuator.Close(r.Context(), id, operator)
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"gate_status": res.GateStatus,
		"result":      res,
		"gate":        res.Gate,
		"message":     res.Message,
	})
}

func (s *Server) handleTestGate(w http.ResponseWriter, r *http.Request) {
	id, ok := gateID(r)
	if !ok {
		writeNotFound(w, "gate not found")
		return
	}
	s.writeProbe(w, r, id)
}

// handleGateActions lists the audit history of one gate, newest first.
func (s *Server) handleGateActions(w http.ResponseWriter, r *http.Request) {
	id, ok := gateID(r)
	if !ok {
		writeNotFound(w, "gate not found")
		return
	}
	if _, err := s.registry.GetGate(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	filter := audit.Filter{EntityType: audit.EntityGate, EntityID: id}
	applyPaging(r, &filter)
	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list gate actions", "gate_id", id, "error", err)
		writeInternalError(w, "failed to list gate actions")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{
		"actions": result.Logs,
		"total":   result.Total,
		"limit":   result.Limit,
		"offset":  result.Offset,
	})
}

// applyPaging reads limit and offset query parameters, ignoring junk.
func applyPaging(r *http.Request, f *audit.Filter) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}
}
