package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gatekeeper-core/internal/device"
)

// cameraRequest is the body of POST /camera/add.
type cameraRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	IPAddress   string `json:"ip_address"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	SnapshotURL string `json:"snapshot_url"`
}

// cameraPatch is the body of PUT /camera/{id}/update. Only fields that are
// present change.
type cameraPatch struct {
	Name        *string `json:"name"`
	Location    *string `json:"location"`
	IPAddress   *string `json:"ip_address"`
	Port        *int    `json:"port"`
	Username    *string `json:"username"`
	Password    *string `json:"password"`
	SnapshotURL *string `json:"snapshot_url"`
}

func (p cameraPatch) apply(c *device.Camera) {
	setString(&c.Name, p.Name)
	setString(&c.Location, p.Location)
	setString(&c.IPAddress, p.IPAddress)
	if p.Port != nil {
		c.Port = *p.Port
	}
	setString(&c.Username, p.Username)
	setString(&c.Password, p.Password)
	setString(&c.SnapshotURL, p.SnapshotURL)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// cameraID reads {id} and rejects IDs that cannot be cameras.
func cameraID(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	return id, strings.HasPrefix(id, device.CameraIDPrefix)
}

func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := s.registry.ListCameras(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"cameras": cameras, "count": len(cameras)})
}

func (s *Server) handleAddCamera(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cam := &device.Camera{
		Name:        req.Name,
		Location:    req.Location,
		IPAddress:   req.IPAddress,
		Port:        req.Port,
		Username:    req.Username,
		Password:    req.Password,
		SnapshotURL: req.SnapshotURL,
	}
	if err := s.registry.AddCamera(r.Context(), cam); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, envelope{
		"id":      cam.ID,
		"camera":  cam,
		"message": "Camera added successfully",
	})
}

func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := cameraID(r)
	if !ok {
		writeNotFound(w, "camera not found")
		return
	}
	cam, err := s.registry.GetCamera(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"camera": cam})
}

func (s *Server) handleUpdateCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := cameraID(r)
	if !ok {
		writeNotFound(w, "camera not found")
		return
	}

	var patch cameraPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cam, err := s.registry.GetCamera(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	patch.apply(cam)
	if err := s.registry.UpdateCamera(r.Context(), cam); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"camera":  cam,
		"message": "Camera updated successfully",
	})
}

func (s *Server) handleDeleteCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := cameraID(r)
	if !ok {
		writeNotFound(w, "camera not found")
		return
	}
	if err := s.registry.DeleteCamera(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"message": "Camera deleted successfully"})
}

// handleCameraSnapshot returns the current still as a base64 data URI.
func (s *Server) handleCameraSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := cameraID(r)
	if !ok {
		writeNotFound(w, "camera not found")
		return
	}
	img, err := s.snapshots.Capture(r.Context(), id)
	if err != nil {
		if !errors.Is(err, device.ErrNotFound) {
			s.logger.Warn("snapshot failed", "camera_id", id, "error", err)
		}
		s.writeDomainError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{
		"image":        img.DataURI(),
		"content_type": img.ContentType,
		"timestamp":    img.CapturedAt,
	})
}

// handleTestCamera probes the camera now and returns the observation.
func (s *Server) handleTestCamera(w http.ResponseWriter, r *http.Request) {
	id, ok := cameraID(r)
	if !ok {
		writeNotFound(w, "camera not found")
		return
	}
	s.writeProbe(w, r, id)
}

func (s *Server) writeProbe(w http.ResponseWriter, r *http.Request, id string) {
	res, err := s.prober.Check(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	message := "Device is online"
	if !res.IsOnline {
		message = "Device is offline"
	}
	writeSuccess(w, http.StatusOK, envelope{
		"result":     res,
		"is_online":  res.IsOnline,
		"latency_ms": res.Latency.Milliseconds(),
		"message":    message,
	})
}
