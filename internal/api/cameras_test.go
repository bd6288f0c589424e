package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/probe"
	"github.com/nerrad567/gatekeeper-core/internal/snapshot"
)

func TestAddCamera(t *testing.T) {
	f := newFixture(t, false)

	body := `{"name":"North","location":"Main entrance","ip_address":"10.0.0.20","username":"admin","password":"hunter2"}`
	w, resp := f.do(t, http.MethodPost, "/api/camera/add", body, "")

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body: %s", w.Code, w.Body.String())
	}
	id, _ := resp["id"].(string)
	if !strings.HasPrefix(id, "cam-") {
		t.Errorf("id = %q, want cam- prefix", id)
	}
	cam := resp["camera"].(map[string]any)
	if cam["status"] != "offline" {
		t.Errorf("status = %v, want offline", cam["status"])
	}
	if cam["port"] != float64(80) {
		t.Errorf("port = %v, want default 80", cam["port"])
	}
	if strings.Contains(w.Body.String(), "hunter2") {
		t.Error("response leaked the camera password")
	}
}

func TestAddCamera_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"invalid json", `{"name":`, http.StatusBadRequest},
		{"missing name", `{"location":"Gate","ip_address":"10.0.0.1"}`, http.StatusBadRequest},
		{"bad ip", `{"name":"A","location":"Gate","ip_address":"not-an-ip"}`, http.StatusBadRequest},
		{"bad port", `{"name":"A","location":"Gate","ip_address":"10.0.0.1","port":70000}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			w, resp := f.do(t, http.MethodPost, "/api/camera/add", tt.body, "")
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if resp["success"] != false {
				t.Errorf("success = %v, want false", resp["success"])
			}
		})
	}
}

func TestListCameras_NoPasswords(t *testing.T) {
	f := newFixture(t, false)
	f.addCamera(t, "North")
	f.addCamera(t, "South")

	for _, path := range []string{"/api/camera/status", "/api/camera/list"} {
		w, resp := f.do(t, http.MethodGet, path, "", "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		if got := len(resp["cameras"].([]any)); got != 2 {
			t.Errorf("%s cameras = %d, want 2", path, got)
		}
		if strings.Contains(w.Body.String(), "secret") {
			t.Errorf("%s leaked a password", path)
		}
	}
}

func TestGetCamera(t *testing.T) {
	f := newFixture(t, false)
	cam := f.addCamera(t, "North")

	w, resp := f.do(t, http.MethodGet, "/api/camera/"+cam.ID, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["camera"].(map[string]any)["name"] != "North" {
		t.Errorf("camera = %v", resp["camera"])
	}

	for _, id := range []string{"cam-deadbeef", "gate-deadbeef"} {
		if w, _ := f.do(t, http.MethodGet, "/api/camera/"+id, "", ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", id, w.Code)
		}
	}
}

func TestUpdateCamera_Partial(t *testing.T) {
	f := newFixture(t, false)
	cam := f.addCamera(t, "North")

	w, resp := f.do(t, http.MethodPut, "/api/camera/"+cam.ID+"/update", `{"location":"Rear yard"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	got := resp["camera"].(map[string]any)
	if got["location"] != "Rear yard" || got["name"] != "North" {
		t.Errorf("camera = %v", got)
	}

	stored, err := f.reg.GetCamera(t.Context(), cam.ID)
	if err != nil {
		t.Fatalf("GetCamera: %v", err)
	}
	if stored.Password != "secret" {
		t.Error("partial update lost the stored password")
	}
}

func TestUpdateCamera_DuplicateName(t *testing.T) {
	f := newFixture(t, false)
	f.addCamera(t, "North")
	south := f.addCamera(t, "South")

	w, resp := f.do(t, http.MethodPut, "/api/camera/"+south.ID+"/update", `{"name":"north"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if resp["code"] != ErrCodeValidation {
		t.Errorf("code = %v, want %s", resp["code"], ErrCodeValidation)
	}
}

func TestDeleteCamera_Referenced(t *testing.T) {
	f := newFixture(t, false)
	cam := f.addCamera(t, "North")
	g := f.addGate(t, "Main")

	if w, _ := f.do(t, http.MethodPut, "/api/gate/"+g.ID+"/update", `{"camera_id":"`+cam.ID+`"}`, ""); w.Code != http.StatusOK {
		t.Fatalf("link camera status = %d", w.Code)
	}

	w, resp := f.do(t, http.MethodDelete, "/api/camera/"+cam.ID, "", "")
	if w.Code != http.StatusBadRequest || resp["code"] != ErrCodeReference {
		t.Errorf("delete linked camera = %d %v, want 400 reference_error", w.Code, resp["code"])
	}

	if w, _ := f.do(t, http.MethodPut, "/api/gate/"+g.ID+"/update", `{"camera_id":""}`, ""); w.Code != http.StatusOK {
		t.Fatalf("unlink camera status = %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodDelete, "/api/camera/"+cam.ID, "", ""); w.Code != http.StatusOK {
		t.Errorf("delete unlinked camera = %d, want 200", w.Code)
	}
	if w, _ := f.do(t, http.MethodDelete, "/api/camera/"+cam.ID, "", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestCameraSnapshot(t *testing.T) {
	f := newFixture(t, false)
	cam := f.addCamera(t, "North")
	captured := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.snaps.img = snapshot.Image{Data: []byte{0xff, 0xd8, 0xff}, ContentType: "image/jpeg", CapturedAt: captured}

	w, resp := f.do(t, http.MethodGet, "/api/camera/"+cam.ID+"/snapshot", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["image"] != "data:image/jpeg;base64,/9j/" {
		t.Errorf("image = %v", resp["image"])
	}
	if resp["timestamp"] != "2026-03-01T09:00:00Z" {
		t.Errorf("timestamp = %v", resp["timestamp"])
	}
}

func TestCameraSnapshot_Unavailable(t *testing.T) {
	f := newFixture(t, false)
	cam := f.addCamera(t, "North")
	f.snaps.err = snapshot.ErrUnavailable

	w, resp := f.do(t, http.MethodGet, "/api/camera/"+cam.ID+"/snapshot", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if resp["code"] != ErrCodeUnavailable {
		t.Errorf("code = %v", resp["code"])
	}
}

func TestTestCamera(t *testing.T) {
	f := newFixture(t, false)
	cam := f.addCamera(t, "North")
	f.prober.results[cam.ID] = probe.Result{
		DeviceID: cam.ID, Kind: probe.KindCamera, IsOnline: false,
		Reason: "connection refused", Latency: 40 * time.Millisecond,
	}

	w, resp := f.do(t, http.MethodPost, "/api/camera/"+cam.ID+"/test", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["is_online"] != false || resp["message"] != "Device is offline" {
		t.Errorf("body = %v", resp)
	}
	if resp["latency_ms"] != float64(40) {
		t.Errorf("latency_ms = %v, want 40", resp["latency_ms"])
	}

	if w, _ := f.do(t, http.MethodPost, "/api/camera/cam-00000000/test", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown camera test = %d, want 404", w.Code)
	}
}
