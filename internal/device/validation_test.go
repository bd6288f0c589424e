package device

import (
	"errors"
	"regexp"
	"testing"
)

func TestValidateCamera(t *testing.T) {
	valid := func() *Camera {
		c := &Camera{Name: "Entrance ANPR", Location: "Gate 1", IPAddress: "10.0.0.5"}
		ApplyCameraDefaults(c)
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Camera)
		wantErr bool
	}{
		{"valid", func(_ *Camera) {}, false},
		{"ipv6", func(c *Camera) { c.IPAddress = "fe80::1" }, false},
		{"https snapshot url", func(c *Camera) { c.SnapshotURL = "https://10.0.0.5/snap.jpg" }, false},
		{"nil name", func(c *Camera) { c.Name = "" }, true},
		{"long name", func(c *Camera) { c.Name = string(make([]byte, maxNameLength+1)) }, true},
		{"missing ip", func(c *Camera) { c.IPAddress = "" }, true},
		{"port zero after defaults", func(c *Camera) { c.Port = 0 }, true},
		{"ftp snapshot url", func(c *Camera) { c.SnapshotURL = "ftp://10.0.0.5/snap.jpg" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := ValidateCamera(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCamera() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("error %v does not match ErrValidation", err)
			}
		})
	}
}

func TestApplyGateDefaults(t *testing.T) {
	empty := "  "
	g := &Gate{Name: " Main Barrier ", Location: "Gate 1", CameraID: &empty}
	ApplyGateDefaults(g)

	if g.Name != "Main Barrier" {
		t.Errorf("Name = %q, want trimmed", g.Name)
	}
	if g.GateType != GateTypeBarrier || g.ControlMethod != ControlHTTP || g.ControllerPort != DefaultPort {
		t.Errorf("defaults = %+v", g)
	}
	if g.CameraID != nil {
		t.Error("blank camera_id should be cleared")
	}
	if err := ValidateGate(g); err != nil {
		t.Errorf("ValidateGate() error = %v", err)
	}
}

func TestNewIDs(t *testing.T) {
	camRe := regexp.MustCompile(`^cam-[0-9a-f]{8}$`)
	gateRe := regexp.MustCompile(`^gate-[0-9a-f]{8}$`)

	seen := make(map[string]bool)
	for range 100 {
		id := NewCameraID()
		if !camRe.MatchString(id) {
			t.Fatalf("NewCameraID() = %q", id)
		}
		seen[id] = true
	}
	if len(seen) < 99 {
		t.Errorf("NewCameraID() produced %d unique ids out of 100", len(seen))
	}
	if id := NewGateID(); !gateRe.MatchString(id) {
		t.Errorf("NewGateID() = %q", id)
	}
}

func TestActionTarget(t *testing.T) {
	if ActionOpen.Target() != GateOpen || ActionClose.Target() != GateClosed {
		t.Error("Action.Target() mismatch")
	}
	if !GateUnknown.Valid() || GateStatus("ajar").Valid() {
		t.Error("GateStatus.Valid() mismatch")
	}
}
