package dashboard

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/config"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/database"
	"github.com/nerrad567/gatekeeper-core/migrations"
)

type staticViewer struct {
	inv   device.Inventory
	views int
}

func (v *staticViewer) View(fn func(device.Inventory)) {
	v.views++
	fn(v.inv)
}

type stubAudit struct {
	total  int
	err    error
	filter audit.Filter
}

func (s *stubAudit) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	s.filter = f
	if s.err != nil {
		return nil, s.err
	}
	return &audit.ListResult{Total: s.total}, nil
}

func cams(statuses ...device.CameraStatus) []device.Camera {
	out := make([]device.Camera, len(statuses))
	for i, s := range statuses {
		out[i] = device.Camera{ID: "cam-" + string(rune('a'+i)), Name: "Cam", Status: s}
	}
	return out
}

func gates(specs ...struct {
	status device.GateStatus
	online bool
}) []device.Gate {
	out := make([]device.Gate, len(specs))
	for i, s := range specs {
		out[i] = device.Gate{ID: "gate-" + string(rune('a'+i)), Name: "Gate", Status: s.status, IsOnline: s.online}
	}
	return out
}

type gs = struct {
	status device.GateStatus
	online bool
}

func TestSnapshot(t *testing.T) {
	v := &staticViewer{inv: device.Inventory{
		Cameras: cams(device.CameraOnline, device.CameraOffline, device.CameraOnline),
		Gates:   gates(gs{device.GateOpen, true}, gs{device.GateClosed, true}, gs{device.GateUnknown, false}),
	}}

	got := NewAggregator(v, nil).Snapshot()
	want := Counts{TotalCameras: 3, OnlineCameras: 2, TotalGates: 3, OpenGates: 1, OnlineGates: 2}
	if got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
	if v.views != 1 {
		t.Errorf("Snapshot() took %d views, want 1", v.views)
	}
}

func TestSnapshot_Bounds(t *testing.T) {
	invs := []device.Inventory{
		{},
		{Cameras: cams(device.CameraOffline)},
		{Gates: gates(gs{device.GateOpen, false}, gs{device.GateOpen, true})},
		{Cameras: cams(device.CameraOnline, device.CameraOnline), Gates: gates(gs{device.GateClosed, false})},
	}
	for i, inv := range invs {
		c := NewAggregator(&staticViewer{inv: inv}, nil).Snapshot()
		if c.OnlineCameras < 0 || c.OnlineCameras > c.TotalCameras ||
			c.OpenGates < 0 || c.OpenGates > c.TotalGates ||
			c.OnlineGates < 0 || c.OnlineGates > c.TotalGates {
			t.Errorf("inventory %d: counts out of bounds: %+v", i, c)
		}
	}
}

func newTestRegistry(t *testing.T) *device.Registry {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "dash.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return device.NewRegistry(device.NewSQLiteRepository(db.DB))
}

// Counts stay within bounds while gates are commanded and devices checked.
// Run with -race.
func TestSnapshot_BoundsUnderConcurrentUpdates(t *testing.T) {
	const devices = 4
	ctx := context.Background()
	reg := newTestRegistry(t)

	var camIDs, gateIDs []string
	for i := 0; i < devices; i++ {
		cam := &device.Camera{Name: fmt.Sprintf("Cam %d", i), Location: "Gate", IPAddress: "10.0.0.20"}
		if err := reg.AddCamera(ctx, cam); err != nil {
			t.Fatalf("AddCamera() error = %v", err)
		}
		camIDs = append(camIDs, cam.ID)
		g := &device.Gate{Name: fmt.Sprintf("Gate %d", i), Location: "Gate"}
		if err := reg.AddGate(ctx, g); err != nil {
			t.Fatalf("AddGate() error = %v", err)
		}
		gateIDs = append(gateIDs, g.ID)
	}

	agg := NewAggregator(reg, nil)
	stop := make(chan struct{})
	var writers sync.WaitGroup
	defer func() {
		close(stop)
		writers.Wait()
	}()
	for i := 0; i < devices; i++ {
		writers.Add(3)
		go func(id string) {
			defer writers.Done()
			for n := 0; ; n++ {
				select {
				case <-stop:
					return
				default:
				}
				action := device.ActionOpen
				if n%2 == 1 {
					action = device.ActionClose
				}
				if _, err := reg.RecordGateAction(ctx, id, device.LastAction{
					OperatorName: "alice", Action: action, Timestamp: time.Now().UTC(), Outcome: device.OutcomeSuccess,
				}); err != nil {
					t.Errorf("RecordGateAction() error = %v", err)
					return
				}
			}
		}(gateIDs[i])
		go func(id string) {
			defer writers.Done()
			for n := 0; ; n++ {
				select {
				case <-stop:
					return
				default:
				}
				status := device.CameraOnline
				if n%2 == 1 {
					status = device.CameraOffline
				}
				if _, err := reg.SetCameraStatus(ctx, id, status, time.Now().UTC()); err != nil {
					t.Errorf("SetCameraStatus() error = %v", err)
					return
				}
			}
		}(camIDs[i])
		go func(id string) {
			defer writers.Done()
			for n := 0; ; n++ {
				select {
				case <-stop:
					return
				default:
				}
				now := time.Now().UTC()
				if _, err := reg.ObserveGate(ctx, id, device.GateObservation{Online: n%2 == 0, StartedAt: now, CheckedAt: now}); err != nil {
					t.Errorf("ObserveGate() error = %v", err)
					return
				}
			}
		}(gateIDs[i])
	}

	deadline := time.Now().Add(300 * time.Millisecond)
	for reads := 0; time.Now().Before(deadline) || reads < 100; reads++ {
		c := agg.Snapshot()
		if c.TotalCameras != devices || c.TotalGates != devices ||
			c.OnlineCameras < 0 || c.OnlineCameras > c.TotalCameras ||
			c.OpenGates < 0 || c.OpenGates > c.TotalGates ||
			c.OnlineGates < 0 || c.OnlineGates > c.TotalGates {
			t.Fatalf("counts out of bounds: %+v", c)
		}
		h := agg.Health()
		if h.Cameras.Offline < 0 || h.Gates.Offline < 0 || h.HealthPercentage < 0 || h.HealthPercentage > 100 {
			t.Fatalf("health out of bounds: %+v", h)
		}
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		inv     device.Inventory
		overall string
		pct     float64
	}{
		{"empty site is healthy", device.Inventory{}, StatusHealthy, 100},
		{
			"all online",
			device.Inventory{Cameras: cams(device.CameraOnline), Gates: gates(gs{device.GateClosed, true})},
			StatusHealthy, 100,
		},
		{
			"one of four cameras offline",
			device.Inventory{
				Cameras: cams(device.CameraOnline, device.CameraOnline, device.CameraOnline, device.CameraOffline),
				Gates:   gates(gs{device.GateClosed, true}),
			},
			StatusWarning, 87.5,
		},
		{
			"exactly seventy",
			device.Inventory{
				Cameras: cams(device.CameraOnline, device.CameraOffline),
				Gates: gates(gs{device.GateClosed, true}, gs{device.GateClosed, true}, gs{device.GateClosed, true},
					gs{device.GateClosed, true}, gs{device.GateClosed, true}, gs{device.GateClosed, true},
					gs{device.GateClosed, true}, gs{device.GateClosed, true}, gs{device.GateClosed, true},
					gs{device.GateClosed, false}),
			},
			StatusWarning, 70,
		},
		{
			"everything offline",
			device.Inventory{Cameras: cams(device.CameraOffline), Gates: gates(gs{device.GateOpen, false})},
			StatusCritical, 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAggregator(&staticViewer{inv: tt.inv}, nil).Health()
			if h.Overall != tt.overall || h.HealthPercentage != tt.pct {
				t.Errorf("Health() = %s %.1f, want %s %.1f", h.Overall, h.HealthPercentage, tt.overall, tt.pct)
			}
			if h.Cameras.Online+h.Cameras.Offline != h.Cameras.Total || h.Gates.Online+h.Gates.Offline != h.Gates.Total {
				t.Errorf("class totals inconsistent: %+v", h)
			}
		})
	}
}

func TestAlerts(t *testing.T) {
	checked := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	inv := device.Inventory{
		Cameras: []device.Camera{
			{ID: "cam-1", Name: "Entrance", Status: device.CameraOffline, LastChecked: &checked},
			{ID: "cam-2", Name: "Exit", Status: device.CameraOnline},
		},
		Gates: []device.Gate{
			{ID: "gate-1", Name: "Barrier", IsOnline: false},
			{ID: "gate-2", Name: "Slider", IsOnline: true},
		},
	}

	stub := &stubAudit{total: 3}
	alerts, err := NewAggregator(&staticViewer{inv: inv}, stub).Alerts(context.Background())
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("Alerts() = %+v, want 2", alerts)
	}
	if alerts[0].Category != CategoryCamera || alerts[0].DeviceID != "cam-1" || alerts[0].Message != `Camera "Entrance" is offline` {
		t.Errorf("camera alert = %+v", alerts[0])
	}
	if alerts[0].Timestamp == nil || !alerts[0].Timestamp.Equal(checked) {
		t.Errorf("camera alert timestamp = %v", alerts[0].Timestamp)
	}
	if alerts[1].Category != CategoryGate || alerts[1].DeviceID != "gate-1" {
		t.Errorf("gate alert = %+v", alerts[1])
	}
	if stub.filter.EntityType != audit.EntityGate || stub.filter.Since.IsZero() {
		t.Errorf("audit filter = %+v", stub.filter)
	}
}

func TestAlerts_ManualOverrides(t *testing.T) {
	stub := &stubAudit{total: DefaultOverrideThreshold + 1}
	alerts, err := NewAggregator(&staticViewer{}, stub).Alerts(context.Background())
	if err != nil {
		t.Fatalf("Alerts() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].Category != CategorySecurity {
		t.Errorf("Alerts() = %+v, want one security alert", alerts)
	}

	stub.total = DefaultOverrideThreshold
	alerts, _ = NewAggregator(&staticViewer{}, stub).Alerts(context.Background())
	if len(alerts) != 0 {
		t.Errorf("Alerts() at threshold = %+v, want none", alerts)
	}
}

func TestAlerts_AuditError(t *testing.T) {
	stub := &stubAudit{err: errors.New("database is locked")}
	if _, err := NewAggregator(&staticViewer{}, stub).Alerts(context.Background()); err == nil {
		t.Error("Alerts() should surface audit errors")
	}
}
