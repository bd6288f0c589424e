package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/config"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/database"
	"github.com/nerrad567/gatekeeper-core/migrations"
)

func newTestRegistry(t *testing.T) *device.Registry {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "probe.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return device.NewRegistry(device.NewSQLiteRepository(db.DB))
}

// fakeCamera answers the ISAPI status endpoint with a fixed code.
func fakeCamera(t *testing.T, code int, hits *atomic.Int32) (string, int) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != cameraStatusPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)

	host, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return host, p
}

func addCamera(t *testing.T, reg *device.Registry, name, ip string, port int) *device.Camera {
	t.Helper()
	c := &device.Camera{Name: name, Location: "Entrance", IPAddress: ip, Port: port, Username: "admin", Password: "pw"}
	if err := reg.AddCamera(context.Background(), c); err != nil {
		t.Fatalf("AddCamera() error = %v", err)
	}
	return c
}

func addGate(t *testing.T, reg *device.Registry, name string) *device.Gate {
	t.Helper()
	g := &device.Gate{Name: name, Location: "Entrance", ControllerIP: "10.0.0.5"}
	if err := reg.AddGate(context.Background(), g); err != nil {
		t.Fatalf("AddGate() error = %v", err)
	}
	return g
}

// stubGates answers controller status queries.
type stubGates struct {
	status device.GateStatus
	err    error
	calls  atomic.Int32
	hook   func()
}

func (s *stubGates) Status(context.Context, *device.Gate) (device.GateStatus, error) {
	s.calls.Add(1)
	if s.hook != nil {
		s.hook()
	}
	return s.status, s.err
}

func TestCheck_Camera(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		wantOnline bool
	}{
		{"ok", http.StatusOK, true},
		{"unauthorised is still reachable", http.StatusUnauthorized, true},
		{"server error", http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry(t)
			host, port := fakeCamera(t, tt.code, nil)
			cam := addCamera(t, reg, "Cam "+tt.name, host, port)

			res, err := New(reg, nil, Options{Timeout: time.Second}).Check(context.Background(), cam.ID)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if res.IsOnline != tt.wantOnline || res.Kind != KindCamera {
				t.Errorf("Check() = %+v, want online=%v", res, tt.wantOnline)
			}

			got, _ := reg.GetCamera(context.Background(), cam.ID)
			wantStatus := device.CameraOffline
			if tt.wantOnline {
				wantStatus = device.CameraOnline
			}
			if got.Status != wantStatus || got.LastChecked == nil {
				t.Errorf("camera status = %q last_checked = %v", got.Status, got.LastChecked)
			}
		})
	}
}

func TestCheck_CameraUnreachable(t *testing.T) {
	reg := newTestRegistry(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cam := addCamera(t, reg, "Dead cam", "127.0.0.1", port)
	res, err := New(reg, nil, Options{Timeout: 500 * time.Millisecond}).Check(context.Background(), cam.ID)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.IsOnline || res.Reason == "" {
		t.Errorf("Check() = %+v, want offline with reason", res)
	}
}

func TestCheck_NotFound(t *testing.T) {
	p := New(newTestRegistry(t), nil, Options{})
	for _, id := range []string{"cam-00000000", "gate-00000000", "garbage"} {
		if _, err := p.Check(context.Background(), id); !errors.Is(err, device.ErrNotFound) {
			t.Errorf("Check(%q) = %v, want ErrNotFound", id, err)
		}
	}
}

func TestCheck_GateReconciles(t *testing.T) {
	reg := newTestRegistry(t)
	g := addGate(t, reg, "North barrier")

	gates := &stubGates{status: device.GateOpen}
	res, err := New(reg, gates, Options{}).Check(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.IsOnline || res.ObservedStatus != device.GateOpen {
		t.Errorf("Check() = %+v", res)
	}

	got, _ := reg.GetGate(context.Background(), g.ID)
	if got.Status != device.GateOpen || !got.IsOnline {
		t.Errorf("gate = status %q online %v, want open/online", got.Status, got.IsOnline)
	}
}

func TestCheck_GateFailureKeepsStatus(t *testing.T) {
	reg := newTestRegistry(t)
	g := addGate(t, reg, "South barrier")
	ctx := context.Background()

	if _, err := reg.RecordGateAction(ctx, g.ID, device.LastAction{
		OperatorName: "alice", Action: device.ActionOpen, Timestamp: time.Now().UTC(), Outcome: device.OutcomeSuccess,
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)

	res, err := New(reg, &stubGates{err: errors.New("connection refused")}, Options{}).Check(ctx, g.ID)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if res.IsOnline {
		t.Error("Check() reported online for failing controller")
	}

	got, _ := reg.GetGate(ctx, g.ID)
	if got.Status != device.GateOpen {
		t.Errorf("status = %q, want open preserved", got.Status)
	}
	if got.IsOnline {
		t.Error("is_online should be false after failed probe")
	}
}

func TestCheck_StaleProbeDoesNotOverwriteActuation(t *testing.T) {
	reg := newTestRegistry(t)
	g := addGate(t, reg, "East gate")
	ctx := context.Background()

	// The actuation completes while the probe is waiting on the controller,
	// which then reports the pre-actuation state.
	gates := &stubGates{status: device.GateClosed}
	gates.hook = func() {
		_, err := reg.RecordGateAction(ctx, g.ID, device.LastAction{
			OperatorName: "bob", Action: device.ActionOpen, Timestamp: time.Now().UTC().Add(time.Millisecond), Outcome: device.OutcomeSuccess,
		})
		if err != nil {
			t.Errorf("RecordGateAction() error = %v", err)
		}
	}

	if _, err := New(reg, gates, Options{}).Check(ctx, g.ID); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	got, _ := reg.GetGate(ctx, g.ID)
	if got.Status != device.GateOpen {
		t.Errorf("status = %q, want open from the later actuation", got.Status)
	}
	if got.LastChecked == nil {
		t.Error("last_checked should still advance")
	}
}

func TestCheck_Coalesces(t *testing.T) {
	reg := newTestRegistry(t)
	g := addGate(t, reg, "West gate")

	release := make(chan struct{})
	gates := &stubGates{status: device.GateClosed}
	gates.hook = func() { <-release }
	p := New(reg, gates, Options{})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Result, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = p.Check(context.Background(), g.ID)
		}()
	}

	// Give every caller time to join the in-flight probe.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := gates.calls.Load(); n != 1 {
		t.Errorf("controller queried %d times, want 1", n)
	}
	for i, r := range results {
		if r.DeviceID != g.ID || !r.IsOnline {
			t.Errorf("caller %d result = %+v", i, r)
		}
	}
}

func TestCheck_CallerCancelDoesNotAbortProbe(t *testing.T) {
	reg := newTestRegistry(t)
	host, port := fakeCamera(t, http.StatusOK, nil)
	cam := addCamera(t, reg, "Gatehouse", host, port)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(reg, nil, Options{Timeout: time.Second}).Check(ctx, cam.ID)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !res.IsOnline {
		t.Errorf("Check() = %+v, want online", res)
	}
}

func TestCheckAll(t *testing.T) {
	reg := newTestRegistry(t)
	var hits atomic.Int32
	host, port := fakeCamera(t, http.StatusOK, &hits)
	addCamera(t, reg, "Cam A", host, port)
	addCamera(t, reg, "Cam B", host, port)
	addGate(t, reg, "Gate A")

	var observed atomic.Int32
	p := New(reg, &stubGates{status: device.GateClosed}, Options{Parallelism: 2})
	p.SetObserver(func(Result) { observed.Add(1) })

	results, err := p.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("CheckAll() returned %d results, want 3", len(results))
	}
	if results[0].Kind != KindCamera || results[2].Kind != KindGate {
		t.Errorf("results not ordered by kind: %+v", results)
	}
	if hits.Load() != 2 {
		t.Errorf("camera endpoint hit %d times, want 2", hits.Load())
	}
	if observed.Load() != 3 {
		t.Errorf("observer called %d times, want 3", observed.Load())
	}
}

func TestCheckAll_Cancelled(t *testing.T) {
	reg := newTestRegistry(t)
	addGate(t, reg, "Gate A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(reg, &stubGates{}, Options{}).CheckAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("CheckAll() = %v, want context.Canceled", err)
	}
}
