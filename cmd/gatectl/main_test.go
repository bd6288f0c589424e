package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatekeeper-core/internal/api"
	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/auth"
	"github.com/nerrad567/gatekeeper-core/internal/dashboard"
	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/gate"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/config"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/database"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/logging"
	"github.com/nerrad567/gatekeeper-core/internal/probe"
	"github.com/nerrad567/gatekeeper-core/internal/snapshot"
	"github.com/nerrad567/gatekeeper-core/migrations"
)

type okDriver struct{}

func (okDriver) Actuate(context.Context, *device.Gate, device.Action) error { return nil }

type offlineProber struct{}

func (offlineProber) Check(_ context.Context, id string) (probe.Result, error) {
	return probe.Result{DeviceID: id, Reason: "connection refused"}, nil
}

type noSnapshots struct{}

func (noSnapshots) Capture(context.Context, string) (snapshot.Image, error) {
	return snapshot.Image{}, snapshot.ErrUnavailable
}

// testServer runs the API over a temporary database. With jwt, operator
// alice logs in with "open sesame".
func testServer(t *testing.T, jwt bool) string {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "cli.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	auditRepo := audit.NewSQLiteRepository(db.DB)

	security := config.SecurityConfig{JWT: config.JWTConfig{Enabled: jwt, Secret: "gatectl-test-secret-at-least-32-chars", AccessTokenTTL: 15}}
	var operators *auth.Directory
	if jwt {
		hash, err := auth.HashPassword("open sesame")
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		security.Operators = []config.OperatorConfig{{Name: "alice", PasswordHash: hash, Role: "admin"}}
		if operators, err = auth.NewDirectory(security.Operators); err != nil {
			t.Fatalf("NewDirectory: %v", err)
		}
	}

	srv, err := api.New(api.Deps{
		WS:        config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security:  security,
		Logger:    logging.Discard(),
		Registry:  reg,
		Prober:    offlineProber{},
		Snapshots: noSnapshots{},
		Actuator:  gate.NewActuator(reg, okDriver{}, auditRepo, nil, gate.Options{Timeout: time.Second, Source: "cli"}),
		Dashboard: dashboard.NewAggregator(reg, auditRepo),
		AuditRepo: auditRepo,
		Operators: operators,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// cli runs gatectl with a private config file and returns its output.
type cli struct {
	t       *testing.T
	server  string
	cfgFile string
}

func newCLI(t *testing.T, server string) *cli {
	return &cli{t: t, server: server, cfgFile: filepath.Join(t.TempDir(), "gatectl.yaml")}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(append([]string{"--config", c.cfgFile, "--server", c.server, "--operator", "alice"}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetErr(&out)
	err := root.ExecuteContext(c.t.Context())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run("", args...)
	if err != nil {
		c.t.Fatalf("gatectl %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestHashPassword(t *testing.T) {
	c := newCLI(t, "http://unused.invalid")
	out, err := c.run("hunter2\n", "hash-password", "--password-stdin")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out)
	ok, err := auth.VerifyPassword("hunter2", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(%q) = %v, %v", hash, ok, err)
	}

	if _, err := c.run("", "hash-password"); err == nil {
		t.Error("hash-password without a password should fail")
	}
}

func TestCamerasAndGates(t *testing.T) {
	c := newCLI(t, testServer(t, false))

	var cam device.Camera
	out := c.mustRun("--json", "cameras", "add", "--name", "North", "--location", "Main entrance", "--ip", "10.0.0.20")
	if err := json.Unmarshal([]byte(out), &cam); err != nil {
		t.Fatalf("decode camera: %v\n%s", err, out)
	}

	var g device.Gate
	out = c.mustRun("--json", "gates", "add", "--name", "Main", "--location", "Main entrance", "--camera", cam.ID)
	if err := json.Unmarshal([]byte(out), &g); err != nil {
		t.Fatalf("decode gate: %v\n%s", err, out)
	}
	if g.CameraID == nil || *g.CameraID != cam.ID {
		t.Errorf("gate camera = %v, want %s", g.CameraID, cam.ID)
	}

	if out := c.mustRun("cameras", "list"); !strings.Contains(out, "North") || !strings.Contains(out, "offline") {
		t.Errorf("cameras list:\n%s", out)
	}

	if _, err := c.run("", "cameras", "delete", cam.ID); err == nil {
		t.Error("deleting a linked camera should fail")
	}
	c.mustRun("gates", "update", g.ID, "--camera", "")
	c.mustRun("cameras", "delete", cam.ID)

	if _, err := c.run("", "gates", "update", g.ID); err == nil {
		t.Error("update with no flags should fail")
	}
	if out := c.mustRun("gates", "update", g.ID, "--type", "sliding", "--port", "8081"); !strings.Contains(out, "updated") {
		t.Errorf("gates update:\n%s", out)
	}
	if out := c.mustRun("gates", "show", g.ID); !strings.Contains(out, "sliding") || !strings.Contains(out, ":8081") {
		t.Errorf("gates show:\n%s", out)
	}

	if out := c.mustRun("gates", "test", g.ID); !strings.Contains(out, "Device is offline") {
		t.Errorf("gates test:\n%s", out)
	}
}

func TestOpenClose(t *testing.T) {
	c := newCLI(t, testServer(t, false))

	var g device.Gate
	out := c.mustRun("--json", "gates", "add", "--name", "Main", "--location", "Main entrance")
	if err := json.Unmarshal([]byte(out), &g); err != nil {
		t.Fatalf("decode gate: %v", err)
	}

	if out := c.mustRun("open", g.ID, "--reason", "Delivery"); !strings.Contains(out, "gate is open") {
		t.Errorf("open:\n%s", out)
	}
	if out := c.mustRun("open", g.ID); !strings.Contains(out, "already open") {
		t.Errorf("second open:\n%s", out)
	}
	c.mustRun("close", g.ID)

	out = c.mustRun("gates", "history", g.ID)
	if !strings.Contains(out, "3 of 3 entries") || !strings.Contains(out, "Delivery") {
		t.Errorf("history:\n%s", out)
	}

	out = c.mustRun("audit", "--action", "close", "--since", "1h")
	if !strings.Contains(out, "1 of 1 entries") {
		t.Errorf("audit:\n%s", out)
	}

	out = c.mustRun("dashboard")
	if !strings.Contains(out, "Gates:   0/1 online, 0 open") || !strings.Contains(out, "offline") {
		t.Errorf("dashboard:\n%s", out)
	}

	if out := c.mustRun("dashboard", "activity"); !strings.Contains(out, "close") {
		t.Errorf("activity:\n%s", out)
	}
}

func TestSnapshot_Unavailable(t *testing.T) {
	c := newCLI(t, testServer(t, false))
	var cam device.Camera
	out := c.mustRun("--json", "cameras", "add", "--name", "North", "--location", "Gate", "--ip", "10.0.0.20")
	if err := json.Unmarshal([]byte(out), &cam); err != nil {
		t.Fatalf("decode camera: %v", err)
	}

	file := filepath.Join(t.TempDir(), "snap.jpg")
	if _, err := c.run("", "cameras", "snapshot", cam.ID, "-o", file); err == nil {
		t.Fatal("snapshot should fail when the camera is unavailable")
	}
	if _, err := os.Stat(file); !errors.Is(err, fs.ErrNotExist) {
		t.Error("no file should be written on failure")
	}
}

func TestLogin_SavesToken(t *testing.T) {
	c := newCLI(t, testServer(t, true))

	if _, err := c.run("", "gates", "list"); err == nil {
		t.Fatal("gates list without a token should fail")
	}
	if _, err := c.run("wrong\n", "login", "-u", "alice", "--password-stdin"); err == nil {
		t.Fatal("login with a bad password should fail")
	}

	out, err := c.run("open sesame\n", "login", "-u", "alice", "--password-stdin")
	if err != nil {
		t.Fatalf("login: %v\n%s", err, out)
	}
	saved, err := os.ReadFile(c.cfgFile)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(saved), "token:") {
		t.Errorf("config file = %q, want a token", saved)
	}

	c.mustRun("gates", "list")
}

func TestServerFromEnvironment(t *testing.T) {
	url := testServer(t, false)
	t.Setenv("GATEKEEPER_API_URL", url)

	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "health"})
	if err := root.ExecuteContext(t.Context()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.HasPrefix(out.String(), "ok (version test") {
		t.Errorf("health = %q", out.String())
	}
}

func TestReadSecret(t *testing.T) {
	tests := []struct {
		name      string
		stdin     string
		flag      string
		fromStdin bool
		want      string
		wantErr   bool
	}{
		{"flag", "", "pw", false, "pw", false},
		{"missing", "", "", false, "", true},
		{"stdin line", "pw\r\nrest\n", "", true, "pw", false},
		{"stdin without newline", "pw", "", true, "pw", false},
		{"empty stdin", "", "", true, "", true},
		{"stdin wins over flag", "from-stdin\n", "from-flag", true, "from-stdin", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readSecret(strings.NewReader(tt.stdin), tt.flag, tt.fromStdin)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChangedFields(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	addGateFlags(cmd)
	if err := cmd.ParseFlags([]string{"--port", "8081", "--camera", "", "--name", "Main"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	got := changedFields(cmd, gateFlags)
	want := map[string]any{"controller_port": 8081, "camera_id": "", "name": "Main"}
	if len(got) != len(want) {
		t.Fatalf("fields = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %#v, want %#v", k, got[k], v)
		}
	}
}
