package gate

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/config"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/database"
	"github.com/nerrad567/gatekeeper-core/migrations"
)

// fakeDriver records commands; block, when set, holds each command until
// it is closed.
type fakeDriver struct {
	calls atomic.Int32
	err   error
	block chan struct{}
	start chan struct{}
}

func (d *fakeDriver) Actuate(ctx context.Context, _ *device.Gate, _ device.Action) error {
	d.calls.Add(1)
	if d.start != nil {
		d.start <- struct{}{}
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return d.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) GateActionCompleted(ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

type fixture struct {
	reg      *device.Registry
	audit    *audit.SQLiteRepository
	driver   *fakeDriver
	notifier *recordingNotifier
	act      *Actuator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "gate.db"),
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

	f := &fixture{
		reg:      device.NewRegistry(device.NewSQLiteRepository(db.DB)),
		audit:    audit.NewSQLiteRepository(db.DB),
		driver:   &fakeDriver{},
		notifier: &recordingNotifier{},
	}
	f.act = NewActuator(f.reg, f.driver, f.audit, f.notifier, Options{Timeout: time.Second})
	return f
}

// addGate registers a gate and drives it to status via a recorded action.
func (f *fixture) addGate(t *testing.T, name string, status device.GateStatus) *device.Gate {
	t.Helper()
	ctx := context.Background()
	g := &device.Gate{Name: name, Location: "Main entrance", ControllerIP: "10.0.0.9"}
	if err := f.reg.AddGate(ctx, g); err != nil {
		t.Fatalf("AddGate() error = %v", err)
	}
	if status == device.GateUnknown {
		return g
	}
	action := device.ActionOpen
	if status == device.GateClosed {
		action = device.ActionClose
	}
	if _, err := f.reg.RecordGateAction(ctx, g.ID, device.LastAction{
		OperatorName: "setup", Action: action, Timestamp: time.Now().UTC(), Outcome: device.OutcomeSuccess,
	}); err != nil {
		t.Fatalf("RecordGateAction() error = %v", err)
	}
	return g
}

func (f *fixture) auditFor(t *testing.T, gateID string) []audit.AuditLog {
	t.Helper()
	res, err := f.audit.List(context.Background(), audit.Filter{EntityID: gateID, Limit: 200})
	if err != nil {
		t.Fatalf("audit List() error = %v", err)
	}
	return res.Logs
}

func TestOpen_ThenIdempotentOpen(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "g1", device.GateClosed)
	ctx := context.Background()

	res, err := f.act.Open(ctx, g.ID, "alice", "")
	if err != nil {
		t.Fatalf("Open(alice) error = %v", err)
	}
	if res.GateStatus != device.GateOpen || res.Outcome != device.OutcomeSuccess {
		t.Errorf("Open(alice) = %+v", res)
	}
	got, _ := f.reg.GetGate(ctx, g.ID)
	if got.LastAction.OperatorName != "alice" || got.LastAction.Reason != DefaultReason {
		t.Errorf("last_action = %+v, want alice/%q", got.LastAction, DefaultReason)
	}

	res, err = f.act.Open(ctx, g.ID, "bob", "x")
	if err != nil {
		t.Fatalf("Open(bob) error = %v", err)
	}
	if res.GateStatus != device.GateOpen || res.Outcome != device.OutcomeNoop {
		t.Errorf("Open(bob) = %+v, want noop/open", res)
	}
	if n := f.driver.calls.Load(); n != 1 {
		t.Errorf("controller called %d times, want 1", n)
	}

	got, _ = f.reg.GetGate(ctx, g.ID)
	if got.LastAction.OperatorName != "bob" || got.LastAction.Outcome != device.OutcomeNoop || got.LastAction.Reason != "x" {
		t.Errorf("last_action = %+v, want bob noop", got.LastAction)
	}

	logs := f.auditFor(t, g.ID)
	if len(logs) != 2 || logs[0].Outcome != audit.OutcomeNoop || logs[1].Outcome != audit.OutcomeSuccess {
		t.Errorf("audit = %+v", logs)
	}
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "Exit", device.GateOpen)

	res, err := f.act.Close(context.Background(), g.ID, "carol")
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if res.GateStatus != device.GateClosed || res.Message != "Gate closed" {
		t.Errorf("Close() = %+v", res)
	}

	res, err = f.act.Close(context.Background(), g.ID, "carol")
	if err != nil || res.Outcome != device.OutcomeNoop {
		t.Errorf("second Close() = %+v, %v; want noop", res, err)
	}
}

func TestUnknownResolvesOnSuccess(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "Fresh", device.GateUnknown)

	res, err := f.act.Close(context.Background(), g.ID, "dave")
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if res.GateStatus != device.GateClosed || f.driver.calls.Load() != 1 {
		t.Errorf("Close() from unknown = %+v, calls %d", res, f.driver.calls.Load())
	}
}

func TestOperatorRequired(t *testing.T) {
	for _, operator := range []string{"", "   "} {
		f := newFixture(t)
		g := f.addGate(t, "Gate", device.GateClosed)

		_, err := f.act.Open(context.Background(), g.ID, operator, "delivery")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Open(%q) = %v, want ErrUnauthorized", operator, err)
		}
		if f.driver.calls.Load() != 0 {
			t.Error("controller called without operator")
		}
		got, _ := f.reg.GetGate(context.Background(), g.ID)
		if got.Status != device.GateClosed || got.LastAction.OperatorName != "setup" {
			t.Errorf("gate changed on denied request: %+v", got)
		}
		logs := f.auditFor(t, g.ID)
		if len(logs) != 1 || logs[0].Outcome != audit.OutcomeDenied {
			t.Errorf("audit = %+v, want one denied entry", logs)
		}
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.act.Open(context.Background(), "gate-00000000", "alice", "")
	if !errors.Is(err, device.ErrNotFound) {
		t.Errorf("Open() = %v, want ErrNotFound", err)
	}
	logs := f.auditFor(t, "gate-00000000")
	if len(logs) != 1 || logs[0].Outcome != audit.OutcomeNotFound {
		t.Errorf("audit = %+v, want one not_found entry", logs)
	}
}

func TestHardwareFailure(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "Broken", device.GateClosed)
	f.driver.err = errors.New("relay did not respond")

	_, err := f.act.Open(context.Background(), g.ID, "alice", "visitor")
	if !errors.Is(err, ErrHardware) {
		t.Fatalf("Open() = %v, want ErrHardware", err)
	}

	got, _ := f.reg.GetGate(context.Background(), g.ID)
	if got.Status != device.GateClosed {
		t.Errorf("status = %q, want closed unchanged", got.Status)
	}
	if got.LastAction.Outcome != device.OutcomeFailure || got.LastAction.OperatorName != "alice" {
		t.Errorf("last_action = %+v, want alice failure", got.LastAction)
	}

	logs := f.auditFor(t, g.ID)
	if len(logs) != 1 || logs[0].Outcome != audit.OutcomeFailure || logs[0].Details["error"] != "relay did not respond" {
		t.Errorf("audit = %+v", logs)
	}
	if f.driver.calls.Load() != 1 {
		t.Errorf("controller called %d times, want 1 (no retry)", f.driver.calls.Load())
	}
}

func TestConcurrentActuation_Busy(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "Contended", device.GateClosed)
	f.driver.block = make(chan struct{})
	f.driver.start = make(chan struct{}, 1)

	first := make(chan error, 1)
	go func() {
		_, err := f.act.Open(context.Background(), g.ID, "alice", "")
		first <- err
	}()
	<-f.driver.start

	if !f.act.inFlight(g.ID) {
		t.Error("inFlight() = false during actuation")
	}

	_, err := f.act.Close(context.Background(), g.ID, "bob")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Close() = %v, want ErrBusy", err)
	}

	close(f.driver.block)
	if err := <-first; err != nil {
		t.Fatalf("first Open() error = %v", err)
	}

	got, _ := f.reg.GetGate(context.Background(), g.ID)
	if got.Status != device.GateOpen {
		t.Errorf("status = %q, want open", got.Status)
	}
	if f.driver.calls.Load() != 1 {
		t.Errorf("controller called %d times, want 1", f.driver.calls.Load())
	}

	outcomes := map[string]int{}
	for _, l := range f.auditFor(t, g.ID) {
		outcomes[l.Outcome]++
	}
	if outcomes[audit.OutcomeBusy] != 1 || outcomes[audit.OutcomeSuccess] != 1 {
		t.Errorf("audit outcomes = %v", outcomes)
	}
}

func TestConcurrentActuation_StatusAlwaysValid(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "Racy", device.GateClosed)
	ctx := context.Background()

	var wg sync.WaitGroup
	var applied, busy atomic.Int32
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.act.Open(ctx, g.ID, "alice", "")
			} else {
				_, err = f.act.Close(ctx, g.ID, "bob")
			}
			switch {
			case err == nil:
				applied.Add(1)
			case errors.Is(err, ErrBusy):
				busy.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if got, err := f.reg.GetGate(ctx, g.ID); err == nil && !got.Status.Valid() {
				t.Errorf("observed invalid status %q", got.Status)
			}
		}
	}()

	wg.Wait()
	close(stop)

	if applied.Load()+busy.Load() != 20 {
		t.Errorf("applied %d + busy %d != 20", applied.Load(), busy.Load())
	}
}

func TestCallerCancelDoesNotAbortDispatch(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "Detached", device.GateClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.act.Open(ctx, g.ID, "alice", "")
	if err != nil {
		t.Fatalf("Open() with cancelled caller = %v", err)
	}
	if res.GateStatus != device.GateOpen {
		t.Errorf("status = %q, want open", res.GateStatus)
	}
}

func TestDispatchTimeout(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "Slow", device.GateClosed)
	f.driver.block = make(chan struct{})
	f.act = NewActuator(f.reg, f.driver, f.audit, f.notifier, Options{Timeout: 20 * time.Millisecond})

	_, err := f.act.Open(context.Background(), g.ID, "alice", "")
	if !errors.Is(err, ErrHardware) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Open() = %v, want ErrHardware wrapping deadline", err)
	}
}

func TestNotifier(t *testing.T) {
	f := newFixture(t)
	g := f.addGate(t, "Notified", device.GateClosed)

	if _, err := f.act.Open(context.Background(), g.ID, "alice", "guest"); err != nil {
		t.Fatal(err)
	}
	f.act.Open(context.Background(), g.ID, "", "") //nolint:errcheck // denied on purpose

	if len(f.notifier.events) != 2 {
		t.Fatalf("events = %d, want 2", len(f.notifier.events))
	}
	ev := f.notifier.events[0]
	if ev.Outcome != audit.OutcomeSuccess || ev.Gate == nil || ev.Gate.Status != device.GateOpen || ev.Method != device.ControlHTTP {
		t.Errorf("success event = %+v", ev)
	}
	if f.notifier.events[1].Outcome != audit.OutcomeDenied || f.notifier.events[1].Gate != nil {
		t.Errorf("denied event = %+v", f.notifier.events[1])
	}
}

// inFlight reports whether an actuation of gateID holds its lock. Unknown
// ids are not added to the lock map.
func (a *Actuator) inFlight(gateID string) bool {
	a.mu.Lock()
	lock, ok := a.locks[gateID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	if lock.TryLock() {
		lock.Unlock()
		return false
	}
	return true
}

func TestInFlight_UnknownGate(t *testing.T) {
	f := newFixture(t)
	if f.act.inFlight("gate-00000000") {
		t.Error("inFlight() = true for an unknown gate")
	}
	if len(f.act.locks) != 0 {
		t.Errorf("locks = %d, want 0", len(f.act.locks))
	}
}

// failingRecorder stores nothing: every RecordGateAction fails.
type failingRecorder struct {
	*device.Registry
	err error
}

func (r failingRecorder) RecordGateAction(context.Context, string, device.LastAction) (*device.Gate, error) {
	return nil, r.err
}

func TestRecordFailure_StillAudited(t *testing.T) {
	tests := []struct {
		name    string
		status  device.GateStatus
		outcome string
		calls   int32
	}{
		{"already open", device.GateOpen, audit.OutcomeNoop, 0},
		{"moved", device.GateClosed, audit.OutcomeSuccess, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			g := f.addGate(t, "Main", tt.status)
			diskFull := errors.New("disk full")
			act := NewActuator(failingRecorder{Registry: f.reg, err: diskFull}, f.driver, f.audit, f.notifier, Options{Timeout: time.Second})

			_, err := act.Open(context.Background(), g.ID, "bob", "x")
			if !errors.Is(err, diskFull) {
				t.Fatalf("Open() = %v, want wrapped disk full", err)
			}
			if err == diskFull {
				t.Error("Open() returned the storage error unwrapped")
			}
			if n := f.driver.calls.Load(); n != tt.calls {
				t.Errorf("controller called %d times, want %d", n, tt.calls)
			}

			logs := f.auditFor(t, g.ID)
			if len(logs) != 1 || logs[0].Outcome != tt.outcome || logs[0].Details["error"] != "disk full" {
				t.Errorf("audit = %+v, want one %s entry", logs, tt.outcome)
			}
			f.notifier.mu.Lock()
			defer f.notifier.mu.Unlock()
			if len(f.notifier.events) != 1 || f.notifier.events[0].Outcome != tt.outcome {
				t.Errorf("events = %+v", f.notifier.events)
			}
		})
	}
}

func TestForget(t *testing.T) {
	f := newFixture(t)
	f.act.gateLock("gate-gone")
	f.act.Forget("gate-gone")
	if _, ok := f.act.locks["gate-gone"]; ok {
		t.Error("Forget() kept the lock entry")
	}
}
