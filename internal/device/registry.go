package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// maxIDAttempts bounds retries when a freshly generated short ID collides.
const maxIDAttempts = 5

// Registry is the authoritative store of cameras and gates.
//
// It wraps a Repository with an in-memory cache. Readers take a shared lock
// and receive deep copies; every mutation persists first and then swaps the
// cached entry under the write lock, so readers see either the old or the
// new entity and never a partial one.
//
// Mutations are serialised per entity id and per (class, name) through a
// keyed mutex; unrelated devices never contend.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cameras map[string]*Camera
	gates   map[string]*Gate
	cacheMu sync.RWMutex
	keys    *keyedMutex
	now     func() time.Time
	logger  Logger
}

// NewRegistry creates a new device registry.
// Call RefreshCache before serving requests.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		cameras: make(map[string]*Camera),
		gates:   make(map[string]*Gate),
		keys:    newKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every camera and gate from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	cameras, err := r.repo.ListCameras(ctx)
	if err != nil {
		return fmt.Errorf("loading cameras: %w", err)
	}
	gates, err := r.repo.ListGates(ctx)
	if err != nil {
		return fmt.Errorf("loading gates: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cameras = make(map[string]*Camera, len(cameras))
	for i := range cameras {
		r.cameras[cameras[i].ID] = cameras[i].DeepCopy()
	}
	r.gates = make(map[string]*Gate, len(gates))
	for i := range gates {
		r.gates[gates[i].ID] = gates[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "cameras", len(cameras), "gates", len(gates))
	return nil
}

// ─── Cameras ───────────────────────────────────────────────────────────────

// AddCamera registers a new camera. The ID, status and timestamps are
// assigned by the registry; status always starts offline.
func (r *Registry) AddCamera(ctx context.Context, c *Camera) error {
	if c == nil {
		return ErrValidation
	}
	ApplyCameraDefaults(c)
	if err := ValidateCamera(c); err != nil {
		return err
	}

	unlock := r.keys.lock(cameraNameKey(c.Name))
	defer unlock()

	if r.cameraNameTaken(c.Name, "") {
		return fmt.Errorf("%w: camera %q", ErrDuplicateName, c.Name)
	}

	id, err := r.newID(NewCameraID)
	if err != nil {
		return err
	}
	now := r.now()
	c.ID = id
	c.Status = CameraOffline
	c.LastChecked = nil
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := r.repo.CreateCamera(ctx, c); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cameras[c.ID] = c.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("camera added", "id", c.ID, "name", c.Name)
	return nil
}

// GetCamera returns a copy of the camera with the given ID.
func (r *Registry) GetCamera(ctx context.Context, id string) (*Camera, error) {
	r.cacheMu.RLock()
	cached, ok := r.cameras[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	// Not cached: only possible before RefreshCache.
	c, err := r.repo.GetCamera(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCameras returns copies of all cameras ordered by name.
func (r *Registry) ListCameras(_ context.Context) ([]Camera, error) {
	r.cacheMu.RLock()
	cameras := r.copyCamerasLocked()
	r.cacheMu.RUnlock()
	return cameras, nil
}

// UpdateCamera replaces the caller-editable fields of an existing camera.
// Status and last_checked are kept. An empty password keeps the stored one.
func (r *Registry) UpdateCamera(ctx context.Context, c *Camera) error {
	if c == nil {
		return ErrValidation
	}
	ApplyCameraDefaults(c)
	if err := ValidateCamera(c); err != nil {
		return err
	}

	unlock := r.keys.lock(cameraKey(c.ID), cameraNameKey(c.Name))
	defer unlock()

	existing, ok := r.cachedCamera(c.ID)
	if !ok {
		return ErrNotFound
	}
	if r.cameraNameTaken(c.Name, c.ID) {
		return fmt.Errorf("%w: camera %q", ErrDuplicateName, c.Name)
	}

	if c.Password == "" {
		c.Password = existing.Password
	}
	c.Status = existing.Status
	c.LastChecked = copyTime(existing.LastChecked)
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = r.now()

	if err := r.repo.UpdateCamera(ctx, c); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cameras[c.ID] = c.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("camera updated", "id", c.ID, "name", c.Name)
	return nil
}

// DeleteCamera removes a camera. It fails with ErrReference while any gate
// still links to it.
func (r *Registry) DeleteCamera(ctx context.Context, id string) error {
	unlock := r.keys.lock(cameraKey(id))
	defer unlock()

	if _, ok := r.cachedCamera(id); !ok {
		return ErrNotFound
	}

	r.cacheMu.RLock()
	var linked string
	for _, g := range r.gates {
		if g.CameraID != nil && *g.CameraID == id {
			linked = g.ID
			break
		}
	}
	r.cacheMu.RUnlock()
	if linked != "" {
		return fmt.Errorf("%w: camera %s is linked to gate %s", ErrReference, id, linked)
	}

	if err := r.repo.DeleteCamera(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cameras, id)
	r.cacheMu.Unlock()

	r.logger.Info("camera deleted", "id", id)
	return nil
}

// SetCameraStatus records a probe result. Only the status probe calls this.
func (r *Registry) SetCameraStatus(ctx context.Context, id string, status CameraStatus, checkedAt time.Time) (*Camera, error) {
	unlock := r.keys.lock(cameraKey(id))
	defer unlock()

	existing, ok := r.cachedCamera(id)
	if !ok {
		return nil, ErrNotFound
	}

	if err := r.repo.UpdateCameraStatus(ctx, id, status, checkedAt); err != nil {
		return nil, err
	}

	updated := existing.DeepCopy()
	updated.Status = status
	updated.LastChecked = &checkedAt

	r.cacheMu.Lock()
	r.cameras[id] = updated
	r.cacheMu.Unlock()

	if existing.Status != status {
		r.logger.Info("camera status changed", "id", id, "from", existing.Status, "to", status)
	}
	return updated.DeepCopy(), nil
}

// ─── Gates ─────────────────────────────────────────────────────────────────

// AddGate registers a new gate. The ID, status and timestamps are assigned
// by the registry; status always starts unknown and the gate offline.
// A camera_id that names no registered camera fails with ErrReference.
func (r *Registry) AddGate(ctx context.Context, g *Gate) error {
	if g == nil {
		return ErrValidation
	}
	ApplyGateDefaults(g)
	if err := ValidateGate(g); err != nil {
		return err
	}

	unlock := r.keys.lock(gateNameKey(g.Name), cameraKey(derefString(g.CameraID)))
	defer unlock()

	if r.gateNameTaken(g.Name, "") {
		return fmt.Errorf("%w: gate %q", ErrDuplicateName, g.Name)
	}
	if err := r.checkCameraRef(g.CameraID); err != nil {
		return err
	}

	id, err := r.newID(NewGateID)
	if err != nil {
		return err
	}
	now := r.now()
	g.ID = id
	g.Status = GateUnknown
	g.IsOnline = false
	g.LastAction = nil
	g.StatusUpdatedAt = nil
	g.LastChecked = nil
	g.CreatedAt = now
	g.UpdatedAt = now

	if err := r.repo.CreateGate(ctx, g); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.gates[g.ID] = g.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("gate added", "id", g.ID, "name", g.Name, "type", g.GateType)
	return nil
}

// GetGate returns a copy of the gate with the given ID.
func (r *Registry) GetGate(ctx context.Context, id string) (*Gate, error) {
	r.cacheMu.RLock()
	cached, ok := r.gates[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	g, err := r.repo.GetGate(ctx, id)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ListGates returns copies of all gates ordered by name.
func (r *Registry) ListGates(_ context.Context) ([]Gate, error) {
	r.cacheMu.RLock()
	gates := r.copyGatesLocked()
	r.cacheMu.RUnlock()
	return gates, nil
}

// UpdateGate replaces the caller-editable fields of an existing gate.
// Status, online flag and last action are kept.
func (r *Registry) UpdateGate(ctx context.Context, g *Gate) error {
	if g == nil {
		return ErrValidation
	}
	ApplyGateDefaults(g)
	if err := ValidateGate(g); err != nil {
		return err
	}

	unlock := r.keys.lock(gateKey(g.ID), gateNameKey(g.Name), cameraKey(derefString(g.CameraID)))
	defer unlock()

	existing, ok := r.cachedGate(g.ID)
	if !ok {
		return ErrNotFound
	}
	if r.gateNameTaken(g.Name, g.ID) {
		return fmt.Errorf("%w: gate %q", ErrDuplicateName, g.Name)
	}
	if err := r.checkCameraRef(g.CameraID); err != nil {
		return err
	}

	g.Status = existing.Status
	g.IsOnline = existing.IsOnline
	g.LastAction = existing.DeepCopy().LastAction
	g.StatusUpdatedAt = copyTime(existing.StatusUpdatedAt)
	g.LastChecked = copyTime(existing.LastChecked)
	g.CreatedAt = existing.CreatedAt
	g.UpdatedAt = r.now()

	if err := r.repo.UpdateGate(ctx, g); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.gates[g.ID] = g.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("gate updated", "id", g.ID, "name", g.Name)
	return nil
}

// DeleteGate removes a gate.
func (r *Registry) DeleteGate(ctx context.Context, id string) error {
	unlock := r.keys.lock(gateKey(id))
	defer unlock()

	if _, ok := r.cachedGate(id); !ok {
		return ErrNotFound
	}
	if err := r.repo.DeleteGate(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.gates, id)
	r.cacheMu.Unlock()

	r.logger.Info("gate deleted", "id", id)
	return nil
}

// ObserveGate applies a probe observation to a gate. Only the status probe
// calls this.
//
// last_checked always advances. The online flag and a reported physical
// state are applied only when the probe started after the gate's last
// status change, so a probe that raced an actuation cannot overwrite it.
// A reported state is adopted only when it is open or closed.
func (r *Registry) ObserveGate(ctx context.Context, id string, obs GateObservation) (*Gate, error) {
	unlock := r.keys.lock(gateKey(id))
	defer unlock()

	existing, ok := r.cachedGate(id)
	if !ok {
		return nil, ErrNotFound
	}

	updated := existing.DeepCopy()
	checkedAt := obs.CheckedAt
	updated.LastChecked = &checkedAt

	stale := existing.StatusUpdatedAt != nil && !obs.StartedAt.After(*existing.StatusUpdatedAt)
	if !stale {
		updated.IsOnline = obs.Online
		if obs.Online && (obs.Status == GateOpen || obs.Status == GateClosed) && obs.Status != existing.Status {
			updated.Status = obs.Status
			updated.StatusUpdatedAt = &checkedAt
		}
	} else {
		r.logger.Debug("stale gate observation ignored", "id", id, "probe_started", obs.StartedAt)
	}

	if err := r.repo.UpdateGateState(ctx, updated); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.gates[id] = updated
	r.cacheMu.Unlock()

	if updated.Status != existing.Status {
		r.logger.Info("gate status reconciled", "id", id, "from", existing.Status, "to", updated.Status)
	}
	if updated.IsOnline != existing.IsOnline {
		r.logger.Info("gate connectivity changed", "id", id, "online", updated.IsOnline)
	}
	return updated.DeepCopy(), nil
}

// RecordGateAction stores the result of an actuation attempt. Only the gate
// actuator calls this.
//
// On success the gate moves to the action's target state and is marked
// online. A noop or failure only records last_action; status is untouched.
func (r *Registry) RecordGateAction(ctx context.Context, id string, action LastAction) (*Gate, error) {
	unlock := r.keys.lock(gateKey(id))
	defer unlock()

	existing, ok := r.cachedGate(id)
	if !ok {
		return nil, ErrNotFound
	}

	updated := existing.DeepCopy()
	la := action
	updated.LastAction = &la
	if action.Outcome == OutcomeSuccess {
		ts := action.Timestamp
		updated.Status = action.Action.Target()
		updated.IsOnline = true
		updated.StatusUpdatedAt = &ts
	}

	if err := r.repo.UpdateGateState(ctx, updated); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.gates[id] = updated
	r.cacheMu.Unlock()

	return updated.DeepCopy(), nil
}

// ─── Aggregate reads ───────────────────────────────────────────────────────

// View calls fn with a consistent copy of every camera and gate, taken
// under a single read lock. fn runs after the lock is released and may keep
// or modify the copy.
func (r *Registry) View(fn func(Inventory)) {
	r.cacheMu.RLock()
	inv := Inventory{
		Cameras: r.copyCamerasLocked(),
		Gates:   r.copyGatesLocked(),
	}
	r.cacheMu.RUnlock()
	fn(inv)
}

// Counts returns how many cameras and gates are registered.
func (r *Registry) Counts() (cameras, gates int) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cameras), len(r.gates)
}

// ─── Internals ─────────────────────────────────────────────────────────────

func (r *Registry) cachedCamera(id string) (*Camera, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	c, ok := r.cameras[id]
	return c, ok
}

func (r *Registry) cachedGate(id string) (*Gate, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	g, ok := r.gates[id]
	return g, ok
}

func (r *Registry) copyCamerasLocked() []Camera {
	cameras := make([]Camera, 0, len(r.cameras))
	for _, c := range r.cameras {
		cameras = append(cameras, *c.DeepCopy())
	}
	sort.Slice(cameras, func(i, j int) bool {
		return lessByName(cameras[i].Name, cameras[i].ID, cameras[j].Name, cameras[j].ID)
	})
	return cameras
}

func (r *Registry) copyGatesLocked() []Gate {
	gates := make([]Gate, 0, len(r.gates))
	for _, g := range r.gates {
		gates = append(gates, *g.DeepCopy())
	}
	sort.Slice(gates, func(i, j int) bool {
		return lessByName(gates[i].Name, gates[i].ID, gates[j].Name, gates[j].ID)
	})
	return gates
}

func lessByName(nameA, idA, nameB, idB string) bool {
	a, b := strings.ToLower(nameA), strings.ToLower(nameB)
	if a != b {
		return a < b
	}
	return idA < idB
}

// cameraNameTaken reports whether another camera already uses name.
func (r *Registry) cameraNameTaken(name, exceptID string) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for id, c := range r.cameras {
		if id != exceptID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// gateNameTaken reports whether another gate already uses name.
func (r *Registry) gateNameTaken(name, exceptID string) bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for id, g := range r.gates {
		if id != exceptID && strings.EqualFold(g.Name, name) {
			return true
		}
	}
	return false
}

func (r *Registry) checkCameraRef(cameraID *string) error {
	if cameraID == nil {
		return nil
	}
	if _, ok := r.cachedCamera(*cameraID); !ok {
		return fmt.Errorf("%w: camera %s does not exist", ErrReference, *cameraID)
	}
	return nil
}

func (r *Registry) newID(gen func() string) (string, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	for range maxIDAttempts {
		id := gen()
		_, camera := r.cameras[id]
		_, gate := r.gates[id]
		if !camera && !gate {
			return id, nil
		}
	}
	return "", errors.New("device: could not allocate a unique id")
}

func cameraKey(id string) string {
	if id == "" {
		return ""
	}
	return "camera:" + id
}

func gateKey(id string) string {
	if id == "" {
		return ""
	}
	return "gate:" + id
}

func cameraNameKey(name string) string { return "camera-name:" + strings.ToLower(name) }
func gateNameKey(name string) string   { return "gate-name:" + strings.ToLower(name) }
