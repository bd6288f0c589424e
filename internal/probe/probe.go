package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gatekeeper-core/internal/device"
)

// cameraStatusPath is the Hikvision ISAPI device status endpoint.
const cameraStatusPath = "/ISAPI/System/status"

// Defaults applied when Options leave a field zero.
const (
	DefaultTimeout     = 3 * time.Second
	DefaultParallelism = 8
)

// Kind is the class of probed device.
type Kind string

// Probed device kinds.
const (
	KindCamera Kind = "camera"
	KindGate   Kind = "gate"
)

// Result is the outcome of one probe. A failed probe is a normal result
// with IsOnline false and a Reason, never an error.
type Result struct {
	DeviceID       string            `json:"device_id"`
	Kind           Kind              `json:"kind"`
	IsOnline       bool              `json:"is_online"`
	ObservedStatus device.GateStatus `json:"observed_status,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	Latency        time.Duration     `json:"-"`
	CheckedAt      time.Time         `json:"checked_at"`
}

// Registry is the part of the device registry the prober reads and writes.
type Registry interface {
	GetCamera(ctx context.Context, id string) (*device.Camera, error)
	GetGate(ctx context.Context, id string) (*device.Gate, error)
	ListCameras(ctx context.Context) ([]device.Camera, error)
	ListGates(ctx context.Context) ([]device.Gate, error)
	SetCameraStatus(ctx context.Context, id string, status device.CameraStatus, checkedAt time.Time) (*device.Camera, error)
	ObserveGate(ctx context.Context, id string, obs device.GateObservation) (*device.Gate, error)
}

// GateStatusReader asks a gate controller for its physical state.
// *controller.Dispatcher satisfies it.
type GateStatusReader interface {
	Status(ctx context.Context, g *device.Gate) (device.GateStatus, error)
}

// Logger is the logging dependency.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Prober.
type Options struct {
	Timeout     time.Duration
	Parallelism int
}

// Prober checks camera and gate reachability and writes what it learns
// back to the registry.
//
// Concurrent checks of the same device share one in-flight probe. A probe
// is bounded by its timeout and is not cancelled when one of the waiting
// callers goes away.
type Prober struct {
	registry    Registry
	gates       GateStatusReader
	http        *resty.Client
	timeout     time.Duration
	parallelism int
	flight      singleflight.Group
	logger      Logger
	observer    func(Result)
	now         func() time.Time
}

// New creates a Prober.
func New(registry Registry, gates GateStatusReader, opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}

	r := resty.New()
	r.SetTimeout(opts.Timeout)
	r.SetHeader("User-Agent", "gatekeeper-core")

	return &Prober{
		registry:    registry,
		gates:       gates,
		http:        r,
		timeout:     opts.Timeout,
		parallelism: opts.Parallelism,
		logger:      noopLogger{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger.
func (p *Prober) SetLogger(logger Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// SetObserver registers fn to receive every completed probe result.
// Call before the prober is used.
func (p *Prober) SetObserver(fn func(Result)) {
	p.observer = fn
}

// Check probes one device by ID. Only device.ErrNotFound is returned as an
// error; unreachable devices produce an offline Result.
func (p *Prober) Check(ctx context.Context, id string) (Result, error) {
	v, err, _ := p.flight.Do(id, func() (any, error) {
		return p.check(context.WithoutCancel(ctx), id)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// CheckAll probes every registered device with bounded parallelism and
// returns the results ordered by kind then ID. Devices deleted while the
// sweep runs are skipped.
func (p *Prober) CheckAll(ctx context.Context) ([]Result, error) {
	cameras, err := p.registry.ListCameras(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cameras: %w", err)
	}
	gates, err := p.registry.ListGates(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing gates: %w", err)
	}

	ids := make([]string, 0, len(cameras)+len(gates))
	for _, c := range cameras {
		ids = append(ids, c.ID)
	}
	for _, g := range gates {
		ids = append(ids, g.ID)
	}

	results := make([]Result, len(ids))
	found := make([]bool, len(ids))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(p.parallelism)
	for i, id := range ids {
		group.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, err := p.Check(gctx, id)
			if errors.Is(err, device.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = res
			found[i] = true
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(results))
	for i, res := range results {
		if found[i] {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	return out, nil
}

func (p *Prober) check(ctx context.Context, id string) (Result, error) {
	var (
		res Result
		err error
	)
	switch {
	case strings.HasPrefix(id, device.CameraIDPrefix):
		res, err = p.checkCamera(ctx, id)
	case strings.HasPrefix(id, device.GateIDPrefix):
		res, err = p.checkGate(ctx, id)
	default:
		return Result{}, device.ErrNotFound
	}
	if err != nil {
		return Result{}, err
	}

	if p.observer != nil {
		p.observer(res)
	}
	return res, nil
}

func (p *Prober) checkCamera(ctx context.Context, id string) (Result, error) {
	cam, err := p.registry.GetCamera(ctx, id)
	if err != nil {
		return Result{}, err
	}

	started := p.now()
	online, reason := p.reachCamera(ctx, cam)
	checked := p.now()

	status := device.CameraOffline
	if online {
		status = device.CameraOnline
	}
	if _, err := p.registry.SetCameraStatus(ctx, id, status, checked); err != nil {
		// The camera may have been deleted mid-probe; report what we saw.
		if errors.Is(err, device.ErrNotFound) {
			return Result{}, err
		}
		p.logger.Warn("recording camera probe failed", "id", id, "error", err)
	}

	if !online {
		p.logger.Debug("camera unreachable", "id", id, "reason", reason)
	}
	return Result{
		DeviceID:  id,
		Kind:      KindCamera,
		IsOnline:  online,
		Reason:    reason,
		Latency:   checked.Sub(started),
		CheckedAt: checked,
	}, nil
}

// reachCamera treats any HTTP answer below 500 as online: an unauthorised
// camera is still a reachable camera.
func (p *Prober) reachCamera(ctx context.Context, cam *device.Camera) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := p.http.R().SetContext(ctx)
	if cam.Username != "" {
		req.SetBasicAuth(cam.Username, cam.Password)
	}
	url := "http://" + net.JoinHostPort(cam.IPAddress, strconv.Itoa(cam.Port)) + cameraStatusPath

	resp, err := req.Get(url)
	if err != nil {
		return false, err.Error()
	}
	if resp.StatusCode() >= 500 {
		return false, fmt.Sprintf("HTTP %d", resp.StatusCode())
	}
	return true, ""
}

func (p *Prober) checkGate(ctx context.Context, id string) (Result, error) {
	g, err := p.registry.GetGate(ctx, id)
	if err != nil {
		return Result{}, err
	}

	started := p.now()
	reported, reason := p.reachGate(ctx, g)
	checked := p.now()
	online := reason == ""

	_, err = p.registry.ObserveGate(ctx, id, device.GateObservation{
		Online:    online,
		Status:    reported,
		StartedAt: started,
		CheckedAt: checked,
	})
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return Result{}, err
		}
		p.logger.Warn("recording gate probe failed", "id", id, "error", err)
	}

	if !online {
		p.logger.Debug("gate controller unreachable", "id", id, "reason", reason)
	}
	return Result{
		DeviceID:       id,
		Kind:           KindGate,
		IsOnline:       online,
		ObservedStatus: reported,
		Reason:         reason,
		Latency:        checked.Sub(started),
		CheckedAt:      checked,
	}, nil
}

func (p *Prober) reachGate(ctx context.Context, g *device.Gate) (device.GateStatus, string) {
	if p.gates == nil {
		return "", "no controller transport"
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status, err := p.gates.Status(ctx, g)
	if err != nil {
		return "", err.Error()
	}
	return status, ""
}
