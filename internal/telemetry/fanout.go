package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/gate"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/gatekeeper-core/internal/probe"
)

// queueSize is the event buffer. Events beyond it are dropped so a slow
// broker never holds up an actuation.
const queueSize = 256

// WebSocket channels.
const (
	ChannelGateAction  = "gate.action"
	ChannelGateState   = "gate.state"
	ChannelCameraState = "camera.state"
)

// StatePublisher publishes retained device state. *mqtt.Client satisfies it.
type StatePublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Broadcaster pushes events to WebSocket subscribers. *api.Hub satisfies it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Recorder writes time-series samples. *influxdb.Client satisfies it.
type Recorder interface {
	WriteGateAction(s influxdb.GateActionSample)
	WriteProbe(s influxdb.ProbeSample)
}

// Counters updates Prometheus metrics. *metrics.Metrics satisfies it.
type Counters interface {
	ObserveGateAction(action, outcome, method string, d time.Duration)
	ObserveProbe(kind string, online bool, latency time.Duration)
}

// Devices reads authoritative device state after a probe.
// *device.Registry satisfies it.
type Devices interface {
	GetCamera(ctx context.Context, id string) (*device.Camera, error)
	GetGate(ctx context.Context, id string) (*device.Gate, error)
}

// Logger is the logging dependency.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Sinks lists the outputs. Leave a field nil to disable it; never assign
// a typed nil pointer.
type Sinks struct {
	MQTT    StatePublisher
	Hub     Broadcaster
	Influx  Recorder
	Metrics Counters
	Devices Devices
}

// GateState is the retained payload on gatekeeper/state/gate/{id}.
type GateState struct {
	GateID     string             `json:"gate_id"`
	Status     device.GateStatus  `json:"status"`
	IsOnline   bool               `json:"is_online"`
	LastAction *device.LastAction `json:"last_action,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// CameraState is the retained payload on gatekeeper/state/camera/{id}.
type CameraState struct {
	CameraID  string              `json:"camera_id"`
	Status    device.CameraStatus `json:"status"`
	CheckedAt time.Time           `json:"checked_at"`
}

// GateAction is the WebSocket payload for a completed actuation attempt.
type GateAction struct {
	GateID     string            `json:"gate_id"`
	Action     device.Action     `json:"action"`
	Operator   string            `json:"operator,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Outcome    string            `json:"outcome"`
	GateStatus device.GateStatus `json:"gate_status,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// event is either a gate action or a probe result.
type event struct {
	action *gate.Event
	probe  *probe.Result
}

// Fanout delivers gate actions and probe results to every configured sink.
// Metrics are updated inline; everything that does I/O runs on the Run
// goroutine.
type Fanout struct {
	sinks  Sinks
	topics mqtt.Topics
	events chan event
	logger Logger
}

// New creates a Fanout. Call Run to start delivery.
func New(sinks Sinks) *Fanout {
	return &Fanout{
		sinks:  sinks,
		events: make(chan event, queueSize),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (f *Fanout) SetLogger(logger Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// GateActionCompleted implements gate.Notifier.
func (f *Fanout) GateActionCompleted(ev gate.Event) {
	if f.sinks.Metrics != nil {
		f.sinks.Metrics.ObserveGateAction(string(ev.Action), ev.Outcome, string(ev.Method), ev.Duration)
	}
	f.enqueue(event{action: &ev})
}

// ProbeCompleted receives probe results; pass it to probe.Prober.SetObserver.
func (f *Fanout) ProbeCompleted(r probe.Result) {
	if f.sinks.Metrics != nil {
		f.sinks.Metrics.ObserveProbe(string(r.Kind), r.IsOnline, r.Latency)
	}
	f.enqueue(event{probe: &r})
}

func (f *Fanout) enqueue(ev event) {
	select {
	case f.events <- ev:
	default:
		f.logger.Warn("telemetry queue full, dropping event")
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// left.
func (f *Fanout) Run(ctx context.Context) {
	for {
		select {
		case ev := <-f.events:
			f.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-f.events:
					f.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (f *Fanout) deliver(ev event) {
	switch {
	case ev.action != nil:
		f.deliverAction(*ev.action)
	case ev.probe != nil:
		f.deliverProbe(*ev.probe)
	}
}

func (f *Fanout) deliverAction(ev gate.Event) {
	if f.sinks.Influx != nil {
		f.sinks.Influx.WriteGateAction(influxdb.GateActionSample{
			GateID:   ev.GateID,
			Action:   string(ev.Action),
			Outcome:  ev.Outcome,
			Method:   string(ev.Method),
			Duration: ev.Duration,
			At:       ev.At,
		})
	}

	msg := GateAction{
		GateID:    ev.GateID,
		Action:    ev.Action,
		Operator:  ev.Operator,
		Reason:    ev.Reason,
		Outcome:   ev.Outcome,
		Timestamp: ev.At,
	}
	if ev.Gate != nil {
		msg.GateStatus = ev.Gate.Status
	}
	if f.sinks.Hub != nil {
		f.sinks.Hub.Broadcast(ChannelGateAction, msg)
	}

	if ev.Gate != nil {
		f.publishGate(ev.Gate)
	}
}

func (f *Fanout) deliverProbe(r probe.Result) {
	if f.sinks.Influx != nil {
		f.sinks.Influx.WriteProbe(influxdb.ProbeSample{
			DeviceType: string(r.Kind),
			DeviceID:   r.DeviceID,
			Online:     r.IsOnline,
			Status:     string(r.ObservedStatus),
			Latency:    r.Latency,
			At:         r.CheckedAt,
		})
	}

	if f.sinks.Devices == nil {
		return
	}
	ctx := context.Background()
	switch r.Kind {
	case probe.KindGate:
		g, err := f.sinks.Devices.GetGate(ctx, r.DeviceID)
		if err != nil {
			f.logger.Debug("gate vanished before publishing state", "gate_id", r.DeviceID, "error", err)
			return
		}
		f.publishGate(g)
	case probe.KindCamera:
		c, err := f.sinks.Devices.GetCamera(ctx, r.DeviceID)
		if err != nil {
			f.logger.Debug("camera vanished before publishing state", "camera_id", r.DeviceID, "error", err)
			return
		}
		f.publishCamera(c)
	}
}

func (f *Fanout) publishGate(g *device.Gate) {
	state := GateState{
		GateID:     g.ID,
		Status:     g.Status,
		IsOnline:   g.IsOnline,
		LastAction: g.LastAction,
		UpdatedAt:  g.UpdatedAt,
	}
	if g.StatusUpdatedAt != nil {
		state.UpdatedAt = *g.StatusUpdatedAt
	}

	if f.sinks.Hub != nil {
		f.sinks.Hub.Broadcast(ChannelGateState, state)
	}
	if f.sinks.MQTT != nil {
		if err := f.sinks.MQTT.PublishJSON(f.topics.GateState(g.ID), state, true); err != nil {
			f.logger.Warn("publishing gate state", "gate_id", g.ID, "error", err)
		}
	}
}

func (f *Fanout) publishCamera(c *device.Camera) {
	state := CameraState{CameraID: c.ID, Status: c.Status}
	if c.LastChecked != nil {
		state.CheckedAt = *c.LastChecked
	}

	if f.sinks.Hub != nil {
		f.sinks.Hub.Broadcast(ChannelCameraState, state)
	}
	if f.sinks.MQTT != nil {
		if err := f.sinks.MQTT.PublishJSON(f.topics.CameraState(c.ID), state, true); err != nil {
			f.logger.Warn("publishing camera state", "camera_id", c.ID, "error", err)
		}
	}
}
