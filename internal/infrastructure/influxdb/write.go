package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementGateAction = "gate_action"
	MeasurementProbe      = "device_probe"
)

// GateActionSample describes one completed gate actuation attempt.
type GateActionSample struct {
	GateID   string
	Action   string // open or close
	Outcome  string // success, noop, failure, busy, denied
	Method   string // http or mqtt; empty when no I/O happened
	Duration time.Duration
	At       time.Time
}

// ProbeSample describes one reachability probe of a camera or gate.
type ProbeSample struct {
	DeviceType string // camera or gate
	DeviceID   string
	Online     bool
	Status     string
	Latency    time.Duration
	At         time.Time
}

// WriteGateAction records a gate actuation attempt.
//
// Example:
//
//	client.WriteGateAction(influxdb.GateActionSample{
//	    GateID: "gate-1a2b3c4d", Action: "open", Outcome: "success",
//	    Method: "http", Duration: 240 * time.Millisecond, At: time.Now(),
//	})
func (c *Client) WriteGateAction(s GateActionSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(gateActionPoint(s))
}

// WriteProbe records the result of a reachability probe.
func (c *Client) WriteProbe(s ProbeSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(probePoint(s))
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func gateActionPoint(s GateActionSample) *write.Point {
	tags := map[string]string{
		"gate_id": s.GateID,
		"action":  s.Action,
		"outcome": s.Outcome,
	}
	if s.Method != "" {
		tags["method"] = s.Method
	}
	return write.NewPoint(MeasurementGateAction, tags, map[string]interface{}{
		"duration_ms": s.Duration.Milliseconds(),
		"success":     s.Outcome == "success",
	}, stamp(s.At))
}

func probePoint(s ProbeSample) *write.Point {
	fields := map[string]interface{}{
		"online":     s.Online,
		"latency_ms": s.Latency.Milliseconds(),
	}
	if s.Status != "" {
		fields["status"] = s.Status
	}
	return write.NewPoint(MeasurementProbe, map[string]string{
		"device_type": s.DeviceType,
		"device_id":   s.DeviceID,
	}, fields, stamp(s.At))
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
