package apiclient

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/gate"
	"github.com/nerrad567/gatekeeper-core/internal/probe"
)

// CameraInput registers a camera. Zero fields take server defaults.
type CameraInput struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	IPAddress   string `json:"ip_address"`
	Port        int    `json:"port,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	SnapshotURL string `json:"snapshot_url,omitempty"`
}

// GateInput registers a gate. Zero fields take server defaults.
type GateInput struct {
	Name           string  `json:"name"`
	Location       string  `json:"location"`
	ControllerIP   string  `json:"controller_ip,omitempty"`
	ControllerPort int     `json:"controller_port,omitempty"`
	GateType       string  `json:"gate_type,omitempty"`
	CameraID       *string `json:"camera_id,omitempty"`
	ControlMethod  string  `json:"control_method,omitempty"`
	OpenCommand    string  `json:"open_command,omitempty"`
	CloseCommand   string  `json:"close_command,omitempty"`
}

// ProbeReport is the answer to a connectivity test.
type ProbeReport struct {
	Result    probe.Result `json:"result"`
	IsOnline  bool         `json:"is_online"`
	LatencyMS int64        `json:"latency_ms"`
	Message   string       `json:"message"`
}

// Snapshot is a decoded camera still.
type Snapshot struct {
	Data        []byte
	ContentType string
	Timestamp   time.Time
}

// ListCameras returns every camera.
func (c *Client) ListCameras(ctx context.Context) ([]device.Camera, error) {
	var out struct {
		Cameras []device.Camera `json:"cameras"`
	}
	err := c.do(ctx, http.MethodGet, "/camera/status", nil, &out, nil)
	return out.Cameras, err
}

// GetCamera returns one camera.
func (c *Client) GetCamera(ctx context.Context, id string) (*device.Camera, error) {
	var out struct {
		Camera *device.Camera `json:"camera"`
	}
	if err := c.do(ctx, http.MethodGet, "/camera/"+id, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Camera, nil
}

// AddCamera registers a camera and returns it with its new ID.
func (c *Client) AddCamera(ctx context.Context, in CameraInput) (*device.Camera, error) {
	var out struct {
		Camera *device.Camera `json:"camera"`
	}
	if err := c.do(ctx, http.MethodPost, "/camera/add", in, &out, nil); err != nil {
		return nil, err
	}
	return out.Camera, nil
}

// UpdateCamera applies a partial update; only keys present in fields change.
func (c *Client) UpdateCamera(ctx context.Context, id string, fields map[string]any) (*device.Camera, error) {
	var out struct {
		Camera *device.Camera `json:"camera"`
	}
	if err := c.do(ctx, http.MethodPut, "/camera/"+id+"/update", fields, &out, nil); err != nil {
		return nil, err
	}
	return out.Camera, nil
}

// DeleteCamera removes a camera.
func (c *Client) DeleteCamera(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/camera/"+id, nil, nil, nil)
}

// TestCamera probes a camera now.
func (c *Client) TestCamera(ctx context.Context, id string) (ProbeReport, error) {
	var out ProbeReport
	err := c.do(ctx, http.MethodPost, "/camera/"+id+"/test", nil, &out, nil)
	return out, err
}

// CameraSnapshot fetches and decodes the camera's current still.
func (c *Client) CameraSnapshot(ctx context.Context, id string) (Snapshot, error) {
	var out struct {
		Image       string    `json:"image"`
		ContentType string    `json:"content_type"`
		Timestamp   time.Time `json:"timestamp"`
	}
	if err := c.do(ctx, http.MethodGet, "/camera/"+id+"/snapshot", nil, &out, nil); err != nil {
		return Snapshot{}, err
	}
	_, encoded, ok := strings.Cut(out.Image, ";base64,")
	if !ok {
		return Snapshot{}, errors.New("gatekeeper: snapshot is not a base64 data URI")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Data: data, ContentType: out.ContentType, Timestamp: out.Timestamp}, nil
}

// ListGates returns every gate.
func (c *Client) ListGates(ctx context.Context) ([]device.Gate, error) {
	var out struct {
		Gates []device.Gate `json:"gates"`
	}
	err := c.do(ctx, http.MethodGet, "/gate/status", nil, &out, nil)
	return out.Gates, err
}

// GetGate returns one gate.
func (c *Client) GetGate(ctx context.Context, id string) (*device.Gate, error) {
	var out struct {
		Gate *device.Gate `json:"gate"`
	}
	if err := c.do(ctx, http.MethodGet, "/gate/"+id, nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Gate, nil
}

// AddGate registers a gate and returns it with its new ID.
func (c *Client) AddGate(ctx context.Context, in GateInput) (*device.Gate, error) {
	var out struct {
		Gate *device.Gate `json:"gate"`
	}
	if err := c.do(ctx, http.MethodPost, "/gate/add", in, &out, nil); err != nil {
		return nil, err
	}
	return out.Gate, nil
}

// UpdateGate applies a partial update; only keys present in fields change.
// An empty camera_id unlinks the camera.
func (c *Client) UpdateGate(ctx context.Context, id string, fields map[string]any) (*device.Gate, error) {
	var out struct {
		Gate *device.Gate `json:"gate"`
	}
	if err := c.do(ctx, http.MethodPut, "/gate/"+id+"/update", fields, &out, nil); err != nil {
		return nil, err
	}
	return out.Gate, nil
}

// DeleteGate removes a gate.
func (c *Client) DeleteGate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/gate/"+id, nil, nil, nil)
}

// TestGate probes a gate controller now.
func (c *Client) TestGate(ctx context.Context, id string) (ProbeReport, error) {
	var out ProbeReport
	err := c.do(ctx, http.MethodPost, "/gate/"+id+"/test", nil, &out, nil)
	return out, err
}

// ActionReply is the answer to an open or close command.
type ActionReply struct {
	GateStatus device.GateStatus `json:"gate_status"`
	Result     gate.ActionResult `json:"result"`
	Gate       *device.Gate      `json:"gate"`
	Message    string            `json:"message"`
}

// OpenGate commands a gate open. operator is ignored by servers that take
// it from the token.
func (c *Client) OpenGate(ctx context.Context, id, operator, reason string) (ActionReply, error) {
	return c.gateAction(ctx, id, "open", operator, reason)
}

// CloseGate commands a gate closed.
func (c *Client) CloseGate(ctx context.Context, id, operator string) (ActionReply, error) {
	return c.gateAction(ctx, id, "close", operator, "")
}

func (c *Client) gateAction(ctx context.Context, id, action, operator, reason string) (ActionReply, error) {
	body := map[string]string{"operator_name": operator}
	if reason != "" {
		body["reason"] = reason
	}
	var out ActionReply
	err := c.do(ctx, http.MethodPost, "/gate/"+id+"/"+action, body, &out, nil)
	return out, err
}

// Page selects a window of a list.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) query() map[string]string {
	q := map[string]string{}
	if p.Limit > 0 {
		q["limit"] = strconv.Itoa(p.Limit)
	}
	if p.Offset > 0 {
		q["offset"] = strconv.Itoa(p.Offset)
	}
	return q
}

// GateActions returns a gate's command history, newest first.
func (c *Client) GateActions(ctx context.Context, id string, page Page) (*audit.ListResult, error) {
	var out struct {
		Actions []audit.AuditLog `json:"actions"`
		Total   int              `json:"total"`
		Limit   int              `json:"limit"`
		Offset  int              `json:"offset"`
	}
	if err := c.do(ctx, http.MethodGet, "/gate/"+id+"/actions", nil, &out, page.query()); err != nil {
		return nil, err
	}
	return &audit.ListResult{Logs: out.Actions, Total: out.Total, Limit: out.Limit, Offset: out.Offset}, nil
}
