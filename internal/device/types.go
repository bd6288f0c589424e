package device

import "time"

// Default network port for cameras and gate controllers when none is given.
const DefaultPort = 80

// Camera is an ANPR camera registered with the site.
// This matches the cameras table in migrations/20260301_090000_devices.up.sql.
type Camera struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`

	// Credentials for the camera's HTTP interface. The password is write-only
	// and never serialised.
	Username string `json:"username,omitempty"`
	Password string `json:"-"`

	// SnapshotURL overrides the default ISAPI picture path when set.
	SnapshotURL string `json:"snapshot_url,omitempty"`

	// Owned by the status probe.
	Status      CameraStatus `json:"status"`
	LastChecked *time.Time   `json:"last_checked,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the camera.
func (c *Camera) DeepCopy() *Camera {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.LastChecked = copyTime(c.LastChecked)
	return &cpy
}

// Gate is a vehicle barrier, sliding or swing gate driven by a network
// relay controller.
// This matches the gates table in migrations/20260301_090000_devices.up.sql.
type Gate struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Location       string   `json:"location"`
	ControllerIP   string   `json:"controller_ip,omitempty"`
	ControllerPort int      `json:"controller_port"`
	GateType       GateType `json:"gate_type"`

	// CameraID optionally links the ANPR camera watching this gate.
	CameraID *string `json:"camera_id,omitempty"`

	// ControlMethod selects how commands reach the controller.
	ControlMethod ControlMethod `json:"control_method"`

	// OpenCommand and CloseCommand override the controller's default relay
	// paths (HTTP) or payloads (MQTT).
	OpenCommand  string `json:"open_command,omitempty"`
	CloseCommand string `json:"close_command,omitempty"`

	// Owned by the actuator and the status probe.
	Status          GateStatus  `json:"status"`
	IsOnline        bool        `json:"is_online"`
	LastAction      *LastAction `json:"last_action,omitempty"`
	StatusUpdatedAt *time.Time  `json:"status_updated_at,omitempty"`
	LastChecked     *time.Time  `json:"last_checked,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the gate.
func (g *Gate) DeepCopy() *Gate {
	if g == nil {
		return nil
	}
	cpy := *g
	if g.CameraID != nil {
		id := *g.CameraID
		cpy.CameraID = &id
	}
	if g.LastAction != nil {
		la := *g.LastAction
		cpy.LastAction = &la
	}
	cpy.StatusUpdatedAt = copyTime(g.StatusUpdatedAt)
	cpy.LastChecked = copyTime(g.LastChecked)
	return &cpy
}

// LastAction records the most recent actuation attempt on a gate.
type LastAction struct {
	OperatorName string        `json:"operator_name"`
	Action       Action        `json:"action"`
	Reason       string        `json:"reason,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
	Outcome      ActionOutcome `json:"outcome"`
}

// GateObservation is what a status probe learned about a gate controller.
type GateObservation struct {
	// Online reports whether the controller answered.
	Online bool

	// Status is the physical state the controller reported, or empty when
	// it reported none.
	Status GateStatus

	// StartedAt is when the probe began. Observations that started before
	// the gate's last status change are stale.
	StartedAt time.Time

	// CheckedAt is when the probe finished.
	CheckedAt time.Time
}

// Inventory is a point-in-time copy of the whole registry.
type Inventory struct {
	Cameras []Camera
	Gates   []Gate
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CameraStatus is the reachability of a camera.
type CameraStatus string

// Camera statuses.
const (
	CameraOnline  CameraStatus = "online"
	CameraOffline CameraStatus = "offline"
)

// GateStatus is the believed physical position of a gate.
type GateStatus string

// Gate statuses.
const (
	GateOpen    GateStatus = "open"
	GateClosed  GateStatus = "closed"
	GateUnknown GateStatus = "unknown"
)

// Valid reports whether s is one of the three defined gate statuses.
func (s GateStatus) Valid() bool {
	switch s {
	case GateOpen, GateClosed, GateUnknown:
		return true
	}
	return false
}

// GateType is the mechanical kind of gate.
type GateType string

// Gate types.
const (
	GateTypeBarrier GateType = "barrier"
	GateTypeSliding GateType = "sliding"
	GateTypeSwing   GateType = "swing"
)

// AllGateTypes returns every supported gate type.
func AllGateTypes() []GateType {
	return []GateType{GateTypeBarrier, GateTypeSliding, GateTypeSwing}
}

// ControlMethod is the transport used to reach a gate controller.
type ControlMethod string

// Control methods.
const (
	ControlHTTP ControlMethod = "http"
	ControlMQTT ControlMethod = "mqtt"
)

// AllControlMethods returns every supported control method.
func AllControlMethods() []ControlMethod {
	return []ControlMethod{ControlHTTP, ControlMQTT}
}

// Action is a gate command.
type Action string

// Gate actions.
const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// Target returns the gate status that a successful action produces.
func (a Action) Target() GateStatus {
	if a == ActionOpen {
		return GateOpen
	}
	return GateClosed
}

// ActionOutcome is how an actuation attempt ended.
type ActionOutcome string

// Action outcomes recorded on a gate.
const (
	OutcomeSuccess ActionOutcome = "success"
	OutcomeNoop    ActionOutcome = "noop"
	OutcomeFailure ActionOutcome = "failure"
)
