package device

import (
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxLocationLength = 200
	maxCommandLength  = 256
	maxCredentialLen  = 128
	minPort           = 1
	maxPort           = 65535

	// idHexLength is how many hex characters of a UUID form a device ID.
	idHexLength = 8
)

// Device ID prefixes.
const (
	CameraIDPrefix = "cam-"
	GateIDPrefix   = "gate-"
)

var (
	validGateTypes      map[GateType]struct{}
	validControlMethods map[ControlMethod]struct{}
)

func init() {
	validGateTypes = make(map[GateType]struct{}, len(AllGateTypes()))
	for _, t := range AllGateTypes() {
		validGateTypes[t] = struct{}{}
	}

	validControlMethods = make(map[ControlMethod]struct{}, len(AllControlMethods()))
	for _, m := range AllControlMethods() {
		validControlMethods[m] = struct{}{}
	}
}

// ApplyCameraDefaults fills optional camera fields that were left empty.
func ApplyCameraDefaults(c *Camera) {
	c.Name = strings.TrimSpace(c.Name)
	c.Location = strings.TrimSpace(c.Location)
	c.IPAddress = strings.TrimSpace(c.IPAddress)
	if c.Port == 0 {
		c.Port = DefaultPort
	}
}

// ApplyGateDefaults fills optional gate fields that were left empty.
func ApplyGateDefaults(g *Gate) {
	g.Name = strings.TrimSpace(g.Name)
	g.Location = strings.TrimSpace(g.Location)
	g.ControllerIP = strings.TrimSpace(g.ControllerIP)
	if g.ControllerPort == 0 {
		g.ControllerPort = DefaultPort
	}
	if g.GateType == "" {
		g.GateType = GateTypeBarrier
	}
	if g.ControlMethod == "" {
		g.ControlMethod = ControlHTTP
	}
	if g.CameraID != nil && strings.TrimSpace(*g.CameraID) == "" {
		g.CameraID = nil
	}
}

// ValidateCamera checks the caller-supplied fields of a camera.
// Defaults must already be applied.
func ValidateCamera(c *Camera) error {
	if c == nil {
		return ErrValidation
	}
	if err := validateName(c.Name); err != nil {
		return err
	}
	if err := validateLocation(c.Location); err != nil {
		return err
	}
	if c.IPAddress == "" {
		return invalid("ip_address", "is required")
	}
	if err := validateIP("ip_address", c.IPAddress); err != nil {
		return err
	}
	if err := validatePort("port", c.Port); err != nil {
		return err
	}
	if len(c.Username) > maxCredentialLen || len(c.Password) > maxCredentialLen {
		return invalid("credentials", "exceed %d characters", maxCredentialLen)
	}
	if c.SnapshotURL != "" {
		u, err := url.Parse(c.SnapshotURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("snapshot_url", "must be an absolute http(s) URL")
		}
	}
	return nil
}

// ValidateGate checks the caller-supplied fields of a gate. The camera
// reference is checked by the registry, not here.
// Defaults must already be applied.
func ValidateGate(g *Gate) error {
	if g == nil {
		return ErrValidation
	}
	if err := validateName(g.Name); err != nil {
		return err
	}
	if err := validateLocation(g.Location); err != nil {
		return err
	}
	if g.ControllerIP != "" {
		if err := validateIP("controller_ip", g.ControllerIP); err != nil {
			return err
		}
	}
	if err := validatePort("controller_port", g.ControllerPort); err != nil {
		return err
	}
	if _, ok := validGateTypes[g.GateType]; !ok {
		return invalid("gate_type", "%q is not one of barrier, sliding, swing", g.GateType)
	}
	if _, ok := validControlMethods[g.ControlMethod]; !ok {
		return invalid("control_method", "%q is not one of http, mqtt", g.ControlMethod)
	}
	if err := validateCommand("open_command", g.OpenCommand); err != nil {
		return err
	}
	return validateCommand("close_command", g.CloseCommand)
}

func validateName(name string) error {
	if name == "" {
		return invalid("name", "is required")
	}
	if len(name) > maxNameLength {
		return invalid("name", "exceeds %d characters", maxNameLength)
	}
	return nil
}

func validateLocation(location string) error {
	if location == "" {
		return invalid("location", "is required")
	}
	if len(location) > maxLocationLength {
		return invalid("location", "exceeds %d characters", maxLocationLength)
	}
	return nil
}

func validateIP(field, ip string) error {
	if net.ParseIP(ip) == nil {
		return invalid(field, "%q is not a valid IP address", ip)
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < minPort || port > maxPort {
		return invalid(field, "must be between %d and %d", minPort, maxPort)
	}
	return nil
}

func validateCommand(field, cmd string) error {
	if len(cmd) > maxCommandLength {
		return invalid(field, "exceeds %d characters", maxCommandLength)
	}
	if strings.ContainsAny(cmd, " \t\r\n") {
		return invalid(field, "must not contain whitespace")
	}
	return nil
}

// NewCameraID returns a fresh camera ID such as "cam-1a2b3c4d".
func NewCameraID() string {
	return CameraIDPrefix + shortUUID()
}

// NewGateID returns a fresh gate ID such as "gate-1a2b3c4d".
func NewGateID() string {
	return GateIDPrefix + shortUUID()
}

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:idHexLength]
}
