package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/device"
)

// Health bands, in percent of devices online.
const (
	healthyThreshold = 90.0
	warningThreshold = 70.0
)

// Overall health values.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// Alert types and categories.
const (
	AlertWarning = "warning"

	CategoryCamera   = "camera"
	CategoryGate     = "gate"
	CategorySecurity = "security"
)

// DefaultOverrideThreshold is how many gate commands in an hour raise a
// security alert.
const DefaultOverrideThreshold = 10

// Counts is the dashboard overview. Every online or open count is bounded
// by its total.
type Counts struct {
	TotalCameras  int `json:"total_cameras"`
	OnlineCameras int `json:"online_cameras"`
	TotalGates    int `json:"total_gates"`
	OpenGates     int `json:"open_gates"`
	OnlineGates   int `json:"online_gates"`
}

// ClassHealth summarises one device class.
type ClassHealth struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// Health is the overall system status.
type Health struct {
	Overall          string      `json:"overall"`
	HealthPercentage float64     `json:"health_percentage"`
	Cameras          ClassHealth `json:"cameras"`
	Gates            ClassHealth `json:"gates"`
	LastUpdated      time.Time   `json:"last_updated"`
}

// Alert is one dashboard warning.
type Alert struct {
	Type      string     `json:"type"`
	Category  string     `json:"category"`
	DeviceID  string     `json:"device_id,omitempty"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp"`
}

// Viewer gives a consistent copy of the registry. *device.Registry
// satisfies it.
type Viewer interface {
	View(fn func(device.Inventory))
}

// AuditReader lists audit entries. audit.Repository satisfies it.
type AuditReader interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Aggregator computes dashboard figures. It never writes.
type Aggregator struct {
	registry          Viewer
	audit             AuditReader
	overrideThreshold int
	now               func() time.Time
}

// NewAggregator creates an Aggregator. auditLog may be nil, which disables
// the manual override alert.
func NewAggregator(registry Viewer, auditLog AuditReader) *Aggregator {
	return &Aggregator{
		registry:          registry,
		audit:             auditLog,
		overrideThreshold: DefaultOverrideThreshold,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot returns device counts taken from a single registry view.
func (a *Aggregator) Snapshot() Counts {
	var c Counts
	a.registry.View(func(inv device.Inventory) {
		c = count(inv)
	})
	return c
}

// Health returns the overall health. Each class scores the share of its
// devices online (an empty class scores 100); the overall figure is the
// mean of the two, banded healthy ≥90, warning ≥70, else critical.
func (a *Aggregator) Health() Health {
	var c Counts
	a.registry.View(func(inv device.Inventory) {
		c = count(inv)
	})

	pct := (percent(c.OnlineCameras, c.TotalCameras) + percent(c.OnlineGates, c.TotalGates)) / 2
	return Health{
		Overall:          band(pct),
		HealthPercentage: math.Round(pct*10) / 10,
		Cameras:          ClassHealth{Total: c.TotalCameras, Online: c.OnlineCameras, Offline: c.TotalCameras - c.OnlineCameras},
		Gates:            ClassHealth{Total: c.TotalGates, Online: c.OnlineGates, Offline: c.TotalGates - c.OnlineGates},
		LastUpdated:      a.now(),
	}
}

// Alerts lists one warning per offline camera or gate, plus a security
// warning when gates were commanded unusually often in the last hour.
func (a *Aggregator) Alerts(ctx context.Context) ([]Alert, error) {
	alerts := []Alert{}
	a.registry.View(func(inv device.Inventory) {
		for _, c := range inv.Cameras {
			if c.Status != device.CameraOnline {
				alerts = append(alerts, Alert{
					Type:      AlertWarning,
					Category:  CategoryCamera,
					DeviceID:  c.ID,
					Message:   fmt.Sprintf("Camera %q is offline", c.Name),
					Timestamp: c.LastChecked,
				})
			}
		}
		for _, g := range inv.Gates {
			if !g.IsOnline {
				alerts = append(alerts, Alert{
					Type:      AlertWarning,
					Category:  CategoryGate,
					DeviceID:  g.ID,
					Message:   fmt.Sprintf("Gate %q is offline", g.Name),
					Timestamp: g.LastChecked,
				})
			}
		}
	})

	if a.audit == nil {
		return alerts, nil
	}

	now := a.now()
	res, err := a.audit.List(ctx, audit.Filter{
		EntityType: audit.EntityGate,
		Since:      now.Add(-time.Hour),
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("counting recent gate commands: %w", err)
	}
	if res.Total > a.overrideThreshold {
		alerts = append(alerts, Alert{
			Type:      AlertWarning,
			Category:  CategorySecurity,
			Message:   fmt.Sprintf("High number of manual overrides in last hour: %d", res.Total),
			Timestamp: &now,
		})
	}
	return alerts, nil
}

func count(inv device.Inventory) Counts {
	c := Counts{TotalCameras: len(inv.Cameras), TotalGates: len(inv.Gates)}
	for _, cam := range inv.Cameras {
		if cam.Status == device.CameraOnline {
			c.OnlineCameras++
		}
	}
	for _, g := range inv.Gates {
		if g.Status == device.GateOpen {
			c.OpenGates++
		}
		if g.IsOnline {
			c.OnlineGates++
		}
	}
	return c
}

func percent(part, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(part) / float64(total) * 100
}

func band(pct float64) string {
	switch {
	case pct >= healthyThreshold:
		return StatusHealthy
	case pct >= warningThreshold:
		return StatusWarning
	default:
		return StatusCritical
	}
}
