package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gatekeeper-core/internal/device"
)

var (
	cameraUpDesc = prometheus.NewDesc(
		namespace+"_camera_up", "Camera reachability (1 online, 0 offline).",
		[]string{"id", "name", "location"}, nil,
	)
	gateUpDesc = prometheus.NewDesc(
		namespace+"_gate_up", "Gate controller reachability (1 online, 0 offline).",
		[]string{"id", "name", "location"}, nil,
	)
	gateOpenDesc = prometheus.NewDesc(
		namespace+"_gate_open", "Gate position (1 open, 0 closed, -1 unknown).",
		[]string{"id", "name"}, nil,
	)
	camerasDesc = prometheus.NewDesc(
		namespace+"_cameras", "Registered cameras grouped by status.",
		[]string{"status"}, nil,
	)
	gatesDesc = prometheus.NewDesc(
		namespace+"_gates", "Registered gates grouped by status.",
		[]string{"status"}, nil,
	)
)

// inventoryCollector reads the registry on every scrape so gauges never
// drift from the authoritative state.
type inventoryCollector struct {
	inv Inventory
}

func (c *inventoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cameraUpDesc
	ch <- gateUpDesc
	ch <- gateOpenDesc
	ch <- camerasDesc
	ch <- gatesDesc
}

func (c *inventoryCollector) Collect(ch chan<- prometheus.Metric) {
	var snapshot device.Inventory
	c.inv.View(func(inv device.Inventory) { snapshot = inv })

	cameraCounts := map[string]float64{
		string(device.CameraOnline):  0,
		string(device.CameraOffline): 0,
	}
	for _, cam := range snapshot.Cameras {
		ch <- prometheus.MustNewConstMetric(cameraUpDesc, prometheus.GaugeValue,
			boolValue(cam.Status == device.CameraOnline), cam.ID, cam.Name, cam.Location)
		cameraCounts[string(cam.Status)]++
	}
	for status, n := range cameraCounts {
		ch <- prometheus.MustNewConstMetric(camerasDesc, prometheus.GaugeValue, n, status)
	}

	gateCounts := map[string]float64{
		string(device.GateOpen):    0,
		string(device.GateClosed):  0,
		string(device.GateUnknown): 0,
	}
	for _, g := range snapshot.Gates {
		ch <- prometheus.MustNewConstMetric(gateUpDesc, prometheus.GaugeValue,
			boolValue(g.IsOnline), g.ID, g.Name, g.Location)
		ch <- prometheus.MustNewConstMetric(gateOpenDesc, prometheus.GaugeValue,
			positionValue(g.Status), g.ID, g.Name)
		gateCounts[string(g.Status)]++
	}
	for status, n := range gateCounts {
		ch <- prometheus.MustNewConstMetric(gatesDesc, prometheus.GaugeValue, n, status)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func positionValue(s device.GateStatus) float64 {
	switch s {
	case device.GateOpen:
		return 1
	case device.GateClosed:
		return 0
	default:
		return -1
	}
}
