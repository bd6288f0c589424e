// Package influxdb writes Gatekeeper telemetry to InfluxDB v2.
//
// Two measurements are recorded:
//
//	gate_action   tags gate_id, action, outcome, method; fields duration_ms, success
//	device_probe  tags device_type, device_id; fields online, latency_ms, status
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write failures are delivered to the callback
// set with SetOnError. A nil or disconnected *Client silently drops points.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil
//	}
//	defer client.Close()
//
//	client.WriteProbe(influxdb.ProbeSample{DeviceType: "camera", DeviceID: id, Online: true})
package influxdb
