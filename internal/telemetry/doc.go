// Package telemetry fans gate actuations and probe results out to the
// MQTT state topics, WebSocket subscribers, InfluxDB and Prometheus.
//
//	fan := telemetry.New(telemetry.Sinks{MQTT: mqttClient, Hub: hub, Devices: registry})
//	go fan.Run(ctx)
//	actuator := gate.NewActuator(registry, dispatcher, auditRepo, fan, opts)
//	prober.SetObserver(fan.ProbeCompleted)
package telemetry
