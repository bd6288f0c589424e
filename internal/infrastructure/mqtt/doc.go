// Package mqtt connects Gatekeeper Core to the site MQTT broker.
//
// Core uses MQTT for two things:
//   - driving gate controllers whose control_method is "mqtt" (commands on
//     gatekeeper/command/gate/{id}, acknowledgements on gatekeeper/ack/gate/{id})
//   - publishing retained gate and camera state for other site systems
//
// The client reconnects automatically, replays subscriptions and maintains
// a retained online/offline status (with LWT) on gatekeeper/system/status.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.GateState(gateID), state, true)
package mqtt
