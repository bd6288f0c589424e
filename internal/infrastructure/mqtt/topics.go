package mqtt

import "fmt"

// TopicPrefix is the root of every Gatekeeper topic.
const TopicPrefix = "gatekeeper"

// Topics builds Gatekeeper MQTT topic names.
//
// Gate controllers that speak MQTT subscribe to their command topic and
// answer on their ack topic:
//
//	gatekeeper/command/gate/{gate_id}   core → controller
//	gatekeeper/ack/gate/{gate_id}       controller → core
//
// Core publishes retained device state for other site systems:
//
//	gatekeeper/state/gate/{gate_id}
//	gatekeeper/state/camera/{camera_id}
type Topics struct{}

// GateCommand is where commands for one gate controller are published.
func (Topics) GateCommand(gateID string) string {
	return fmt.Sprintf("%s/command/gate/%s", TopicPrefix, gateID)
}

// GateAck is where a gate controller acknowledges commands.
func (Topics) GateAck(gateID string) string {
	return fmt.Sprintf("%s/ack/gate/%s", TopicPrefix, gateID)
}

// AllGateAcks matches the ack topic of every gate.
func (Topics) AllGateAcks() string {
	return TopicPrefix + "/ack/gate/+"
}

// GateState is the retained state topic for one gate.
func (Topics) GateState(gateID string) string {
	return fmt.Sprintf("%s/state/gate/%s", TopicPrefix, gateID)
}

// CameraState is the retained state topic for one camera.
func (Topics) CameraState(cameraID string) string {
	return fmt.Sprintf("%s/state/camera/%s", TopicPrefix, cameraID)
}

// SystemStatus carries Core's own online/offline status (also the LWT topic).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllTopics matches every Gatekeeper topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// GateIDFromAck extracts the gate ID from an ack topic, or "" if topic is
// not a gate ack topic.
func GateIDFromAck(topic string) string {
	const prefix = TopicPrefix + "/ack/gate/"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	return topic[len(prefix):]
}
