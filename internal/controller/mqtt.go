package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gatekeeper-core/internal/device"
	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/mqtt"
)

// Bus is the subset of the MQTT client the controller needs.
// *mqtt.Client satisfies it.
type Bus interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	QoS() byte
}

// Command is published to gatekeeper/command/gate/{id}.
type Command struct {
	RequestID string `json:"request_id"`
	Action    string `json:"action"` // open, close or status
	Command   string `json:"command,omitempty"`
	IssuedAt  string `json:"issued_at"`
}

// Ack is expected on gatekeeper/ack/gate/{id}.
type Ack struct {
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

const actionStatus = "status"

// MQTTController drives gate controllers over the broker. Every command
// carries a request ID and waits for the matching ack until the context
// ends.
type MQTTController struct {
	bus    Bus
	topics mqtt.Topics

	mu      sync.Mutex
	pending map[string]chan Ack
}

// NewMQTT creates an MQTT controller and subscribes to gate acks.
func NewMQTT(bus Bus) (*MQTTController, error) {
	c := &MQTTController{
		bus:     bus,
		pending: make(map[string]chan Ack),
	}
	if err := bus.Subscribe(c.topics.AllGateAcks(), bus.QoS(), c.handleAck); err != nil {
		return nil, fmt.Errorf("subscribing to gate acks: %w", err)
	}
	return c, nil
}

// Actuate implements Controller.
func (c *MQTTController) Actuate(ctx context.Context, g *device.Gate, action device.Action) error {
	cmd := g.OpenCommand
	if action == device.ActionClose {
		cmd = g.CloseCommand
	}
	_, err := c.request(ctx, g.ID, string(action), cmd)
	return err
}

// Status implements Controller.
func (c *MQTTController) Status(ctx context.Context, g *device.Gate) (device.GateStatus, error) {
	ack, err := c.request(ctx, g.ID, actionStatus, "")
	if err != nil {
		return "", err
	}
	status := device.GateStatus(strings.ToLower(ack.Status))
	if !status.Valid() {
		return "", fmt.Errorf("%w: status %q", ErrBadResponse, ack.Status)
	}
	return status, nil
}

func (c *MQTTController) request(ctx context.Context, gateID, action, command string) (Ack, error) {
	id := uuid.NewString()
	ch := make(chan Ack, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	err := c.bus.PublishJSON(c.topics.GateCommand(gateID), Command{
		RequestID: id,
		Action:    action,
		Command:   command,
		IssuedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}, false)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	select {
	case ack := <-ch:
		if !ack.OK {
			return ack, fmt.Errorf("%w: %s", ErrRejected, ack.Error)
		}
		return ack, nil
	case <-ctx.Done():
		return Ack{}, fmt.Errorf("%w: %w", ErrNoAck, ctx.Err())
	}
}

func (c *MQTTController) handleAck(topic string, payload []byte) error {
	if mqtt.GateIDFromAck(topic) == "" {
		return nil
	}

	var ack Ack
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("decoding gate ack: %w", err)
	}

	c.mu.Lock()
	ch, ok := c.pending[ack.RequestID]
	c.mu.Unlock()
	if !ok {
		// Late or foreign ack.
		return nil
	}

	select {
	case ch <- ack:
	default:
	}
	return nil
}
