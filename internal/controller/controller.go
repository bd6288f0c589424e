package controller

import (
	"context"
	"fmt"

	"github.com/nerrad567/gatekeeper-core/internal/device"
)

// Controller drives one kind of gate controller.
type Controller interface {
	// Actuate sends an open or close command and returns once the
	// controller has accepted it.
	Actuate(ctx context.Context, g *device.Gate, action device.Action) error

	// Status asks the controller for the gate's physical state.
	Status(ctx context.Context, g *device.Gate) (device.GateStatus, error)
}

// Dispatcher routes commands to the transport named by each gate's
// control_method.
type Dispatcher struct {
	transports map[device.ControlMethod]Controller
}

// NewDispatcher creates a dispatcher. A nil mqtt controller leaves MQTT gates
// unsupported, which is the case when the broker is disabled.
func NewDispatcher(http Controller, mqtt Controller) *Dispatcher {
	d := &Dispatcher{transports: make(map[device.ControlMethod]Controller, 2)}
	if http != nil {
		d.transports[device.ControlHTTP] = http
	}
	if mqtt != nil {
		d.transports[device.ControlMQTT] = mqtt
	}
	return d
}

// Actuate implements Controller.
func (d *Dispatcher) Actuate(ctx context.Context, g *device.Gate, action device.Action) error {
	c, err := d.transport(g)
	if err != nil {
		return err
	}
	return c.Actuate(ctx, g, action)
}

// Status implements Controller.
func (d *Dispatcher) Status(ctx context.Context, g *device.Gate) (device.GateStatus, error) {
	c, err := d.transport(g)
	if err != nil {
		return "", err
	}
	return c.Status(ctx, g)
}

func (d *Dispatcher) transport(g *device.Gate) (Controller, error) {
	c, ok := d.transports[g.ControlMethod]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, g.ControlMethod)
	}
	return c, nil
}
