package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gatekeeper-core/internal/audit"
	"github.com/nerrad567/gatekeeper-core/internal/device"
)

const (
	// DefaultReason is recorded when an operator gives no reason.
	DefaultReason = "Manual override"

	// DefaultTimeout bounds a single controller command.
	DefaultTimeout = 10 * time.Second
)

// Registry is the part of the device registry the actuator uses.
type Registry interface {
	GetGate(ctx context.Context, id string) (*device.Gate, error)
	RecordGateAction(ctx context.Context, id string, action device.LastAction) (*device.Gate, error)
}

// Driver sends commands to gate controllers.
// *controller.Dispatcher satisfies it.
type Driver interface {
	Actuate(ctx context.Context, g *device.Gate, action device.Action) error
}

// AuditLogger persists audit entries. audit.Repository satisfies it.
type AuditLogger interface {
	Create(ctx context.Context, log *audit.AuditLog) error
}

// Notifier is told about every actuation attempt once it is recorded.
type Notifier interface {
	GateActionCompleted(ev Event)
}

// Logger is the logging dependency.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Event describes one actuation attempt after it has been recorded.
type Event struct {
	GateID   string
	Gate     *device.Gate // state after the attempt; nil for unknown gates
	Action   device.Action
	Operator string
	Reason   string
	Outcome  string // one of the audit outcome values
	Method   device.ControlMethod
	Duration time.Duration
	At       time.Time
}

// ActionResult is returned for successful and no-op actuations.
type ActionResult struct {
	GateID     string               `json:"gate_id"`
	Action     device.Action        `json:"action"`
	Outcome    device.ActionOutcome `json:"outcome"`
	GateStatus device.GateStatus    `json:"gate_status"`
	Message    string               `json:"message"`
	Timestamp  time.Time            `json:"timestamp"`
	Gate       *device.Gate         `json:"-"`
}

// Options configures an Actuator.
type Options struct {
	// Timeout bounds each controller command. Zero means DefaultTimeout.
	Timeout time.Duration

	// Source is stored on audit entries, e.g. "api" or "cli".
	Source string
}

// Actuator opens and closes gates.
//
// At most one actuation runs per gate; a second request for the same gate
// fails with ErrBusy instead of waiting. Once a command has been sent to
// the controller it runs to completion under its own timeout even if the
// caller goes away. Every attempt is written to the audit log before the
// call returns.
type Actuator struct {
	registry Registry
	driver   Driver
	audit    AuditLogger
	notifier Notifier
	timeout  time.Duration
	source   string
	logger   Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewActuator creates an Actuator. notifier may be nil.
func NewActuator(registry Registry, driver Driver, auditLog AuditLogger, notifier Notifier, opts Options) *Actuator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Source == "" {
		opts.Source = "api"
	}
	return &Actuator{
		registry: registry,
		driver:   driver,
		audit:    auditLog,
		notifier: notifier,
		timeout:  opts.Timeout,
		source:   opts.Source,
		logger:   noopLogger{},
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger.
func (a *Actuator) SetLogger(logger Logger) {
	if logger != nil {
		a.logger = logger
	}
}

// Open opens a gate on behalf of operator. An empty reason is recorded as
// DefaultReason.
func (a *Actuator) Open(ctx context.Context, gateID, operator, reason string) (ActionResult, error) {
	return a.actuate(ctx, gateID, device.ActionOpen, operator, reason)
}

// Close closes a gate on behalf of operator.
func (a *Actuator) Close(ctx context.Context, gateID, operator string) (ActionResult, error) {
	return a.actuate(ctx, gateID, device.ActionClose, operator, "")
}

func (a *Actuator) actuate(ctx context.Context, gateID string, action device.Action, operator, reason string) (ActionResult, error) {
	// Recording must survive the caller hanging up.
	ctx = context.WithoutCancel(ctx)

	operator = strings.TrimSpace(operator)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}
	attempt := attempt{gateID: gateID, action: action, operator: operator, reason: reason, started: a.now()}

	if operator == "" {
		a.finish(ctx, attempt, nil, audit.OutcomeDenied, nil)
		return ActionResult{}, ErrUnauthorized
	}

	if _, err := a.registry.GetGate(ctx, gateID); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			a.finish(ctx, attempt, nil, audit.OutcomeNotFound, nil)
		}
		return ActionResult{}, err
	}

	lock := a.gateLock(gateID)
	if !lock.TryLock() {
		a.finish(ctx, attempt, nil, audit.OutcomeBusy, nil)
		a.logger.Warn("gate busy, command rejected", "gate_id", gateID, "action", action, "operator", operator)
		return ActionResult{}, ErrBusy
	}
	defer lock.Unlock()

	// Re-read under the lock: the gate may have moved or been deleted.
	g, err := a.registry.GetGate(ctx, gateID)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			a.finish(ctx, attempt, nil, audit.OutcomeNotFound, nil)
		}
		return ActionResult{}, err
	}
	attempt.method = g.ControlMethod

	if g.Status == action.Target() {
		updated, err := a.record(ctx, attempt, device.OutcomeNoop)
		if err != nil {
			a.finish(ctx, attempt, g, audit.OutcomeNoop, err)
			return ActionResult{}, fmt.Errorf("recording gate action: %w", err)
		}
		a.finish(ctx, attempt, updated, audit.OutcomeNoop, nil)
		return a.result(attempt, updated, device.OutcomeNoop), nil
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	hwErr := a.driver.Actuate(dispatchCtx, g, action)
	cancel()

	if hwErr != nil {
		updated, err := a.record(ctx, attempt, device.OutcomeFailure)
		if err != nil {
			a.logger.Error("recording failed gate action", "gate_id", gateID, "error", err)
			updated = g
		}
		a.finish(ctx, attempt, updated, audit.OutcomeFailure, hwErr)
		a.logger.Warn("gate command failed", "gate_id", gateID, "action", action, "error", hwErr)
		return ActionResult{}, fmt.Errorf("%w: %w", ErrHardware, hwErr)
	}

	updated, err := a.record(ctx, attempt, device.OutcomeSuccess)
	if err != nil {
		// The gate moved but the new state could not be stored.
		a.finish(ctx, attempt, g, audit.OutcomeSuccess, err)
		return ActionResult{}, fmt.Errorf("recording gate action: %w", err)
	}
	a.finish(ctx, attempt, updated, audit.OutcomeSuccess, nil)
	a.logger.Info("gate actuated", "gate_id", gateID, "action", action, "operator", operator, "status", updated.Status)
	return a.result(attempt, updated, device.OutcomeSuccess), nil
}

type attempt struct {
	gateID   string
	action   device.Action
	operator string
	reason   string
	method   device.ControlMethod
	started  time.Time
}

func (a *Actuator) record(ctx context.Context, at attempt, outcome device.ActionOutcome) (*device.Gate, error) {
	return a.registry.RecordGateAction(ctx, at.gateID, device.LastAction{
		OperatorName: at.operator,
		Action:       at.action,
		Reason:       at.reason,
		Timestamp:    a.now(),
		Outcome:      outcome,
	})
}

// finish writes the audit entry and notifies listeners.
func (a *Actuator) finish(ctx context.Context, at attempt, g *device.Gate, outcome string, cause error) {
	now := a.now()

	entry := &audit.AuditLog{
		Action:     string(at.action),
		EntityType: audit.EntityGate,
		EntityID:   at.gateID,
		Operator:   at.operator,
		Outcome:    outcome,
		Source:     a.source,
		Reason:     at.reason,
		CreatedAt:  now,
	}
	details := map[string]any{}
	if g != nil {
		details["gate_status"] = string(g.Status)
	}
	if at.method != "" {
		details["control_method"] = string(at.method)
	}
	if cause != nil {
		details["error"] = cause.Error()
	}
	if len(details) > 0 {
		entry.Details = details
	}

	if err := a.audit.Create(ctx, entry); err != nil {
		a.logger.Error("writing gate audit entry", "gate_id", at.gateID, "outcome", outcome, "error", err)
	}

	if a.notifier != nil {
		a.notifier.GateActionCompleted(Event{
			GateID:   at.gateID,
			Gate:     g,
			Action:   at.action,
			Operator: at.operator,
			Reason:   at.reason,
			Outcome:  outcome,
			Method:   at.method,
			Duration: now.Sub(at.started),
			At:       now,
		})
	}
}

func (a *Actuator) result(at attempt, g *device.Gate, outcome device.ActionOutcome) ActionResult {
	msg := fmt.Sprintf("Gate %s", pastTense(at.action))
	if outcome == device.OutcomeNoop {
		msg = fmt.Sprintf("Gate already %s", g.Status)
	}
	return ActionResult{
		GateID:     at.gateID,
		Action:     at.action,
		Outcome:    outcome,
		GateStatus: g.Status,
		Message:    msg,
		Timestamp:  g.LastAction.Timestamp,
		Gate:       g,
	}
}

func (a *Actuator) gateLock(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

// Forget drops the lock entry of a deleted gate.
func (a *Actuator) Forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.locks[id]; ok && l.TryLock() {
		delete(a.locks, id)
		l.Unlock()
	}
}

func pastTense(action device.Action) string {
	if action == device.ActionOpen {
		return "opened"
	}
	return "closed"
}
