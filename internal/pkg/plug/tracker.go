package plug

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/anicoll/mqtt-plug/internal/pkg/metrics"
	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

// Tracker reconciles the power state reported by the outlets.
type Tracker struct {
	registry *Registry
	notifier Notifier
	logger   *zap.Logger
}

func NewTracker(registry *Registry, notifier Notifier) *Tracker {
	return &Tracker{
		registry: registry,
		notifier: notifier,
		logger:   zap.L(),
	}
}

// OnStatusReport applies a status payload to a device and reports whether its
// power state changed. The payload is either an object carrying a state field or
// the raw value published by the outlet.
func (t *Tracker) OnStatusReport(id string, payload []byte) (bool, error) {
	e, ok := t.registry.lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	reported, present, err := parseStatus(payload)
	if err != nil {
		return false, err
	}
	if !present {
		return false, nil
	}

	e.mu.Lock()
	powered := reported == e.device.OnValue
	changed := powered != e.powered
	e.powered = powered
	e.mu.Unlock()

	if changed {
		metrics.StatusChanges.WithLabelValues(id).Inc()
		t.logger.Info("outlet state changed", zap.String("device_id", id), zap.Bool("powered", powered))
		t.notifier.Notify(model.ChannelNavbar, t.Navbar())
	}
	return changed, nil
}

// OnMessage is the transport handler of the status topics. The report is applied
// to every device listening on topic.
func (t *Tracker) OnMessage(topic string, payload []byte) error {
	var errs []error
	for _, d := range t.registry.List() {
		if d.StateTopic != topic {
			continue
		}
		if _, err := t.OnStatusReport(d.ID, payload); err != nil {
			t.logger.Warn("dropping status report", zap.String("device_id", d.ID), zap.String("topic", topic), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) CurrentState(id string) (bool, error) {
	e, ok := t.registry.lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.powered, nil
}

// Status returns the tracked state of a device. Unknown devices are off.
func (t *Tracker) Status(id string) model.Status {
	powered, _ := t.CurrentState(id)
	return model.Status{State: powered}
}

func (t *Tracker) Navbar() model.NavbarInfo {
	return t.registry.Navbar()
}

// parseStatus extracts the reported value. present is false for an object that
// does not carry a state field.
func parseStatus(payload []byte) (value string, present bool, err error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return string(payload), true, nil
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	raw, ok := body["state"]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	return string(raw), true, nil
}
