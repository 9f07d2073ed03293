package plug

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/anicoll/mqtt-plug/internal/pkg/metrics"
	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

// outlet sends switch commands. Commands are retained so an outlet that
// reconnects picks up the last one.
type outlet struct {
	transport Transport
	logger    *zap.Logger
}

func (o outlet) switchOn(d model.Device) error {
	return o.send(d, "on", d.OnValue)
}

func (o outlet) switchOff(d model.Device) error {
	return o.send(d, "off", d.OffValue)
}

func (o outlet) send(d model.Device, command, value string) error {
	if !o.transport.IsConnected() {
		metrics.OutletCommands.WithLabelValues(d.ID, command, "unavailable").Inc()
		o.logger.Warn("skipping outlet command, transport not connected",
			zap.String("device_id", d.ID), zap.String("command", command))
		return fmt.Errorf("%w: switch %s %s", ErrTransportUnavailable, d.DeviceName, command)
	}
	if err := o.transport.Publish(d.SwitchTopic, []byte(value), true); err != nil {
		metrics.OutletCommands.WithLabelValues(d.ID, command, "error").Inc()
		return fmt.Errorf("publish %s to %s: %w", command, d.SwitchTopic, err)
	}
	metrics.OutletCommands.WithLabelValues(d.ID, command, "ok").Inc()
	o.logger.Info("outlet switched", zap.String("device_id", d.ID), zap.String("command", command))
	return nil
}
