package plug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

const pluginTopic = "plugin/mqtt_plug/"

type DispatcherConfig struct {
	// BaseTopic is the prefix the print server publishes its events under, for
	// example "octoPrint/". Command topics are only served when it is set.
	BaseTopic string
	// TopicPrefix derives the topics of new devices saved without any.
	TopicPrefix string
	// PushEvents is set when printer events are read from the print server's
	// push socket. The MQTT event topics are then left alone so an event is
	// never handled twice.
	PushEvents bool
}

// Dispatcher maps printer events and user commands onto the scheduler and the
// outlets.
type Dispatcher struct {
	cfg       DispatcherConfig
	registry  *Registry
	scheduler *Scheduler
	tracker   *Tracker
	transport Transport
	printer   Printer
	store     Store
	notifier  Notifier
	outlet    outlet
	logger    *zap.Logger
}

func NewDispatcher(cfg DispatcherConfig, registry *Registry, scheduler *Scheduler, tracker *Tracker, transport Transport, printer Printer, store Store, notifier Notifier) *Dispatcher {
	logger := zap.L()
	return &Dispatcher{
		cfg:       cfg,
		registry:  registry,
		scheduler: scheduler,
		tracker:   tracker,
		transport: transport,
		printer:   printer,
		store:     store,
		notifier:  notifier,
		outlet:    outlet{transport: transport, logger: logger},
		logger:    logger,
	}
}

// Start loads the persisted devices and subscribes to their status topics, and
// to the command and event topics when a base topic is configured.
func (d *Dispatcher) Start(ctx context.Context) error {
	devices, err := d.store.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	d.registry.Load(devices)
	d.logger.Info("devices loaded", zap.Int("count", len(devices)))

	for _, topic := range d.registry.StateTopics() {
		if err := d.transport.Subscribe(topic, d.tracker.OnMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	if d.cfg.BaseTopic != "" {
		if err := d.transport.Subscribe(d.cfg.BaseTopic+pluginTopic+"#", d.onCommand); err != nil {
			return fmt.Errorf("subscribing to command topics: %w", err)
		}
		if !d.cfg.PushEvents {
			if err := d.transport.Subscribe(d.cfg.BaseTopic+"event/+", d.onEvent); err != nil {
				return fmt.Errorf("subscribing to event topics: %w", err)
			}
		}
	}

	d.PublishStates()
	return nil
}

// HandleEvent reacts to a printer lifecycle event. A failure for one device does
// not stop the others.
func (d *Dispatcher) HandleEvent(event model.PrinterEvent) {
	for _, dev := range d.registry.List() {
		var err error
		switch {
		case event == model.EventPrintDone && dev.OnDone,
			event == model.EventPrintFailed && dev.OnFailed:
			err = d.scheduler.RequestShutdown(dev.ID, false)
		case event == model.EventPrintStarted:
			err = d.scheduler.OnPrintStarted(dev.ID)
		}
		if err != nil {
			d.logger.Error("handling printer event", zap.String("event", event.String()), zap.String("device_id", dev.ID), zap.Error(err))
		}
	}
}

// TurnOn switches the outlet on and, unless the connection delay is below -1,
// connects the printer once the delay has elapsed.
func (d *Dispatcher) TurnOn(id string) error {
	dev, ok := d.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	err := d.outlet.switchOn(dev)
	if e, ok := d.registry.lookup(id); ok && dev.ConnectionDelay >= -1 {
		delay := time.Duration(max(dev.ConnectionDelay, 0)) * time.Second
		e.mu.Lock()
		e.armConnect(d.scheduler.clock.AfterFunc(delay, func() { d.connectPrinter(dev) }))
		e.mu.Unlock()
	}
	d.notifier.Notify(model.ChannelSidebar, d.scheduler.Snapshot())
	d.notifier.Notify(model.ChannelNavbar, d.registry.Navbar())
	return err
}

func (d *Dispatcher) TurnOff(id string) error {
	return d.scheduler.ExecuteShutdownNow(id)
}

// CheckStatus returns the tracked state of a device. Unknown devices are off.
func (d *Dispatcher) CheckStatus(id string) model.Status {
	return d.tracker.Status(id)
}

func (d *Dispatcher) ListDevices() []model.Device {
	return d.registry.List()
}

// SaveDevice creates the device or updates the existing one with the same id,
// then persists the device list.
func (d *Dispatcher) SaveDevice(ctx context.Context, payload model.DevicePayload) ([]model.Device, error) {
	existing, found := d.registry.Get(payload.ID)
	if !found {
		dev := model.NewDevice()
		dev.ID = payload.ID
		payload.Apply(&dev)
		d.deriveTopics(&dev, payload.DeviceUpdate)
		dev = d.registry.Add(dev)
		d.logger.Info("device created", zap.String("device_id", dev.ID), zap.String("name", dev.DeviceName))
		d.subscribe(dev.StateTopic)
		return d.persist(ctx)
	}

	updated, err := d.registry.Update(existing.ID, payload.DeviceUpdate)
	if err != nil {
		return nil, err
	}
	if updated.StateTopic != existing.StateTopic {
		d.releaseTopic(existing.StateTopic)
		d.subscribe(updated.StateTopic)
	}
	d.logger.Info("device updated", zap.String("device_id", updated.ID))
	return d.persist(ctx)
}

// DeleteDevice removes the device, cancelling its pending shutdown.
func (d *Dispatcher) DeleteDevice(ctx context.Context, id string) ([]model.Device, error) {
	dev, ok := d.registry.Get(id)
	if !ok || !d.registry.Remove(id) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	d.releaseTopic(dev.StateTopic)
	d.logger.Info("device deleted", zap.String("device_id", id))
	d.notifier.Notify(model.ChannelSidebar, d.scheduler.Snapshot())
	return d.persist(ctx)
}

func (d *Dispatcher) PostponeShutdown(id string) (model.SidebarInfo, error) {
	err := d.scheduler.RequestShutdown(id, true)
	return d.scheduler.Snapshot(), err
}

func (d *Dispatcher) CancelShutdown(id string) (model.SidebarInfo, error) {
	err := d.scheduler.Cancel(id)
	return d.scheduler.Snapshot(), err
}

func (d *Dispatcher) ShutdownNow(id string) (model.SidebarInfo, error) {
	err := d.scheduler.ExecuteShutdownNow(id)
	return d.scheduler.Snapshot(), err
}

func (d *Dispatcher) Sidebar() model.SidebarInfo {
	return d.scheduler.Snapshot()
}

func (d *Dispatcher) Navbar() model.NavbarInfo {
	return d.registry.Navbar()
}

// PublishStates echoes the tracked state of every device under the base topic.
func (d *Dispatcher) PublishStates() {
	if d.cfg.BaseTopic == "" || !d.transport.IsConnected() {
		return
	}
	for id, status := range d.registry.Navbar().State {
		payload, err := json.Marshal(status)
		if err != nil {
			continue
		}
		if err := d.transport.Publish(d.cfg.BaseTopic+pluginTopic+"state/"+id, payload, false); err != nil {
			d.logger.Warn("publishing device state", zap.String("device_id", id), zap.Error(err))
		}
	}
}

// onCommand serves the turnOn, turnOff and state command topics.
func (d *Dispatcher) onCommand(topic string, payload []byte) error {
	command, ok := strings.CutPrefix(topic, d.cfg.BaseTopic+pluginTopic)
	if !ok {
		return nil
	}

	switch command {
	case "turnOn", "turnOff":
		var cmd model.DeviceCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if cmd.ID == "" {
			return nil
		}
		d.logger.Info("mqtt command", zap.String("command", command), zap.String("device_id", string(cmd.ID)))
		if command == "turnOn" {
			return d.TurnOn(string(cmd.ID))
		}
		return d.TurnOff(string(cmd.ID))
	case "state":
		d.PublishStates()
	}
	return nil
}

func (d *Dispatcher) onEvent(topic string, _ []byte) error {
	d.HandleEvent(model.PrinterEvent(path.Base(topic)))
	return nil
}

func (d *Dispatcher) connectPrinter(dev model.Device) {
	ctx, cancel := context.WithTimeout(context.Background(), d.scheduler.printerTimeout)
	defer cancel()

	connect := d.printer.Connect
	if dev.ConnectPalette2 {
		connect = d.printer.ConnectPalette2
	}
	if err := connect(ctx); err != nil {
		d.logger.Error("connecting printer", zap.String("device_id", dev.ID), zap.Bool("palette2", dev.ConnectPalette2), zap.Error(err))
	}
}

// deriveTopics fills the topics the payload left empty from the device name when
// a topic prefix is configured.
func (d *Dispatcher) deriveTopics(dev *model.Device, u model.DeviceUpdate) {
	if d.cfg.TopicPrefix == "" {
		return
	}
	base := strings.TrimSuffix(d.cfg.TopicPrefix, "/") + "/" + slug.Make(dev.DeviceName)
	if u.StateTopic == nil || *u.StateTopic == "" {
		dev.StateTopic = base + "/state"
	}
	if u.SwitchTopic == nil || *u.SwitchTopic == "" {
		dev.SwitchTopic = base + "/switch"
	}
}

func (d *Dispatcher) subscribe(topic string) {
	if topic == "" {
		return
	}
	if err := d.transport.Subscribe(topic, d.tracker.OnMessage); err != nil {
		d.logger.Warn("subscribing to state topic", zap.String("topic", topic), zap.Error(err))
	}
}

// releaseTopic unsubscribes from topic unless another device still listens on it.
func (d *Dispatcher) releaseTopic(topic string) {
	if topic == "" || lo.Contains(d.registry.StateTopics(), topic) {
		return
	}
	if err := d.transport.Unsubscribe(topic); err != nil {
		d.logger.Warn("unsubscribing from state topic", zap.String("topic", topic), zap.Error(err))
	}
}

func (d *Dispatcher) persist(ctx context.Context) ([]model.Device, error) {
	devices := d.registry.List()
	if err := d.store.SaveDevices(ctx, devices); err != nil {
		return devices, errors.Join(ErrPersist, err)
	}
	return devices, nil
}
