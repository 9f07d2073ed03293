package plug

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/mqtt-plug/internal/pkg/metrics"
	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

const (
	DefaultPollInterval   = 5 * time.Second
	DefaultPrinterTimeout = 10 * time.Second
)

type SchedulerOption func(*Scheduler)

func WithClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithPollInterval sets the period of the cooldown temperature poll.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.pollInterval = d
	}
}

// WithPrinterTimeout bounds every call made to the printer.
func WithPrinterTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.printerTimeout = d
	}
}

// Scheduler drives the delayed power-off of the devices. Every device is idle,
// waiting for a point in time, or waiting for the printer to cool down.
type Scheduler struct {
	registry       *Registry
	printer        Printer
	notifier       Notifier
	outlet         outlet
	clock          Clock
	pollInterval   time.Duration
	printerTimeout time.Duration
	logger         *zap.Logger
}

func NewScheduler(registry *Registry, transport Transport, printer Printer, notifier Notifier, opts ...SchedulerOption) *Scheduler {
	logger := zap.L()
	s := &Scheduler{
		registry:       registry,
		printer:        printer,
		notifier:       notifier,
		outlet:         outlet{transport: transport, logger: logger},
		clock:          realClock{},
		pollInterval:   DefaultPollInterval,
		printerTimeout: DefaultPrinterTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestShutdown arms the power-off of a device according to its shutdown type.
// forcePostpone always arms a timed shutdown using the postpone delay; an already
// armed timed shutdown is extended rather than restarted.
func (s *Scheduler) RequestShutdown(id string, forcePostpone bool) error {
	e, ok := s.registry.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	e.mu.Lock()
	d := e.device
	var mode ScheduleMode
	if d.ShutdownType == model.ShutdownTime || forcePostpone {
		delay := d.StopDelayDuration()
		if forcePostpone {
			delay = d.PostponeDelayDuration()
		}
		now := s.clock.Now()
		target := ceilSecond(now).Add(delay)
		if e.sched.mode == ModeTimeArmed {
			target = e.sched.target.Add(delay)
		}
		wait := target.Sub(now)
		mode = ModeTimeArmed
		e.arm(mode, target, func(token uint64) Timer {
			return s.clock.AfterFunc(wait, func() { s.fire(id, token) })
		})
		s.logger.Info("scheduled turn off", zap.String("device_id", id), zap.Time("at", target), zap.Duration("in", wait))
	} else {
		mode = ModeCooldownArmed
		e.arm(mode, time.Time{}, func(token uint64) Timer {
			return s.clock.AfterFunc(s.pollInterval, func() { s.poll(id, token) })
		})
		s.logger.Info("waiting for cooldown", zap.String("device_id", id), zap.Int("bed_temp", d.BedTemp), zap.Int("hotend_temp", d.HotendTemp))
	}
	e.mu.Unlock()

	metrics.SchedulesArmed.WithLabelValues(id, mode.String()).Inc()
	s.notifySidebar()
	return nil
}

// Cancel drops the pending shutdown of a device. Cancelling an idle device does
// nothing.
func (s *Scheduler) Cancel(id string) error {
	e, ok := s.registry.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	e.mu.Lock()
	wasArmed := e.disarm(0)
	e.mu.Unlock()

	if wasArmed {
		s.logger.Info("shutdown cancelled", zap.String("device_id", id))
		s.notifySidebar()
	}
	return nil
}

// OnPrintStarted drops the pending shutdown of a device whatever its type.
func (s *Scheduler) OnPrintStarted(id string) error {
	return s.Cancel(id)
}

// ExecuteShutdownNow cancels the pending shutdown and powers the device off
// immediately, subject to the printer busy check.
func (s *Scheduler) ExecuteShutdownNow(id string) error {
	return s.executeShutdown(id, 0)
}

// Snapshot describes the pending shutdown of every device.
func (s *Scheduler) Snapshot() model.SidebarInfo {
	info := model.SidebarInfo{
		ShutdownAt:   map[string]*int64{},
		CooldownWait: map[string]*bool{},
	}
	for _, e := range s.registry.all() {
		d, sched := e.snapshot()
		info.ShutdownAt[d.ID] = nil
		if sched.mode == ModeTimeArmed {
			at := sched.target.Unix()
			info.ShutdownAt[d.ID] = &at
		}
		if d.ShutdownType == model.ShutdownCooldown {
			info.CooldownWait[d.ID] = nil
			if sched.mode == ModeCooldownArmed {
				waiting := true
				info.CooldownWait[d.ID] = &waiting
			}
		}
	}
	return info
}

// Mode returns the schedule state of a device.
func (s *Scheduler) Mode(id string) (ScheduleMode, error) {
	e, ok := s.registry.lookup(id)
	if !ok {
		return ModeIdle, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	_, sched := e.snapshot()
	return sched.mode, nil
}

// Stop cancels every pending timer, including delayed printer connects.
func (s *Scheduler) Stop() {
	for _, e := range s.registry.all() {
		e.mu.Lock()
		e.disarm(0)
		e.stopConnect()
		e.mu.Unlock()
	}
}

func (s *Scheduler) fire(id string, token uint64) {
	if err := s.executeShutdown(id, token); err != nil {
		s.logger.Warn("scheduled turn off not executed", zap.String("device_id", id), zap.Error(err))
	}
}

func (s *Scheduler) poll(id string, token uint64) {
	e, ok := s.registry.lookup(id)
	if !ok {
		return
	}
	e.mu.Lock()
	if e.sched.token != token || e.sched.mode != ModeCooldownArmed {
		e.mu.Unlock()
		return
	}
	d := e.device
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.printerTimeout)
	temps, err := s.printer.CurrentTemperatures(ctx)
	cancel()
	if err != nil {
		s.logger.Warn("reading temperatures", zap.String("device_id", id), zap.Error(err))
	} else if readyForStop(d, temps) {
		s.fire(id, token)
		return
	}

	e.mu.Lock()
	if e.sched.token != token {
		e.mu.Unlock()
		return
	}
	e.sched.timer = s.clock.AfterFunc(s.pollInterval, func() { s.poll(id, token) })
	e.mu.Unlock()
	s.notifySidebar()
}

// executeShutdown resets the schedule and switches the outlet off unless the
// printer is busy. A non zero token makes it a no-op once the schedule that
// carried it has been replaced.
func (s *Scheduler) executeShutdown(id string, token uint64) error {
	e, ok := s.registry.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	e.mu.Lock()
	if token != 0 && token != e.sched.token {
		e.mu.Unlock()
		return nil
	}
	e.disarm(0)
	e.stopConnect()
	d := e.device
	e.mu.Unlock()
	s.notifySidebar()

	ctx, cancel := context.WithTimeout(context.Background(), s.printerTimeout)
	defer cancel()

	state, err := s.printer.State(ctx)
	if err != nil {
		s.suppress(d, "unknown")
		return fmt.Errorf("%w: reading printer state: %v", ErrPrinterBusy, err)
	}
	if busy, reason := state.Busy(); busy {
		s.suppress(d, reason)
		return fmt.Errorf("%w: %s", ErrPrinterBusy, reason)
	}

	if err := s.printer.Disconnect(ctx); err != nil {
		s.logger.Warn("disconnecting printer", zap.String("device_id", id), zap.Error(err))
	}
	if err := s.outlet.switchOff(d); err != nil {
		return err
	}
	s.notifier.Notify(model.ChannelNavbar, s.registry.Navbar())
	return nil
}

func (s *Scheduler) suppress(d model.Device, reason string) {
	s.logger.Warn("not turning off outlet", zap.String("device_id", d.ID), zap.String("reason", reason))
	metrics.ShutdownsSuppressed.WithLabelValues(d.ID, reason).Inc()
	s.notifier.Notify(model.ChannelShutdownSuppressed, model.ShutdownSuppressed{DeviceID: d.ID, Reason: reason})
}

func (s *Scheduler) notifySidebar() {
	s.notifier.Notify(model.ChannelSidebar, s.Snapshot())
}

// readyForStop reports whether the heaters are below their thresholds. A
// threshold of -1 disables the check. The bed must report a reading when its
// check is on; a missing hotend reading is skipped.
func readyForStop(d model.Device, temps model.Temperatures) bool {
	if d.BedTemp > -1 && (temps.Bed == nil || temps.Bed.Actual > float64(d.BedTemp)) {
		return false
	}
	if d.HotendTemp > -1 && temps.Tool0 != nil && temps.Tool0.Actual > float64(d.HotendTemp) {
		return false
	}
	return true
}
