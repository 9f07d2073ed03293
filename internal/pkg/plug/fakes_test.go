package plug

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

var epoch = time.Unix(1_700_000_000, 0)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward, running due callbacks in order outside the
// clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type publishedMessage struct {
	Topic    string
	Payload  string
	Retained bool
}

type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	published    []publishedMessage
	handlers     map[string]MessageHandler
	unsubscribed []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true, handlers: map[string]MessageHandler{}}
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) setConnected(connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = connected
}

func (f *fakeTransport) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{Topic: topic, Payload: string(payload), Retained: retained})
	return nil
}

func (f *fakeTransport) Subscribe(topic string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeTransport) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[topic]
	return ok
}

// deliver hands a message to the handler registered for subscription.
func (f *fakeTransport) deliver(subscription, topic string, payload []byte) error {
	f.mu.Lock()
	handler, ok := f.handlers[subscription]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return handler(topic, payload)
}

func (f *fakeTransport) messagesTo(topic string) []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMessage
	for _, m := range f.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) countPayload(topic, payload string) int {
	n := 0
	for _, m := range f.messagesTo(topic) {
		if m.Payload == payload {
			n++
		}
	}
	return n
}

type fakePrinter struct {
	CurrentTemperaturesFunc func(ctx context.Context) (model.Temperatures, error)
	StateFunc               func(ctx context.Context) (model.PrinterState, error)
	ConnectFunc             func(ctx context.Context) error
	ConnectPalette2Func     func(ctx context.Context) error
	DisconnectFunc          func(ctx context.Context) error

	mu               sync.Mutex
	temperatureCalls int
	connects         int
	palette2Connects int
	disconnects      int
}

func (f *fakePrinter) CurrentTemperatures(ctx context.Context) (model.Temperatures, error) {
	f.mu.Lock()
	f.temperatureCalls++
	f.mu.Unlock()
	if f.CurrentTemperaturesFunc != nil {
		return f.CurrentTemperaturesFunc(ctx)
	}
	return model.Temperatures{
		Bed:   &model.TemperatureReading{Actual: 21},
		Tool0: &model.TemperatureReading{Actual: 21},
	}, nil
}

func (f *fakePrinter) State(ctx context.Context) (model.PrinterState, error) {
	if f.StateFunc != nil {
		return f.StateFunc(ctx)
	}
	return model.PrinterState{Text: "Operational", Operational: true}, nil
}

func (f *fakePrinter) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
	if f.ConnectFunc != nil {
		return f.ConnectFunc(ctx)
	}
	return nil
}

func (f *fakePrinter) ConnectPalette2(ctx context.Context) error {
	f.mu.Lock()
	f.palette2Connects++
	f.mu.Unlock()
	if f.ConnectPalette2Func != nil {
		return f.ConnectPalette2Func(ctx)
	}
	return nil
}

func (f *fakePrinter) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	if f.DisconnectFunc != nil {
		return f.DisconnectFunc(ctx)
	}
	return nil
}

func (f *fakePrinter) calls() (temperatures, connects, palette2, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.temperatureCalls, f.connects, f.palette2Connects, f.disconnects
}

type notification struct {
	Channel string
	Payload any
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notification
}

func (r *recordingNotifier) Notify(channel string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, notification{Channel: channel, Payload: payload})
}

func (r *recordingNotifier) count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Channel == channel {
			n++
		}
	}
	return n
}

func (r *recordingNotifier) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

func (r *recordingNotifier) last(channel string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notes) - 1; i >= 0; i-- {
		if r.notes[i].Channel == channel {
			return r.notes[i].Payload, true
		}
	}
	return nil, false
}

type memStore struct {
	LoadDevicesFunc func(ctx context.Context) ([]model.Device, error)
	SaveDevicesFunc func(ctx context.Context, devices []model.Device) error

	mu    sync.Mutex
	saved [][]model.Device
}

func (m *memStore) LoadDevices(ctx context.Context) ([]model.Device, error) {
	if m.LoadDevicesFunc != nil {
		return m.LoadDevicesFunc(ctx)
	}
	return nil, nil
}

func (m *memStore) SaveDevices(ctx context.Context, devices []model.Device) error {
	m.mu.Lock()
	m.saved = append(m.saved, devices)
	m.mu.Unlock()
	if m.SaveDevicesFunc != nil {
		return m.SaveDevicesFunc(ctx, devices)
	}
	return nil
}

func (m *memStore) lastSaved() []model.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

type harness struct {
	clock      *fakeClock
	transport  *fakeTransport
	printer    *fakePrinter
	notifier   *recordingNotifier
	store      *memStore
	registry   *Registry
	scheduler  *Scheduler
	tracker    *Tracker
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, cfg DispatcherConfig, devices ...model.Device) *harness {
	t.Helper()
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t)))

	h := &harness{
		clock:     newFakeClock(epoch),
		transport: newFakeTransport(),
		printer:   &fakePrinter{},
		notifier:  &recordingNotifier{},
		store:     &memStore{},
		registry:  NewRegistry(),
	}
	h.registry.Load(devices)
	require.Len(t, h.registry.List(), len(devices))

	h.scheduler = NewScheduler(h.registry, h.transport, h.printer, h.notifier, WithClock(h.clock))
	h.tracker = NewTracker(h.registry, h.notifier)
	h.dispatcher = NewDispatcher(cfg, h.registry, h.scheduler, h.tracker, h.transport, h.printer, h.store, h.notifier)
	return h
}

func timeDevice(id string) model.Device {
	d := model.NewDevice()
	d.ID = id
	d.DeviceName = "Printer " + id
	d.StateTopic = "plug/" + id + "/state"
	d.SwitchTopic = "plug/" + id + "/switch"
	d.ShutdownType = model.ShutdownTime
	d.StopDelay = 60
	d.PostponeDelay = 30
	return d
}

func cooldownDevice(id string) model.Device {
	d := timeDevice(id)
	d.ShutdownType = model.ShutdownCooldown
	d.BedTemp = 30
	d.HotendTemp = -1
	return d
}

func printing(context.Context) (model.PrinterState, error) {
	return model.PrinterState{Text: "Printing", Operational: true, Printing: true}, nil
}

func bedAt(actual float64) model.Temperatures {
	return model.Temperatures{Bed: &model.TemperatureReading{Actual: actual}}
}
