package plug

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/anicoll/mqtt-plug/internal/pkg/model"
)

type ScheduleMode int

const (
	ModeIdle ScheduleMode = iota
	ModeTimeArmed
	ModeCooldownArmed
)

func (m ScheduleMode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeTimeArmed:
		return "time-armed"
	case ModeCooldownArmed:
		return "cooldown-armed"
	}
	return fmt.Sprintf("ScheduleMode(%d)", int(m))
}

// schedule is the pending shutdown of a single device. token is bumped on every
// arm and disarm so callbacks of replaced timers can detect they are stale.
type schedule struct {
	mode   ScheduleMode
	target time.Time
	timer  Timer
	token  uint64
}

// entry owns a device, its live power state and its schedule. All fields are
// guarded by mu.
type entry struct {
	mu      sync.Mutex
	device  model.Device
	powered bool
	sched   schedule
	// connect is the delayed printer connect armed when the outlet was switched on.
	connect Timer
}

// arm replaces the current schedule. The caller holds mu and passes a start
// function that creates the timer for the returned token.
func (e *entry) arm(mode ScheduleMode, target time.Time, start func(token uint64) Timer) uint64 {
	e.stopTimer()
	e.sched.token++
	e.sched.mode = mode
	e.sched.target = target
	e.sched.timer = start(e.sched.token)
	return e.sched.token
}

// disarm resets the schedule to idle and reports whether something was armed. A
// non zero token makes the call conditional on the schedule still carrying it.
// The caller holds mu.
func (e *entry) disarm(token uint64) bool {
	if token != 0 && token != e.sched.token {
		return false
	}
	wasArmed := e.sched.mode != ModeIdle
	e.stopTimer()
	e.sched.token++
	e.sched.mode = ModeIdle
	e.sched.target = time.Time{}
	return wasArmed
}

// armConnect replaces the pending printer connect. The caller holds mu.
func (e *entry) armConnect(t Timer) {
	e.stopConnect()
	e.connect = t
}

// stopConnect drops the pending printer connect. The caller holds mu.
func (e *entry) stopConnect() {
	if e.connect != nil {
		e.connect.Stop()
		e.connect = nil
	}
}

func (e *entry) stopTimer() {
	if e.sched.timer != nil {
		e.sched.timer.Stop()
		e.sched.timer = nil
	}
}

func (e *entry) snapshot() (model.Device, schedule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device, e.sched
}

// Registry holds the configured devices in insertion order.
type Registry struct {
	mu      sync.RWMutex
	entries []*entry
	byID    map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]*entry{}}
}

// Load replaces the registry contents. Pending schedules of the previous devices
// are cancelled.
func (r *Registry) Load(devices []model.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.mu.Lock()
		e.disarm(0)
		e.mu.Unlock()
	}
	r.entries = nil
	r.byID = map[string]*entry{}
	for _, d := range devices {
		r.addLocked(d)
	}
}

// Add registers cfg and returns it with its identifier. A missing or colliding
// identifier is replaced by a fresh one.
func (r *Registry) Add(cfg model.Device) model.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(cfg)
}

func (r *Registry) addLocked(cfg model.Device) model.Device {
	cfg.ShutdownType = cfg.ShutdownType.Normalize()
	if _, taken := r.byID[cfg.ID]; taken || !cfg.HasID() {
		cfg.ID = uuid.NewString()
	}
	e := &entry{device: cfg}
	r.entries = append(r.entries, e)
	r.byID[cfg.ID] = e
	return cfg
}

// Update applies u to the device with the given id.
func (r *Registry) Update(id string, u model.DeviceUpdate) (model.Device, error) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	u.Apply(&e.device)
	return e.device, nil
}

// Remove drops the device and cancels its pending schedule.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
		r.entries = lo.Without(r.entries, e)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	e.disarm(0)
	e.stopConnect()
	e.mu.Unlock()
	return true
}

func (r *Registry) Get(id string) (model.Device, bool) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Device{}, false
	}
	d, _ := e.snapshot()
	return d, true
}

func (r *Registry) List() []model.Device {
	return lo.Map(r.all(), func(e *entry, _ int) model.Device {
		d, _ := e.snapshot()
		return d
	})
}

// StateTopics returns the distinct status topics of all devices.
func (r *Registry) StateTopics() []string {
	topics := lo.Map(r.List(), func(d model.Device, _ int) string {
		return d.StateTopic
	})
	return lo.Uniq(lo.Compact(topics))
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

func (r *Registry) all() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*entry(nil), r.entries...)
}

// Navbar returns the tracked power state of every device.
func (r *Registry) Navbar() model.NavbarInfo {
	info := model.NavbarInfo{State: map[string]model.Status{}}
	for _, e := range r.all() {
		e.mu.Lock()
		info.State[e.device.ID] = model.Status{State: e.powered}
		e.mu.Unlock()
	}
	return info
}
