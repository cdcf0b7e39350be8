package framework

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// DefaultPassInterval is the dispatch interval used when Kernel.Interval is 0.
const DefaultPassInterval = time.Millisecond

// Kernel is a cooperative scheduler multiplexing Devices on a single
// goroutine. Hooks are invoked in registration order, there are no
// priorities and no preemption.
//
// Register and the dispatch methods (Boot, Init, Start, RunPass) must be
// called from the same goroutine. TriggerEvent is safe from any goroutine.
type Kernel struct {
	Interval time.Duration
	// Clock provides the time for Run, time.Now if nil.
	Clock func() time.Time

	devices []*deviceEntry
	pending []*deviceEntry
	phase   kernelPhase

	eventPending atomic.Bool
	wakeUpCh     chan struct{}
}

type kernelPhase int

const (
	phaseRegistering kernelPhase = iota
	phaseInitialized
	phaseStarted
	phaseFailed
)

// ErrInitFailed is returned when initialization is attempted again after
// a device failed to initialize.
var ErrInitFailed = errors.New("kernel initialization failed")

type deviceEntry struct {
	dev       Device
	name      string
	scheduled bool
	wakeAt    time.Time
}

// NewKernel creates a Kernel.
func NewKernel() *Kernel {
	return &Kernel{
		Interval: DefaultPassInterval,
		wakeUpCh: make(chan struct{}, 1),
	}
}

// Register adds devices. Before Boot they join the boot sequence,
// afterwards they are initialized and started at the beginning of the
// next pass.
func (k *Kernel) Register(devs ...Device) *Kernel {
	for _, dev := range devs {
		entry := &deviceEntry{dev: dev}
		if named, ok := dev.(Named); ok {
			entry.name = named.Name()
		} else {
			entry.name = strconv.Itoa(len(k.devices) + len(k.pending))
		}
		if k.phase == phaseRegistering {
			k.devices = append(k.devices, entry)
		} else {
			k.pending = append(k.pending, entry)
		}
	}
	return k
}

// Init calls Initialize on every registered device. All devices are
// initialized even if some fail, and the failures are aggregated.
// A non-nil result means the process must not proceed.
func (k *Kernel) Init() error {
	if k.phase == phaseFailed {
		return ErrInitFailed
	}
	if k.phase != phaseRegistering {
		return fmt.Errorf("kernel already initialized")
	}
	var errs AggregatedError
	for _, e := range k.devices {
		if err := e.dev.Initialize(); err != nil {
			errs.Add(&DeviceError{Device: e.name, Op: "initialize", Err: err})
		}
	}
	if err := errs.Aggregate(); err != nil {
		k.phase = phaseFailed
		return err
	}
	k.phase = phaseInitialized
	return nil
}

// Start calls Start on every device exactly once. It must follow Init.
func (k *Kernel) Start(now time.Time) error {
	if k.phase != phaseInitialized {
		return fmt.Errorf("kernel not initialized or already started")
	}
	for _, e := range k.devices {
		e.start(now)
	}
	k.phase = phaseStarted
	return nil
}

// Boot is Init followed by Start.
func (k *Kernel) Boot(now time.Time) error {
	if err := k.Init(); err != nil {
		return err
	}
	return k.Start(now)
}

// TriggerEvent requests Event hooks to be invoked on the next pass
// and wakes up Run.
func (k *Kernel) TriggerEvent() {
	k.eventPending.Store(true)
	if k.wakeUpCh == nil {
		return
	}
	select {
	case k.wakeUpCh <- struct{}{}:
	default:
	}
}

// RunPass performs one dispatch pass at the given time.
func (k *Kernel) RunPass(now time.Time) {
	if k.phase != phaseStarted {
		return
	}
	k.admitPending(now)
	if k.eventPending.Swap(false) {
		for _, e := range k.devices {
			e.schedule(now, e.dev.Event(now))
		}
	}
	for _, e := range k.devices {
		if e.due(now) {
			e.schedule(now, e.dev.Timeout(now))
		}
	}
}

// NextWake reports when the device's Timeout is next due.
// ok is false if the device is unknown or not scheduled (Never).
func (k *Kernel) NextWake(dev Device) (at time.Time, ok bool) {
	for _, e := range k.devices {
		if e.dev == dev {
			return e.wakeAt, e.scheduled
		}
	}
	return
}

// Run boots (or starts) the kernel if needed and dispatches passes every Interval
// and whenever an event is triggered, until ctx is done.
func (k *Kernel) Run(ctx context.Context) error {
	if k.wakeUpCh == nil {
		k.wakeUpCh = make(chan struct{}, 1)
	}
	switch k.phase {
	case phaseRegistering:
		if err := k.Boot(k.now()); err != nil {
			return err
		}
	case phaseInitialized:
		if err := k.Start(k.now()); err != nil {
			return err
		}
	case phaseFailed:
		return ErrInitFailed
	}
	interval := k.Interval
	if interval <= 0 {
		interval = DefaultPassInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	glog.Infof("kernel running %d devices every %v", len(k.devices), interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.RunPass(k.now())
		case <-k.wakeUpCh:
			k.RunPass(k.now())
		}
	}
}

func (k *Kernel) now() time.Time {
	if k.Clock != nil {
		return k.Clock()
	}
	return time.Now()
}

func (k *Kernel) admitPending(now time.Time) {
	if len(k.pending) == 0 {
		return
	}
	pending := k.pending
	k.pending = nil
	for _, e := range pending {
		if err := e.dev.Initialize(); err != nil {
			panic(&DeviceError{Device: e.name, Op: "initialize", Err: err})
		}
		k.devices = append(k.devices, e)
		e.start(now)
	}
}

func (e *deviceEntry) start(now time.Time) {
	w := e.dev.Start(now)
	if w == Ignore {
		w = Never
	}
	e.schedule(now, w)
	glog.V(4).Infof("device %s started: %v", e.name, w)
}

func (e *deviceEntry) schedule(now time.Time, w Wake) {
	switch {
	case w == Ignore:
	case w == Never:
		e.scheduled = false
	case w.IsDelay():
		e.scheduled, e.wakeAt = true, now.Add(w.Delay())
	default:
		e.scheduled = false
	}
}

func (e *deviceEntry) due(now time.Time) bool {
	return e.scheduled && !now.Before(e.wakeAt)
}
