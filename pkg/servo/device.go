// Package servo drives the physical outputs from the channel bus
// and applies failsafe positions when the link is lost.
package servo

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/config"
	"github.com/robotalks/rxlink.go/pkg/framework"
	"github.com/robotalks/rxlink.go/pkg/link"
)

// AbsTimeout forces failsafe when no frame was published for this long,
// regardless of the link state.
const AbsTimeout = time.Second

// State is the per output state.
type State int

// Output states.
const (
	Uninitialized State = iota
	Normal
	Failsafe
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Normal:
		return "normal"
	case Failsafe:
		return "failsafe"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ChannelConfig provides the per output configuration.
// config.Store implements it.
type ChannelConfig interface {
	PwmChannelCount() int
	PwmChannel(ch int) config.PwmChannel
}

// DShot command range for throttle values.
const (
	DShotMin uint16 = 48
	DShotMax uint16 = 2047
)

// DShotCommand converts a pulse width to a DShot throttle command.
func DShotCommand(us int) uint16 {
	return uint16(clamp((us-1000)*2+47, int(DShotMin), int(DShotMax)))
}

// DutyCycle converts a pulse width to a 0..1 duty cycle.
func DutyCycle(us int) float64 {
	return float64(clamp(us, 1000, 2000)-1000) / 1000
}

// Device maps channel values onto the outputs.
type Device struct {
	driver Driver
	cfg    ChannelConfig
	status *link.Status
	reader *channels.Reader
	pins   []int

	// AbsTimeout overrides the package default when non-zero.
	AbsTimeout time.Duration

	states     []State
	armed      bool
	lastUpdate time.Time
}

// New creates a Device driving one output per entry in pins.
// Without pins the device stays idle.
func New(driver Driver, cfg ChannelConfig, bus *channels.Bus, status *link.Status, pins []int) *Device {
	return &Device{
		driver: driver,
		cfg:    cfg,
		status: status,
		reader: bus.NewReader(),
		pins:   pins,
		states: make([]State, len(pins)),
	}
}

// Name implements Named.
func (d *Device) Name() string {
	return "servo"
}

// States returns a copy of the per output states.
func (d *Device) States() []State {
	return append([]State(nil), d.states...)
}

// Initialize implements framework.Device.
func (d *Device) Initialize() error {
	if len(d.pins) == 0 {
		return nil
	}
	if n := d.cfg.PwmChannelCount(); n < len(d.pins) {
		glog.Warningf("servo: %d outputs but only %d configured", len(d.pins), n)
	}
	pins := make([]int, len(d.pins))
	for ch, pin := range d.pins {
		if d.cfg.PwmChannel(ch).Mode == config.ModeSerial {
			pin = PinDisconnected
		}
		pins[ch] = pin
	}
	if err := d.driver.Initialize(pins); err != nil {
		return fmt.Errorf("servo outputs: %v", err)
	}
	return nil
}

// Start implements framework.Device.
func (d *Device) Start(now time.Time) framework.Wake {
	for ch := range d.pins {
		if interval := d.cfg.PwmChannel(ch).Mode.RefreshInterval(); interval > 0 {
			d.driver.SetRefreshInterval(ch, interval)
		}
	}
	return framework.Never
}

// Event implements framework.Device.
func (d *Device) Event(now time.Time) framework.Wake {
	if len(d.pins) == 0 {
		return framework.Never
	}
	switch d.status.State() {
	case link.Disconnected:
		if d.armed {
			d.failsafe()
		}
		return framework.Never
	case link.WifiUpdate:
		d.driver.StopAll()
		return framework.Never
	}
	return framework.Immediately
}

// Timeout implements framework.Device.
func (d *Device) Timeout(now time.Time) framework.Wake {
	if len(d.pins) == 0 {
		return framework.Never
	}
	d.update(now)
	return framework.Immediately
}

func (d *Device) absTimeout() time.Duration {
	if d.AbsTimeout > 0 {
		return d.AbsTimeout
	}
	return AbsTimeout
}

func (d *Device) update(now time.Time) {
	set, fresh := d.reader.Latest()
	if fresh {
		d.armed, d.lastUpdate = true, set.UpdatedAt
		for ch := range d.states {
			cfg := d.cfg.PwmChannel(ch)
			if int(cfg.InputChannel) >= channels.Count {
				continue
			}
			v := set.Values[cfg.InputChannel]
			if v == 0 {
				continue
			}
			us := channels.ToMicroseconds(v)
			if cfg.Inverted {
				us = 2*channels.MidMicros - us
			}
			d.write(ch, cfg, clamp(us, channels.MinMicros, channels.MaxMicros))
			d.states[ch] = Normal
		}
		return
	}
	if d.armed && (d.status.LinkQuality() == 0 || now.Sub(d.lastUpdate) > d.absTimeout()) {
		d.failsafe()
	}
}

// failsafe writes the configured failsafe position to every output,
// without inversion, and disarms until fresh data arrives.
func (d *Device) failsafe() {
	glog.Warning("servo: failsafe")
	for ch := range d.states {
		cfg := d.cfg.PwmChannel(ch)
		d.write(ch, cfg, cfg.FailsafeMicros())
		d.states[ch] = Failsafe
	}
	d.armed = false
}

func (d *Device) write(ch int, cfg config.PwmChannel, us int) {
	switch {
	case cfg.Mode.IsPulse():
		d.driver.WriteMicroseconds(ch, us/(int(cfg.Narrow)+1))
	case cfg.Mode == config.ModeOnOff:
		d.driver.WriteDigital(ch, us > channels.MidMicros)
	case cfg.Mode == config.Mode10KHzDuty:
		d.driver.WriteDuty(ch, DutyCycle(us))
	case cfg.Mode == config.ModeDShot:
		d.driver.WriteDShot(ch, DShotCommand(us))
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
