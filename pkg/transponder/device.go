// Package transponder runs the IR lap timer transponder.
package transponder

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rxlink.go/pkg/config"
	"github.com/robotalks/rxlink.go/pkg/framework"
)

// RetryInterval is the poll interval while no protocol is active.
const RetryInterval = 500 * time.Millisecond

// ProtocolSource provides the selected protocol, config.Store implements it.
type ProtocolSource interface {
	IRProtocol() config.IRProtocol
	TransponderID() uint32
}

// Slot owns at most one Transmitter.
type Slot struct {
	cur Transmitter
}

// Replace closes the current transmitter, then creates the next one.
// create may be nil to leave the slot empty.
func (s *Slot) Replace(create func() Transmitter) Transmitter {
	if s.cur != nil {
		if err := s.cur.Close(); err != nil {
			glog.Warningf("transponder close: %v", err)
		}
		s.cur = nil
	}
	if create != nil {
		s.cur = create()
	}
	return s.cur
}

// Get returns the current transmitter, nil if empty.
func (s *Slot) Get() Transmitter {
	return s.cur
}

// Device switches the transmitter when the configured protocol changes
// and paces the transmissions.
type Device struct {
	framework.DeviceBase

	src       ProtocolSource
	emitter   Emitter
	factories map[config.IRProtocol]Factory
	slot      Slot
	active    config.IRProtocol
}

// New creates a Device. Without an emitter the device stays idle.
func New(src ProtocolSource, emitter Emitter, factories map[config.IRProtocol]Factory) *Device {
	return &Device{
		src:       src,
		emitter:   emitter,
		factories: factories,
		active:    config.IRProtocolNone,
	}
}

// Name implements Named.
func (d *Device) Name() string {
	return "transponder"
}

// Active returns the active protocol.
func (d *Device) Active() config.IRProtocol {
	return d.active
}

// Initialize implements framework.Device.
func (d *Device) Initialize() error {
	if d.emitter == nil {
		return nil
	}
	return d.emitter.Configure()
}

// Start implements framework.Device.
func (d *Device) Start(now time.Time) framework.Wake {
	if d.emitter == nil {
		return framework.Never
	}
	return framework.Immediately
}

// Timeout implements framework.Device.
func (d *Device) Timeout(now time.Time) framework.Wake {
	protocol := d.src.IRProtocol()
	if protocol != d.active {
		d.activate(protocol)
		return framework.Immediately
	}
	t := d.slot.Get()
	if d.active == config.IRProtocolNone || t == nil {
		return framework.After(RetryInterval)
	}
	if !t.IsInitialised() {
		if err := t.Init(); err != nil {
			glog.Warningf("transponder %s init: %v", d.active, err)
			return framework.After(RetryInterval)
		}
	}
	return framework.After(t.StartTransmission())
}

func (d *Device) activate(protocol config.IRProtocol) {
	glog.Infof("transponder protocol %s -> %s", d.active, protocol)
	d.active = protocol
	factory := d.factories[protocol]
	if factory == nil {
		d.slot.Replace(nil)
		return
	}
	id := d.src.TransponderID()
	t := d.slot.Replace(func() Transmitter { return factory(d.emitter, id) })
	if err := t.Init(); err != nil {
		glog.Warningf("transponder %s init: %v", protocol, err)
	}
}
