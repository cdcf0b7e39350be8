// Package serialio forwards channel data to a downstream consumer (a flight
// controller) over a serial link and relays its telemetry back.
package serialio

import (
	"time"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/framework"
	"github.com/robotalks/rxlink.go/pkg/link"
)

// SerialIO is a serial protocol towards the downstream consumer.
// All methods are called from the kernel goroutine and never block.
type SerialIO interface {
	// SendRCFrame sends values when send is set, and reports a missed
	// frame when missed is set. It returns the delay until the next call.
	SendRCFrame(send, missed bool, values *channels.Values) time.Duration
	// ProcessSerialInput consumes whatever the consumer sent.
	ProcessSerialInput()
	// SendQueuedData writes queued data, at most maxBytes.
	SendQueuedData(maxBytes int)
	// MaxSerialWriteSize is the write budget per pass.
	MaxSerialWriteSize() int
	// SetFailsafe is called on every event, edge is true only on the
	// transition from connected to disconnected.
	SetFailsafe(edge bool)
}

// Device drives a SerialIO from the kernel.
type Device struct {
	io     SerialIO
	status *link.Status
	reader *channels.Reader
	prev   link.ConnectionState
}

// NewDevice creates a Device. io may be nil when no serial consumer
// is configured, the device then stays idle.
func NewDevice(io SerialIO, bus *channels.Bus, status *link.Status) *Device {
	return &Device{
		io:     io,
		status: status,
		reader: bus.NewReader(),
		prev:   link.Disconnected,
	}
}

// Name implements Named.
func (d *Device) Name() string {
	return "serial"
}

// Initialize implements framework.Device.
func (d *Device) Initialize() error {
	return nil
}

// Start implements framework.Device.
func (d *Device) Start(now time.Time) framework.Wake {
	return framework.Immediately
}

// Event implements framework.Device.
func (d *Device) Event(now time.Time) framework.Wake {
	if d.io == nil {
		return framework.Ignore
	}
	cur := d.status.State()
	d.io.SetFailsafe(d.prev == link.Connected && cur == link.Disconnected)
	prev := d.prev
	d.prev = cur
	if prev == link.SerialUpdate && cur != link.SerialUpdate {
		return framework.Immediately
	}
	return framework.Ignore
}

// Timeout implements framework.Device.
func (d *Device) Timeout(now time.Time) framework.Wake {
	if d.io == nil || d.status.State() == link.SerialUpdate {
		return framework.Never
	}
	missed := d.reader.TakeMissed()
	set, fresh := d.reader.Latest()
	send := fresh && d.status.ModelMatch()
	delay := d.io.SendRCFrame(send, missed, &set.Values)
	d.io.ProcessSerialInput()
	d.io.SendQueuedData(d.io.MaxSerialWriteSize())
	return framework.After(delay)
}
