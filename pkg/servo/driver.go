package servo

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

// PinDisconnected marks an output without a physical pin.
const PinDisconnected = -1

// Driver is the physical output layer. Writes are fire-and-forget and
// assumed infallible, only Initialize may fail.
type Driver interface {
	// Initialize claims the pins, driving all outputs low.
	Initialize(pins []int) error
	// SetRefreshInterval sets the signal period of an output.
	SetRefreshInterval(ch int, interval time.Duration)
	// WriteMicroseconds outputs a pulse of the given width.
	WriteMicroseconds(ch int, us int)
	// WriteDigital sets the output high or low.
	WriteDigital(ch int, on bool)
	// WriteDuty outputs a duty cycle in 0..1.
	WriteDuty(ch int, duty float64)
	// WriteDShot sends a DShot command value.
	WriteDShot(ch int, cmd uint16)
	// StopAll stops every periodic output.
	StopAll()
}

// OutputKind tells which Driver write produced an Output.
type OutputKind int

// Output kinds.
const (
	OutputNone OutputKind = iota
	OutputPulse
	OutputDigital
	OutputDuty
	OutputDShot
)

// Output is the last signal written to a channel.
type Output struct {
	Kind    OutputKind
	Pin     int
	Refresh time.Duration
	Micros  int
	Digital bool
	Duty    float64
	DShot   uint16
	Writes  int
}

// String implements fmt.Stringer.
func (o Output) String() string {
	switch o.Kind {
	case OutputPulse:
		return fmt.Sprintf("%dus", o.Micros)
	case OutputDigital:
		if o.Digital {
			return "on"
		}
		return "off"
	case OutputDuty:
		return fmt.Sprintf("%.1f%%", o.Duty*100)
	case OutputDShot:
		return fmt.Sprintf("dshot:%d", o.DShot)
	}
	return "-"
}

// SimDriver is a Driver keeping outputs in memory, used when no output
// hardware exists (host simulation) and for diagnostics.
type SimDriver struct {
	outputs []Output
	stopped bool
	lock    sync.Mutex
}

// NewSimDriver creates a SimDriver.
func NewSimDriver() *SimDriver {
	return &SimDriver{}
}

// Initialize implements Driver.
func (d *SimDriver) Initialize(pins []int) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.outputs = make([]Output, len(pins))
	for ch, pin := range pins {
		d.outputs[ch].Pin = pin
	}
	glog.V(2).Infof("sim outputs initialized on pins %v", pins)
	return nil
}

// SetRefreshInterval implements Driver.
func (d *SimDriver) SetRefreshInterval(ch int, interval time.Duration) {
	d.update(ch, func(o *Output) { o.Refresh = interval })
}

// WriteMicroseconds implements Driver.
func (d *SimDriver) WriteMicroseconds(ch int, us int) {
	d.write(ch, func(o *Output) { o.Kind, o.Micros = OutputPulse, us })
}

// WriteDigital implements Driver.
func (d *SimDriver) WriteDigital(ch int, on bool) {
	d.write(ch, func(o *Output) { o.Kind, o.Digital = OutputDigital, on })
}

// WriteDuty implements Driver.
func (d *SimDriver) WriteDuty(ch int, duty float64) {
	d.write(ch, func(o *Output) { o.Kind, o.Duty = OutputDuty, duty })
}

// WriteDShot implements Driver.
func (d *SimDriver) WriteDShot(ch int, cmd uint16) {
	d.write(ch, func(o *Output) { o.Kind, o.DShot = OutputDShot, cmd })
}

// StopAll implements Driver.
func (d *SimDriver) StopAll() {
	d.lock.Lock()
	d.stopped = true
	d.lock.Unlock()
	glog.V(2).Info("sim outputs stopped")
}

// Outputs returns a copy of the current outputs.
func (d *SimDriver) Outputs() []Output {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]Output(nil), d.outputs...)
}

// Stopped indicates StopAll was called.
func (d *SimDriver) Stopped() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.stopped
}

func (d *SimDriver) write(ch int, fn func(*Output)) {
	d.update(ch, func(o *Output) {
		prev := o.String()
		fn(o)
		o.Writes++
		if cur := o.String(); cur != prev && glog.V(3) {
			glog.Infof("output %d: %s", ch, cur)
		}
	})
}

func (d *SimDriver) update(ch int, fn func(*Output)) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if ch >= 0 && ch < len(d.outputs) {
		fn(&d.outputs[ch])
	}
}
