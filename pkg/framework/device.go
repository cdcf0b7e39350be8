package framework

import (
	"fmt"
	"time"
)

// Wake tells the Kernel when a device hook wants to be invoked next.
// Non-negative values are delays relative to the time the hook returned,
// negative values are the special directives Never and Ignore.
type Wake time.Duration

const (
	// Immediately requests the next pass with zero delay.
	Immediately Wake = 0
	// Never suppresses Timeout calls until an Event reschedules the device.
	Never Wake = -1
	// Ignore keeps the previously computed wake time unchanged.
	// It is not a delay.
	Ignore Wake = -2
)

// After converts a delay into a Wake. Negative delays mean Immediately.
func After(d time.Duration) Wake {
	if d < 0 {
		return Immediately
	}
	return Wake(d)
}

// AfterMillis is After in milliseconds.
func AfterMillis(ms uint32) Wake {
	return Wake(time.Duration(ms) * time.Millisecond)
}

// IsDelay indicates the Wake is a concrete delay (including Immediately).
func (w Wake) IsDelay() bool {
	return w >= 0
}

// Delay returns the delay, only meaningful when IsDelay.
func (w Wake) Delay() time.Duration {
	return time.Duration(w)
}

// String implements fmt.Stringer.
func (w Wake) String() string {
	switch {
	case w == Never:
		return "never"
	case w == Ignore:
		return "ignore"
	case w == Immediately:
		return "immediately"
	case w > 0:
		return time.Duration(w).String()
	}
	return fmt.Sprintf("wake(%d)", int64(w))
}

// Device is a unit multiplexed by the Kernel.
// All hooks run on the Kernel's goroutine and must be bounded,
// non-blocking steps.
type Device interface {
	// Initialize is called once at boot, before any other hook.
	Initialize() error
	// Start is called once after every device has been initialized.
	Start(now time.Time) Wake
	// Event is called on every device when an application-wide
	// event (e.g. connection state change) was triggered.
	Event(now time.Time) Wake
	// Timeout is called when the scheduled wake time is reached.
	Timeout(now time.Time) Wake
}

// DeviceBase provides default hooks. Embed it and override the
// hooks a device actually needs.
type DeviceBase struct{}

// Initialize implements Device.
func (DeviceBase) Initialize() error { return nil }

// Start implements Device.
func (DeviceBase) Start(time.Time) Wake { return Never }

// Event implements Device.
func (DeviceBase) Event(time.Time) Wake { return Ignore }

// Timeout implements Device.
func (DeviceBase) Timeout(time.Time) Wake { return Never }
