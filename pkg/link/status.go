// Package link holds the process wide link state maintained by the radio
// link layer and read by the devices.
package link

import "sync/atomic"

// ConnectionState is the state of the radio link.
type ConnectionState int32

// Connection states.
const (
	Disconnected ConnectionState = iota
	Connected
	WifiUpdate
	SerialUpdate
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case WifiUpdate:
		return "wifi-update"
	case SerialUpdate:
		return "serial-update"
	}
	return "unknown"
}

// ParseConnectionState parses the String form.
func ParseConnectionState(s string) (ConnectionState, bool) {
	for st := Disconnected; st <= SerialUpdate; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return Disconnected, false
}

// Status is written by a single writer (the link layer) and read
// by many. All accessors are lock free.
type Status struct {
	state      atomic.Int32
	lq         atomic.Uint32
	modelMatch atomic.Bool
}

// NewStatus creates a Status: disconnected, LQ 0, model matched.
func NewStatus() *Status {
	s := &Status{}
	s.modelMatch.Store(true)
	return s
}

// State returns the connection state.
func (s *Status) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// SetState updates the connection state and reports whether it changed.
func (s *Status) SetState(state ConnectionState) bool {
	return ConnectionState(s.state.Swap(int32(state))) != state
}

// LinkQuality returns the link quality 0..100.
func (s *Status) LinkQuality() uint8 {
	return uint8(s.lq.Load())
}

// SetLinkQuality updates the link quality, clamped to 100.
func (s *Status) SetLinkQuality(lq uint8) {
	if lq > 100 {
		lq = 100
	}
	s.lq.Store(uint32(lq))
}

// ModelMatch indicates frames come from the paired transmitter model.
func (s *Status) ModelMatch() bool {
	return s.modelMatch.Load()
}

// SetModelMatch updates the model match gate.
func (s *Status) SetModelMatch(match bool) {
	s.modelMatch.Store(match)
}
