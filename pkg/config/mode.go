package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputMode selects how an output is driven.
type OutputMode uint8

// Output modes.
const (
	Mode50Hz OutputMode = iota
	Mode60Hz
	Mode100Hz
	Mode160Hz
	Mode333Hz
	Mode400Hz
	Mode10KHzDuty
	ModeOnOff
	ModeDShot
	ModeSerial
)

var modeNames = [...]string{
	Mode50Hz:      "50hz",
	Mode60Hz:      "60hz",
	Mode100Hz:     "100hz",
	Mode160Hz:     "160hz",
	Mode333Hz:     "333hz",
	Mode400Hz:     "400hz",
	Mode10KHzDuty: "10khz-duty",
	ModeOnOff:     "onoff",
	ModeDShot:     "dshot",
	ModeSerial:    "serial",
}

// String implements fmt.Stringer.
func (m OutputMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseOutputMode parses the String form, case insensitive.
func ParseOutputMode(s string) (OutputMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return OutputMode(m), nil
		}
	}
	return 0, fmt.Errorf("unknown output mode %q", s)
}

// IsPulse indicates a servo style pulse output.
func (m OutputMode) IsPulse() bool {
	return m <= Mode400Hz
}

// RefreshInterval is the output refresh period of the mode,
// 0 for modes without a periodic signal.
func (m OutputMode) RefreshInterval() time.Duration {
	hz := 0
	switch m {
	case Mode50Hz:
		hz = 50
	case Mode60Hz:
		hz = 60
	case Mode100Hz:
		hz = 100
	case Mode160Hz:
		hz = 160
	case Mode333Hz:
		hz = 333
	case Mode400Hz:
		hz = 400
	case Mode10KHzDuty:
		hz = 10000
	case ModeDShot:
		hz = 1000
	default:
		return 0
	}
	return time.Duration(1000000/hz) * time.Microsecond
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *OutputMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseOutputMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m OutputMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}
