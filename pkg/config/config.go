// Package config loads the receiver configuration. The devices only read
// it through Store, nothing in the receiver writes configuration back.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the receiver configuration file.
type Config struct {
	// ModelID is the transmitter model this receiver is bound to,
	// AnyModel accepts every transmitter.
	ModelID uint8 `yaml:"model_id"`

	RxTimeoutMs     int `yaml:"rx_timeout_ms"`
	FrameIntervalMs int `yaml:"frame_interval_ms"`

	Outputs     []PwmChannel      `yaml:"outputs"`
	Serial      SerialConfig      `yaml:"serial"`
	Transponder TransponderConfig `yaml:"transponder"`
}

// AnyModel disables model matching.
const AnyModel uint8 = 0xff

// PwmChannel configures one physical output.
type PwmChannel struct {
	// InputChannel selects the channel driving this output.
	InputChannel uint8 `yaml:"input"`
	// Failsafe is the failsafe position as microseconds above FailsafeBaseMicros.
	Failsafe uint16     `yaml:"failsafe"`
	Inverted bool       `yaml:"inverted"`
	Mode     OutputMode `yaml:"mode"`
	// Narrow divides the pulse width by Narrow+1.
	Narrow uint8 `yaml:"narrow"`
}

// FailsafeBaseMicros is the pulse width of failsafe value 0.
const FailsafeBaseMicros = 988

// Limits of PwmChannel fields.
const (
	MaxFailsafe = 1023
	MaxNarrow   = 15
	// MaxTransponderID fits 7 decimal digits.
	MaxTransponderID = 9999999
)

// FailsafeMicros returns the absolute failsafe pulse width.
func (c PwmChannel) FailsafeMicros() int {
	return int(c.Failsafe) + FailsafeBaseMicros
}

// SerialConfig configures the downstream serial consumer.
type SerialConfig struct {
	// Port is a port URL, e.g. serial:///dev/ttyUSB0?baud=420000,
	// ws://host:port/path or tcp://host:port. Empty disables the port.
	Port string `yaml:"port"`
	// MaxWrite is the largest single write in bytes.
	MaxWrite int `yaml:"max_write"`
	// FrameIntervalMs is the minimal interval between RC frames.
	FrameIntervalMs int `yaml:"frame_interval_ms"`
}

// FrameInterval returns FrameIntervalMs as a Duration, 0 if unset.
func (c SerialConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// TransponderConfig selects the lap timer transponder protocol.
type TransponderConfig struct {
	Protocol IRProtocol `yaml:"protocol"`
	// ID is the transponder number announced to the lap timer.
	ID uint32 `yaml:"id"`
}

// IRProtocol names a lap timer transponder protocol.
type IRProtocol string

// Known protocols.
const (
	IRProtocolNone       IRProtocol = "none"
	IRProtocolRobitronic IRProtocol = "robitronic"
	IRProtocolILap       IRProtocol = "ilap"
)

// Defaults
const (
	DefaultRxTimeoutMs     = 1500
	DefaultFrameIntervalMs = 4
	DefaultMaxWrite        = 64
	DefaultFailsafe        = 512
)

// Default returns the configuration used without a file:
// 8 pulse outputs mapped 1:1 centered on failsafe.
func Default() *Config {
	c := &Config{ModelID: AnyModel}
	for i := 0; i < 8; i++ {
		c.Outputs = append(c.Outputs, PwmChannel{
			InputChannel: uint8(i),
			Failsafe:     DefaultFailsafe,
			Mode:         Mode50Hz,
		})
	}
	c.Normalize()
	return c
}

// Normalize fills in defaults.
func (c *Config) Normalize() {
	if c.RxTimeoutMs <= 0 {
		c.RxTimeoutMs = DefaultRxTimeoutMs
	}
	if c.FrameIntervalMs <= 0 {
		c.FrameIntervalMs = DefaultFrameIntervalMs
	}
	if c.Serial.MaxWrite <= 0 {
		c.Serial.MaxWrite = DefaultMaxWrite
	}
	c.Transponder.Protocol = IRProtocol(strings.ToLower(string(c.Transponder.Protocol)))
	if c.Transponder.Protocol == "" {
		c.Transponder.Protocol = IRProtocolNone
	}
}

// Validate checks value ranges. It expects a normalized config.
func (c *Config) Validate() error {
	for n, out := range c.Outputs {
		if out.Failsafe > MaxFailsafe {
			return fmt.Errorf("outputs[%d]: failsafe %d out of range 0..%d", n, out.Failsafe, MaxFailsafe)
		}
		if out.Narrow > MaxNarrow {
			return fmt.Errorf("outputs[%d]: narrow %d out of range 0..%d", n, out.Narrow, MaxNarrow)
		}
	}
	switch c.Transponder.Protocol {
	case IRProtocolNone, IRProtocolRobitronic, IRProtocolILap:
	default:
		return fmt.Errorf("transponder: unknown protocol %q", c.Transponder.Protocol)
	}
	if c.Transponder.ID > MaxTransponderID {
		return fmt.Errorf("transponder: id %d out of range 0..%d", c.Transponder.ID, MaxTransponderID)
	}
	return nil
}

// RxTimeout returns RxTimeoutMs as a Duration.
func (c *Config) RxTimeout() time.Duration {
	return time.Duration(c.RxTimeoutMs) * time.Millisecond
}

// FrameInterval returns FrameIntervalMs as a Duration.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}
