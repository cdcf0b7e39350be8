package transponder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rxlink.go/pkg/config"
)

// Emitter is the IR peripheral shared by all protocols.
type Emitter interface {
	// Configure prepares the peripheral, called once at boot.
	Configure() error
	// Emit sends one encoded code.
	Emit(protocol config.IRProtocol, code []byte) error
}

// Transmitter sends lap timer codes of one protocol.
type Transmitter interface {
	Init() error
	IsInitialised() bool
	// StartTransmission emits one code and returns the delay until the next.
	StartTransmission() time.Duration
	Close() error
}

// Factory creates a Transmitter for a transponder id.
type Factory func(emitter Emitter, id uint32) Transmitter

// Factories returns the transmitters of the known protocols.
func Factories() map[config.IRProtocol]Factory {
	return map[config.IRProtocol]Factory{
		config.IRProtocolRobitronic: NewRobitronic,
		config.IRProtocolILap:       NewILap,
	}
}

// Transmission intervals.
const (
	RobitronicInterval = 5 * time.Millisecond
	ILapInterval       = 10 * time.Millisecond
)

var errClosed = errors.New("transmitter closed")

type codeTransmitter struct {
	protocol config.IRProtocol
	emitter  Emitter
	encode   func() []byte
	interval time.Duration
	code     []byte
	closed   bool
}

// NewRobitronic creates a Robitronic transmitter: the id as 4 bytes
// little endian followed by a xor checksum.
func NewRobitronic(emitter Emitter, id uint32) Transmitter {
	return &codeTransmitter{
		protocol: config.IRProtocolRobitronic,
		emitter:  emitter,
		interval: RobitronicInterval,
		encode: func() []byte {
			code := []byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24), 0}
			for _, b := range code[:4] {
				code[4] ^= b
			}
			return code
		},
	}
}

// NewILap creates an I-Lap transmitter: the id as 7 decimal digits.
func NewILap(emitter Emitter, id uint32) Transmitter {
	return &codeTransmitter{
		protocol: config.IRProtocolILap,
		emitter:  emitter,
		interval: ILapInterval,
		encode: func() []byte {
			return []byte(fmt.Sprintf("%07d", id%10000000))
		},
	}
}

func (t *codeTransmitter) Init() error {
	if t.closed {
		return errClosed
	}
	t.code = t.encode()
	glog.V(2).Infof("transponder %s initialized", t.protocol)
	return nil
}

func (t *codeTransmitter) IsInitialised() bool {
	return t.code != nil
}

func (t *codeTransmitter) StartTransmission() time.Duration {
	if err := t.emitter.Emit(t.protocol, t.code); err != nil {
		glog.V(2).Infof("transponder %s emit: %v", t.protocol, err)
		t.code = nil
	}
	return t.interval
}

func (t *codeTransmitter) Close() error {
	t.closed, t.code = true, nil
	return nil
}

// SimEmitter records emitted codes.
type SimEmitter struct {
	lock   sync.Mutex
	counts map[config.IRProtocol]int
	last   []byte
}

// NewSimEmitter creates a SimEmitter.
func NewSimEmitter() *SimEmitter {
	return &SimEmitter{counts: make(map[config.IRProtocol]int)}
}

// Configure implements Emitter.
func (e *SimEmitter) Configure() error {
	return nil
}

// Emit implements Emitter.
func (e *SimEmitter) Emit(protocol config.IRProtocol, code []byte) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.counts[protocol]++
	e.last = append(e.last[:0], code...)
	glog.V(4).Infof("ir %s: %x", protocol, code)
	return nil
}

// Count returns the number of codes emitted for protocol.
func (e *SimEmitter) Count(protocol config.IRProtocol) int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.counts[protocol]
}

// Last returns the last emitted code.
func (e *SimEmitter) Last() []byte {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]byte(nil), e.last...)
}
