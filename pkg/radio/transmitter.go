package radio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/msgs"
)

// DefaultRateHz is the default frame rate of a Transmitter.
const DefaultRateHz = 250

// Transmitter publishes RC frames to a receiver at a fixed rate.
type Transmitter struct {
	pub  Publisher
	rxID string

	lock     sync.Mutex
	values   channels.Values
	modelID  uint8
	interval time.Duration
	running  bool
	seq      uint32
	rateCh   chan struct{}
}

// NewTransmitter creates a Transmitter with all channels centered.
func NewTransmitter(pub Publisher, rxID string, modelID uint8) *Transmitter {
	t := &Transmitter{
		pub:      pub,
		rxID:     rxID,
		modelID:  modelID,
		interval: time.Second / DefaultRateHz,
		running:  true,
		rateCh:   make(chan struct{}, 1),
	}
	t.Center()
	return t
}

// Name implements Named.
func (t *Transmitter) Name() string {
	return "tx"
}

// Set sets a channel value.
func (t *Transmitter) Set(ch int, v uint16) error {
	if ch < 0 || ch >= channels.Count {
		return fmt.Errorf("channel %d out of range 0..%d", ch, channels.Count-1)
	}
	if v > channels.Limit {
		return fmt.Errorf("value %d out of range 0..%d", v, channels.Limit)
	}
	t.lock.Lock()
	t.values[ch] = v
	t.lock.Unlock()
	return nil
}

// Center sets all channels to the middle.
func (t *Transmitter) Center() {
	t.lock.Lock()
	for n := range t.values {
		t.values[n] = channels.Mid
	}
	t.lock.Unlock()
}

// Values returns the current values.
func (t *Transmitter) Values() channels.Values {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.values
}

// SetModel changes the model id sent with frames.
func (t *Transmitter) SetModel(id uint8) {
	t.lock.Lock()
	t.modelID = id
	t.lock.Unlock()
}

// SetRate changes the frame rate.
func (t *Transmitter) SetRate(hz int) error {
	if hz <= 0 || hz > 1000 {
		return fmt.Errorf("rate %d out of range 1..1000", hz)
	}
	t.lock.Lock()
	t.interval = time.Second / time.Duration(hz)
	t.lock.Unlock()
	select {
	case t.rateCh <- struct{}{}:
	default:
	}
	return nil
}

// SetRunning starts or stops sending, a stopped transmitter
// simulates a lost link.
func (t *Transmitter) SetRunning(running bool) {
	t.lock.Lock()
	t.running = running
	t.lock.Unlock()
}

// Running indicates frames are being sent.
func (t *Transmitter) Running() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.running
}

// Send publishes one frame.
func (t *Transmitter) Send() error {
	t.lock.Lock()
	t.seq++
	frame := msgs.NewRCFrame(t.modelID, &t.values, t.seq)
	t.lock.Unlock()
	data, err := msgs.Encode(frame)
	if err != nil {
		return err
	}
	t.pub.Publish(msgs.Topic(t.rxID, msgs.TopicRC), data)
	return nil
}

// SendControl asks the receiver to enter an update mode or return to
// normal operation, see ControlState.
func (t *Transmitter) SendControl(state string) error {
	if _, err := ControlState(state); err != nil {
		return err
	}
	data, err := msgs.Encode(&msgs.Control{State: state})
	if err != nil {
		return err
	}
	t.pub.Publish(msgs.Topic(t.rxID, msgs.TopicControl), data)
	return nil
}

// Run implements Runnable.
func (t *Transmitter) Run(ctx context.Context) error {
	for {
		t.lock.Lock()
		interval := t.interval
		t.lock.Unlock()
		ticker := time.NewTicker(interval)
		if err := t.sendLoop(ctx, ticker.C); err != nil {
			ticker.Stop()
			return err
		}
		ticker.Stop()
	}
}

func (t *Transmitter) sendLoop(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.rateCh:
			return nil
		case <-tick:
			if !t.Running() {
				continue
			}
			if err := t.Send(); err != nil {
				glog.Warningf("send frame: %v", err)
			}
		}
	}
}
