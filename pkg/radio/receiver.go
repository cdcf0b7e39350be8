package radio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/config"
	"github.com/robotalks/rxlink.go/pkg/framework"
	"github.com/robotalks/rxlink.go/pkg/link"
	"github.com/robotalks/rxlink.go/pkg/msgs"
	"github.com/robotalks/rxlink.go/pkg/serialio"
)

// ModelSource provides the bound model id, config.Store implements it.
type ModelSource interface {
	ModelID() uint8
}

// DefaultStatusInterval limits how often LinkStatus is published.
const DefaultStatusInterval = 100 * time.Millisecond

// Receiver is the receiving end of the simulated link. Frames arrive on
// the MQTT client goroutine, Tick runs on its own ticker, both stand in
// for the radio interrupts: they only touch the bus, the link status and
// the receiver's own state.
type Receiver struct {
	RxID          string
	RxTimeout     time.Duration
	FrameInterval time.Duration
	Clock         func() time.Time

	bus     *channels.Bus
	status  *link.Status
	events  framework.EventTrigger
	model   ModelSource
	pub     Publisher
	limiter *rate.Limiter

	lock      sync.Mutex
	lq        link.LQCalc
	lastFrame time.Time

	received atomic.Uint64
	missed   atomic.Uint64
}

// NewReceiver creates a Receiver. pub may be nil to skip status publishing.
func NewReceiver(rxID string, bus *channels.Bus, status *link.Status, events framework.EventTrigger, model ModelSource, pub Publisher) *Receiver {
	return &Receiver{
		RxID:          rxID,
		RxTimeout:     config.DefaultRxTimeoutMs * time.Millisecond,
		FrameInterval: config.DefaultFrameIntervalMs * time.Millisecond,
		bus:           bus,
		status:        status,
		events:        events,
		model:         model,
		pub:           pub,
		limiter:       rate.NewLimiter(rate.Every(DefaultStatusInterval), 1),
	}
}

// Name implements Named.
func (r *Receiver) Name() string {
	return "radio"
}

// SetStatusInterval changes the status publishing limit.
func (r *Receiver) SetStatusInterval(interval time.Duration) {
	r.limiter.SetLimit(rate.Every(interval))
}

// Counters returns the number of frames received and slots missed.
func (r *Receiver) Counters() (received, missed uint64) {
	return r.received.Load(), r.missed.Load()
}

// HandleFrame accepts a frame received at now.
func (r *Receiver) HandleFrame(frame *msgs.RCFrame, now time.Time) {
	bound := r.model.ModelID()
	r.status.SetModelMatch(bound == config.AnyModel || frame.ModelID == uint32(bound))
	values := frame.Values()
	r.bus.Publish(&values, now)
	r.lock.Lock()
	r.lq.Add()
	r.lastFrame = now
	r.lock.Unlock()
	r.received.Add(1)
}

// Tick closes the current frame slot.
func (r *Receiver) Tick(now time.Time) {
	r.lock.Lock()
	got := r.lq.CurrentIsSet()
	lq := r.lq.LQ()
	r.lq.Inc()
	last := r.lastFrame
	r.lock.Unlock()

	cur := r.status.State()
	if !got && cur == link.Connected {
		r.missed.Add(1)
		r.bus.NotifyMissed()
	}
	r.status.SetLinkQuality(lq)

	changed := false
	if cur == link.Connected || cur == link.Disconnected {
		next := link.Disconnected
		if !last.IsZero() && now.Sub(last) <= r.RxTimeout && lq > 0 {
			next = link.Connected
		}
		if r.status.SetState(next) {
			changed = true
			glog.Infof("link %s (lq %d)", next, lq)
			if next == link.Disconnected {
				r.lock.Lock()
				r.lq.Reset()
				r.lock.Unlock()
				r.status.SetLinkQuality(0)
			}
		}
	}
	if changed {
		r.events.TriggerEvent()
	}
	if changed || r.limiter.AllowN(now, 1) {
		r.publishStatus()
	}
}

// SetState forces a state such as WifiUpdate or SerialUpdate, Tick
// only manages Connected and Disconnected.
func (r *Receiver) SetState(state link.ConnectionState) {
	if r.status.SetState(state) {
		glog.Infof("link %s", state)
		r.events.TriggerEvent()
		r.publishStatus()
	}
}

// ControlNormal leaves an update mode, the link state is derived from
// received frames again.
const ControlNormal = "normal"

// ControlState parses the state requested by a control message.
func ControlState(s string) (link.ConnectionState, error) {
	if s == ControlNormal {
		return link.Disconnected, nil
	}
	if state, ok := link.ParseConnectionState(s); ok && (state == link.WifiUpdate || state == link.SerialUpdate) {
		return state, nil
	}
	return link.Disconnected, fmt.Errorf("invalid control state %q, expect %s, %s or %s",
		s, ControlNormal, link.WifiUpdate, link.SerialUpdate)
}

// HandleControl decodes a control message and applies the requested state.
func (r *Receiver) HandleControl(topic string, payload []byte) {
	msg, err := msgs.Decode(msgs.TopicControl, payload)
	if err != nil {
		glog.V(2).Infof("%s: %v", topic, err)
		return
	}
	state, err := ControlState(msg.(*msgs.Control).State)
	if err != nil {
		glog.Warningf("%s: %v", topic, err)
		return
	}
	r.SetState(state)
}

// RelayTelemetry publishes a frame from the flight controller.
func (r *Receiver) RelayTelemetry(f *serialio.Frame) {
	if r.pub == nil {
		return
	}
	data, err := msgs.Encode(&msgs.Telemetry{Type: uint32(f.Type), Payload: f.Payload})
	if err != nil {
		glog.Warningf("encode telemetry: %v", err)
		return
	}
	r.pub.Publish(msgs.Topic(r.RxID, msgs.TopicTelemetry), data)
}

// HandleMessage decodes an RC frame message.
func (r *Receiver) HandleMessage(topic string, payload []byte) {
	msg, err := msgs.Decode(msgs.TopicRC, payload)
	if err != nil {
		glog.V(2).Infof("%s: %v", topic, err)
		return
	}
	r.HandleFrame(msg.(*msgs.RCFrame), r.now())
}

// Run implements Runnable, it ticks every FrameInterval until ctx is done.
func (r *Receiver) Run(ctx context.Context) error {
	interval := r.FrameInterval
	if interval <= 0 {
		interval = config.DefaultFrameIntervalMs * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(r.now())
		}
	}
}

// Subscribe registers the RC and control topics of this receiver on q.
func (r *Receiver) Subscribe(q *Queue) {
	q.Sub(msgs.Topic(r.RxID, msgs.TopicRC), r.HandleMessage)
	q.Sub(msgs.Topic(r.RxID, msgs.TopicControl), r.HandleControl)
}

func (r *Receiver) publishStatus() {
	if r.pub == nil {
		return
	}
	received, missed := r.Counters()
	data, err := msgs.Encode(&msgs.LinkStatus{
		State:       r.status.State().String(),
		LinkQuality: uint32(r.status.LinkQuality()),
		ModelMatch:  r.status.ModelMatch(),
		Received:    received,
		Missed:      missed,
	})
	if err != nil {
		glog.Warningf("encode status: %v", err)
		return
	}
	r.pub.Publish(msgs.Topic(r.RxID, msgs.TopicStatus), data)
}

func (r *Receiver) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}
