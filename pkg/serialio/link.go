package serialio

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/link"
)

// TelemetryHandler receives frames sent by the flight controller.
type TelemetryHandler func(*Frame)

// Link implements SerialIO with frames over a Port.
type Link struct {
	port     Port
	interval time.Duration
	maxWrite int
	queue    [][]byte
	queueLen int
	parser   Parser
	rxBuf    []byte
	failsafe int
	missed   bool
	frames   int

	// Telemetry is called from ProcessSerialInput.
	Telemetry TelemetryHandler
	// Status is sent as link statistics every StatsEvery RC frames.
	Status     *link.Status
	StatsEvery int
	// Deferred counts passes where queued data didn't fit the port.
	Deferred int
}

// Link defaults.
const (
	DefaultFrameInterval = 4 * time.Millisecond
	DefaultQueueLen      = 32
	DefaultStatsEvery    = 50
	// MaxReadChunks bounds the reads done by one ProcessSerialInput.
	MaxReadChunks = 4
)

// NewLink creates a Link on port.
func NewLink(port Port, frameInterval time.Duration, maxWrite int) *Link {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}
	if maxWrite <= 0 {
		maxWrite = MaxFrameSize
	}
	return &Link{
		port:     port,
		interval: frameInterval,
		maxWrite: maxWrite,
		queueLen: DefaultQueueLen,
		rxBuf:    make([]byte, readChunkSize),

		StatsEvery: DefaultStatsEvery,
	}
}

// SendRCFrame implements SerialIO.
func (l *Link) SendRCFrame(send, missed bool, values *channels.Values) time.Duration {
	if missed {
		l.missed = true
	}
	if !send {
		return l.interval
	}
	b := RCFrame(values).Bytes()
	if _, err := l.port.Write(b); err != nil {
		glog.V(4).Infof("rc frame dropped: %v", err)
	}
	l.frames++
	if l.Status != nil && l.StatsEvery > 0 && l.frames%l.StatsEvery == 0 {
		l.QueueLinkStats(LinkStats{
			LinkQuality: l.Status.LinkQuality(),
			State:       l.Status.State(),
			ModelMatch:  l.Status.ModelMatch(),
		})
	}
	return l.interval
}

// ProcessSerialInput implements SerialIO.
func (l *Link) ProcessSerialInput() {
	for i := 0; i < MaxReadChunks; i++ {
		n, err := l.port.Read(l.rxBuf)
		if n > 0 {
			l.parser.Feed(l.rxBuf[:n], l.handleFrame)
		}
		if err != nil {
			glog.V(2).Infof("serial read: %v", err)
			return
		}
		if n < len(l.rxBuf) {
			return
		}
	}
}

// SendQueuedData implements SerialIO.
func (l *Link) SendQueuedData(maxBytes int) {
	budget := maxBytes
	if free := l.port.Free(); free < budget {
		budget = free
	}
	for l.failsafe > 0 {
		if !l.write(FrameStatus(StatusFailsafe).Bytes(), &budget) {
			return
		}
		l.failsafe--
	}
	if l.missed {
		if !l.write(FrameStatus(StatusMissed).Bytes(), &budget) {
			return
		}
		l.missed = false
	}
	for len(l.queue) > 0 {
		if !l.write(l.queue[0], &budget) {
			return
		}
		l.queue[0] = nil
		l.queue = l.queue[1:]
	}
}

func (l *Link) write(b []byte, budget *int) bool {
	if len(b) > *budget {
		l.Deferred++
		return false
	}
	if _, err := l.port.Write(b); err != nil {
		l.Deferred++
		return false
	}
	*budget -= len(b)
	return true
}

// MaxSerialWriteSize implements SerialIO.
func (l *Link) MaxSerialWriteSize() int {
	return l.maxWrite
}

// SetFailsafe implements SerialIO. Every edge is sent as its own marker.
func (l *Link) SetFailsafe(edge bool) {
	if edge {
		l.failsafe++
	}
}

// FailsafePending returns the number of failsafe markers waiting to be sent.
func (l *Link) FailsafePending() int {
	return l.failsafe
}

// MissedPending indicates a missed marker waits to be sent. Missed slots
// reported before it goes out share the marker.
func (l *Link) MissedPending() bool {
	return l.missed
}

// Queued returns the number of frames waiting to be sent.
func (l *Link) Queued() int {
	return len(l.queue)
}

// QueueLinkStats queues a link statistics frame.
func (l *Link) QueueLinkStats(stats LinkStats) bool {
	return l.enqueue(stats.Frame())
}

// QueueFrame queues an arbitrary frame, it's dropped when the queue is full.
func (l *Link) QueueFrame(f *Frame) bool {
	if len(f.Payload) > MaxPayloadSize {
		return false
	}
	return l.enqueue(f)
}

func (l *Link) enqueue(f *Frame) bool {
	if len(l.queue) >= l.queueLen {
		glog.V(2).Infof("serial queue full, frame 0x%02x dropped", f.Type)
		return false
	}
	l.queue = append(l.queue, f.Bytes())
	return true
}

func (l *Link) handleFrame(f *Frame) {
	if h := l.Telemetry; h != nil {
		h(f)
	}
}
