package serialio

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/framework"
	"github.com/robotalks/rxlink.go/pkg/link"
)

type memPort struct {
	rx   []byte
	tx   [][]byte
	free int
}

func newMemPort() *memPort {
	return &memPort{free: 1024}
}

func (m *memPort) Read(p []byte) (int, error) {
	n := copy(p, m.rx)
	m.rx = m.rx[n:]
	return n, nil
}

func (m *memPort) Write(p []byte) (int, error) {
	if len(p) > m.free {
		return 0, ErrWouldBlock
	}
	m.tx = append(m.tx, append([]byte(nil), p...))
	m.free -= len(p)
	return len(p), nil
}

func (m *memPort) Free() int {
	return m.free
}

func (m *memPort) frames(t *testing.T) []*Frame {
	var p Parser
	var frames []*Frame
	for _, b := range m.tx {
		p.Feed(b, func(f *Frame) { frames = append(frames, f) })
	}
	require.Zero(t, p.Dropped)
	m.tx = nil
	return frames
}

func TestCRC8(t *testing.T) {
	require.Equal(t, byte(0xbc), CRC8([]byte("123456789")))
	require.Equal(t, byte(0), CRC8(nil))
}

func TestRCFrame(t *testing.T) {
	f := RCFrame(&channels.Values{0x7ff})
	require.Len(t, f.Payload, 22)
	require.Equal(t, []byte{0xff, 0x07, 0}, f.Payload[:3])

	var vals channels.Values
	for n := range vals {
		vals[n] = channels.Min + uint16(n)*101
	}
	decoded, err := DecodeRCChannels(RCFrame(&vals).Payload)
	require.NoError(t, err)
	require.Equal(t, vals, decoded)

	_, err = DecodeRCChannels([]byte{1, 2})
	require.Equal(t, ErrBadPayload, err)
}

func TestFrameBytes(t *testing.T) {
	b := FrameStatus(StatusFailsafe).Bytes()
	require.Equal(t, []byte{SyncByte, 3, TypeFrameStatus, StatusFailsafe, CRC8([]byte{TypeFrameStatus, StatusFailsafe})}, b)

	var buf bytes.Buffer
	n, err := (&Frame{Type: 0x08, Payload: make([]byte, MaxPayloadSize)}).WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(MaxFrameSize), n)
	_, err = (&Frame{Type: 0x08, Payload: make([]byte, MaxPayloadSize+1)}).WriteTo(&buf)
	require.Equal(t, ErrFrameTooLarge, err)
}

func TestLinkStats(t *testing.T) {
	stats := LinkStats{LinkQuality: 87, State: link.Connected, ModelMatch: true}
	decoded, err := DecodeLinkStats(stats.Frame().Payload)
	require.NoError(t, err)
	require.Equal(t, stats, decoded)
}

func TestParser(t *testing.T) {
	good := LinkStats{LinkQuality: 50, State: link.Connected}.Frame().Bytes()
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xff

	var stream []byte
	stream = append(stream, 0x00, 0x13, 0x37)
	stream = append(stream, good...)
	stream = append(stream, bad...)
	stream = append(stream, SyncByte, 0x01)
	stream = append(stream, SyncByte)
	stream = append(stream, good...)

	var p Parser
	var frames []*Frame
	// split in odd chunks
	for len(stream) > 0 {
		n := 5
		if n > len(stream) {
			n = len(stream)
		}
		p.Feed(stream[:n], func(f *Frame) { frames = append(frames, f) })
		stream = stream[n:]
	}
	require.Len(t, frames, 2)
	for _, f := range frames {
		require.Equal(t, TypeLinkStats, f.Type)
		require.Equal(t, []byte{50, byte(link.Connected), 0}, f.Payload)
	}
	require.Equal(t, 3, p.Dropped)
}

func TestLinkSendRCFrame(t *testing.T) {
	port := newMemPort()
	l := NewLink(port, 5*time.Millisecond, 0)
	require.Equal(t, MaxFrameSize, l.MaxSerialWriteSize())

	vals := channels.Values{channels.Mid, channels.Max}
	require.Equal(t, 5*time.Millisecond, l.SendRCFrame(true, false, &vals))
	frames := port.frames(t)
	require.Len(t, frames, 1)
	decoded, err := DecodeRCChannels(frames[0].Payload)
	require.NoError(t, err)
	require.Equal(t, vals, decoded)

	require.Equal(t, 5*time.Millisecond, l.SendRCFrame(false, true, &vals))
	require.Empty(t, port.tx)
	require.True(t, l.MissedPending())
	require.Zero(t, l.Queued())
	l.SendQueuedData(l.MaxSerialWriteSize())
	frames = port.frames(t)
	require.Len(t, frames, 1)
	require.Equal(t, TypeFrameStatus, frames[0].Type)
	require.Equal(t, []byte{StatusMissed}, frames[0].Payload)
	require.False(t, l.MissedPending())
}

func TestLinkFailsafeMarker(t *testing.T) {
	port := newMemPort()
	l := NewLink(port, 0, 0)
	l.SetFailsafe(false)
	require.Zero(t, l.FailsafePending())
	l.SetFailsafe(true)
	l.SetFailsafe(false)
	require.Equal(t, 1, l.FailsafePending())
	require.True(t, l.QueueLinkStats(LinkStats{}))

	l.SendQueuedData(l.MaxSerialWriteSize())
	frames := port.frames(t)
	require.Len(t, frames, 2)
	require.Equal(t, TypeFrameStatus, frames[0].Type)
	require.Equal(t, []byte{StatusFailsafe}, frames[0].Payload)
	require.Equal(t, TypeLinkStats, frames[1].Type)
	require.Zero(t, l.FailsafePending())
}

func TestLinkBackpressure(t *testing.T) {
	port := newMemPort()
	l := NewLink(port, 0, 0)
	l.SetFailsafe(true)
	require.True(t, l.QueueFrame(&Frame{Type: 0x08, Payload: make([]byte, 20)}))

	port.free = 3
	l.SendQueuedData(l.MaxSerialWriteSize())
	require.Empty(t, port.tx)
	require.Equal(t, 1, l.FailsafePending())
	require.Equal(t, 1, l.Deferred)

	port.free = 10
	l.SendQueuedData(l.MaxSerialWriteSize())
	require.Len(t, port.tx, 1)
	require.Zero(t, l.FailsafePending())
	require.Equal(t, 1, l.Queued())
	require.Equal(t, 2, l.Deferred)

	port.free = 100
	l.SendQueuedData(20)
	require.Equal(t, 1, l.Queued())
	l.SendQueuedData(l.MaxSerialWriteSize())
	require.Zero(t, l.Queued())
	require.Len(t, port.frames(t), 2)
}

func statusFlags(frames []*Frame) []byte {
	var flags []byte
	for _, f := range frames {
		if f.Type == TypeFrameStatus {
			flags = append(flags, f.Payload[0])
		}
	}
	return flags
}

func TestLinkFailsafeMarkerPerEdge(t *testing.T) {
	port := newMemPort()
	port.free = 0
	l := NewLink(port, 0, 0)
	bus, status := channels.NewBus(), link.NewStatus()
	k := framework.NewKernel().Register(NewDevice(l, bus, status))
	now := time.Unix(1000, 0)
	require.NoError(t, k.Boot(now))

	for _, st := range []link.ConnectionState{
		link.Connected, link.Disconnected, link.Connected, link.Disconnected, link.Disconnected,
	} {
		now = now.Add(10 * time.Millisecond)
		status.SetState(st)
		k.TriggerEvent()
		k.RunPass(now)
	}
	require.Empty(t, port.tx)
	require.Equal(t, 2, l.FailsafePending())

	port.free = 1024
	k.RunPass(now.Add(10 * time.Millisecond))
	require.Equal(t, []byte{StatusFailsafe, StatusFailsafe}, statusFlags(port.frames(t)))
	require.Zero(t, l.FailsafePending())
}

func TestLinkMissedMarkerBypassesQueue(t *testing.T) {
	port := newMemPort()
	l := NewLink(port, 0, 0)
	for l.QueueFrame(&Frame{Type: 0x08}) {
	}
	vals := channels.Values{}
	l.SendRCFrame(false, true, &vals)
	l.SendRCFrame(false, true, &vals)
	l.SetFailsafe(true)
	require.True(t, l.MissedPending())

	l.SendQueuedData(l.MaxSerialWriteSize())
	frames := port.frames(t)
	require.Equal(t, []byte{StatusFailsafe}, frames[0].Payload)
	require.Equal(t, []byte{StatusMissed}, frames[1].Payload)
	require.Equal(t, []byte{StatusFailsafe, StatusMissed}, statusFlags(frames))
	require.False(t, l.MissedPending())
}

type floodPort struct {
	memPort
	reads int
}

func (f *floodPort) Read(p []byte) (int, error) {
	f.reads++
	return len(p), nil
}

func TestLinkInputBoundedPerPass(t *testing.T) {
	port := &floodPort{memPort: memPort{free: 1024}}
	l := NewLink(port, 0, 0)
	l.ProcessSerialInput()
	require.Equal(t, MaxReadChunks, port.reads)
}

func TestLinkQueueBound(t *testing.T) {
	l := NewLink(newMemPort(), 0, 0)
	accepted := 0
	for i := 0; i < DefaultQueueLen+8; i++ {
		if l.QueueFrame(&Frame{Type: 0x08}) {
			accepted++
		}
	}
	require.Equal(t, DefaultQueueLen, accepted)
	require.False(t, l.QueueFrame(&Frame{Type: 0x08, Payload: make([]byte, MaxPayloadSize+1)}))
}

func TestLinkTelemetry(t *testing.T) {
	port := newMemPort()
	l := NewLink(port, 0, 0)
	var received []*Frame
	l.Telemetry = func(f *Frame) { received = append(received, f) }

	port.rx = append(port.rx, (&Frame{Type: 0x08, Payload: []byte{1, 2, 3}}).Bytes()...)
	port.rx = append(port.rx, 0xaa)
	port.rx = append(port.rx, (&Frame{Type: 0x21, Payload: []byte("volt")}).Bytes()...)
	l.ProcessSerialInput()
	require.Len(t, received, 2)
	require.Equal(t, byte(0x08), received[0].Type)
	require.Equal(t, []byte("volt"), received[1].Payload)
}

func TestLinkPeriodicStats(t *testing.T) {
	port := newMemPort()
	l := NewLink(port, 0, 0)
	l.Status = link.NewStatus()
	l.Status.SetLinkQuality(77)
	l.StatsEvery = 3
	var vals channels.Values
	for i := 0; i < 7; i++ {
		l.SendRCFrame(true, false, &vals)
	}
	require.Equal(t, 2, l.Queued())
	port.tx = nil
	l.SendQueuedData(l.MaxSerialWriteSize())
	frames := port.frames(t)
	require.Len(t, frames, 2)
	stats, err := DecodeLinkStats(frames[0].Payload)
	require.NoError(t, err)
	require.Equal(t, uint8(77), stats.LinkQuality)
	require.True(t, stats.ModelMatch)
}

func TestStreamPort(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	port := NewStreamPort("pipe", local)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- port.Run(ctx) }()

	frame := FrameStatus(StatusMissed).Bytes()
	n, err := port.Write(frame)
	require.NoError(t, err)
	require.Equal(t, len(frame), n)
	got := make([]byte, len(frame))
	_, err = io.ReadFull(remote, got)
	require.NoError(t, err)
	require.Equal(t, frame, got)
	require.Eventually(t, func() bool { return port.Free() == DefaultTxBufferSize }, time.Second, time.Millisecond)

	_, err = port.Write(make([]byte, DefaultTxBufferSize+1))
	require.Equal(t, ErrWouldBlock, err)

	go remote.Write([]byte{1, 2, 3, 4})
	var rx []byte
	require.Eventually(t, func() bool {
		buf := make([]byte, 2)
		n, _ := port.Read(buf)
		rx = append(rx, buf[:n]...)
		return len(rx) == 4
	}, time.Second, time.Millisecond)
	require.Equal(t, []byte{1, 2, 3, 4}, rx)

	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestOpenPortUnsupported(t *testing.T) {
	_, err := OpenPort("ftp://host/port")
	require.Error(t, err)
}
