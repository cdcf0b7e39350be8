package serialio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"
	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/rxlink.go/pkg/framework"
)

// ErrWouldBlock indicates the port can't take the write now.
var ErrWouldBlock = errors.New("would block")

// Port is a non-blocking byte port used from the kernel goroutine.
type Port interface {
	// Read returns buffered received bytes, 0 when none.
	Read(p []byte) (int, error)
	// Write queues all of p or fails with ErrWouldBlock.
	Write(p []byte) (int, error)
	// Free returns the number of bytes Write accepts now.
	Free() int
}

// Buffer sizes of StreamPort.
const (
	DefaultTxBufferSize = 1024
	rxQueueLen          = 64
	txQueueLen          = 64
	readChunkSize       = 256
)

// StreamPort adapts a blocking stream into a Port.
// Run pumps the stream in the background with bounded buffers.
type StreamPort struct {
	conn   io.ReadWriteCloser
	name   string
	rxCh   chan []byte
	txCh   chan []byte
	rxHead []byte
	txSize int
	txUsed atomic.Int32
	// Overruns counts received chunks dropped on a full queue.
	Overruns atomic.Int32
}

// NewStreamPort wraps conn.
func NewStreamPort(name string, conn io.ReadWriteCloser) *StreamPort {
	return &StreamPort{
		conn:   conn,
		name:   name,
		rxCh:   make(chan []byte, rxQueueLen),
		txCh:   make(chan []byte, txQueueLen),
		txSize: DefaultTxBufferSize,
	}
}

// Name implements Named.
func (p *StreamPort) Name() string {
	return p.name
}

// Read implements Port.
func (p *StreamPort) Read(b []byte) (n int, err error) {
	for n < len(b) {
		if len(p.rxHead) == 0 {
			select {
			case p.rxHead = <-p.rxCh:
			default:
				return n, nil
			}
		}
		c := copy(b[n:], p.rxHead)
		p.rxHead = p.rxHead[c:]
		n += c
	}
	return n, nil
}

// Write implements Port.
func (p *StreamPort) Write(b []byte) (int, error) {
	if len(b) > p.Free() {
		return 0, ErrWouldBlock
	}
	buf := append([]byte(nil), b...)
	p.txUsed.Add(int32(len(buf)))
	select {
	case p.txCh <- buf:
		return len(buf), nil
	default:
		p.txUsed.Add(-int32(len(buf)))
		return 0, ErrWouldBlock
	}
}

// Free implements Port.
func (p *StreamPort) Free() int {
	return p.txSize - int(p.txUsed.Load())
}

// Run implements Runnable.
func (p *StreamPort) Run(ctx context.Context) error {
	go p.writeLoop(ctx)
	return framework.RunWithContextCloser(ctx, p.conn, p.readLoop)
}

func (p *StreamPort) readLoop() error {
	for {
		buf := make([]byte, readChunkSize)
		n, err := p.conn.Read(buf)
		if n > 0 {
			select {
			case p.rxCh <- buf[:n]:
			default:
				p.Overruns.Add(1)
				glog.V(2).Infof("%s: rx overrun, %d bytes dropped", p.name, n)
			}
		}
		if err != nil {
			if err == serial.ErrTimeout {
				continue
			}
			return err
		}
	}
}

func (p *StreamPort) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-p.txCh:
			if _, err := p.conn.Write(buf); err != nil {
				glog.Warningf("%s: write: %v", p.name, err)
			}
			p.txUsed.Add(-int32(len(buf)))
		}
	}
}

// DefaultBaudRate is used for serial:// ports without a baud parameter.
const DefaultBaudRate = 420000

// OpenPort opens a port by URL:
//
//	serial:///dev/ttyUSB0?baud=420000
//	ws://host:port/path
//	tcp://host:port
func OpenPort(portURL string) (*StreamPort, error) {
	u, err := url.Parse(portURL)
	if err != nil {
		return nil, err
	}
	var conn io.ReadWriteCloser
	switch u.Scheme {
	case "serial", "":
		baud := DefaultBaudRate
		if s := u.Query().Get("baud"); s != "" {
			if baud, err = strconv.Atoi(s); err != nil {
				return nil, fmt.Errorf("invalid baud rate %q", s)
			}
		}
		conn, err = serial.Open(&serial.Config{
			Address:  u.Path,
			BaudRate: baud,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  100 * time.Millisecond,
		})
	case "ws", "wss":
		origin := "http://" + u.Host
		var ws *websocket.Conn
		if ws, err = websocket.Dial(portURL, "", origin); err == nil {
			ws.PayloadType = websocket.BinaryFrame
			conn = ws
		}
	case "tcp":
		conn, err = net.Dial("tcp", u.Host)
	default:
		return nil, fmt.Errorf("unsupported port scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", portURL, err)
	}
	glog.Infof("serial port %s opened", portURL)
	return NewStreamPort("port:"+u.Scheme, conn), nil
}
