package serialio

// Parser parses received bytes into frames.
type Parser struct {
	state parseState
	buf   [MaxFrameSize]byte
	want  int
	recv  int

	// Dropped counts frames discarded for a bad length or crc.
	Dropped int
}

type parseState int

const (
	stateSync parseState = iota // waiting for SyncByte
	stateLen                    // waiting for frame length
	stateBody                   // waiting for type, payload and crc
)

// Reset resets the internal state of parser.
func (p *Parser) Reset() {
	p.state, p.want, p.recv = stateSync, 0, 0
}

// Parse consumes one byte and returns a frame when completed.
func (p *Parser) Parse(b byte) *Frame {
	switch p.state {
	case stateSync:
		if b == SyncByte {
			p.state = stateLen
		}
	case stateLen:
		if b < 2 || int(b) > MaxFrameSize-2 {
			p.Dropped++
			p.resync(b)
			return nil
		}
		p.want, p.recv = int(b), 0
		p.state = stateBody
	case stateBody:
		p.buf[p.recv] = b
		p.recv++
		if p.recv >= p.want {
			return p.frameReady()
		}
	}
	return nil
}

// Feed parses data and calls fn for every completed frame.
func (p *Parser) Feed(data []byte, fn func(*Frame)) {
	for _, b := range data {
		if f := p.Parse(b); f != nil {
			fn(f)
		}
	}
}

func (p *Parser) resync(b byte) {
	p.Reset()
	if b == SyncByte {
		p.state = stateLen
	}
}

func (p *Parser) frameReady() *Frame {
	body := p.buf[:p.want]
	p.Reset()
	if CRC8(body[:len(body)-1]) != body[len(body)-1] {
		p.Dropped++
		return nil
	}
	f := &Frame{Type: body[0]}
	if n := len(body) - 2; n > 0 {
		f.Payload = make([]byte, n)
		copy(f.Payload, body[1:len(body)-1])
	}
	return f
}
