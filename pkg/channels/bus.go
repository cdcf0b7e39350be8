// Package channels provides the channel data bus shared between the
// frame ingest path and the devices running on the kernel.
package channels

import (
	"sync/atomic"
	"time"
)

// Count is the number of channels carried by a frame.
const Count = 16

// Values holds one frame worth of channel values.
// A value of 0 means the channel has never been received.
type Values [Count]uint16

// Set is a committed frame with the time it was published.
type Set struct {
	Values    Values
	UpdatedAt time.Time
	// Seq is the publish sequence number, 0 for the empty set.
	Seq uint32
}

// wordsPerSet packs two channel values per word.
const wordsPerSet = Count / 2

type slot struct {
	// gen is odd while the writer is filling the slot.
	gen   atomic.Uint32
	words [wordsPerSet]atomic.Uint32
	at    atomic.Int64
	seq   atomic.Uint32
}

// Bus holds the latest frame. Publish and NotifyMissed are called by a
// single writer which may be an asynchronous context, Readers are used from
// the kernel goroutine. Nothing blocks or allocates.
//
// Frames are double buffered: the writer fills the inactive slot and then
// flips the active index. A reader which was lapped by two publishes during
// its copy observes a changed slot generation and copies again.
type Bus struct {
	slots  [2]slot
	active atomic.Uint32
	seq    atomic.Uint32
	missed atomic.Uint32
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Publish commits a full frame.
func (b *Bus) Publish(values *Values, at time.Time) {
	next := b.active.Load() ^ 1
	s := &b.slots[next]
	seq := b.seq.Add(1)
	s.gen.Add(1)
	for i := range s.words {
		s.words[i].Store(uint32(values[2*i]) | uint32(values[2*i+1])<<16)
	}
	s.at.Store(at.UnixNano())
	s.seq.Store(seq)
	s.gen.Add(1)
	b.active.Store(next)
}

// NotifyMissed records that an expected frame did not arrive.
func (b *Bus) NotifyMissed() {
	b.missed.Add(1)
}

// Seq returns the number of frames published so far.
func (b *Bus) Seq() uint32 {
	return b.seq.Load()
}

// Snapshot returns the current committed frame.
func (b *Bus) Snapshot() (set Set) {
	for {
		s := &b.slots[b.active.Load()]
		gen := s.gen.Load()
		if gen&1 != 0 {
			continue
		}
		set.Seq = s.seq.Load()
		if set.Seq == 0 {
			return Set{}
		}
		for i := range s.words {
			w := s.words[i].Load()
			set.Values[2*i], set.Values[2*i+1] = uint16(w), uint16(w>>16)
		}
		set.UpdatedAt = time.Unix(0, s.at.Load())
		if s.gen.Load() == gen {
			return set
		}
	}
}

// Reader tracks what a single consumer has already seen.
type Reader struct {
	bus        *Bus
	lastSeq    uint32
	lastMissed uint32
}

// NewReader creates a Reader which considers the current frame as new.
func (b *Bus) NewReader() *Reader {
	return &Reader{bus: b, lastMissed: b.missed.Load()}
}

// Latest returns the current committed frame and whether it was published
// after the previous call.
func (r *Reader) Latest() (Set, bool) {
	set := r.bus.Snapshot()
	fresh := set.Seq != r.lastSeq
	r.lastSeq = set.Seq
	return set, fresh
}

// HasNew reports whether a frame newer than the last Latest call exists,
// without consuming it.
func (r *Reader) HasNew() bool {
	return r.bus.Seq() != r.lastSeq
}

// TakeMissed reports whether a missed frame was notified since the
// previous call.
func (r *Reader) TakeMissed() bool {
	missed := r.bus.missed.Load()
	changed := missed != r.lastMissed
	r.lastMissed = missed
	return changed
}
