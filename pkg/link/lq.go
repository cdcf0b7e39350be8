package link

// LQWindow is the number of frame slots the link quality is computed over.
const LQWindow = 100

// LQCalc estimates link quality as the percentage of received frames over
// the last LQWindow frame slots. It is owned by a single goroutine.
type LQCalc struct {
	bits  [(LQWindow + 31) / 32]uint32
	index int
	count int
	// filled counts slots seen until the window is full.
	filled int
}

// Add marks the current slot as received. Repeated calls for the same
// slot count once.
func (c *LQCalc) Add() {
	word, mask := c.index/32, uint32(1)<<(uint(c.index)%32)
	if c.bits[word]&mask != 0 {
		return
	}
	c.bits[word] |= mask
	c.count++
}

// CurrentIsSet reports whether the current slot was marked received.
func (c *LQCalc) CurrentIsSet() bool {
	return c.bits[c.index/32]&(uint32(1)<<(uint(c.index)%32)) != 0
}

// Inc moves to the next slot, dropping the oldest one.
func (c *LQCalc) Inc() {
	c.index = (c.index + 1) % LQWindow
	if c.filled < LQWindow {
		c.filled++
	}
	word, mask := c.index/32, uint32(1)<<(uint(c.index)%32)
	if c.bits[word]&mask != 0 {
		c.bits[word] &^= mask
		c.count--
	}
}

// LQ returns the link quality 0..100. Before the window fills up the
// percentage is computed over the slots seen so far.
func (c *LQCalc) LQ() uint8 {
	slots := c.filled + 1
	if slots > LQWindow {
		slots = LQWindow
	}
	return uint8(c.count * 100 / slots)
}

// Reset clears the window.
func (c *LQCalc) Reset() {
	*c = LQCalc{}
}
