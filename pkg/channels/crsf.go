package channels

import "math"

// Protocol native channel range.
const (
	Min uint16 = 172
	Mid uint16 = 992
	Max uint16 = 1811
	// Limit is the largest value representable on the wire (11 bits).
	Limit uint16 = 2047
)

// Pulse width domain in microseconds matching Min..Max.
const (
	MinMicros = 988
	MidMicros = 1500
	MaxMicros = 2012
)

// ToMicroseconds maps a channel value linearly onto the pulse width domain.
// The result is not clamped, values outside Min..Max extrapolate.
func ToMicroseconds(v uint16) int {
	us := float64(int(v)-int(Min))*float64(MaxMicros-MinMicros)/float64(Max-Min) + MinMicros
	return int(math.Round(us))
}

// FromMicroseconds is the inverse of ToMicroseconds, clamped to 0..Limit.
func FromMicroseconds(us int) uint16 {
	v := math.Round(float64(us-MinMicros)*float64(Max-Min)/float64(MaxMicros-MinMicros) + float64(Min))
	if v < 0 {
		return 0
	}
	if v > float64(Limit) {
		return Limit
	}
	return uint16(v)
}
