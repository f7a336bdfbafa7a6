// Package num64 is a small tagged union over the three 64-bit numeric
// kinds statcache records, avoiding a dynamic allocation per sample
// that an interface{} would cost on a hot counter-increment path.
package num64

import "math"

// Kind identifies which accessor on a Numeric64 is valid.
const (
	Uint64 = iota
	Int64
	Float64
)

// Numeric64 holds one 64-bit sample of a statically-known kind.
type Numeric64 struct {
	Kind  int
	value uint64
}

func FromUint64(v uint64) Numeric64 { return Numeric64{Kind: Uint64, value: v} }

func FromInt64(v int64) Numeric64 { return Numeric64{Kind: Int64, value: uint64(v)} }

func FromFloat64(v float64) Numeric64 { return Numeric64{Kind: Float64, value: math.Float64bits(v)} }

// Uint64 returns the value as a uint64. Panics if Kind != Uint64.
func (n Numeric64) Uint64() uint64 {
	if n.Kind != Uint64 {
		panic("num64: Numeric64 is not a Uint64")
	}
	return n.value
}

// Int64 returns the value as an int64. Panics if Kind != Int64.
func (n Numeric64) Int64() int64 {
	if n.Kind != Int64 {
		panic("num64: Numeric64 is not an Int64")
	}
	return int64(n.value)
}

// Float64 returns the value as a float64. Panics if Kind != Float64.
func (n Numeric64) Float64() float64 {
	if n.Kind != Float64 {
		panic("num64: Numeric64 is not a Float64")
	}
	return math.Float64frombits(n.value)
}
