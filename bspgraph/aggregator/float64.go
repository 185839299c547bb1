// Package aggregator provides concurrent-safe aggregators for bspgraph.
package aggregator

import (
	"math"
	"sync/atomic"
)

// Float64Accumulator implements a concurrent-safe accumulator for float64
// values. The values are stored as their IEEE 754 bit patterns so they can
// be updated with atomic compare-and-swap operations.
type Float64Accumulator struct {
	prevBits uint64
	curBits  uint64
}

// Type implements bspgraph.Aggregator.
func (a *Float64Accumulator) Type() string {
	return "Float64Accumulator"
}

// Get returns the current value of the accumulator.
func (a *Float64Accumulator) Get() interface{} {
	return loadFloat64(&a.curBits)
}

// Set the current value of the accumulator.
func (a *Float64Accumulator) Set(v interface{}) {
	bits := math.Float64bits(v.(float64))
	atomic.StoreUint64(&a.curBits, bits)
	atomic.StoreUint64(&a.prevBits, bits)
}

// Aggregate adds a float64 value to the accumulator.
func (a *Float64Accumulator) Aggregate(v interface{}) {
	v64 := v.(float64)
	updateFloat64(&a.curBits, func(old float64) (float64, bool) {
		return old + v64, true
	})
}

// Delta returns the change in the accumulator value since the last time it
// was invoked or the last time that Set was invoked.
func (a *Float64Accumulator) Delta() interface{} {
	for {
		curBits := atomic.LoadUint64(&a.curBits)
		prevBits := atomic.LoadUint64(&a.prevBits)
		if atomic.CompareAndSwapUint64(&a.prevBits, prevBits, curBits) {
			return math.Float64frombits(curBits) - math.Float64frombits(prevBits)
		}
	}
}

// Float64Max tracks the maximum float64 value that has been aggregated.
type Float64Max struct {
	prevBits uint64
	curBits  uint64
}

// NewFloat64Max returns a Float64Max aggregator initialized to negative
// infinity.
func NewFloat64Max() *Float64Max {
	a := new(Float64Max)
	a.Set(math.Inf(-1))
	return a
}

// Type implements bspgraph.Aggregator.
func (a *Float64Max) Type() string {
	return "Float64Max"
}

// Get returns the maximum value seen so far.
func (a *Float64Max) Get() interface{} {
	return loadFloat64(&a.curBits)
}

// Set overrides the tracked maximum.
func (a *Float64Max) Set(v interface{}) {
	bits := math.Float64bits(v.(float64))
	atomic.StoreUint64(&a.curBits, bits)
	atomic.StoreUint64(&a.prevBits, bits)
}

// Aggregate updates the tracked maximum if v is larger.
func (a *Float64Max) Aggregate(v interface{}) {
	v64 := v.(float64)
	updateFloat64(&a.curBits, func(old float64) (float64, bool) {
		return v64, v64 > old
	})
}

// Delta returns the increase of the maximum since the last time Delta or Set
// was invoked.
func (a *Float64Max) Delta() interface{} {
	for {
		curBits := atomic.LoadUint64(&a.curBits)
		prevBits := atomic.LoadUint64(&a.prevBits)
		if atomic.CompareAndSwapUint64(&a.prevBits, prevBits, curBits) {
			cur, prev := math.Float64frombits(curBits), math.Float64frombits(prevBits)
			if math.IsInf(prev, -1) {
				return cur
			}
			return cur - prev
		}
	}
}

func loadFloat64(bits *uint64) float64 {
	return math.Float64frombits(atomic.LoadUint64(bits))
}

// updateFloat64 applies fn to the value stored at bits until the
// compare-and-swap succeeds or fn reports that no update is needed.
func updateFloat64(bits *uint64, fn func(old float64) (float64, bool)) {
	for {
		oldBits := atomic.LoadUint64(bits)
		newV, update := fn(math.Float64frombits(oldBits))
		if !update {
			return
		}
		if atomic.CompareAndSwapUint64(bits, oldBits, math.Float64bits(newV)) {
			return
		}
	}
}
