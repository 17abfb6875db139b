package stats

import (
	"fmt"
	"sync/atomic"
)

// Int64Val is an atomically updated counter. Init must be called before use.
type Int64Val struct {
	val *int64
}

func (v *Int64Val) Init() {
	v.val = new(int64)
}

func (v *Int64Val) Add(delta int64) int64 {
	return atomic.AddInt64(v.val, delta)
}

func (v *Int64Val) Set(nv int64) {
	atomic.StoreInt64(v.val, nv)
}

// SetOnce stores nv only if the value is still zero. Reports whether the
// store happened.
func (v *Int64Val) SetOnce(nv int64) bool {
	return atomic.CompareAndSwapInt64(v.val, 0, nv)
}

func (v *Int64Val) CAS(old, new int64) bool {
	return atomic.CompareAndSwapInt64(v.val, old, new)
}

func (v Int64Val) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprint(v.Value())), nil
}

func (v Int64Val) Value() int64 {
	return atomic.LoadInt64(v.val)
}

// BoolVal is a flag that only ever moves from false to true.
type BoolVal struct {
	val *int32
}

func (v *BoolVal) Init() {
	v.val = new(int32)
}

// Set raises the flag. Reports whether this call performed the transition.
func (v *BoolVal) Set() bool {
	return atomic.CompareAndSwapInt32(v.val, 0, 1)
}

func (v BoolVal) MarshalJSON() ([]byte, error) {
	if v.Value() {
		return []byte("true"), nil
	}
	return []byte("false"), nil
}

func (v BoolVal) Value() bool {
	return atomic.LoadInt32(v.val) == 1
}
