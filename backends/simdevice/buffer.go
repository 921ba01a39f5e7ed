// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simdevice

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// Buffer is a dtype-aware block of simulated device memory. It implements
// backends.HostBuffer so host-step programs can address its elements.
//
// Concurrent element access from different work-items is not synchronized:
// racing writes to the same element resolve to one of the written values, the
// same non-guarantee a real device gives.
type Buffer struct {
	dtype dtypes.DType
	data  []byte
}

var _ backends.HostBuffer = (*Buffer)(nil)

// DType of the elements stored.
func (b *Buffer) DType() dtypes.DType { return b.dtype }

// Len is the number of elements.
func (b *Buffer) Len() int { return len(b.data) / b.dtype.Size() }

// Float64 reads the element at flatIdx, converted to float64.
func (b *Buffer) Float64(flatIdx int) float64 {
	switch b.dtype {
	case dtypes.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b.data[flatIdx*8:]))
	case dtypes.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b.data[flatIdx*4:])))
	case dtypes.Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b.data[flatIdx*2:])).Float32())
	case dtypes.Int32:
		return float64(int32(binary.LittleEndian.Uint32(b.data[flatIdx*4:])))
	case dtypes.Int64:
		return float64(int64(binary.LittleEndian.Uint64(b.data[flatIdx*8:])))
	}
	exceptions.Panicf("simdevice: buffer access for unsupported dtype %s", b.dtype)
	return 0
}

// SetFloat64 writes value into the element at flatIdx, converting to the
// buffer's dtype.
func (b *Buffer) SetFloat64(flatIdx int, value float64) {
	switch b.dtype {
	case dtypes.Float64:
		binary.LittleEndian.PutUint64(b.data[flatIdx*8:], math.Float64bits(value))
	case dtypes.Float32:
		binary.LittleEndian.PutUint32(b.data[flatIdx*4:], math.Float32bits(float32(value)))
	case dtypes.Float16:
		binary.LittleEndian.PutUint16(b.data[flatIdx*2:], float16.Fromfloat32(float32(value)).Bits())
	case dtypes.Int32:
		binary.LittleEndian.PutUint32(b.data[flatIdx*4:], uint32(int32(value)))
	case dtypes.Int64:
		binary.LittleEndian.PutUint64(b.data[flatIdx*8:], uint64(int64(value)))
	default:
		exceptions.Panicf("simdevice: buffer access for unsupported dtype %s", b.dtype)
	}
}
