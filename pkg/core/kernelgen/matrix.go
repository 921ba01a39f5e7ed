// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernelgen

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/clgen/backends"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// Number are the Go types accepted for host⇄device matrix data transfers, the
// subset of dtypes.Supported that generated kernels can compute with.
type Number interface {
	float32 | float64 | int32 | int64
}

// Matrix is a device-resident, column-major matrix: a backend buffer plus
// shape, structural-sparsity view, and the completion events of pending
// asynchronous operations reading or writing it.
//
// Matrices participate in expressions through Load. All host-side access to a
// Matrix is single-threaded; synchronization with asynchronously running
// kernels goes through the event lists.
type Matrix struct {
	backend    backends.Backend
	buffer     backends.Buffer
	dtype      dtypes.DType
	rows, cols int
	view       View

	writeEvents []backends.Event
	readEvents  []backends.Event
}

// NewMatrix allocates an uninitialized rows x cols device matrix.
func NewMatrix(backend backends.Backend, dtype dtypes.DType, rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		exceptions.Panicf("NewMatrix: invalid shape %dx%d", rows, cols)
	}
	return &Matrix{
		backend: backend,
		buffer:  backend.NewBuffer(dtype, rows*cols),
		dtype:   dtype,
		rows:    rows,
		cols:    cols,
		view:    Entire,
	}
}

// MatrixFromRows allocates a device matrix and fills it with the given
// row-major values. The element dtype is taken from T.
func MatrixFromRows[T Number](backend backends.Backend, values [][]T) *Matrix {
	rows := len(values)
	cols := 0
	if rows > 0 {
		cols = len(values[0])
	}
	dtype := dtypes.FromGenericsType[T]()
	m := NewMatrix(backend, dtype, rows, cols)
	data := make([]byte, rows*cols*dtype.Size())
	for r, rowValues := range values {
		checkSizeMatch("MatrixFromRows", "columns of row 0", cols, "columns of row", len(rowValues))
		for c, v := range rowValues {
			encodeElement(dtype, data, flatIndex(r, rows, c), float64(v))
		}
	}
	backend.WriteBuffer(m.buffer, data, nil)
	return m
}

// RowsFromMatrix reads the matrix back to the host as row-major values,
// waiting for all pending writes to it first.
func RowsFromMatrix[T Number](m *Matrix) [][]T {
	data := m.backend.ReadBuffer(m.buffer, m.writeEvents)
	values := make([][]T, m.rows)
	for r := range values {
		values[r] = make([]T, m.cols)
		for c := range values[r] {
			values[r][c] = T(decodeElement(m.dtype, data, flatIndex(r, m.rows, c)))
		}
	}
	return values
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// DType returns the element type.
func (m *Matrix) DType() dtypes.DType { return m.dtype }

// View returns the current structural-sparsity classification.
func (m *Matrix) View() View { return m.view }

// SetView declares the structural sparsity of the matrix contents: the caller
// promises every position outside v holds zero. Kernels reading the matrix
// use it to skip or zero out the excluded regions.
func (m *Matrix) SetView(v View) { m.view = v }

// Buffer returns the underlying device buffer.
func (m *Matrix) Buffer() backends.Buffer { return m.buffer }

// AddWriteEvent registers the completion event of a kernel writing this matrix.
// Earlier events are superseded: a later conflicting operation waiting on e is
// ordered after everything e was ordered after.
func (m *Matrix) AddWriteEvent(e backends.Event) {
	m.writeEvents = append(m.writeEvents, e)
}

// AddReadEvent registers the completion event of a kernel reading this matrix.
func (m *Matrix) AddReadEvent(e backends.Event) {
	m.readEvents = append(m.readEvents, e)
}

// WriteEvents returns the pending write-completion events.
func (m *Matrix) WriteEvents() []backends.Event { return m.writeEvents }

// ReadEvents returns the pending read-completion events.
func (m *Matrix) ReadEvents() []backends.Event { return m.readEvents }

// Wait blocks until all pending operations touching this matrix completed, and
// clears the event lists.
func (m *Matrix) Wait() {
	for _, e := range m.writeEvents {
		e.Wait()
	}
	for _, e := range m.readEvents {
		e.Wait()
	}
	m.writeEvents = m.writeEvents[:0]
	m.readEvents = m.readEvents[:0]
}

func encodeElement(dtype dtypes.DType, data []byte, idx int, value float64) {
	switch dtype {
	case dtypes.Float64:
		binary.LittleEndian.PutUint64(data[idx*8:], math.Float64bits(value))
	case dtypes.Float32:
		binary.LittleEndian.PutUint32(data[idx*4:], math.Float32bits(float32(value)))
	case dtypes.Float16:
		binary.LittleEndian.PutUint16(data[idx*2:], float16.Fromfloat32(float32(value)).Bits())
	case dtypes.Int32:
		binary.LittleEndian.PutUint32(data[idx*4:], uint32(int32(value)))
	case dtypes.Int64:
		binary.LittleEndian.PutUint64(data[idx*8:], uint64(int64(value)))
	default:
		exceptions.Panicf("kernelgen: dtype %s is not supported for matrix data", dtype)
	}
}

func decodeElement(dtype dtypes.DType, data []byte, idx int) float64 {
	switch dtype {
	case dtypes.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data[idx*8:]))
	case dtypes.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[idx*4:])))
	case dtypes.Float16:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(data[idx*2:])).Float32())
	case dtypes.Int32:
		return float64(int32(binary.LittleEndian.Uint32(data[idx*4:])))
	case dtypes.Int64:
		return float64(int64(binary.LittleEndian.Uint64(data[idx*8:])))
	default:
		exceptions.Panicf("kernelgen: dtype %s is not supported for matrix data", dtype)
		return 0
	}
}
