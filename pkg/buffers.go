package dsp

import (
	"fmt"
	"math"
)

type BufferKind int

const (
	// KindScalar holds one value per event.
	KindScalar BufferKind = iota
	// KindArray holds a fixed-length vector per event.
	KindArray
	// KindMatrix holds a channels x samples block per event.
	KindMatrix
)

func (k BufferKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindArray:
		return "array"
	case KindMatrix:
		return "matrix"
	default:
		return "unknown"
	}
}

// DType is the declared storage type of a buffer. It is used for declaration
// conflict checks and for encoding on the output file; in memory all buffers
// compute in float64.
type DType int

const (
	Int16 DType = iota
	Int32
	Float32
	Float64
)

func (d DType) String() string {
	switch d {
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// Sentinel marks rows whose processing failed.
var Sentinel = math.NaN()

// Buffer is a named storage slot shared by the steps of a chain. Shape and
// dtype are fixed once declared; backing storage is allocated once by
// ResizeAll and reused for every block.
type Buffer struct {
	Name     string
	Kind     BufferKind
	DType    DType
	Unit     string
	Length   int // samples per event (arrays and matrices)
	Channels int // matrices only

	external bool
	producer int // index of the producing step, -1 if none
	data     []float64
	capacity int
}

// rowSize is the number of float64 values one event occupies.
func (b *Buffer) rowSize() int {
	switch b.Kind {
	case KindScalar:
		return 1
	case KindArray:
		return b.Length
	default:
		return b.Channels * b.Length
	}
}

// row returns the backing slice for one event. No bounds check; callers go
// through BufferView or are bound by the builder.
func (b *Buffer) row(i int) []float64 {
	rs := b.rowSize()
	return b.data[i*rs : (i+1)*rs]
}

func (b *Buffer) External() bool {
	return b.external
}

// BufferManager owns every buffer of a chain. Buffers are declared during
// the build, allocated once by ResizeAll and never resized mid-run.
type BufferManager struct {
	buffers  map[string]*Buffer
	order    []string
	capacity int
	blockLen int
}

func NewBufferManager() *BufferManager {
	return &BufferManager{buffers: make(map[string]*Buffer)}
}

// Declare registers a buffer. Redeclaring with identical shape, dtype and
// unit returns the existing buffer; any disagreement is a shape conflict.
func (m *BufferManager) Declare(name string, kind BufferKind, dtype DType, unit string,
	length int, channels int) (*Buffer, error) {
	if m.capacity > 0 {
		return nil, &ErrBufferAccess{Buffer: name, Reason: "declared after allocation"}
	}
	if kind == KindScalar {
		length, channels = 0, 0
	}
	if kind == KindArray {
		channels = 0
	}
	if prev, ok := m.buffers[name]; ok {
		switch {
		case prev.Kind != kind:
			return nil, &ErrShapeConflict{Buffer: name, Field: "kind",
				Declared: prev.Kind.String(), Requested: kind.String()}
		case prev.DType != dtype:
			return nil, &ErrShapeConflict{Buffer: name, Field: "dtype",
				Declared: prev.DType.String(), Requested: dtype.String()}
		case prev.Unit != unit:
			return nil, &ErrShapeConflict{Buffer: name, Field: "unit",
				Declared: prev.Unit, Requested: unit}
		case prev.Length != length:
			return nil, &ErrShapeConflict{Buffer: name, Field: "length",
				Declared: fmt.Sprint(prev.Length), Requested: fmt.Sprint(length)}
		case prev.Channels != channels:
			return nil, &ErrShapeConflict{Buffer: name, Field: "channels",
				Declared: fmt.Sprint(prev.Channels), Requested: fmt.Sprint(channels)}
		}
		return prev, nil
	}
	buf := &Buffer{
		Name:     name,
		Kind:     kind,
		DType:    dtype,
		Unit:     unit,
		Length:   length,
		Channels: channels,
		producer: -1,
	}
	m.buffers[name] = buf
	m.order = append(m.order, name)
	return buf, nil
}

// MarkExternal flags a buffer as filled by the raw data source rather than
// by a producing step.
func (m *BufferManager) MarkExternal(name string) error {
	buf, ok := m.buffers[name]
	if !ok {
		return &ErrBufferAccess{Buffer: name, Reason: "not declared"}
	}
	buf.external = true
	return nil
}

func (m *BufferManager) Get(name string) (*Buffer, bool) {
	buf, ok := m.buffers[name]
	return buf, ok
}

// Names returns buffer names in declaration order.
func (m *BufferManager) Names() []string {
	names := make([]string, len(m.order))
	copy(names, m.order)
	return names
}

// ResizeAll allocates backing storage for every declared buffer. Storage is
// zero-initialized; after the first block, values persist until a producing
// step overwrites them.
func (m *BufferManager) ResizeAll(capacity int) error {
	if capacity <= 0 {
		return &ErrBufferAccess{Buffer: "*", Reason: "capacity must be positive"}
	}
	if m.capacity > 0 {
		return &ErrBufferAccess{Buffer: "*", Reason: "already allocated"}
	}
	for _, name := range m.order {
		buf := m.buffers[name]
		buf.data = make([]float64, capacity*buf.rowSize())
		buf.capacity = capacity
	}
	m.capacity = capacity
	m.blockLen = 0
	return nil
}

func (m *BufferManager) Capacity() int {
	return m.capacity
}

// SetBlockLen sets the number of valid rows of the current block.
func (m *BufferManager) SetBlockLen(n int) error {
	if n < 0 || n > m.capacity {
		return &ErrBufferAccess{Buffer: "*",
			Reason: fmt.Sprintf("block length %d outside [0, %d]", n, m.capacity)}
	}
	m.blockLen = n
	return nil
}

func (m *BufferManager) BlockLen() int {
	return m.blockLen
}

// InvalidateRows writes the sentinel into rows [lo, hi) of every
// non-external buffer.
func (m *BufferManager) InvalidateRows(lo int, hi int) {
	for _, name := range m.order {
		buf := m.buffers[name]
		if buf.external || buf.data == nil {
			continue
		}
		rs := buf.rowSize()
		for i := lo * rs; i < hi*rs; i++ {
			buf.data[i] = Sentinel
		}
	}
}

type ViewMode int

const (
	ReadView ViewMode = iota
	WriteView
)

// BufferView is a bounded accessor to one buffer for the duration of a
// block. Row indices are checked against the current block length.
type BufferView struct {
	buf  *Buffer
	mode ViewMode
	mgr  *BufferManager
}

// View returns a view of a declared, allocated buffer.
func (m *BufferManager) View(name string, mode ViewMode) (BufferView, error) {
	buf, ok := m.buffers[name]
	if !ok {
		return BufferView{}, &ErrBufferAccess{Buffer: name, Reason: "not declared"}
	}
	if buf.data == nil {
		return BufferView{}, &ErrBufferAccess{Buffer: name, Reason: "not allocated"}
	}
	return BufferView{buf: buf, mode: mode, mgr: m}, nil
}

func (v BufferView) Kind() BufferKind { return v.buf.Kind }
func (v BufferView) Unit() string     { return v.buf.Unit }
func (v BufferView) Length() int      { return v.buf.Length }
func (v BufferView) Channels() int    { return v.buf.Channels }

func (v BufferView) checkRow(i int) error {
	if i < 0 || i >= v.mgr.blockLen {
		return &ErrBufferAccess{Buffer: v.buf.Name,
			Reason: fmt.Sprintf("row %d outside valid range [0, %d)", i, v.mgr.blockLen)}
	}
	return nil
}

// Row returns the per-event vector of an array buffer, or the flattened
// channels x samples block of a matrix buffer.
func (v BufferView) Row(i int) ([]float64, error) {
	if v.buf.Kind == KindScalar {
		return nil, &ErrBufferAccess{Buffer: v.buf.Name, Reason: "Row on scalar buffer"}
	}
	if err := v.checkRow(i); err != nil {
		return nil, err
	}
	return v.buf.row(i), nil
}

// Chan returns one channel of a matrix buffer for one event.
func (v BufferView) Chan(i int, c int) ([]float64, error) {
	if v.buf.Kind != KindMatrix {
		return nil, &ErrBufferAccess{Buffer: v.buf.Name, Reason: "Chan on non-matrix buffer"}
	}
	if err := v.checkRow(i); err != nil {
		return nil, err
	}
	if c < 0 || c >= v.buf.Channels {
		return nil, &ErrBufferAccess{Buffer: v.buf.Name,
			Reason: fmt.Sprintf("channel %d outside [0, %d)", c, v.buf.Channels)}
	}
	row := v.buf.row(i)
	return row[c*v.buf.Length : (c+1)*v.buf.Length], nil
}

func (v BufferView) Scalar(i int) (float64, error) {
	if v.buf.Kind != KindScalar {
		return 0, &ErrBufferAccess{Buffer: v.buf.Name, Reason: "Scalar on non-scalar buffer"}
	}
	if err := v.checkRow(i); err != nil {
		return 0, err
	}
	return v.buf.data[i], nil
}

func (v BufferView) SetScalar(i int, value float64) error {
	if v.mode != WriteView {
		return &ErrBufferAccess{Buffer: v.buf.Name, Reason: "write through read view"}
	}
	if v.buf.Kind != KindScalar {
		return &ErrBufferAccess{Buffer: v.buf.Name, Reason: "SetScalar on non-scalar buffer"}
	}
	if err := v.checkRow(i); err != nil {
		return err
	}
	v.buf.data[i] = value
	return nil
}
