package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareIdempotent(t *testing.T) {
	m := NewBufferManager()

	first, err := m.Declare("wf", KindArray, Int16, "ADC", 100, 0)
	require.NoError(t, err)
	again, err := m.Declare("wf", KindArray, Int16, "ADC", 100, 0)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, []string{"wf"}, m.Names())
}

func TestDeclareShapeConflict(t *testing.T) {
	m := NewBufferManager()
	_, err := m.Declare("wf", KindArray, Int16, "ADC", 100, 0)
	require.NoError(t, err)

	tests := []struct {
		name  string
		kind  BufferKind
		dtype DType
		unit  string
		len   int
		field string
	}{
		{"kind", KindScalar, Int16, "ADC", 100, "kind"},
		{"dtype", KindArray, Float32, "ADC", 100, "dtype"},
		{"unit", KindArray, Int16, "mV", 100, "unit"},
		{"length", KindArray, Int16, "ADC", 64, "length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Declare("wf", tt.kind, tt.dtype, tt.unit, tt.len, 0)
			var serr *ErrShapeConflict
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, "wf", serr.Buffer)
			assert.Equal(t, tt.field, serr.Field)
		})
	}
}

func TestDeclareAfterAllocation(t *testing.T) {
	m := NewBufferManager()
	_, err := m.Declare("wf", KindArray, Int16, "ADC", 100, 0)
	require.NoError(t, err)
	require.NoError(t, m.ResizeAll(8))

	_, err = m.Declare("late", KindScalar, Float64, "", 0, 0)
	var berr *ErrBufferAccess
	require.ErrorAs(t, err, &berr)

	// and only one allocation per manager
	require.Error(t, m.ResizeAll(8))
}

func TestScalarShapeNormalized(t *testing.T) {
	m := NewBufferManager()
	buf, err := m.Declare("amp", KindScalar, Float64, "ADC", 99, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Length)
	assert.Equal(t, 0, buf.Channels)
	assert.Equal(t, 1, buf.rowSize())
}

func TestViewBounds(t *testing.T) {
	m := NewBufferManager()
	_, err := m.Declare("wf", KindArray, Float64, "ADC", 4, 0)
	require.NoError(t, err)
	_, err = m.Declare("amp", KindScalar, Float64, "ADC", 0, 0)
	require.NoError(t, err)
	require.NoError(t, m.ResizeAll(8))
	require.NoError(t, m.SetBlockLen(3))

	wf, err := m.View("wf", ReadView)
	require.NoError(t, err)
	amp, err := m.View("amp", WriteView)
	require.NoError(t, err)

	_, err = wf.Row(2)
	assert.NoError(t, err)
	_, err = wf.Row(3) // allocated but outside the current block
	var berr *ErrBufferAccess
	require.ErrorAs(t, err, &berr)
	_, err = wf.Row(-1)
	require.ErrorAs(t, err, &berr)

	_, err = wf.Scalar(0)
	require.ErrorAs(t, err, &berr)
	_, err = amp.Scalar(0)
	assert.NoError(t, err)
	require.NoError(t, amp.SetScalar(1, 42))
	got, err := amp.Scalar(1)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)
}

func TestViewWriteThroughReadView(t *testing.T) {
	m := NewBufferManager()
	_, err := m.Declare("amp", KindScalar, Float64, "ADC", 0, 0)
	require.NoError(t, err)
	require.NoError(t, m.ResizeAll(4))
	require.NoError(t, m.SetBlockLen(4))

	v, err := m.View("amp", ReadView)
	require.NoError(t, err)
	var berr *ErrBufferAccess
	require.ErrorAs(t, v.SetScalar(0, 1), &berr)
}

func TestViewUnallocated(t *testing.T) {
	m := NewBufferManager()
	_, err := m.Declare("wf", KindArray, Float64, "ADC", 4, 0)
	require.NoError(t, err)

	_, err = m.View("wf", ReadView)
	var berr *ErrBufferAccess
	require.ErrorAs(t, err, &berr)
	_, err = m.View("missing", ReadView)
	require.ErrorAs(t, err, &berr)
}

func TestMatrixChanAccess(t *testing.T) {
	m := NewBufferManager()
	buf, err := m.Declare("rwf", KindMatrix, Int16, "ADC", 4, 3)
	require.NoError(t, err)
	require.NoError(t, m.ResizeAll(2))
	require.NoError(t, m.SetBlockLen(2))
	assert.Equal(t, 12, buf.rowSize())

	v, err := m.View("rwf", WriteView)
	require.NoError(t, err)

	ch, err := v.Chan(1, 2)
	require.NoError(t, err)
	require.Len(t, ch, 4)
	ch[0] = 7

	row, err := v.Row(1)
	require.NoError(t, err)
	assert.Equal(t, 7.0, row[2*4])

	var berr *ErrBufferAccess
	_, err = v.Chan(1, 3)
	require.ErrorAs(t, err, &berr)
}

func TestInvalidateRowsSkipsExternal(t *testing.T) {
	m := NewBufferManager()
	_, err := m.Declare("wf", KindArray, Float64, "ADC", 2, 0)
	require.NoError(t, err)
	_, err = m.Declare("amp", KindScalar, Float64, "ADC", 0, 0)
	require.NoError(t, err)
	require.NoError(t, m.MarkExternal("wf"))
	require.NoError(t, m.ResizeAll(4))
	require.NoError(t, m.SetBlockLen(4))

	wf, _ := m.Get("wf")
	amp, _ := m.Get("amp")
	for i := range wf.data {
		wf.data[i] = 1
	}
	for i := range amp.data {
		amp.data[i] = 2
	}

	m.InvalidateRows(1, 3)

	assert.Equal(t, 2.0, amp.data[0])
	assert.True(t, math.IsNaN(amp.data[1]))
	assert.True(t, math.IsNaN(amp.data[2]))
	assert.Equal(t, 2.0, amp.data[3])
	for _, v := range wf.data {
		assert.Equal(t, 1.0, v)
	}
}

func TestSetBlockLenBounds(t *testing.T) {
	m := NewBufferManager()
	_, err := m.Declare("amp", KindScalar, Float64, "ADC", 0, 0)
	require.NoError(t, err)
	require.NoError(t, m.ResizeAll(4))

	require.NoError(t, m.SetBlockLen(4))
	require.NoError(t, m.SetBlockLen(0))
	require.Error(t, m.SetBlockLen(5))
	require.Error(t, m.SetBlockLen(-1))
}
