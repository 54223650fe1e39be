package dsp

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simTestChain(t *testing.T, samples int, capacity int) *Chain {
	t.Helper()
	registry := NewKernelRegistry()
	require.NoError(t, RegisterBuiltins(registry))
	b := NewChainBuilder(registry)
	require.NoError(t, b.DeclareInput("waveform", KindArray, Float64, "ADC", samples, 0))
	require.NoError(t, b.DeclareInput("timestamp", KindScalar, Float64, "", 0, 0))
	chain, err := b.Build(capacity)
	require.NoError(t, err)
	return chain
}

func TestSimSourceBlocks(t *testing.T) {
	chain := simTestChain(t, 16, 4)
	source := NewSimSource(6, "waveform", 400)

	n, err := source.NextBlock(chain)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = source.NextBlock(chain)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = source.NextBlock(chain)
	assert.Equal(t, io.EOF, err)
}

func TestSimSourceWaveforms(t *testing.T) {
	chain := simTestChain(t, 16, 2)
	source := NewSimSource(2, "waveform", 400)

	_, err := source.NextBlock(chain)
	require.NoError(t, err)

	wf, _ := chain.Manager.Get("waveform")
	even := wf.row(0)
	assert.Equal(t, 400.0, even[0])
	assert.Equal(t, 500.0, even[4]) // pulse region starts at a quarter
	assert.Equal(t, 500.0, even[7])
	assert.Equal(t, 400.0, even[8])

	odd := wf.row(1)
	assert.Equal(t, 400.0, odd[0])
	assert.Equal(t, 415.0, odd[15])
}

func TestSimSourceTimestamps(t *testing.T) {
	chain := simTestChain(t, 8, 2)
	source := NewSimSource(4, "waveform", 0)

	_, err := source.NextBlock(chain)
	require.NoError(t, err)
	ts, _ := chain.Manager.Get("timestamp")
	// row indices, no time scale implied
	assert.Equal(t, "", ts.Unit)
	assert.Equal(t, []float64{0, 1}, ts.data)

	_, err = source.NextBlock(chain)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, ts.data)
}

func TestSimSourceUnknownBuffer(t *testing.T) {
	chain := simTestChain(t, 8, 2)
	source := NewSimSource(4, "missing", 0)

	_, err := source.NextBlock(chain)
	var uerr *ErrUnresolvedDependency
	require.ErrorAs(t, err, &uerr)
}

func TestSimSourceWithEngine(t *testing.T) {
	registry := NewKernelRegistry()
	require.NoError(t, RegisterBuiltins(registry))
	b := NewChainBuilder(registry)
	require.NoError(t, b.DeclareInput("waveform", KindArray, Float64, "ADC", 32, 0))
	b.AddStep(StepSpec{Function: "bl_subtract", Args: []string{"waveform", "400", "wf_bl"}})
	b.AddStep(StepSpec{Function: "max_value", Args: []string{"wf_bl", "amp", "tmax"}})
	b.SetOutputs([]string{"amp", "tmax"})

	sink := newCaptureSink()
	engine := NewEngine(b, NewSimSource(4, "waveform", 400), sink, 1)
	require.NoError(t, engine.Setup(2))

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Blocks)
	assert.Equal(t, 4, summary.Rows)

	// even rows carry the synthetic pulse, odd rows peak at the ramp's end
	require.Len(t, sink.scalars["amp"], 4)
	assert.Equal(t, 100.0, sink.scalars["amp"][0])
	assert.Equal(t, 31.0, sink.scalars["amp"][1])
	assert.Equal(t, 8.0, sink.scalars["tmax"][0])
	assert.Equal(t, 31.0, sink.scalars["tmax"][1])
}
