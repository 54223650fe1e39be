package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		expr string
		want parsedArg
	}{
		{"3.5", parsedArg{isLiteral: true, value: 3.5}},
		{"-2", parsedArg{isLiteral: true, value: -2}},
		{"10*us", parsedArg{isLiteral: true, value: 10, unit: "us"}},
		{" 0.5 * ms ", parsedArg{isLiteral: true, value: 0.5, unit: "ms"}},
		{"wf_raw", parsedArg{name: "wf_raw"}},
		{"wf_raw[10:90]", parsedArg{name: "wf_raw", lo: 10, hi: 90, sliced: true}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := parseArg(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, expr := range []string{"", "wf raw", "wf[10:", "wf[5:5]", "wf[-1:4]", "wf[a:b]", "*us", "wf[1:2:3]", "1abc", "1e", "2qs[0:4]"} {
		t.Run("bad "+expr, func(t *testing.T) {
			_, err := parseArg(expr)
			require.Error(t, err)
		})
	}
}

// newTestBuilder returns a builder with the stock kernels, a 25 ns sample
// period and one external 100-sample array input "wf".
func newTestBuilder(t *testing.T) *ChainBuilder {
	t.Helper()
	RegisterBaseUnits()
	registry := NewKernelRegistry()
	require.NoError(t, RegisterBuiltins(registry))
	b := NewChainBuilder(registry)
	b.SetSamplePeriod(25)
	require.NoError(t, b.DeclareInput("wf", KindArray, Float64, "ADC", 100, 0))
	return b
}

func TestBuildResolvesChain(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "bl_subtract", Args: []string{"wf", "400", "wf_bl"}})
	b.AddStep(StepSpec{Function: "max_value", Args: []string{"wf_bl", "amp", "tmax"}})
	b.SetOutputs([]string{"amp", "tmax"})

	chain, err := b.Build(8)
	require.NoError(t, err)
	require.Len(t, chain.Steps, 2)
	assert.Equal(t, "bl_subtract", chain.Steps[0].Name)

	wfBl, ok := chain.Manager.Get("wf_bl")
	require.True(t, ok)
	assert.Equal(t, KindArray, wfBl.Kind)
	assert.Equal(t, 100, wfBl.Length)
	assert.Equal(t, "ADC", wfBl.Unit)
	assert.Equal(t, 0, wfBl.producer)

	amp, ok := chain.Manager.Get("amp")
	require.True(t, ok)
	assert.Equal(t, KindScalar, amp.Kind)
	assert.Equal(t, "ADC", amp.Unit)

	tmax, ok := chain.Manager.Get("tmax")
	require.True(t, ok)
	assert.Equal(t, "sample", tmax.Unit)
}

func TestBuildTimeLiteral(t *testing.T) {
	b := newTestBuilder(t)
	// 2 us at 25 ns per sample is sample 80
	b.AddStep(StepSpec{Function: "fixed_time_pickoff", Args: []string{"wf", "2*us", "pick"}})

	chain, err := b.Build(4)
	require.NoError(t, err)
	assert.InDelta(t, 80, chain.Steps[0].args[1].literal, 1e-9)
}

func TestBuildSlicedInput(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "moving_average", Args: []string{"wf[10:90]", "4", "wf_s"}})

	chain, err := b.Build(4)
	require.NoError(t, err)
	wfS, ok := chain.Manager.Get("wf_s")
	require.True(t, ok)
	assert.Equal(t, 80, wfS.Length)
}

func TestBuildUnresolvedDependency(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "integrate", Args: []string{"ghost", "sum"}})

	_, err := b.Build(4)
	var uerr *ErrUnresolvedDependency
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "ghost", uerr.Buffer)
}

func TestBuildCyclicDependency(t *testing.T) {
	b := newTestBuilder(t)
	// consumes wf_s before the step that produces it
	b.AddStep(StepSpec{Function: "max_value", Args: []string{"wf_s", "amp", "tmax"}})
	b.AddStep(StepSpec{Function: "moving_average", Args: []string{"wf", "4", "wf_s"}})

	_, err := b.Build(4)
	var cerr *ErrCyclicDependency
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "wf_s", cerr.Buffer)
}

func TestBuildMultipleProducer(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Name: "first", Function: "moving_average", Args: []string{"wf", "4", "wf_s"}})
	b.AddStep(StepSpec{Name: "second", Function: "bl_subtract", Args: []string{"wf", "400", "wf_s"}})

	_, err := b.Build(4)
	var merr *ErrMultipleProducer
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "wf_s", merr.Buffer)
	assert.Equal(t, "first", merr.First)
	assert.Equal(t, "second", merr.Second)
}

func TestBuildWriteToInput(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "moving_average", Args: []string{"wf", "4", "wf"}})

	_, err := b.Build(4)
	var merr *ErrMultipleProducer
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "source", merr.First)
}

func TestBuildUnknownKernel(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "fourier_transform", Args: []string{"wf", "out"}})

	_, err := b.Build(4)
	var kerr *ErrUnknownKernel
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "fourier_transform", kerr.Name)
}

func TestBuildBadSteps(t *testing.T) {
	tests := []struct {
		name string
		spec StepSpec
	}{
		{"arg count", StepSpec{Function: "integrate", Args: []string{"wf", "sum", "extra"}}},
		{"literal output", StepSpec{Function: "integrate", Args: []string{"wf", "3.5"}}},
		{"sliced output", StepSpec{Function: "moving_average", Args: []string{"wf", "4", "out[0:4]"}}},
		{"buffer as constant", StepSpec{Function: "moving_average", Args: []string{"wf", "wf", "out"}}},
		{"literal as array", StepSpec{Function: "integrate", Args: []string{"7", "sum"}}},
		{"slice past end", StepSpec{Function: "integrate", Args: []string{"wf[0:200]", "sum"}}},
		{"energy literal", StepSpec{Function: "fixed_time_pickoff", Args: []string{"wf", "2*keV", "pick"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(t)
			b.AddStep(tt.spec)
			_, err := b.Build(4)
			require.Error(t, err)
		})
	}
}

func TestBuildDecimateLength(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "decimate", Args: []string{"wf", "4", "wf_dec"}})

	chain, err := b.Build(4)
	require.NoError(t, err)
	wfDec, ok := chain.Manager.Get("wf_dec")
	require.True(t, ok)
	assert.Equal(t, 25, wfDec.Length)
}

func TestBuildDecimateNotDivisible(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "decimate", Args: []string{"wf", "3", "wf_dec"}})

	_, err := b.Build(4)
	var serr *ErrInvalidStep
	require.ErrorAs(t, err, &serr)
}

func TestBuildUnknownOutput(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "integrate", Args: []string{"wf", "sum"}})
	b.SetOutputs([]string{"sum", "nosuch"})

	_, err := b.Build(4)
	var uerr *ErrUnresolvedDependency
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "nosuch", uerr.Buffer)
}

func TestBuildStepUnitAnnotation(t *testing.T) {
	b := newTestBuilder(t)
	b.AddStep(StepSpec{Function: "bl_subtract", Args: []string{"wf", "400", "wf_mv"}, Unit: "mV"})

	chain, err := b.Build(4)
	require.NoError(t, err)
	wfMv, ok := chain.Manager.Get("wf_mv")
	require.True(t, ok)
	assert.Equal(t, "mV", wfMv.Unit)
}
