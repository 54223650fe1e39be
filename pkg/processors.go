package dsp

import (
	"fmt"
	"math"
)

// RegisterBuiltins registers the stock signal-processing kernels. Argument
// order follows the chain configuration convention: inputs first, constants
// next, outputs last.
func RegisterBuiltins(registry *KernelRegistry) error {
	builtins := []struct {
		name  string
		sig   Signature
		row   RowFunc
		block BlockFunc
	}{
		{
			// bl_subtract(wf, baseline, out): subtract a per-event baseline.
			name: "bl_subtract",
			sig:  Signature{Args: []ArgRole{ReadArray, ReadScalar, WriteArray}, RowWise: true},
			row:  blSubtract,
		},
		{
			// moving_average(wf, width, out): trailing window mean, window
			// clamped at the start of the waveform.
			name: "moving_average",
			sig:  Signature{Args: []ArgRole{ReadArray, ConstantArg, WriteArray}, RowWise: true},
			row:  movingAverage,
		},
		{
			// pole_zero(wf, tau, out): cancel an exponential decay with the
			// given time constant (in samples).
			name: "pole_zero",
			sig:  Signature{Args: []ArgRole{ReadArray, ConstantArg, WriteArray}, RowWise: true},
			row:  poleZero,
		},
		{
			// trap_filter(wf, rise, flat, out): normalized trapezoidal filter.
			name: "trap_filter",
			sig:  Signature{Args: []ArgRole{ReadArray, ConstantArg, ConstantArg, WriteArray}, RowWise: true},
			row:  trapFilter,
		},
		{
			// fixed_time_pickoff(wf, t, out): sample the waveform at a fixed
			// time (in samples; time-unit literals are converted by the
			// builder).
			name: "fixed_time_pickoff",
			sig:  Signature{Args: []ArgRole{ReadArray, ConstantArg, WriteScalar}, RowWise: true},
			row:  fixedTimePickoff,
		},
		{
			// max_value(wf, max, argmax): maximum sample and its position.
			name: "max_value",
			sig: Signature{Args: []ArgRole{ReadArray, WriteScalar, WriteScalar}, RowWise: true,
				ArgUnits: []string{"", "", "sample"}},
			row: maxValue,
		},
		{
			// mean_stdev(wf, mean, stdev): first two moments of the waveform.
			name: "mean_stdev",
			sig:  Signature{Args: []ArgRole{ReadArray, WriteScalar, WriteScalar}, RowWise: true},
			row:  meanStdev,
		},
		{
			// integrate(wf, sum): sum over all samples.
			name: "integrate",
			sig:  Signature{Args: []ArgRole{ReadArray, WriteScalar}, RowWise: true},
			row:  integrate,
		},
		{
			// decimate(wf, k, out): average groups of k samples; output is
			// k times shorter.
			name: "decimate",
			sig: Signature{Args: []ArgRole{ReadArray, ConstantArg, WriteArray}, RowWise: true,
				Shape: ShapeRatio, RatioArg: 1},
			row: decimate,
		},
		{
			// chan_select(block, ch, out): extract one channel of a
			// channels x samples block.
			name: "chan_select",
			sig:  Signature{Args: []ArgRole{ReadArray, ConstantArg, WriteArray}, RowWise: true},
			row:  chanSelect,
		},
	}

	for _, k := range builtins {
		if err := registry.Register(k.name, k.sig, k.row, k.block); err != nil {
			return err
		}
	}
	return nil
}

func blSubtract(call *Call, row int) error {
	in := call.In(0, row)
	baseline := call.ScalarIn(1, row)
	out := call.Out(2, row)
	for i, v := range in {
		out[i] = v - baseline
	}
	return nil
}

func movingAverage(call *Call, row int) error {
	in := call.In(0, row)
	width := int(call.Const(1))
	out := call.Out(2, row)
	if width <= 0 {
		return fmt.Errorf("moving_average: width must be positive, got %d", width)
	}
	sum := 0.0
	for i, v := range in {
		sum += v
		n := width
		if i+1 < width {
			n = i + 1
		} else if i >= width {
			sum -= in[i-width]
		}
		out[i] = sum / float64(n)
	}
	return nil
}

func poleZero(call *Call, row int) error {
	in := call.In(0, row)
	tau := call.Const(1)
	out := call.Out(2, row)
	if tau <= 0 {
		return fmt.Errorf("pole_zero: tau must be positive, got %g", tau)
	}
	decay := math.Exp(-1.0 / tau)
	out[0] = in[0]
	for i := 1; i < len(in); i++ {
		out[i] = out[i-1] + in[i] - in[i-1]*decay
	}
	return nil
}

func trapFilter(call *Call, row int) error {
	in := call.In(0, row)
	rise := int(call.Const(1))
	flat := int(call.Const(2))
	out := call.Out(3, row)
	if rise <= 0 || flat < 0 {
		return fmt.Errorf("trap_filter: bad shaping times rise=%d flat=%d", rise, flat)
	}
	if 2*rise+flat > len(in) {
		return fmt.Errorf("trap_filter: shaping time %d exceeds waveform length %d", 2*rise+flat, len(in))
	}
	acc := 0.0
	norm := float64(rise)
	for i := range in {
		acc += in[i]
		if i >= rise {
			acc -= in[i-rise]
		}
		if i >= rise+flat {
			acc -= in[i-rise-flat]
		}
		if i >= 2*rise+flat {
			acc += in[i-2*rise-flat]
		}
		out[i] = acc / norm
	}
	return nil
}

func fixedTimePickoff(call *Call, row int) error {
	in := call.In(0, row)
	t := int(call.Const(1))
	if t < 0 || t >= len(in) {
		return fmt.Errorf("fixed_time_pickoff: pickoff %d outside waveform of length %d", t, len(in))
	}
	call.SetScalarOut(2, row, in[t])
	return nil
}

func maxValue(call *Call, row int) error {
	in := call.In(0, row)
	max := in[0]
	argmax := 0
	for i, v := range in {
		if v > max {
			max = v
			argmax = i
		}
	}
	call.SetScalarOut(1, row, max)
	call.SetScalarOut(2, row, float64(argmax))
	return nil
}

func meanStdev(call *Call, row int) error {
	in := call.In(0, row)
	n := float64(len(in))
	sum := 0.0
	for _, v := range in {
		sum += v
	}
	mean := sum / n
	var ss float64
	for _, v := range in {
		d := v - mean
		ss += d * d
	}
	call.SetScalarOut(1, row, mean)
	call.SetScalarOut(2, row, math.Sqrt(ss/n))
	return nil
}

func integrate(call *Call, row int) error {
	in := call.In(0, row)
	sum := 0.0
	for _, v := range in {
		sum += v
	}
	call.SetScalarOut(1, row, sum)
	return nil
}

func decimate(call *Call, row int) error {
	in := call.In(0, row)
	k := int(call.Const(1))
	out := call.Out(2, row)
	for i := range out {
		sum := 0.0
		for j := 0; j < k; j++ {
			sum += in[i*k+j]
		}
		out[i] = sum / float64(k)
	}
	return nil
}

func chanSelect(call *Call, row int) error {
	in := call.In(0, row)
	ch := int(call.Const(1))
	out := call.Out(2, row)
	n := len(out)
	if (ch+1)*n > len(in) {
		return fmt.Errorf("chan_select: channel %d outside block of %d samples", ch, len(in))
	}
	copy(out, in[ch*n:(ch+1)*n])
	return nil
}
