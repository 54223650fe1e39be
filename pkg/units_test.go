package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertValue(t *testing.T) {
	RegisterBaseUnits()

	tests := []struct {
		name     string
		value    float64
		from, to string
		want     float64
	}{
		{"us to ns", 1.5, "us", "ns", 1500},
		{"ns to us", 2500, "ns", "us", 2.5},
		{"s to ms", 0.25, "s", "ms", 250},
		{"V to mV", 3, "V", "mV", 3000},
		{"MeV to keV", 2.6, "MeV", "keV", 2600},
		{"same unit", 42, "ADC", "ADC", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertValue(tt.value, tt.from, tt.to)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestConvertValueIncompatible(t *testing.T) {
	RegisterBaseUnits()

	_, err := ConvertValue(1, "us", "keV")
	var uerr *ErrUnit
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "us", uerr.From)
	assert.Equal(t, "keV", uerr.To)

	_, err = ConvertValue(1, "furlong", "ns")
	require.ErrorAs(t, err, &uerr)
}

func TestConvertRoundTrip(t *testing.T) {
	RegisterBaseUnits()

	pairs := [][2]string{{"ns", "us"}, {"ms", "s"}, {"mV", "V"}, {"keV", "MeV"}}
	for _, p := range pairs {
		x := 123.456
		there, err := ConvertValue(x, p[0], p[1])
		require.NoError(t, err)
		back, err := ConvertValue(there, p[1], p[0])
		require.NoError(t, err)
		assert.InDelta(t, x, back, 1e-9, "round trip %s <-> %s", p[0], p[1])
	}
}

func TestRegisterUnit(t *testing.T) {
	RegisterBaseUnits()

	require.NoError(t, RegisterUnit("min", "s", 60))
	got, err := ConvertValue(2, "min", "s")
	require.NoError(t, err)
	assert.InDelta(t, 120, got, 1e-9)

	// identical re-registration is allowed
	require.NoError(t, RegisterUnit("min", "s", 60))
	// conflicting re-registration is not
	require.Error(t, RegisterUnit("min", "s", 61))
	// unknown base unit
	require.Error(t, RegisterUnit("parsec", "lightyear", 0.3066))
}

func TestConvertSlice(t *testing.T) {
	RegisterBaseUnits()

	src := []float64{1, 2, 3}
	dst := make([]float64, 3)
	require.NoError(t, ConvertSlice(dst, src, "us", "ns"))
	assert.Equal(t, []float64{1000, 2000, 3000}, dst)

	// in place
	require.NoError(t, ConvertSlice(src, src, "us", "ns"))
	assert.Equal(t, []float64{1000, 2000, 3000}, src)

	require.Error(t, ConvertSlice(make([]float64, 2), src, "us", "ns"))
}
