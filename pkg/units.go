package dsp

import "sync"

// Dimension identifies the physical quantity a unit measures. Conversions
// are only allowed between units of the same dimension.
type Dimension string

const (
	DimTime    Dimension = "time"
	DimVoltage Dimension = "voltage"
	DimEnergy  Dimension = "energy"
	DimADC     Dimension = "adc"
	DimSample  Dimension = "sample"
)

// Unit is a named unit with a scale factor to the base unit of its
// dimension (ns, mV, keV, ADC, sample).
type Unit struct {
	Name  string
	Dim   Dimension
	Scale float64
}

var (
	unitsMu   sync.RWMutex
	unitTable = map[string]Unit{}
)

// RegisterBaseUnits populates the process-wide unit table with the units the
// built-in kernels know about. It is idempotent and must run before any
// chain is built. During execution the table is only read.
func RegisterBaseUnits() {
	unitsMu.Lock()
	defer unitsMu.Unlock()
	for _, u := range []Unit{
		{Name: "ns", Dim: DimTime, Scale: 1},
		{Name: "us", Dim: DimTime, Scale: 1e3},
		{Name: "ms", Dim: DimTime, Scale: 1e6},
		{Name: "s", Dim: DimTime, Scale: 1e9},
		{Name: "mV", Dim: DimVoltage, Scale: 1},
		{Name: "V", Dim: DimVoltage, Scale: 1e3},
		{Name: "keV", Dim: DimEnergy, Scale: 1},
		{Name: "MeV", Dim: DimEnergy, Scale: 1e3},
		{Name: "ADC", Dim: DimADC, Scale: 1},
		{Name: "sample", Dim: DimSample, Scale: 1},
	} {
		unitTable[u.Name] = u
	}
}

// RegisterUnit registers a unit derived from an already known base unit.
// Identical re-registration is allowed.
func RegisterUnit(name string, baseUnit string, scale float64) error {
	unitsMu.Lock()
	defer unitsMu.Unlock()

	base, ok := unitTable[baseUnit]
	if !ok {
		return &ErrUnit{From: name, To: baseUnit, Reason: "unknown base unit"}
	}
	u := Unit{Name: name, Dim: base.Dim, Scale: scale * base.Scale}
	if prev, ok := unitTable[name]; ok {
		if prev != u {
			return &ErrUnit{From: name, To: baseUnit, Reason: "unit already registered with a different definition"}
		}
		return nil
	}
	unitTable[name] = u
	return nil
}

func LookupUnit(name string) (Unit, bool) {
	unitsMu.RLock()
	defer unitsMu.RUnlock()
	u, ok := unitTable[name]
	return u, ok
}

// conversionFactor returns the multiplier taking values in `from` to values
// in `to`.
func conversionFactor(from string, to string) (float64, error) {
	unitsMu.RLock()
	defer unitsMu.RUnlock()

	uf, ok := unitTable[from]
	if !ok {
		return 0, &ErrUnit{From: from, To: to, Reason: "unknown unit " + from}
	}
	ut, ok := unitTable[to]
	if !ok {
		return 0, &ErrUnit{From: from, To: to, Reason: "unknown unit " + to}
	}
	if uf.Dim != ut.Dim {
		return 0, &ErrUnit{From: from, To: to,
			Reason: "incompatible dimensions " + string(uf.Dim) + " and " + string(ut.Dim)}
	}
	return uf.Scale / ut.Scale, nil
}

func ConvertValue(value float64, from string, to string) (float64, error) {
	if from == to {
		return value, nil
	}
	factor, err := conversionFactor(from, to)
	if err != nil {
		return 0, err
	}
	return value * factor, nil
}

// ConvertSlice converts src from one unit to another into dst. dst and src
// may alias.
func ConvertSlice(dst []float64, src []float64, from string, to string) error {
	if len(dst) != len(src) {
		return &ErrUnit{From: from, To: to, Reason: "destination length does not match source"}
	}
	factor, err := conversionFactor(from, to)
	if err != nil {
		return err
	}
	for i, v := range src {
		dst[i] = v * factor
	}
	return nil
}
