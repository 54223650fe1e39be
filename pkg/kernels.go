package dsp

import "sync"

// ArgRole describes how a kernel uses one argument position.
type ArgRole int

const (
	ReadArray ArgRole = iota
	ReadScalar
	WriteArray
	WriteScalar
	ConstantArg
)

func (r ArgRole) String() string {
	switch r {
	case ReadArray:
		return "read-array"
	case ReadScalar:
		return "read-scalar"
	case WriteArray:
		return "write-array"
	case WriteScalar:
		return "write-scalar"
	case ConstantArg:
		return "constant"
	default:
		return "unknown"
	}
}

// ShapeRule declares how a kernel's output array length relates to its input.
type ShapeRule int

const (
	// ShapePassThrough gives outputs the length of the first array input.
	ShapePassThrough ShapeRule = iota
	// ShapeFixed gives outputs the length declared in FixedLen.
	ShapeFixed
	// ShapeRatio gives outputs the input length divided by the integer value
	// of the constant argument at RatioArg.
	ShapeRatio
)

// Signature declares the argument roles and numeric semantics of a kernel.
type Signature struct {
	Args     []ArgRole
	RowWise  bool
	Shape    ShapeRule
	FixedLen int
	RatioArg int
	// ArgUnits optionally fixes the unit of an output argument (e.g. an
	// argmax output is always in samples). Empty means pass-through or the
	// step's unit annotation.
	ArgUnits []string
}

// RowFunc processes one event row. BlockFunc processes all valid rows at
// once. A kernel implements exactly one of the two.
type (
	RowFunc   func(call *Call, row int) error
	BlockFunc func(call *Call, rows int) error
)

type KernelSpec struct {
	Name  string
	Sig   Signature
	Row   RowFunc
	Block BlockFunc
}

// KernelRegistry maps kernel names to their specs. Registration happens at
// setup; lookups during execution are read-only.
type KernelRegistry struct {
	mu      sync.RWMutex
	kernels map[string]KernelSpec
}

func NewKernelRegistry() *KernelRegistry {
	return &KernelRegistry{kernels: make(map[string]KernelSpec)}
}

func (r *KernelRegistry) Register(name string, sig Signature, row RowFunc, block BlockFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.kernels[name]; ok {
		return &ErrInvalidStep{Step: name, Reason: "kernel already registered"}
	}
	if sig.RowWise && row == nil || !sig.RowWise && block == nil {
		return &ErrInvalidStep{Step: name, Reason: "implementation does not match declared execution mode"}
	}
	r.kernels[name] = KernelSpec{Name: name, Sig: sig, Row: row, Block: block}
	return nil
}

func (r *KernelRegistry) Lookup(name string) (KernelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.kernels[name]
	if !ok {
		return KernelSpec{}, &ErrUnknownKernel{Name: name}
	}
	return spec, nil
}

// Call gives a kernel access to its bound arguments for the current block.
// Kernels are trusted to respect their declared roles; accessors panic on
// misuse and the engine workers turn panics into kernel execution errors.
type Call struct {
	step *Step
}

// In returns the array input at argument position i for one row, with any
// slice bounds applied.
func (c *Call) In(i int, row int) []float64 {
	return c.step.args[i].rowSlice(row)
}

// Out returns the array output at argument position i for one row.
func (c *Call) Out(i int, row int) []float64 {
	return c.step.args[i].rowSlice(row)
}

// ScalarIn returns the scalar input at position i for one row: the literal
// if the argument is a constant, the buffer value otherwise.
func (c *Call) ScalarIn(i int, row int) float64 {
	a := &c.step.args[i]
	if a.buf == nil {
		return a.literal
	}
	return a.buf.data[row]
}

// SetScalarOut writes the scalar output at position i for one row.
func (c *Call) SetScalarOut(i int, row int, value float64) {
	c.step.args[i].buf.data[row] = value
}

// Const returns the compile-time constant at position i.
func (c *Call) Const(i int) float64 {
	return c.step.args[i].literal
}
