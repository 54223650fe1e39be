package dsp

import (
	"fmt"
	"strconv"
	"strings"
)

// StepSpec is one entry of the declarative chain description, as it comes
// out of the configuration file. Argument expressions are buffer names
// ("wf_raw"), slices of buffers ("wf_raw[10:90]"), numeric literals ("3.5")
// or literals with a unit ("10*us").
type StepSpec struct {
	Name     string   `json:"name"`
	Function string   `json:"function"`
	Args     []string `json:"args"`
	Unit     string   `json:"unit,omitempty"`
}

// argBinding is a fully resolved argument: either a literal constant or a
// buffer with optional slice bounds.
type argBinding struct {
	role    ArgRole
	buf     *Buffer
	lo, hi  int // sample bounds within a row, arrays only
	literal float64
}

func (a *argBinding) rowSlice(row int) []float64 {
	r := a.buf.row(row)
	if a.hi > 0 {
		return r[a.lo:a.hi]
	}
	return r
}

// effectiveLen is the per-row length seen by the kernel.
func (a *argBinding) effectiveLen() int {
	if a.hi > 0 {
		return a.hi - a.lo
	}
	return a.buf.rowSize()
}

// Step is one resolved chain entry. Immutable after the build; holds no
// per-block state.
type Step struct {
	Name   string
	Kernel KernelSpec
	args   []argBinding
}

// Chain is the ordered, resolved sequence of steps plus the finalized buffer
// manager. Execution order equals declaration order: the builder rejects any
// chain where that would not be a topological order.
type Chain struct {
	Steps   []*Step
	Manager *BufferManager
	Outputs []string
}

// ChainBuilder accumulates step specs and resolves them into a Chain.
type ChainBuilder struct {
	registry     *KernelRegistry
	manager      *BufferManager
	steps        []StepSpec
	outputs      []string
	samplePeriod float64 // ns per sample
	defaultUnit  string
}

func NewChainBuilder(registry *KernelRegistry) *ChainBuilder {
	return &ChainBuilder{
		registry:    registry,
		manager:     NewBufferManager(),
		defaultUnit: "ADC",
	}
}

// SetSamplePeriod sets the digitizer sampling period in ns, used to convert
// time-unit literals ("10*us") into sample counts.
func (b *ChainBuilder) SetSamplePeriod(ns float64) {
	b.samplePeriod = ns
}

// SetDefaultUnit sets the unit assigned to outputs when neither the kernel
// signature nor the step annotation provides one.
func (b *ChainBuilder) SetDefaultUnit(unit string) {
	b.defaultUnit = unit
}

// DeclareInput declares an externally filled buffer (raw waveform,
// timestamp). Input buffers have no producing step.
func (b *ChainBuilder) DeclareInput(name string, kind BufferKind, dtype DType, unit string,
	length int, channels int) error {
	if _, err := b.manager.Declare(name, kind, dtype, unit, length, channels); err != nil {
		return err
	}
	return b.manager.MarkExternal(name)
}

func (b *ChainBuilder) AddStep(spec StepSpec) {
	b.steps = append(b.steps, spec)
}

// SetOutputs names the buffers emitted to the sink after each block.
func (b *ChainBuilder) SetOutputs(names []string) {
	b.outputs = names
}

// parsedArg is the syntactic form of one argument expression.
type parsedArg struct {
	isLiteral bool
	value     float64
	unit      string
	name      string
	lo, hi    int
	sliced    bool
}

func parseArg(expr string) (parsedArg, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return parsedArg{}, fmt.Errorf("empty argument")
	}

	// literal, possibly with a unit: "3.5", "10*us"
	if v, err := strconv.ParseFloat(expr, 64); err == nil {
		return parsedArg{isLiteral: true, value: v}, nil
	}
	if idx := strings.Index(expr, "*"); idx > 0 {
		v, err := strconv.ParseFloat(strings.TrimSpace(expr[:idx]), 64)
		if err != nil {
			return parsedArg{}, fmt.Errorf("malformed literal %q", expr)
		}
		unit := strings.TrimSpace(expr[idx+1:])
		if unit == "" {
			return parsedArg{}, fmt.Errorf("missing unit in %q", expr)
		}
		return parsedArg{isLiteral: true, value: v, unit: unit}, nil
	}

	// buffer reference, possibly sliced: "wf_raw", "wf_raw[10:90]"
	name := expr
	arg := parsedArg{}
	if idx := strings.Index(expr, "["); idx > 0 {
		if !strings.HasSuffix(expr, "]") {
			return parsedArg{}, fmt.Errorf("malformed slice %q", expr)
		}
		name = expr[:idx]
		bounds := strings.Split(expr[idx+1:len(expr)-1], ":")
		if len(bounds) != 2 {
			return parsedArg{}, fmt.Errorf("malformed slice %q", expr)
		}
		lo, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return parsedArg{}, fmt.Errorf("malformed slice bound %q", bounds[0])
		}
		hi, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err != nil {
			return parsedArg{}, fmt.Errorf("malformed slice bound %q", bounds[1])
		}
		if lo < 0 || hi <= lo {
			return parsedArg{}, fmt.Errorf("invalid slice bounds [%d:%d]", lo, hi)
		}
		arg.sliced = true
		arg.lo, arg.hi = lo, hi
	}
	// identifiers: letter or underscore first, so a typo'd literal like "1e"
	// cannot pass as a buffer reference
	for i, r := range name {
		switch {
		case r == '_', 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z':
		case i > 0 && '0' <= r && r <= '9':
		default:
			return parsedArg{}, fmt.Errorf("malformed buffer name %q", name)
		}
	}
	arg.name = name
	return arg, nil
}

func stepName(spec StepSpec) string {
	if spec.Name != "" {
		return spec.Name
	}
	return spec.Function
}

// Build resolves every step in declaration order, validates the dependency
// graph and allocates all buffers. Any error leaves nothing allocated: a
// malformed chain never runs partially.
func (b *ChainBuilder) Build(capacity int) (*Chain, error) {
	futureProducer, err := b.scanProducers()
	if err != nil {
		return nil, err
	}

	steps := make([]*Step, 0, len(b.steps))
	for i, spec := range b.steps {
		step, err := b.resolveStep(i, spec, futureProducer)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	for _, name := range b.outputs {
		if _, ok := b.manager.Get(name); !ok {
			return nil, &ErrUnresolvedDependency{Step: "outputs", Buffer: name}
		}
	}

	if err := b.manager.ResizeAll(capacity); err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("chain built: %d steps, %d buffers, capacity %d",
		len(steps), len(b.manager.Names()), capacity), "builder")
	return &Chain{Steps: steps, Manager: b.manager, Outputs: b.outputs}, nil
}

// scanProducers records which step produces each buffer before resolution,
// so a consume-before-produce can be reported as a cycle rather than as a
// missing buffer. It also enforces the single-writer invariant.
func (b *ChainBuilder) scanProducers() (map[string]int, error) {
	producers := make(map[string]int)
	for i, spec := range b.steps {
		kernel, err := b.registry.Lookup(spec.Function)
		if err != nil {
			return nil, err
		}
		if len(spec.Args) != len(kernel.Sig.Args) {
			return nil, &ErrInvalidStep{Step: stepName(spec),
				Reason: fmt.Sprintf("kernel %q takes %d arguments, got %d",
					spec.Function, len(kernel.Sig.Args), len(spec.Args))}
		}
		for j, role := range kernel.Sig.Args {
			if role != WriteArray && role != WriteScalar {
				continue
			}
			arg, err := parseArg(spec.Args[j])
			if err != nil {
				return nil, &ErrInvalidStep{Step: stepName(spec), Reason: err.Error()}
			}
			if arg.isLiteral {
				return nil, &ErrInvalidStep{Step: stepName(spec),
					Reason: fmt.Sprintf("argument %d is an output, got literal %q", j, spec.Args[j])}
			}
			if arg.sliced {
				return nil, &ErrInvalidStep{Step: stepName(spec),
					Reason: fmt.Sprintf("output argument %d cannot be a slice", j)}
			}
			if buf, ok := b.manager.Get(arg.name); ok && buf.external {
				return nil, &ErrMultipleProducer{Buffer: arg.name, First: "source", Second: stepName(spec)}
			}
			if p, ok := producers[arg.name]; ok {
				return nil, &ErrMultipleProducer{Buffer: arg.name,
					First: stepName(b.steps[p]), Second: stepName(spec)}
			}
			producers[arg.name] = i
		}
	}
	return producers, nil
}

func (b *ChainBuilder) resolveStep(index int, spec StepSpec, futureProducer map[string]int) (*Step, error) {
	name := stepName(spec)
	kernel, err := b.registry.Lookup(spec.Function)
	if err != nil {
		return nil, err
	}

	args := make([]argBinding, len(spec.Args))
	inLen, inUnit := 0, ""
	inDType := Float64

	for j, role := range kernel.Sig.Args {
		arg, err := parseArg(spec.Args[j])
		if err != nil {
			return nil, &ErrInvalidStep{Step: name, Reason: err.Error()}
		}

		switch role {
		case ConstantArg, ReadScalar:
			if arg.isLiteral {
				value, err := b.literalValue(arg)
				if err != nil {
					return nil, &ErrInvalidStep{Step: name, Reason: err.Error()}
				}
				args[j] = argBinding{role: role, literal: value}
				continue
			}
			if role == ConstantArg {
				return nil, &ErrInvalidStep{Step: name,
					Reason: fmt.Sprintf("argument %d must be a constant, got buffer %q", j, arg.name)}
			}
			buf, err := b.resolveRead(index, name, arg.name, futureProducer)
			if err != nil {
				return nil, err
			}
			if buf.Kind != KindScalar {
				return nil, &ErrInvalidStep{Step: name,
					Reason: fmt.Sprintf("argument %d expects a scalar buffer, %q is %s", j, arg.name, buf.Kind)}
			}
			args[j] = argBinding{role: role, buf: buf}

		case ReadArray:
			if arg.isLiteral {
				return nil, &ErrInvalidStep{Step: name,
					Reason: fmt.Sprintf("argument %d expects an array buffer, got literal", j)}
			}
			buf, err := b.resolveRead(index, name, arg.name, futureProducer)
			if err != nil {
				return nil, err
			}
			if buf.Kind == KindScalar {
				return nil, &ErrInvalidStep{Step: name,
					Reason: fmt.Sprintf("argument %d expects an array buffer, %q is scalar", j, arg.name)}
			}
			binding := argBinding{role: role, buf: buf}
			if arg.sliced {
				if buf.Kind != KindArray {
					return nil, &ErrInvalidStep{Step: name,
						Reason: fmt.Sprintf("slices only apply to array buffers, %q is %s", arg.name, buf.Kind)}
				}
				if arg.hi > buf.Length {
					return nil, &ErrBufferAccess{Buffer: arg.name,
						Reason: fmt.Sprintf("slice bound %d exceeds length %d", arg.hi, buf.Length)}
				}
				binding.lo, binding.hi = arg.lo, arg.hi
			}
			args[j] = binding
			if inLen == 0 && buf.Kind == KindArray {
				inLen = binding.effectiveLen()
				inUnit = buf.Unit
				inDType = buf.DType
			}
			if inLen == 0 && buf.Kind == KindMatrix {
				// pass-through from a matrix keeps the per-channel length
				inLen = buf.Length
				inUnit = buf.Unit
				inDType = buf.DType
			}

		case WriteArray, WriteScalar:
			unit := b.outputUnit(kernel.Sig, j, spec.Unit, inUnit)
			buf, err := b.declareOutput(name, kernel.Sig, role, arg.name, unit, inLen, inDType, args)
			if err != nil {
				return nil, err
			}
			buf.producer = index
			args[j] = argBinding{role: role, buf: buf}
		}
	}
	return &Step{Name: name, Kernel: kernel, args: args}, nil
}

// literalValue converts a unit-tagged literal into the chain's sample
// coordinates. Bare literals pass through untouched.
func (b *ChainBuilder) literalValue(arg parsedArg) (float64, error) {
	if arg.unit == "" || arg.unit == "sample" {
		return arg.value, nil
	}
	u, ok := LookupUnit(arg.unit)
	if !ok {
		return 0, &ErrUnit{From: arg.unit, To: "sample", Reason: "unknown unit " + arg.unit}
	}
	if u.Dim != DimTime {
		return 0, fmt.Errorf("literal unit %q must be a time unit or sample", arg.unit)
	}
	if b.samplePeriod <= 0 {
		return 0, fmt.Errorf("time literal needs a sample period, none configured")
	}
	ns, err := ConvertValue(arg.value, arg.unit, "ns")
	if err != nil {
		return 0, err
	}
	return ns / b.samplePeriod, nil
}

func (b *ChainBuilder) resolveRead(index int, step string, buffer string,
	futureProducer map[string]int) (*Buffer, error) {
	buf, ok := b.manager.Get(buffer)
	if ok && (buf.external || (buf.producer >= 0 && buf.producer < index)) {
		return buf, nil
	}
	if p, ok := futureProducer[buffer]; ok && p >= index {
		return nil, &ErrCyclicDependency{Buffer: buffer,
			Producer: stepName(b.steps[p]), Consumer: step}
	}
	return nil, &ErrUnresolvedDependency{Step: step, Buffer: buffer}
}

func (b *ChainBuilder) outputUnit(sig Signature, argIndex int, stepUnit string, inUnit string) string {
	if len(sig.ArgUnits) > argIndex && sig.ArgUnits[argIndex] != "" {
		return sig.ArgUnits[argIndex]
	}
	if stepUnit != "" {
		return stepUnit
	}
	if inUnit != "" {
		return inUnit
	}
	return b.defaultUnit
}

// declareOutput infers the shape of a new-output placeholder from the kernel
// signature and the sibling inputs, then declares it.
func (b *ChainBuilder) declareOutput(step string, sig Signature, role ArgRole,
	buffer string, unit string, inLen int, inDType DType, args []argBinding) (*Buffer, error) {
	if role == WriteScalar {
		return b.manager.Declare(buffer, KindScalar, Float64, unit, 0, 0)
	}

	length := 0
	switch sig.Shape {
	case ShapePassThrough:
		if inLen == 0 {
			return nil, &ErrInvalidStep{Step: step,
				Reason: "cannot infer output length without an array input"}
		}
		length = inLen
	case ShapeFixed:
		length = sig.FixedLen
	case ShapeRatio:
		if sig.RatioArg >= len(args) || args[sig.RatioArg].buf != nil {
			return nil, &ErrInvalidStep{Step: step, Reason: "decimation factor must be a constant"}
		}
		ratio := int(args[sig.RatioArg].literal)
		if ratio <= 0 {
			return nil, &ErrInvalidStep{Step: step,
				Reason: fmt.Sprintf("decimation factor must be positive, got %d", ratio)}
		}
		if inLen == 0 || inLen%ratio != 0 {
			return nil, &ErrInvalidStep{Step: step,
				Reason: fmt.Sprintf("input length %d not divisible by decimation factor %d", inLen, ratio)}
		}
		length = inLen / ratio
	}
	return b.manager.Declare(buffer, KindArray, inDType, unit, length, 0)
}
