package dsp

import "fmt"

// ErrShapeConflict represents a buffer declaration that disagrees with an
// earlier declaration of the same buffer.
type ErrShapeConflict struct {
	Buffer    string
	Field     string
	Declared  string
	Requested string
}

func (e *ErrShapeConflict) Error() string {
	return fmt.Sprintf("shape conflict on buffer %q: %s declared as %s, redeclared as %s",
		e.Buffer, e.Field, e.Declared, e.Requested)
}

// ErrUnit represents a conversion between dimensionally incompatible or
// unknown units.
type ErrUnit struct {
	From   string
	To     string
	Reason string
}

func (e *ErrUnit) Error() string {
	return fmt.Sprintf("cannot convert %q to %q: %s", e.From, e.To, e.Reason)
}

// ErrUnresolvedDependency represents a step consuming a buffer that no step
// produces and that is not marked external.
type ErrUnresolvedDependency struct {
	Step   string
	Buffer string
}

func (e *ErrUnresolvedDependency) Error() string {
	return fmt.Sprintf("step %q consumes buffer %q which has no producer and is not external", e.Step, e.Buffer)
}

// ErrMultipleProducer represents two steps writing the same buffer.
type ErrMultipleProducer struct {
	Buffer string
	First  string
	Second string
}

func (e *ErrMultipleProducer) Error() string {
	return fmt.Sprintf("buffer %q produced by both %q and %q", e.Buffer, e.First, e.Second)
}

// ErrCyclicDependency represents a step consuming a buffer produced by a
// later step.
type ErrCyclicDependency struct {
	Buffer   string
	Producer string
	Consumer string
}

func (e *ErrCyclicDependency) Error() string {
	return fmt.Sprintf("step %q consumes buffer %q before its producer %q runs", e.Consumer, e.Buffer, e.Producer)
}

// ErrUnknownKernel represents a step referencing a kernel that was never
// registered.
type ErrUnknownKernel struct {
	Name string
}

func (e *ErrUnknownKernel) Error() string {
	return fmt.Sprintf("unknown kernel %q", e.Name)
}

// ErrInvalidStep represents a step specification the builder cannot resolve,
// e.g. a wrong argument count or a literal bound to an output role.
type ErrInvalidStep struct {
	Step   string
	Reason string
}

func (e *ErrInvalidStep) Error() string {
	return fmt.Sprintf("invalid step %q: %s", e.Step, e.Reason)
}

// ErrBufferAccess represents an out-of-bounds or mode-mismatched buffer view
// access.
type ErrBufferAccess struct {
	Buffer string
	Reason string
}

func (e *ErrBufferAccess) Error() string {
	return fmt.Sprintf("invalid access to buffer %q: %s", e.Buffer, e.Reason)
}

// ErrKernelExecution represents a kernel failure while processing a block.
// The engine records these in the run summary and keeps going.
type ErrKernelExecution struct {
	Step     string
	Block    int
	RowStart int
	RowEnd   int
	Err      error
}

func (e *ErrKernelExecution) Error() string {
	return fmt.Sprintf("kernel failure in step %q, block %d, rows [%d, %d): %v",
		e.Step, e.Block, e.RowStart, e.RowEnd, e.Err)
}

func (e *ErrKernelExecution) Unwrap() error {
	return e.Err
}

// ErrEngineState represents an engine operation called in the wrong state.
type ErrEngineState struct {
	Op    string
	State string
}

func (e *ErrEngineState) Error() string {
	return fmt.Sprintf("cannot %s while engine is %s", e.Op, e.State)
}

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

// ErrCreateGroup represents an error when creating an HDF5 group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

func (e *ErrCreateGroup) Unwrap() error {
	return e.Err
}

// ErrCreateTable represents an error when creating an HDF5 table or dataset.
type ErrCreateTable struct {
	TableName string
	Err       error
}

func (e *ErrCreateTable) Error() string {
	return fmt.Sprintf("error creating table %q: %v", e.TableName, e.Err)
}

func (e *ErrCreateTable) Unwrap() error {
	return e.Err
}
