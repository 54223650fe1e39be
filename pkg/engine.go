package dsp

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/xid"
)

type EngineState int

const (
	StateSetup EngineState = iota
	StateReady
	StateRunning
	StateDraining
	StateDone
	StateFailed
)

func (s EngineState) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BlockSource fills the chain's external buffers with up to capacity raw
// rows and returns how many it filled. Exhaustion is signalled with io.EOF,
// not an error.
type BlockSource interface {
	NextBlock(c *Chain) (int, error)
}

// BlockSink receives the chain's declared output buffers after each block,
// restricted to the valid row range. Sinks append: the total event count is
// not known upfront.
type BlockSink interface {
	WriteBlock(c *Chain, rows int) error
}

// KernelFailure is one entry of the run's failure ledger.
type KernelFailure struct {
	RunID string
	Block int
	Step  string
	Rows  int
	Err   error
}

// RunSummary accumulates per-run statistics. Processing runs cover millions
// of events; the engine favors best-effort completion with a ledger over
// aborting on the first bad waveform.
type RunSummary struct {
	RunID       string
	Blocks      int
	Rows        int
	InvalidRows int
	Failures    []KernelFailure
}

// Engine drives block-wise execution of a chain: fill external buffers from
// the source, run every step in order, emit outputs to the sink, repeat
// until the source is exhausted. Setup, ProcessNext and Run must be called
// from a single goroutine; State, Summary and Chain are safe to call from
// others while a run is in progress.
type Engine struct {
	mu         sync.Mutex
	builder    *ChainBuilder
	chain      *Chain
	source     BlockSource
	sink       BlockSink
	state      EngineState
	numWorkers int
	runID      string
	summary    RunSummary
}

func NewEngine(builder *ChainBuilder, source BlockSource, sink BlockSink, numWorkers int) *Engine {
	if numWorkers < 1 {
		numWorkers = 1
	}
	id := xid.New().String()
	return &Engine{
		builder:    builder,
		source:     source,
		sink:       sink,
		state:      StateSetup,
		numWorkers: numWorkers,
		runID:      id,
		summary:    RunSummary{RunID: id},
	}
}

func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Summary() RunSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Chain exposes the built chain; nil before Setup succeeds.
func (e *Engine) Chain() *Chain {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chain
}

// Setup builds the chain and allocates every buffer. Any builder error is
// fatal to chain construction.
func (e *Engine) Setup(capacity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateSetup {
		return &ErrEngineState{Op: "setup", State: e.state.String()}
	}
	chain, err := e.builder.Build(capacity)
	if err != nil {
		e.state = StateFailed
		return err
	}
	e.chain = chain
	e.state = StateReady
	return nil
}

// SetSink installs the output sink. Sinks need the built chain to declare
// their datasets, so this is called between Setup and the first block.
func (e *Engine) SetSink(sink BlockSink) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateReady {
		return &ErrEngineState{Op: "set sink", State: e.state.String()}
	}
	e.sink = sink
	return nil
}

// ProcessNext processes one block. It returns false once the source is
// exhausted and the engine has drained. Calling it after the run finished
// is a state error.
func (e *Engine) ProcessNext(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if e.state != StateReady && e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return false, &ErrEngineState{Op: "process next block", State: state.String()}
	}
	e.state = StateRunning
	chain := e.chain
	block := e.summary.Blocks
	e.mu.Unlock()

	// cooperative cancellation, block granular
	if ctx.Err() != nil {
		e.setState(StateDone)
		return false, nil
	}

	n, err := e.source.NextBlock(chain)
	if err == io.EOF {
		e.setState(StateDraining)
		// outputs are emitted per block, nothing is buffered here
		e.setState(StateDone)
		return false, nil
	}
	if err != nil {
		e.setState(StateFailed)
		return false, fmt.Errorf("reading block %d: %w", block, err)
	}
	if err := chain.Manager.SetBlockLen(n); err != nil {
		e.setState(StateFailed)
		return false, err
	}

	e.runBlock(chain, block, n)

	if e.sink != nil {
		if err := e.sink.WriteBlock(chain, n); err != nil {
			e.setState(StateFailed)
			return false, fmt.Errorf("writing block %d: %w", block, err)
		}
	}

	e.mu.Lock()
	e.summary.Blocks++
	e.summary.Rows += n
	e.mu.Unlock()
	metricBlocksProcessed.Inc()
	metricRowsProcessed.Add(float64(n))
	return true, nil
}

// runBlock executes every step over the valid row range. A kernel failure
// skips the block's remaining steps, marks all output rows with the
// sentinel and records the failure; the run continues with the next block.
func (e *Engine) runBlock(chain *Chain, block int, rows int) {
	for _, step := range chain.Steps {
		if err := e.runStep(step, rows); err != nil {
			kerr := &ErrKernelExecution{Step: step.Name, Block: block,
				RowStart: 0, RowEnd: rows, Err: err}
			logger.Error(kerr.Error())
			chain.Manager.InvalidateRows(0, rows)
			e.mu.Lock()
			e.summary.Failures = append(e.summary.Failures, KernelFailure{
				RunID: e.runID, Block: block, Step: step.Name, Rows: rows, Err: err})
			e.summary.InvalidRows += rows
			e.mu.Unlock()
			metricKernelFailures.Inc()
			metricInvalidRows.Add(float64(rows))
			return
		}
	}
}

func (e *Engine) runStep(step *Step, rows int) error {
	call := &Call{step: step}
	if !step.Kernel.Sig.RowWise {
		return runBlockKernel(step, call, rows)
	}
	if e.numWorkers > 1 {
		return e.runRowsParallel(step, call, rows)
	}
	return runRows(step, call, 0, rows)
}

// Run processes blocks until the source is exhausted or ctx is cancelled,
// then returns the run summary.
func (e *Engine) Run(ctx context.Context) (RunSummary, error) {
	for {
		more, err := e.ProcessNext(ctx)
		if err != nil {
			return e.Summary(), err
		}
		if !more {
			break
		}
	}
	summary := e.Summary()
	logger.Info(fmt.Sprintf("run %s finished: %d blocks, %d rows, %d kernel failures",
		summary.RunID, summary.Blocks, summary.Rows, len(summary.Failures)), "engine")
	return summary, nil
}

func (e *Engine) setState(s EngineState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}
