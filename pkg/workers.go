package dsp

import (
	"fmt"
	"sync"
)

// runRows runs a row-wise kernel over [lo, hi), recovering panics into
// errors so one malformed waveform cannot take down the run.
func runRows(step *Step, call *Call, lo int, hi int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel %q panicked on rows [%d, %d): %v", step.Kernel.Name, lo, hi, r)
		}
	}()

	for row := lo; row < hi; row++ {
		if err := step.Kernel.Row(call, row); err != nil {
			return err
		}
	}
	return nil
}

// runBlockKernel invokes a block-wise kernel under the same panic guard as
// runRows.
func runBlockKernel(step *Step, call *Call, rows int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel %q panicked on rows [0, %d): %v", step.Kernel.Name, rows, r)
		}
	}()

	return step.Kernel.Block(call, rows)
}

// runRowsParallel fans a row-wise kernel out across the worker pool. Rows
// are independent, so workers share the block's buffers without locking;
// the join below is the barrier before the next step starts.
func (e *Engine) runRowsParallel(step *Step, call *Call, rows int) error {
	workers := e.numWorkers
	if workers > rows {
		workers = rows
	}
	if workers <= 1 {
		return runRows(step, call, 0, rows)
	}

	chunk := (rows + workers - 1) / workers
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > rows {
			hi = rows
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			errs[w] = runRows(step, call, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
