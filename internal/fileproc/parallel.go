// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error {
	return e.Err
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap returns the individual errors so errors.As can reach them.
func (e *ProcessingErrors) Unwrap() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		out[i] = pe
	}
	return out
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x is optimal for mixed I/O and CGO workloads.
const DefaultWorkerMultiplier = 2

// Workers returns the effective worker count for a configured value:
// n <= 0 selects 2x NumCPU.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU() * DefaultWorkerMultiplier
	}
	return n
}

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// MapFiles runs fn for every path on a bounded pool and returns the
// successful results in input order. Failures are collected, not fatal;
// the returned *ProcessingErrors is nil when every path succeeded.
//
// With one worker the paths are processed sequentially on the calling
// goroutine. Once ctx is cancelled the remaining paths are recorded as
// failed with the context error.
func MapFiles[T any](ctx context.Context, paths []string, workers int, fn func(context.Context, string) (T, error), onProgress ProgressFunc) ([]T, *ProcessingErrors) {
	if len(paths) == 0 {
		return nil, nil
	}

	slots := make([]T, len(paths))
	ok := make([]bool, len(paths))
	errs := &ProcessingErrors{}

	run := func(ctx context.Context, i int) {
		defer func() {
			if onProgress != nil {
				onProgress()
			}
		}()
		if err := ctx.Err(); err != nil {
			errs.Add(paths[i], err)
			return
		}
		result, err := fn(ctx, paths[i])
		if err != nil {
			errs.Add(paths[i], err)
			return
		}
		slots[i] = result
		ok[i] = true
	}

	if Workers(workers) == 1 {
		for i := range paths {
			run(ctx, i)
		}
	} else {
		p := pool.New().WithMaxGoroutines(Workers(workers)).WithContext(ctx)
		for i := range paths {
			p.Go(func(ctx context.Context) error {
				run(ctx, i)
				return nil
			})
		}
		_ = p.Wait() // failures are recorded in errs
	}

	results := make([]T, 0, len(paths))
	for i, r := range slots {
		if ok[i] {
			results = append(results, r)
		}
	}
	if !errs.HasErrors() {
		return results, nil
	}
	return results, errs
}
