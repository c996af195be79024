package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kioku/aperture/pkg/aperrors"
)

// Config controls concurrency and failure handling for a batch run.
type Config struct {
	MaxConcurrency  int
	RateLimitPerSec float64 // 0 disables rate limiting
	ContinueOnError bool
}

// Runner executes one interpolated operation (args, headers, cache
// override) through the parser/translator/engine pipeline and returns the
// raw response body.
type Runner func(ctx context.Context, op Operation, args []string, headers map[string]string) ([]byte, error)

// OperationResult records one operation's outcome.
type OperationResult struct {
	Operation Operation
	Success   bool
	Error     string
	Response  []byte
	Duration  time.Duration
}

// Result aggregates an entire batch run.
type Result struct {
	Results       []OperationResult
	TotalDuration time.Duration
	SuccessCount  int
	FailureCount  int
}

// Run executes every operation in file under cfg's concurrency and rate
// bounds, interpolating {{var}} references from captures made by earlier
// operations and feeding new captures back into the shared store. An
// operation naming another operation's id in its wait directive does not
// start until that operation has finished, regardless of concurrency slot
// availability or launch order.
func Run(ctx context.Context, file *File, cfg Config, run Runner) (*Result, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if err := validateWaitGraph(file.Operations); err != nil {
		return nil, err
	}

	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrency))

	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1)
	}

	store := NewVariableStore()
	var storeMu sync.Mutex

	results := make([]OperationResult, len(file.Operations))

	// done[id] closes once the operation with that id has finished (success
	// or failure), unblocking anything waiting on it.
	done := make(map[string]chan struct{}, len(file.Operations))
	for _, op := range file.Operations {
		if op.ID != "" {
			done[op.ID] = make(chan struct{})
		}
	}

	start := time.Now()
	var wg sync.WaitGroup
	var firstFatal error
	var fatalMu sync.Mutex

	for i, op := range file.Operations {
		wg.Add(1)
		go func(index int, op Operation) {
			defer wg.Done()
			if op.ID != "" {
				defer close(done[op.ID])
			}

			if op.Wait != "" {
				select {
				case <-done[op.Wait]:
				case <-ctx.Done():
					results[index] = failureResult(op, ctx.Err(), 0)
					recordFatal(&fatalMu, &firstFatal, cfg, ctx.Err())
					return
				}
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				results[index] = failureResult(op, err, 0)
				recordFatal(&fatalMu, &firstFatal, cfg, err)
				return
			}
			defer sem.Release(1)

			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					results[index] = failureResult(op, err, 0)
					recordFatal(&fatalMu, &firstFatal, cfg, err)
					return
				}
			}

			storeMu.Lock()
			args, err := InterpolateArgs(op.Args, store, opName(op, index))
			storeMu.Unlock()
			if err != nil {
				results[index] = failureResult(op, err, 0)
				recordFatal(&fatalMu, &firstFatal, cfg, err)
				return
			}

			opStart := time.Now()
			body, err := run(ctx, op, args, op.Headers)
			duration := time.Since(opStart)
			if err != nil {
				results[index] = failureResult(op, err, duration)
				recordFatal(&fatalMu, &firstFatal, cfg, err)
				return
			}

			storeMu.Lock()
			captureErr := ExtractCaptures(op, body, store)
			storeMu.Unlock()
			if captureErr != nil {
				results[index] = failureResult(op, captureErr, duration)
				recordFatal(&fatalMu, &firstFatal, cfg, captureErr)
				return
			}

			results[index] = OperationResult{Operation: op, Success: true, Response: body, Duration: duration}
		}(i, op)
	}

	wg.Wait()

	if !cfg.ContinueOnError && firstFatal != nil {
		return nil, firstFatal
	}

	result := &Result{Results: results, TotalDuration: time.Since(start)}
	for _, r := range results {
		if r.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}
	return result, nil
}

// validateWaitGraph rejects a batch file upfront if an operation id is
// declared more than once (each id backs exactly one done-channel), if a
// wait directive names an id no operation declares, or if wait directives
// form a cycle (which would otherwise deadlock every operation in it).
func validateWaitGraph(ops []Operation) error {
	ids := make(map[string]bool, len(ops))
	for _, op := range ops {
		if op.ID == "" {
			continue
		}
		if ids[op.ID] {
			return &aperrors.BatchError{Reason: fmt.Sprintf("duplicate operation id %q", op.ID)}
		}
		ids[op.ID] = true
	}

	waitOf := make(map[string]string, len(ops))
	for _, op := range ops {
		if op.Wait == "" {
			continue
		}
		if !ids[op.Wait] {
			return &aperrors.BatchError{Reason: fmt.Sprintf("operation %q waits on unknown operation id %q", opName(op, 0), op.Wait)}
		}
		if op.ID != "" {
			waitOf[op.ID] = op.Wait
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(waitOf))
	var check func(id string) error
	check = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return &aperrors.BatchError{Reason: fmt.Sprintf("wait directive cycle detected at operation id %q", id)}
		}
		state[id] = visiting
		if next, ok := waitOf[id]; ok {
			if err := check(next); err != nil {
				return err
			}
		}
		state[id] = visited
		return nil
	}
	for id := range waitOf {
		if err := check(id); err != nil {
			return err
		}
	}
	return nil
}

func opName(op Operation, index int) string {
	if op.ID != "" {
		return op.ID
	}
	return "<unnamed>"
}

func failureResult(op Operation, err error, duration time.Duration) OperationResult {
	return OperationResult{Operation: op, Success: false, Error: err.Error(), Duration: duration}
}

func recordFatal(mu *sync.Mutex, first *error, cfg Config, err error) {
	if cfg.ContinueOnError {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if *first == nil {
		*first = err
	}
}
