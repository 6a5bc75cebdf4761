package batch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scoreflow/internal/config"
	"scoreflow/internal/logging"
)

// ErrDeadline marks items that never ran because the batch deadline expired.
var ErrDeadline = errors.New("batch deadline exceeded")

// Handler processes a single item. It must honor ctx cancellation; the
// executor additionally recovers panics and converts them to item errors.
type Handler[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult records the outcome of one item within a batch.
type ItemResult[R any] struct {
	Index    int // position within the batch
	Value    R
	Err      error
	Duration time.Duration
}

// Result is the outcome of one batch, including all retry attempts.
type Result[R any] struct {
	BatchID   string
	Index     int // position within the run
	Status    Status
	Items     []ItemResult[R]
	Succeeded int
	Failed    int
	Retries   int
	Duration  time.Duration
}

// FailureRate returns failed/total for the batch, 0 for an empty batch.
func (r Result[R]) FailureRate() float64 {
	total := r.Succeeded + r.Failed
	if total == 0 {
		return 0
	}
	return float64(r.Failed) / float64(total)
}

// Executor runs partitioned work in one of three modes: sequential streaming,
// bounded-parallel, or fold. All modes share the same per-batch retry and
// status semantics.
type Executor[T, R any] struct {
	cfg     config.BatchConfig
	handler Handler[T, R]
}

// NewExecutor returns an executor over the given handler.
func NewExecutor[T, R any](cfg config.BatchConfig, handler Handler[T, R]) *Executor[T, R] {
	return &Executor[T, R]{cfg: cfg, handler: handler}
}

// runItem executes a single item with panic isolation and the per-item
// timeout applied.
func (e *Executor[T, R]) runItem(ctx context.Context, item T) (value R, err error) {
	itemCtx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeoutDuration())
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item handler panicked: %v", r)
		}
	}()
	return e.handler(itemCtx, item)
}

// runOnce executes one attempt of a batch under the batch deadline. Items
// after deadline expiry are marked failed with ErrDeadline without running.
func (e *Executor[T, R]) runOnce(ctx context.Context, items []T) []ItemResult[R] {
	batchCtx, cancel := context.WithTimeout(ctx, e.cfg.BatchDeadlineDuration())
	defer cancel()

	results := make([]ItemResult[R], len(items))
	for i, item := range items {
		if batchCtx.Err() != nil {
			results[i] = ItemResult[R]{Index: i, Err: fmt.Errorf("%w: item %d not executed", ErrDeadline, i)}
			continue
		}
		start := time.Now()
		value, err := e.runItem(batchCtx, item)
		results[i] = ItemResult[R]{Index: i, Value: value, Err: err, Duration: time.Since(start)}
	}
	return results
}

// statusFor derives the terminal status from item outcomes: no failures is
// COMPLETED, total failure is FAILED, anything mixed is PARTIAL_SUCCESS.
// Empty batches complete trivially.
func statusFor(succeeded, failed int) Status {
	switch {
	case failed == 0:
		return StatusCompleted
	case succeeded == 0:
		return StatusFailed
	default:
		return StatusPartialSuccess
	}
}

// RunBatch executes one batch to a terminal status, retrying the whole batch
// with exponential backoff while the failure rate exceeds the configured
// error threshold and retries remain.
func (e *Executor[T, R]) RunBatch(ctx context.Context, index int, items []T) Result[R] {
	res := Result[R]{
		BatchID: uuid.NewString(),
		Index:   index,
		Status:  StatusRunning,
	}
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			res.Duration = time.Since(start)
			logging.BatchWarn("batch %d (%s) cancelled before attempt %d", index, res.BatchID, attempt)
			return res
		}

		itemResults := e.runOnce(ctx, items)
		succeeded, failed := 0, 0
		for _, ir := range itemResults {
			if ir.Err != nil {
				failed++
			} else {
				succeeded++
			}
		}
		res.Items = itemResults
		res.Succeeded = succeeded
		res.Failed = failed
		res.Retries = attempt

		// Retry at or above the threshold, not only past it. The rate > 0
		// guard keeps a clean batch from retrying under a zero threshold.
		rate := res.FailureRate()
		if rate >= e.cfg.ErrorThreshold && rate > 0 && attempt < e.cfg.MaxRetries {
			backoff := e.cfg.BackoffBaseDuration() * time.Duration(1<<attempt)
			logging.BatchWarn("batch %d (%s) failure rate %.2f exceeds threshold %.2f, retry %d/%d after %s",
				index, res.BatchID, rate, e.cfg.ErrorThreshold, attempt+1, e.cfg.MaxRetries, backoff)
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				res.Status = StatusCancelled
				res.Duration = time.Since(start)
				return res
			}
		}

		res.Status = statusFor(succeeded, failed)
		res.Duration = time.Since(start)
		logging.BatchDebug("batch %d (%s) finished: status=%s succeeded=%d failed=%d retries=%d",
			index, res.BatchID, res.Status, succeeded, failed, attempt)
		return res
	}
}

// RunSequential partitions items and runs the batches in order, one at a
// time, returning results in batch order.
func (e *Executor[T, R]) RunSequential(ctx context.Context, items []T, batchSize int) []Result[R] {
	timer := logging.StartTimer(logging.CategoryBatch, "RunSequential")
	defer timer.Stop()

	batches := Partition(items, batchSize)
	results := make([]Result[R], 0, len(batches))
	for i, b := range batches {
		results = append(results, e.RunBatch(ctx, i, b))
	}
	return results
}

// Stream partitions items and runs the batches sequentially, delivering each
// batch result on the returned channel as it completes. The channel is closed
// once all batches are done or the context is cancelled.
func (e *Executor[T, R]) Stream(ctx context.Context, items []T, batchSize int) <-chan Result[R] {
	out := make(chan Result[R])
	go func() {
		defer close(out)
		for i, b := range Partition(items, batchSize) {
			res := e.RunBatch(ctx, i, b)
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
			if res.Status == StatusCancelled {
				return
			}
		}
	}()
	return out
}

// RunParallel partitions items and runs batches concurrently, bounded by
// MaxConcurrentBatches. Results come back ordered by batch index regardless
// of completion order.
func (e *Executor[T, R]) RunParallel(ctx context.Context, items []T, batchSize int) []Result[R] {
	timer := logging.StartTimer(logging.CategoryBatch, "RunParallel")
	defer timer.Stop()

	batches := Partition(items, batchSize)
	results := make([]Result[R], len(batches))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.MaxConcurrentBatches)
	for i, b := range batches {
		i, b := i, b
		eg.Go(func() error {
			results[i] = e.RunBatch(egCtx, i, b)
			return nil
		})
	}
	// Workers only write their own slot and never return errors; Wait is
	// purely a join point here.
	_ = eg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}

// Fold streams batches sequentially and reduces them into an accumulator as
// each completes. The final accumulator value is returned once all batches
// are done.
func Fold[T, R, A any](ctx context.Context, e *Executor[T, R], items []T, batchSize int, seed A, fn func(A, Result[R]) A) A {
	acc := seed
	for res := range e.Stream(ctx, items, batchSize) {
		acc = fn(acc, res)
	}
	return acc
}
