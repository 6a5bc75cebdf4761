// Package batch provides the generic batching and execution engine used to
// run execution-plan tasks. Work is partitioned into batches sized by a
// complexity classification, each batch runs its items under per-item and
// per-batch deadlines with panic isolation, and batches that fail past the
// configured error threshold are retried whole with exponential backoff.
package batch

import (
	"fmt"

	"scoreflow/internal/config"
)

// Status is the lifecycle state of a batch.
type Status string

const (
	StatusPending        Status = "PENDING"
	StatusRunning        Status = "RUNNING"
	StatusCompleted      Status = "COMPLETED"
	StatusPartialSuccess Status = "PARTIAL_SUCCESS"
	StatusFailed         Status = "FAILED"
	StatusCancelled      Status = "CANCELLED"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartialSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Complexity classifies a workload to pick its batch size. Simpler work runs
// in larger batches.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityModerate    Complexity = "moderate"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very_complex"
)

var complexitySizes = map[Complexity]int{
	ComplexitySimple:      50,
	ComplexityModerate:    20,
	ComplexityComplex:     10,
	ComplexityVeryComplex: 5,
}

// SizeFor returns the batch size for the given complexity, clamped to the
// configured [min, max] range. Unknown complexities fall back to the
// configured default size.
func SizeFor(c Complexity, cfg config.BatchConfig) int {
	size, ok := complexitySizes[c]
	if !ok {
		size = cfg.DefaultBatchSize
	}
	if size < cfg.MinBatchSize {
		size = cfg.MinBatchSize
	}
	if size > cfg.MaxBatchSize {
		size = cfg.MaxBatchSize
	}
	return size
}

// ParseComplexity validates a complexity string from config or CLI input.
func ParseComplexity(s string) (Complexity, error) {
	c := Complexity(s)
	if _, ok := complexitySizes[c]; !ok {
		return "", fmt.Errorf("unknown complexity %q (want simple, moderate, complex, or very_complex)", s)
	}
	return c, nil
}

// Partition splits items into contiguous batches of at most size elements.
// The final batch holds the remainder. Partitioning N items with batch size
// B always yields ceil(N/B) batches, and concatenating them restores the
// original order exactly.
func Partition[T any](items []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	if len(items) == 0 {
		return nil
	}
	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
