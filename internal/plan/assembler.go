// Package plan assembles the complete task set into an immutable,
// integrity-hashed execution plan. Preconditions are hard: the task count
// must equal the canonical required count and every task id must be unique.
// Hash computation failure is the one soft spot - the plan stays usable and
// the failure is recorded as a warning.
package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"scoreflow/internal/logging"
	"scoreflow/internal/types"
)

// Result is the complete outcome of one assembly attempt. A failed assembly
// has a nil Plan - there are no partial, ambiguous plans.
type Result struct {
	Plan          *types.ExecutionPlan
	PlanID        string
	TaskCount     int
	Passed        bool
	Errors        []string
	Warnings      []string
	IntegrityHash string
	DuplicateIDs  []string
	Timestamp     string
}

// Assembler builds execution plans with a fixed required task count.
type Assembler struct {
	requiredCount int
}

// NewAssembler returns an assembler enforcing the given canonical count
// (types.RequiredTaskCount for the standard 300-question contract).
func NewAssembler(requiredCount int) *Assembler {
	return &Assembler{requiredCount: requiredCount}
}

// hashRecord is the field selection serialized into the integrity hash.
// Field order is fixed by the struct definition; record order is fixed by
// sorting on task_id, so identical task sets always hash identically.
type hashRecord struct {
	TaskID         string `json:"task_id"`
	QuestionID     string `json:"question_id"`
	QuestionGlobal int    `json:"question_global"`
	PolicyAreaID   string `json:"policy_area_id"`
	DimensionID    string `json:"dimension_id"`
	ChunkID        string `json:"chunk_id"`
	CreationTime   string `json:"creation_time"`
}

// ComputeIntegrityHash returns the SHA-256 hex digest of the sorted,
// field-selected serialization of the tasks.
func ComputeIntegrityHash(tasks []types.Task) (string, error) {
	records := make([]hashRecord, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, hashRecord{
			TaskID:         t.TaskID,
			QuestionID:     t.QuestionID,
			QuestionGlobal: t.QuestionGlobal,
			PolicyAreaID:   t.PolicyAreaID,
			DimensionID:    t.DimensionID,
			ChunkID:        t.ChunkID,
			CreationTime:   t.CreationTime,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TaskID < records[j].TaskID })

	serialized, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("integrity hash serialization failed: %w", err)
	}
	digest := sha256.Sum256(serialized)
	return hex.EncodeToString(digest[:]), nil
}

// Assemble builds the execution plan. planID may be empty, in which case it
// defaults to a short prefix of the integrity hash. correlationID carries the
// run-level trace id into the plan.
func (a *Assembler) Assemble(tasks []types.Task, planID, correlationID string) Result {
	timer := logging.StartTimer(logging.CategoryPlan, "Assemble")
	defer timer.Stop()

	var errs, warns []string
	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Precondition: exact count. Never pad, never truncate.
	if len(tasks) != a.requiredCount {
		errs = append(errs, fmt.Sprintf("task count mismatch: expected %d, got %d", a.requiredCount, len(tasks)))
	}

	// Independent duplicate re-scan, regardless of the builder's own check.
	duplicates := detectDuplicates(tasks)
	if len(duplicates) > 0 {
		errs = append(errs, fmt.Sprintf("duplicate task ids detected: %v", duplicates))
	}

	if len(errs) > 0 {
		logging.PlanWarn("assembly aborted: %d errors", len(errs))
		return Result{
			PlanID:       planID,
			TaskCount:    len(tasks),
			Passed:       false,
			Errors:       errs,
			DuplicateIDs: duplicates,
			Timestamp:    now,
		}
	}

	integrityHash, err := ComputeIntegrityHash(tasks)
	if err != nil {
		// Non-fatal: the plan is still usable without a hash.
		warns = append(warns, fmt.Sprintf("integrity hash computation failed: %v", err))
		logging.PlanWarn("integrity hash computation failed: %v", err)
	}

	if planID == "" {
		if integrityHash != "" {
			planID = "plan-" + integrityHash[:16]
		} else {
			planID = fmt.Sprintf("plan-unhashed-%d", time.Now().UnixNano())
		}
	}

	execPlan, err := types.NewExecutionPlan(planID, tasks, a.requiredCount, integrityHash, now, correlationID)
	if err != nil {
		errs = append(errs, fmt.Sprintf("execution plan construction failed: %v", err))
		return Result{
			PlanID:       planID,
			TaskCount:    len(tasks),
			Passed:       false,
			Errors:       errs,
			Warnings:     warns,
			DuplicateIDs: duplicates,
			Timestamp:    now,
		}
	}

	hashPreview := integrityHash
	if len(hashPreview) > 16 {
		hashPreview = hashPreview[:16]
	}
	logging.Plan("assembled plan %s: tasks=%d hash=%s warnings=%d",
		planID, len(execPlan.Tasks), hashPreview, len(warns))

	return Result{
		Plan:          execPlan,
		PlanID:        planID,
		TaskCount:     len(execPlan.Tasks),
		Passed:        true,
		Warnings:      warns,
		IntegrityHash: integrityHash,
		Timestamp:     now,
	}
}

// detectDuplicates returns the sorted set of task ids appearing more than once.
func detectDuplicates(tasks []types.Task) []string {
	seen := make(map[string]struct{}, len(tasks))
	dupSet := make(map[string]struct{})
	for _, t := range tasks {
		if _, ok := seen[t.TaskID]; ok {
			dupSet[t.TaskID] = struct{}{}
		}
		seen[t.TaskID] = struct{}{}
	}
	if len(dupSet) == 0 {
		return nil
	}
	dups := make([]string, 0, len(dupSet))
	for id := range dupSet {
		dups = append(dups, id)
	}
	sort.Strings(dups)
	return dups
}

// VerifyIntegrity recomputes a plan's hash and compares it to the stored one.
// Plans assembled without a hash (hash failure warning) verify trivially.
func VerifyIntegrity(p *types.ExecutionPlan) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("nil plan")
	}
	if p.IntegrityHash == "" {
		return true, nil
	}
	recomputed, err := ComputeIntegrityHash(p.Tasks)
	if err != nil {
		return false, err
	}
	return recomputed == p.IntegrityHash, nil
}
