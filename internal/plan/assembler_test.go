package plan

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreflow/internal/types"
)

func syntheticTasks(n int) []types.Task {
	tasks := make([]types.Task, n)
	for i := range tasks {
		tasks[i] = types.Task{
			TaskID:         types.TaskID(i, "PA01"),
			QuestionID:     fmt.Sprintf("Q%d", i),
			QuestionGlobal: i,
			PolicyAreaID:   "PA01",
			DimensionID:    "D1",
			ChunkID:        "PA01-D1",
			CreationTime:   "2026-03-15T12:00:00Z",
		}
	}
	return tasks
}

func TestAssembleExactCount(t *testing.T) {
	a := NewAssembler(300)
	res := a.Assemble(syntheticTasks(300), "", "corr-1")
	require.True(t, res.Passed, "errors: %v", res.Errors)
	require.NotNil(t, res.Plan)
	assert.Equal(t, 300, res.TaskCount)
	assert.Len(t, res.IntegrityHash, 64)
	assert.True(t, strings.HasPrefix(res.PlanID, "plan-"))
	assert.Equal(t, "plan-"+res.IntegrityHash[:16], res.PlanID)
	assert.Equal(t, "corr-1", res.Plan.CorrelationID)
}

func TestAssembleRejectsWrongCounts(t *testing.T) {
	a := NewAssembler(300)
	for _, n := range []int{299, 301, 0} {
		res := a.Assemble(syntheticTasks(n), "", "corr-1")
		assert.False(t, res.Passed, "count %d must fail", n)
		assert.Nil(t, res.Plan)
		require.NotEmpty(t, res.Errors)
		assert.Contains(t, res.Errors[0], "300")
	}
}

func TestAssembleDetectsDuplicates(t *testing.T) {
	tasks := syntheticTasks(300)
	tasks[299].TaskID = tasks[0].TaskID

	res := NewAssembler(300).Assemble(tasks, "", "corr-1")
	require.False(t, res.Passed)
	require.Len(t, res.DuplicateIDs, 1)
	assert.Equal(t, tasks[0].TaskID, res.DuplicateIDs[0])
}

func TestAssembleExplicitPlanID(t *testing.T) {
	res := NewAssembler(10).Assemble(syntheticTasks(10), "run-2026-03", "corr-1")
	require.True(t, res.Passed)
	assert.Equal(t, "run-2026-03", res.PlanID)
	assert.Equal(t, "run-2026-03", res.Plan.PlanID)
}

func TestIntegrityHashDeterministicUnderShuffle(t *testing.T) {
	tasks := syntheticTasks(50)
	want, err := ComputeIntegrityHash(tasks)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]types.Task, len(tasks))
		copy(shuffled, tasks)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got, err := ComputeIntegrityHash(shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got, "hash must be order-independent")
	}
}

func TestIntegrityHashSensitivity(t *testing.T) {
	tasks := syntheticTasks(10)
	base, err := ComputeIntegrityHash(tasks)
	require.NoError(t, err)

	mutated := make([]types.Task, len(tasks))
	copy(mutated, tasks)
	mutated[3].ChunkID = "PA02-D1"
	changed, err := ComputeIntegrityHash(mutated)
	require.NoError(t, err)
	assert.NotEqual(t, base, changed, "hash must change when a hashed field changes")

	// Fields outside the hash selection do not affect it.
	copy(mutated, tasks)
	mutated[3].Metadata = map[string]any{"extra": true}
	same, err := ComputeIntegrityHash(mutated)
	require.NoError(t, err)
	assert.Equal(t, base, same)
}

func TestVerifyIntegrity(t *testing.T) {
	res := NewAssembler(10).Assemble(syntheticTasks(10), "", "corr-1")
	require.True(t, res.Passed)

	ok, err := VerifyIntegrity(res.Plan)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := *res.Plan
	tampered.Tasks = syntheticTasks(10)
	tampered.Tasks[0].ChunkID = "PA09-D9"
	ok, err = VerifyIntegrity(&tampered)
	require.NoError(t, err)
	assert.False(t, ok)
}
