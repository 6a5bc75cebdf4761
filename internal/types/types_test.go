package types

import (
	"fmt"
	"strings"
	"testing"
)

func TestTaskIDFormat(t *testing.T) {
	tests := []struct {
		questionGlobal int
		policyAreaID   string
		want           string
	}{
		{7, "PA03", "MQC-007_PA03"},
		{0, "PA01", "MQC-000_PA01"},
		{42, "PA10", "MQC-042_PA10"},
		{300, "PA05", "MQC-300_PA05"},
	}
	for _, tt := range tests {
		if got := TaskID(tt.questionGlobal, tt.policyAreaID); got != tt.want {
			t.Errorf("TaskID(%d, %s) = %s, want %s", tt.questionGlobal, tt.policyAreaID, got, tt.want)
		}
	}
}

func makeTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{
			TaskID:     TaskID(i, "PA01"),
			QuestionID: fmt.Sprintf("Q%d", i),
		}
	}
	return tasks
}

func TestNewExecutionPlanExactCount(t *testing.T) {
	if _, err := NewExecutionPlan("p1", makeTasks(5), 5, "h", "t", "c"); err != nil {
		t.Fatalf("exact count should construct, got error: %v", err)
	}
	for _, n := range []int{4, 6, 0} {
		if _, err := NewExecutionPlan("p1", makeTasks(n), 5, "h", "t", "c"); err == nil {
			t.Errorf("count %d against required 5 should fail construction", n)
		}
	}
}

func TestNewExecutionPlanRejectsDuplicates(t *testing.T) {
	tasks := makeTasks(3)
	tasks[2].TaskID = tasks[0].TaskID
	_, err := NewExecutionPlan("p1", tasks, 3, "h", "t", "c")
	if err == nil {
		t.Fatal("duplicate task ids should fail construction")
	}
	if !strings.Contains(err.Error(), tasks[0].TaskID) {
		t.Errorf("error should name the duplicated id, got: %v", err)
	}
}

func TestNewExecutionPlanCopiesTasks(t *testing.T) {
	tasks := makeTasks(2)
	p, err := NewExecutionPlan("p1", tasks, 2, "h", "t", "c")
	if err != nil {
		t.Fatal(err)
	}
	tasks[0].TaskID = "mutated"
	if p.Tasks[0].TaskID == "mutated" {
		t.Error("plan must own its task slice, not alias the caller's")
	}
}

func TestOutputSchemaKeysSorted(t *testing.T) {
	s := OutputSchema{
		Shape: ShapeMapping,
		Mapping: map[string]ElementSpec{
			"zeta": {Type: "number"}, "alpha": {Type: "string"}, "mid": {Type: "number"},
		},
	}
	got := s.Keys()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Keys() = %v, want %v", got, want)
		}
	}
}

func TestSchemaShapeString(t *testing.T) {
	if ShapeAbsent.String() != "absent" || ShapeSequence.String() != "sequence" || ShapeMapping.String() != "mapping" {
		t.Error("unexpected SchemaShape string values")
	}
}
