package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreflow/internal/config"
	"scoreflow/internal/schema"
)

// smallLayout is a 2x2 plan contract: 2 dimensions, 2 policy areas, 2
// questions per dimension.
func smallLayout() config.PlanConfig {
	return config.PlanConfig{
		RequiredTaskCount: 4,
		Dimensions:        []string{"D1", "D2"},
		PolicyAreas:       []string{"PA01", "PA02"},
		QuestionsPerDim:   2,
	}
}

func questionRecord(dim string) schema.RawRecord {
	return schema.RawRecord{"dimension_id": dim}
}

func chunkRecord(pa, dim string) schema.RawRecord {
	return schema.RawRecord{"policy_area_id": pa, "dimension_id": dim}
}

func fullChunkSet() []schema.RawRecord {
	var out []schema.RawRecord
	for _, pa := range []string{"PA01", "PA02"} {
		for _, dim := range []string{"D1", "D2"} {
			out = append(out, chunkRecord(pa, dim))
		}
	}
	return out
}

func TestCheckQuestionLayoutAccepts(t *testing.T) {
	records := []schema.RawRecord{
		questionRecord("D1"), questionRecord("D1"),
		questionRecord("D2"), questionRecord("D2"),
	}
	assert.Empty(t, CheckQuestionLayout(records, smallLayout()))
}

func TestCheckQuestionLayoutRejects(t *testing.T) {
	tests := []struct {
		name    string
		records []schema.RawRecord
	}{
		{"short dimension", []schema.RawRecord{
			questionRecord("D1"), questionRecord("D1"), questionRecord("D2"),
		}},
		{"unknown dimension", []schema.RawRecord{
			questionRecord("D1"), questionRecord("D1"),
			questionRecord("D2"), questionRecord("D9"),
		}},
		{"missing dimension field", []schema.RawRecord{
			questionRecord("D1"), questionRecord("D1"),
			questionRecord("D2"), {"dimension_id": 7},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, CheckQuestionLayout(tt.records, smallLayout()))
		})
	}
}

func TestCheckChunkLayoutHermetic(t *testing.T) {
	assert.Empty(t, CheckChunkLayout(fullChunkSet(), smallLayout()))
}

func TestCheckChunkLayoutMissingCell(t *testing.T) {
	chunks := fullChunkSet()[:3]
	problems := CheckChunkLayout(chunks, smallLayout())
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "missing chunk")
	assert.Contains(t, problems[0], "(PA02, D2)")
}

func TestCheckChunkLayoutDuplicateCell(t *testing.T) {
	chunks := append(fullChunkSet(), chunkRecord("PA01", "D1"))
	problems := CheckChunkLayout(chunks, smallLayout())
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "multiple chunks")
}

func TestCheckChunkLayoutUnknownCell(t *testing.T) {
	chunks := append(fullChunkSet(), chunkRecord("PA99", "D1"))
	problems := CheckChunkLayout(chunks, smallLayout())
	assert.NotEmpty(t, problems)
}

func writeYAML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadQuestionsFromYAML(t *testing.T) {
	path := writeYAML(t, "questions.yaml", `
questions:
  - question_id: Q1
    question_global: 1
    dimension_id: D1
  - question_id: Q2
    question_global: 2
    dimension_id: D2
`)
	records, err := LoadQuestions(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Q1", records[0]["question_id"])
	assert.Equal(t, 1, records[0]["question_global"])
}

func TestLoadChunksFromYAML(t *testing.T) {
	path := writeYAML(t, "chunks.yaml", `
chunks:
  - chunk_id: PA01-D1
    policy_area_id: PA01
    dimension_id: D1
    content: "section one"
`)
	records, err := LoadChunks(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "PA01-D1", records[0]["chunk_id"])
}

func TestLoadRejectsNonHermeticCorpus(t *testing.T) {
	var q, c string
	q = "questions:\n"
	for i, dim := range []string{"D1", "D1", "D2", "D2"} {
		q += fmt.Sprintf("  - question_id: Q%d\n    dimension_id: %s\n", i+1, dim)
	}
	// Only three of the four cells provided.
	c = "chunks:\n"
	for _, cell := range [][2]string{{"PA01", "D1"}, {"PA01", "D2"}, {"PA02", "D1"}} {
		c += fmt.Sprintf("  - chunk_id: %s-%s\n    policy_area_id: %s\n    dimension_id: %s\n",
			cell[0], cell[1], cell[0], cell[1])
	}

	qPath := writeYAML(t, "questions.yaml", q)
	cPath := writeYAML(t, "chunks.yaml", c)

	_, _, err := Load(qPath, cPath, smallLayout())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout check failed")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadQuestions(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
